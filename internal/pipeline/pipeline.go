// Package pipeline runs the recipe phases in order: configure, source
// acquisition, build and package.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/goplus/xzpkg/internal/build"
	"github.com/goplus/xzpkg/internal/configure"
	"github.com/goplus/xzpkg/internal/logging"
	"github.com/goplus/xzpkg/internal/packager"
	"github.com/goplus/xzpkg/internal/source"
	"github.com/goplus/xzpkg/recipe"
)

// Pipeline drives one recipe through all phases inside a workspace.
type Pipeline struct {
	Workspace string
	Fetcher   *source.Fetcher
	Planner   *build.Planner
	Builder   *build.Builder
	Packager  *packager.Packager
	// Force rebuilds even when the cache has a matching package.
	Force bool
	Log   logrus.FieldLogger
}

// Result describes a completed (or, for Plan, planned) run.
type Result struct {
	Version    string
	Config     recipe.Config
	Plan       *build.BuildPlan
	Rules      []packager.Rule
	Info       *recipe.PackageInfo
	PackageDir string
	Cached     bool
}

// New returns a Pipeline with default phase implementations.
func New(workspace string, log logrus.FieldLogger) *Pipeline {
	fetcher := source.New()
	fetcher.Log = log
	return &Pipeline{
		Workspace: workspace,
		Fetcher:   fetcher,
		Planner:   &build.Planner{},
		Builder:   build.NewBuilder(nil, log),
		Packager:  &packager.Packager{Log: log},
		Log:       log,
	}
}

func fail(phase string, err error) error {
	return &recipe.PhaseError{Phase: phase, Err: err}
}

// Plan configures raw and chooses the build strategy without touching
// the network or running any tool.
func (p *Pipeline) Plan(raw recipe.Config, version string) (*Result, error) {
	if version == "" {
		version = recipe.Latest()
	}
	if !recipe.ValidVersion(version) {
		return nil, fail(recipe.PhaseConfigure, recipe.Errorf(recipe.ErrConfig, "invalid version %q", version))
	}
	cfg, err := configure.Configure(raw)
	if err != nil {
		return nil, fail(recipe.PhaseConfigure, err)
	}

	workDir := p.workDir(version, cfg.Key())
	srcDir := filepath.Join(workDir, "src", source.Dirname(version))
	planner := p.Planner
	if planner == nil {
		planner = &build.Planner{}
	}
	plan, err := planner.Plan(cfg, srcDir, workDir)
	if err != nil {
		return nil, fail(recipe.PhaseBuild, err)
	}
	return &Result{
		Version:    version,
		Config:     cfg,
		Plan:       plan,
		Rules:      packager.Rules(cfg, plan),
		PackageDir: filepath.Join(workDir, "package"),
	}, nil
}

// Run executes every phase for raw at version ("" means the latest
// known version). Any phase failure aborts the run with a
// *recipe.PhaseError.
func (p *Pipeline) Run(ctx context.Context, raw recipe.Config, version string) (*Result, error) {
	res, err := p.Plan(raw, version)
	if err != nil {
		return nil, err
	}
	version, cfg, plan := res.Version, res.Config, res.Plan
	key := cfg.Key()
	log := logging.OrDiscard(p.Log).WithFields(logrus.Fields{"version": version, "key": key})
	if !recipe.Known(version) {
		log.Warn("no recipe revision for this version, using the latest revision's behavior")
	}

	cache, err := p.loadCache()
	if err != nil {
		log.WithError(err).Warn("ignoring unreadable build cache")
		cache = &buildCache{}
	}
	if entry, ok := cache.get(version, key); ok && !p.Force {
		// The package dir is the source of truth; the entry only points at it.
		info, err := recipe.LoadInfo(entry.PackageDir)
		switch {
		case err != nil:
			log.WithError(err).Debug("cached package unusable, rebuilding")
		case info.Version != version || info.Key != key:
			log.WithField("dir", entry.PackageDir).Debug("cached package belongs to another build, rebuilding")
		default:
			log.WithField("dir", entry.PackageDir).Info("using cached package")
			res.Info = info
			res.PackageDir = entry.PackageDir
			res.Cached = true
			return res, nil
		}
	}

	workDir := p.workDir(version, key)
	log.WithField("phase", recipe.PhaseSource).Info("acquiring source")
	fetcher := p.Fetcher
	if fetcher == nil {
		fetcher = source.New()
	}
	if _, err := fetcher.Fetch(ctx, version, filepath.Join(workDir, "src")); err != nil {
		return nil, fail(recipe.PhaseSource, err)
	}

	log.WithField("phase", recipe.PhaseBuild).Infof("building with %s", plan.Kind)
	if plan.Kind == build.KindAutotools {
		for _, dir := range []string{plan.Autotools.BuildDir, plan.Autotools.InstallDir} {
			if err := os.RemoveAll(dir); err != nil {
				return nil, fail(recipe.PhaseBuild, recipe.Errorf(recipe.ErrBuild, "clean %s: %w", dir, err))
			}
		}
	}
	builder := p.Builder
	if builder == nil {
		builder = build.NewBuilder(nil, p.Log)
	}
	if err := builder.Run(ctx, plan); err != nil {
		return nil, fail(recipe.PhaseBuild, err)
	}

	log.WithField("phase", recipe.PhasePackage).Info("packaging")
	pkgr := p.Packager
	if pkgr == nil {
		pkgr = &packager.Packager{Log: p.Log}
	}
	info, err := pkgr.Package(cfg, version, plan, res.PackageDir)
	if err != nil {
		return nil, fail(recipe.PhasePackage, err)
	}
	res.Info = info

	cache.set(version, key, &buildEntry{
		Metadata:   info.Metadata(),
		PackageDir: res.PackageDir,
		BuildTime:  time.Now(),
	})
	if err := p.saveCache(cache); err != nil {
		log.WithError(err).Warn("failed to save build cache")
	}
	return res, nil
}
