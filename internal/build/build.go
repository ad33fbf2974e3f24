// Package build selects and runs the build strategy for a configuration.
package build

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/goplus/xzpkg/internal/logging"
	"github.com/goplus/xzpkg/pkgs/buildsys"
	"github.com/goplus/xzpkg/recipe"
)

// Builder runs build plans.
type Builder struct {
	Runner buildsys.Runner
	Log    logrus.FieldLogger
}

// NewBuilder returns a Builder that runs tools through r.
func NewBuilder(r buildsys.Runner, log logrus.FieldLogger) *Builder {
	return &Builder{Runner: r, Log: log}
}

// Run executes the configure, build and install steps of plan in order,
// inside the plan's work dir. The first failing step aborts the build;
// the returned error matches recipe.ErrBuild.
func (b *Builder) Run(ctx context.Context, plan *BuildPlan) error {
	log := logging.OrDiscard(b.Log).WithField("strategy", plan.Kind)
	runner := b.Runner
	if runner == nil {
		runner = buildsys.DefaultRunner
	}
	sys := plan.System(runner)

	dir := plan.WorkDir()
	if plan.Kind == KindAutotools {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return recipe.Errorf(recipe.ErrBuild, "create build dir: %w", err)
		}
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"configure", func() error { return sys.Configure(ctx, plan.configureArgs()...) }},
		{"build", func() error { return sys.Build(ctx) }},
		{"install", func() error { return sys.Install(ctx) }},
	}
	return withDir(dir, func() error {
		for _, step := range steps {
			if err := ctx.Err(); err != nil {
				return recipe.Errorf(recipe.ErrBuild, "%s: %w", step.name, err)
			}
			log.WithField("step", step.name).Info("running")
			if err := step.run(); err != nil {
				return recipe.Errorf(recipe.ErrBuild, "%s: %w", step.name, err)
			}
		}
		return nil
	})
}

// withDir runs fn with dir as the working directory. The previous working
// directory is restored however fn returns, including by panic.
func withDir(dir string, fn func() error) (err error) {
	prev, err := os.Getwd()
	if err != nil {
		return recipe.Errorf(recipe.ErrBuild, "getwd: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return recipe.Errorf(recipe.ErrBuild, "enter %s: %w", dir, err)
	}
	defer func() {
		if cerr := os.Chdir(prev); cerr != nil && err == nil {
			err = recipe.Errorf(recipe.ErrBuild, "restore working directory: %w", cerr)
		}
	}()
	return fn()
}
