package build

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/goplus/xzpkg/pkgs/buildsys"
	"github.com/goplus/xzpkg/pkgs/buildsys/autotools"
	"github.com/goplus/xzpkg/pkgs/buildsys/msbuild"
	"github.com/goplus/xzpkg/recipe"
)

// Solution is the Visual Studio solution shipped in the xz tree.
const Solution = "xz_win.sln"

// ShellEnv names the POSIX shell used for MinGW builds.
const ShellEnv = "XZPKG_BASH"

// MSBuildEnv overrides the msbuild executable, e.g. a full path to
// MSBuild.exe outside PATH.
const MSBuildEnv = "XZPKG_MSBUILD"

// Library targets of the xz solution.
const (
	TargetStatic = "liblzma"
	TargetShared = "liblzma_dll"
)

// Kind selects the build strategy.
type Kind int

const (
	KindAutotools Kind = iota + 1
	KindMSBuild
)

func (k Kind) String() string {
	switch k {
	case KindAutotools:
		return "autotools"
	case KindMSBuild:
		return "msbuild"
	}
	return "unknown"
}

// MSBuildPlan builds one library target of the xz solution.
type MSBuildPlan struct {
	// Generation is the project directory under windows/: vs2013 or vs2017.
	Generation    string `yaml:"generation"`
	ProjectDir    string `yaml:"project_dir"`
	Solution      string `yaml:"solution"`
	Target        string `yaml:"target"`
	Configuration string `yaml:"configuration"`
	Platform      string `yaml:"platform"`
	Toolset       string `yaml:"toolset,omitempty"`
	StaticRuntime bool   `yaml:"static_runtime,omitempty"`
	// Tool is the msbuild executable; empty means "msbuild" from PATH.
	Tool string `yaml:"tool,omitempty"`
}

// AutotoolsPlan runs configure/make/make install out of tree.
type AutotoolsPlan struct {
	BuildDir   string   `yaml:"build_dir"`
	InstallDir string   `yaml:"install_dir"`
	Args       []string `yaml:"args"`
	// Shell is set for MinGW builds, which need a POSIX shell.
	Shell string `yaml:"shell,omitempty"`
}

// BuildPlan is the strategy chosen for a configuration. Exactly one of
// MSBuild and Autotools is set, matching Kind.
type BuildPlan struct {
	Kind      Kind           `yaml:"-"`
	Strategy  string         `yaml:"strategy"`
	SourceDir string         `yaml:"source_dir"`
	MSBuild   *MSBuildPlan   `yaml:"msbuild,omitempty"`
	Autotools *AutotoolsPlan `yaml:"autotools,omitempty"`
}

// Planner chooses build strategies. The zero value looks tools up in
// the process environment.
type Planner struct {
	LookPath func(file string) (string, error)
	Getenv   func(key string) string
}

// Plan chooses the build strategy for cfg. Sources live in srcDir;
// build and install trees are created under workDir.
func (p *Planner) Plan(cfg recipe.Config, srcDir, workDir string) (*BuildPlan, error) {
	if cfg.Settings.Compiler.IsVisualStudio() {
		mp, err := planMSBuild(cfg, srcDir)
		if err != nil {
			return nil, err
		}
		mp.Tool = p.getenv(MSBuildEnv)
		return &BuildPlan{Kind: KindMSBuild, Strategy: KindMSBuild.String(), SourceDir: srcDir, MSBuild: mp}, nil
	}

	ap := &AutotoolsPlan{
		BuildDir:   filepath.Join(workDir, "build"),
		InstallDir: filepath.Join(workDir, "install"),
		Args:       ConfigureArgs(cfg),
	}
	if cfg.Settings.OS == recipe.Windows {
		shell, err := p.shell()
		if err != nil {
			return nil, err
		}
		ap.Shell = shell
	}
	return &BuildPlan{Kind: KindAutotools, Strategy: KindAutotools.String(), SourceDir: srcDir, Autotools: ap}, nil
}

func (p *Planner) getenv(key string) string {
	if p.Getenv == nil {
		return os.Getenv(key)
	}
	return p.Getenv(key)
}

func (p *Planner) shell() (string, error) {
	lookPath := p.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if s := p.getenv(ShellEnv); s != "" {
		return s, nil
	}
	s, err := lookPath("bash")
	if err != nil {
		return "", recipe.Errorf(recipe.ErrConfig, "MinGW builds need a POSIX shell (set %s): %w", ShellEnv, err)
	}
	return s, nil
}

func planMSBuild(cfg recipe.Config, srcDir string) (*MSBuildPlan, error) {
	s := cfg.Settings
	version, err := msbuild.ParseVersion(s.Compiler.Version)
	if err != nil {
		return nil, recipe.Errorf(recipe.ErrConfig, "%w", err)
	}
	gen, native, err := Generation(version)
	if err != nil {
		return nil, err
	}
	platform, ok := msbuild.Platform(s.Arch)
	if !ok {
		return nil, recipe.Errorf(recipe.ErrConfig, "arch %q is not supported by the %s projects", s.Arch, gen)
	}

	mp := &MSBuildPlan{
		Generation:    gen,
		ProjectDir:    filepath.Join(srcDir, "windows", gen),
		Solution:      Solution,
		Target:        Target(cfg.Options.Shared),
		Configuration: Configuration(s.BuildType),
		Platform:      platform,
		StaticRuntime: strings.HasPrefix(s.Compiler.Runtime, "MT"),
	}
	if version > native {
		mp.Toolset, _ = msbuild.Toolset(version)
	}
	return mp, nil
}

// Generation returns the project directory for a Visual Studio major
// version and the version those projects were authored for.
func Generation(version int) (dir string, native int, err error) {
	switch {
	case version >= 15:
		return "vs2017", 15, nil
	case version >= 12 && version != 13:
		return "vs2013", 12, nil
	}
	return "", 0, recipe.Errorf(recipe.ErrConfig, "Visual Studio %d is too old, need 12 or newer", version)
}

// Target returns the solution target for the requested linkage.
func Target(shared bool) string {
	if shared {
		return TargetShared
	}
	return TargetStatic
}

// Configuration maps a build type to the solution configurations, which
// only provide Debug and Release.
func Configuration(buildType string) string {
	if buildType == recipe.Debug {
		return "Debug"
	}
	return "Release"
}

// ConfigureArgs returns the configure flags for cfg. Only liblzma is
// built: every companion tool, script and doc is disabled.
func ConfigureArgs(cfg recipe.Config) []string {
	args := []string{
		"--disable-xz",
		"--disable-xzdec",
		"--disable-lzmadec",
		"--disable-lzmainfo",
		"--disable-scripts",
		"--disable-doc",
	}
	if cfg.Options.PIC() && cfg.Settings.OS != recipe.Windows {
		args = append(args, "--with-pic")
	}
	if cfg.Settings.BuildType == recipe.Debug {
		args = append(args, "--enable-debug")
	}
	if cfg.Options.Shared {
		args = append(args, "--enable-shared", "--disable-static")
	} else {
		args = append(args, "--disable-shared", "--enable-static")
	}
	return args
}

// System returns the driver that executes the plan.
func (p *BuildPlan) System(r buildsys.Runner) buildsys.BuildSystem {
	switch p.Kind {
	case KindMSBuild:
		return p.msbuild(r)
	case KindAutotools:
		return p.autotools(r)
	}
	panic("build: plan has no strategy")
}

func (p *BuildPlan) msbuild(r buildsys.Runner) *msbuild.MSBuild {
	mp := p.MSBuild
	m := msbuild.New(mp.ProjectDir, mp.Solution, mp.Target)
	m.Configuration = mp.Configuration
	m.Platform = mp.Platform
	m.Toolset = mp.Toolset
	m.StaticRuntime = mp.StaticRuntime
	if mp.Tool != "" {
		m.Tool(mp.Tool)
	}
	m.Runner(r)
	return m
}

func (p *BuildPlan) autotools(r buildsys.Runner) *autotools.AutoTools {
	ap := p.Autotools
	a := autotools.New(p.SourceDir, ap.BuildDir, ap.InstallDir)
	if ap.Shell != "" {
		a.Shell(ap.Shell)
	}
	a.Runner(r)
	return a
}

// WorkDir is the directory the build runs in.
func (p *BuildPlan) WorkDir() string {
	if p.Kind == KindMSBuild {
		return p.MSBuild.ProjectDir
	}
	return p.Autotools.BuildDir
}

// ArtifactDir is where the built libraries end up.
func (p *BuildPlan) ArtifactDir() string {
	if p.Kind == KindMSBuild {
		return p.msbuild(nil).OutputDir()
	}
	return p.Autotools.InstallDir
}

// Commands lists the external commands the plan runs, in order.
func (p *BuildPlan) Commands() []buildsys.Command {
	switch p.Kind {
	case KindMSBuild:
		return []buildsys.Command{p.msbuild(nil).Command()}
	case KindAutotools:
		return p.autotools(nil).Commands(p.Autotools.Args...)
	}
	return nil
}

func (p *BuildPlan) configureArgs() []string {
	if p.Kind == KindAutotools {
		return p.Autotools.Args
	}
	return nil
}
