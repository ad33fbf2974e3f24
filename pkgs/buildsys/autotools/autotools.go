// Package autotools wraps the classic configure/make/make-install workflow.
package autotools

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/xzpkg/pkgs/buildsys"
)

// AutoTools drives Autotools-style builds.
type AutoTools struct {
	SourceDir  string
	buildDir   string
	installDir string
	env        map[string]string
	shell      string
	runner     buildsys.Runner
}

var _ buildsys.BuildSystem = (*AutoTools)(nil)

// New returns an AutoTools configured out of tree: configure runs in
// buildDir and installs into installDir.
func New(sourceDir, buildDir, installDir string) *AutoTools {
	return &AutoTools{
		SourceDir:  sourceDir,
		buildDir:   buildDir,
		installDir: installDir,
		env:        map[string]string{},
	}
}

// Runner sets the command runner; buildsys.DefaultRunner is used otherwise.
func (a *AutoTools) Runner(r buildsys.Runner) { a.runner = r }

// Shell makes every step run as `<shell> -c "<command>"` with MSYS style
// paths, as needed for MinGW builds on Windows.
func (a *AutoTools) Shell(path string) { a.shell = path }

// Env sets key=value for every command spawned later.
func (a *AutoTools) Env(key, value string) {
	if a.env == nil {
		a.env = map[string]string{}
	}
	a.env[key] = value
}

// Configure runs <SourceDir>/configure inside the build dir.
// --prefix is prepended automatically when an install dir is set.
// Extra flags are appended after --prefix.
func (a *AutoTools) Configure(ctx context.Context, args ...string) error {
	if err := os.MkdirAll(a.workDir(), 0o755); err != nil {
		return err
	}
	exe, flags := a.configure(args)
	return a.run(ctx, exe, flags)
}

func (a *AutoTools) configure(args []string) (string, []string) {
	exe := "./configure"
	if a.SourceDir != "" {
		exe = filepath.Join(a.SourceDir, "configure")
	}
	flags := make([]string, 0, 1+len(args))
	if a.installDir != "" {
		flags = append(flags, "--prefix="+a.path(a.installDir))
	}
	return a.path(exe), append(flags, args...)
}

// Build runs "make" with optional extra arguments.
func (a *AutoTools) Build(ctx context.Context, args ...string) error {
	return a.run(ctx, "make", args)
}

// Install runs "make install" with optional extra arguments appended.
func (a *AutoTools) Install(ctx context.Context, args ...string) error {
	return a.run(ctx, "make", append([]string{"install"}, args...))
}

// OutputDir returns the install dir if set, otherwise the build dir.
func (a *AutoTools) OutputDir() string {
	if a.installDir != "" {
		return a.installDir
	}
	return a.buildDir
}

// Commands returns the configure, build and install invocations without
// running them.
func (a *AutoTools) Commands(configureArgs ...string) []buildsys.Command {
	exe, flags := a.configure(configureArgs)
	return []buildsys.Command{
		a.command(exe, flags),
		a.command("make", nil),
		a.command("make", []string{"install"}),
	}
}

func (a *AutoTools) workDir() string {
	if a.buildDir == "" {
		if a.SourceDir != "" {
			return a.SourceDir
		}
		return "."
	}
	return a.buildDir
}

func (a *AutoTools) command(name string, args []string) buildsys.Command {
	cmd := buildsys.Command{
		Name: name,
		Args: args,
		Dir:  a.workDir(),
		Env:  a.env,
	}
	if a.shell != "" {
		cmd.Name = a.shell
		cmd.Args = []string{"-c", shellJoin(name, args)}
	}
	return cmd
}

func (a *AutoTools) run(ctx context.Context, name string, args []string) error {
	runner := a.runner
	if runner == nil {
		runner = buildsys.DefaultRunner
	}
	return runner.Run(ctx, a.command(name, args))
}

// path converts p to the form the configured shell expects.
func (a *AutoTools) path(p string) string {
	if a.shell == "" {
		return p
	}
	return MSYSPath(p)
}

// MSYSPath converts a Windows path such as C:\src\xz to /c/src/xz.
func MSYSPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if len(p) >= 2 && p[1] == ':' {
		drive := strings.ToLower(p[:1])
		return "/" + drive + p[2:]
	}
	return p
}

func shellJoin(name string, args []string) string {
	parts := make([]string, 0, 1+len(args))
	parts = append(parts, shellQuote(name))
	for _, arg := range args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:,+@%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
