// Package msbuild drives Visual Studio solution builds.
package msbuild

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goplus/xzpkg/pkgs/buildsys"
)

// MSBuild builds one target of a solution. Artifacts stay inside the
// project tree, under <ProjectDir>/<Configuration>/<Platform>/<Target>.
type MSBuild struct {
	ProjectDir    string
	Solution      string
	Target        string
	Configuration string
	Platform      string
	// Toolset overrides the PlatformToolset of the projects when set.
	Toolset string
	// StaticRuntime switches the target project to the static CRT.
	StaticRuntime bool

	tool   string
	env    map[string]string
	runner buildsys.Runner
}

var _ buildsys.BuildSystem = (*MSBuild)(nil)

// New returns an MSBuild for target of solution inside projectDir.
func New(projectDir, solution, target string) *MSBuild {
	return &MSBuild{
		ProjectDir:    projectDir,
		Solution:      solution,
		Target:        target,
		Configuration: "Release",
		Platform:      "x64",
		tool:          "msbuild",
		env:           map[string]string{},
	}
}

// Tool overrides the msbuild executable.
func (m *MSBuild) Tool(path string) { m.tool = path }

// Runner sets the command runner; buildsys.DefaultRunner is used otherwise.
func (m *MSBuild) Runner(r buildsys.Runner) { m.runner = r }

func (m *MSBuild) Env(key, value string) {
	if m.env == nil {
		m.env = map[string]string{}
	}
	m.env[key] = value
}

// Configure prepares the project files. With StaticRuntime set, the
// target project is rewritten to link the static CRT.
func (m *MSBuild) Configure(ctx context.Context, args ...string) error {
	if !m.StaticRuntime {
		return nil
	}
	return PatchRuntime(filepath.Join(m.ProjectDir, m.Target+".vcxproj"))
}

// Build runs msbuild on the solution for the configured target.
func (m *MSBuild) Build(ctx context.Context, args ...string) error {
	runner := m.runner
	if runner == nil {
		runner = buildsys.DefaultRunner
	}
	return runner.Run(ctx, m.Command(args...))
}

// Install is a no-op: solution builds leave artifacts in OutputDir.
func (m *MSBuild) Install(ctx context.Context, args ...string) error {
	return nil
}

// OutputDir returns the directory msbuild writes the target to.
func (m *MSBuild) OutputDir() string {
	return filepath.Join(m.ProjectDir, m.Configuration, m.Platform, m.Target)
}

// Command returns the msbuild invocation.
func (m *MSBuild) Command(args ...string) buildsys.Command {
	cmdArgs := []string{
		m.Solution,
		"/t:" + m.Target,
		"/p:Configuration=" + m.Configuration,
		"/p:Platform=" + m.Platform,
	}
	if m.Toolset != "" {
		cmdArgs = append(cmdArgs, "/p:PlatformToolset="+m.Toolset)
	}
	cmdArgs = append(cmdArgs, "/m")
	cmdArgs = append(cmdArgs, args...)
	return buildsys.Command{
		Name: m.tool,
		Args: cmdArgs,
		Dir:  m.ProjectDir,
		Env:  m.env,
	}
}

var platforms = map[string]string{
	"x86":    "Win32",
	"x86_64": "x64",
}

// Platform maps a recipe arch to an msbuild platform name.
func Platform(arch string) (string, bool) {
	p, ok := platforms[arch]
	return p, ok
}

var toolsets = map[int]string{
	12: "v120",
	14: "v140",
	15: "v141",
	16: "v142",
	17: "v143",
}

// Toolset returns the PlatformToolset shipped with Visual Studio version.
func Toolset(version int) (string, bool) {
	t, ok := toolsets[version]
	return t, ok
}

// ParseVersion parses a Visual Studio major version such as "15".
func ParseVersion(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid Visual Studio version %q", s)
	}
	return v, nil
}

var runtimes = []struct{ from, to []byte }{
	{[]byte("<RuntimeLibrary>MultiThreadedDebugDLL</RuntimeLibrary>"), []byte("<RuntimeLibrary>MultiThreadedDebug</RuntimeLibrary>")},
	{[]byte("<RuntimeLibrary>MultiThreadedDLL</RuntimeLibrary>"), []byte("<RuntimeLibrary>MultiThreaded</RuntimeLibrary>")},
}

// PatchRuntime rewrites the dynamic CRT settings of a vcxproj file to
// their static counterparts. It fails if the file has none.
func PatchRuntime(vcxproj string) error {
	data, err := os.ReadFile(vcxproj)
	if err != nil {
		return err
	}
	patched := data
	for _, r := range runtimes {
		patched = bytes.ReplaceAll(patched, r.from, r.to)
	}
	if bytes.Equal(patched, data) {
		if bytes.Contains(data, runtimes[0].to) || bytes.Contains(data, runtimes[1].to) {
			return nil
		}
		return fmt.Errorf("%s: no RuntimeLibrary setting to patch", vcxproj)
	}
	info, err := os.Stat(vcxproj)
	if err != nil {
		return err
	}
	return os.WriteFile(vcxproj, patched, info.Mode().Perm())
}
