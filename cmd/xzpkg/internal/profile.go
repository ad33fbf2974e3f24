package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/goplus/xzpkg/recipe"
)

// settings is the user-facing form of a recipe configuration, as read
// from a profile file or the command line.
type settings struct {
	OS              string `yaml:"os" hcl:"os,optional"`
	Arch            string `yaml:"arch" hcl:"arch,optional"`
	Compiler        string `yaml:"compiler" hcl:"compiler,optional"`
	CompilerVersion string `yaml:"compiler_version" hcl:"compiler_version,optional"`
	Runtime         string `yaml:"runtime" hcl:"runtime,optional"`
	BuildType       string `yaml:"build_type" hcl:"build_type,optional"`
	Shared          *bool  `yaml:"shared" hcl:"shared,optional"`
	FPIC            *bool  `yaml:"fpic" hcl:"fpic,optional"`
}

// loadProfile reads a YAML (.yaml, .yml) or HCL (.hcl) profile.
func loadProfile(path string) (settings, error) {
	var s settings
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return s, err
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("failed to parse profile %s: %w", path, err)
		}
	case ".hcl":
		if err := hclsimple.DecodeFile(path, nil, &s); err != nil {
			return s, fmt.Errorf("failed to parse profile %s: %w", path, err)
		}
	default:
		return s, fmt.Errorf("unsupported profile format %q (want .yaml, .yml or .hcl)", filepath.Ext(path))
	}
	return s, nil
}

// config turns s into a raw recipe configuration. Unset settings fall
// back to the host platform.
func (s settings) config() recipe.Config {
	if s.OS == "" {
		s.OS = hostOS(runtime.GOOS)
	}
	if s.Arch == "" {
		s.Arch = hostArch(runtime.GOARCH)
	}
	compiler := recipe.ParseCompiler(s.Compiler)
	if compiler.Name == "" {
		compiler = hostCompiler(s.OS)
	}
	if s.CompilerVersion != "" {
		compiler.Version = s.CompilerVersion
	}
	if s.Runtime != "" {
		compiler.Runtime = s.Runtime
	}
	if s.BuildType == "" {
		s.BuildType = recipe.Release
	}
	cfg := recipe.Config{
		Settings: recipe.Settings{
			OS:        s.OS,
			Arch:      s.Arch,
			Compiler:  compiler,
			BuildType: s.BuildType,
		},
	}
	if s.Shared != nil {
		cfg.Options.Shared = *s.Shared
	}
	if s.FPIC != nil {
		cfg.Options.FPIC = recipe.Bool(*s.FPIC)
	}
	return cfg
}

func hostOS(goos string) string {
	switch goos {
	case "darwin":
		return recipe.Macos
	case "windows":
		return recipe.Windows
	case "freebsd":
		return recipe.FreeBSD
	}
	return recipe.Linux
}

func hostArch(goarch string) string {
	switch goarch {
	case "386":
		return recipe.X86
	case "arm":
		return recipe.Armv7
	case "arm64":
		return recipe.Armv8
	}
	return recipe.X86_64
}

func hostCompiler(targetOS string) recipe.Compiler {
	switch targetOS {
	case recipe.Macos:
		return recipe.Compiler{Name: "apple-clang"}
	case recipe.Windows:
		return recipe.Compiler{Name: recipe.VisualStudio, Version: "17", Runtime: "MD"}
	}
	return recipe.Compiler{Name: "gcc"}
}

// settingsFlags binds the configuration flags shared by make and plan.
type settingsFlags struct {
	profile string
	values  settings
	shared  bool
	fpic    bool
}

func (f *settingsFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.profile, "profile", "", "Settings profile (.yaml, .yml or .hcl)")
	fs.StringVar(&f.values.OS, "os", "", "Target OS (Linux, Macos, Windows, FreeBSD)")
	fs.StringVar(&f.values.Arch, "arch", "", "Target architecture (x86, x86_64, armv7, armv8)")
	fs.StringVar(&f.values.Compiler, "compiler", "", `Compiler, e.g. gcc, clang or "Visual Studio 15"`)
	fs.StringVar(&f.values.CompilerVersion, "compiler-version", "", "Compiler version")
	fs.StringVar(&f.values.Runtime, "runtime", "", "Visual Studio runtime (MD, MDd, MT, MTd)")
	fs.StringVar(&f.values.BuildType, "build-type", "", "Build type (Debug, Release, RelWithDebInfo, MinSizeRel)")
	fs.BoolVar(&f.shared, "shared", false, "Build a shared library")
	fs.BoolVar(&f.fpic, "fpic", true, "Build position independent code")
}

// config loads the profile, if any, and applies explicitly set flags
// on top of it.
func (f *settingsFlags) config(fs *pflag.FlagSet) (recipe.Config, error) {
	var s settings
	if f.profile != "" {
		p, err := loadProfile(f.profile)
		if err != nil {
			return recipe.Config{}, err
		}
		s = p
	}
	for name, dst := range map[string]*string{
		"os":               &s.OS,
		"arch":             &s.Arch,
		"compiler":         &s.Compiler,
		"compiler-version": &s.CompilerVersion,
		"runtime":          &s.Runtime,
		"build-type":       &s.BuildType,
	} {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	if fs.Changed("shared") {
		s.Shared = recipe.Bool(f.shared)
	}
	if fs.Changed("fpic") {
		s.FPIC = recipe.Bool(f.fpic)
	}
	return s.config(), nil
}

// versionArg accepts "", "<version>", "lzma" and "lzma@<version>".
// An empty result selects the latest version.
func versionArg(args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	name, version := parseModuleArg(args[0])
	if version == "" {
		if name == recipe.Name {
			return "", nil
		}
		return name, nil
	}
	if name != recipe.Name {
		return "", fmt.Errorf("unknown recipe %q, only %q is available", name, recipe.Name)
	}
	if version == "latest" {
		return "", nil
	}
	return version, nil
}

// parseModuleArg parses an argument in the form "name@version" or "name".
func parseModuleArg(arg string) (name, version string) {
	for i := len(arg) - 1; i >= 0; i-- {
		if arg[i] == '@' {
			return arg[:i], arg[i+1:]
		}
	}
	return arg, ""
}
