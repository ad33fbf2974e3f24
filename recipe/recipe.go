// Package recipe describes the lzma package recipe: the settings a host
// hands to the driver, the options it may tweak, and the shape of the
// produced package.
package recipe

import (
	"fmt"
	"strings"
)

// Name is the package name produced by the recipe.
const Name = "lzma"

// Operating systems understood by the recipe.
const (
	Linux   = "Linux"
	Macos   = "Macos"
	Windows = "Windows"
	FreeBSD = "FreeBSD"
)

// Architectures understood by the recipe.
const (
	X86    = "x86"
	X86_64 = "x86_64"
	Armv7  = "armv7"
	Armv8  = "armv8"
)

// Build types.
const (
	Debug          = "Debug"
	Release        = "Release"
	RelWithDebInfo = "RelWithDebInfo"
	MinSizeRel     = "MinSizeRel"
)

// VisualStudio is the compiler name of the MSVC toolchain.
const VisualStudio = "Visual Studio"

// Compiler identifies the active toolchain.
type Compiler struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	// Runtime is the MSVC runtime flavor (MD, MT, MDd, MTd).
	Runtime string `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	// Libcxx is the C++ standard library; meaningless for liblzma and
	// dropped during configure.
	Libcxx string `json:"libcxx,omitempty" yaml:"libcxx,omitempty"`
}

// IsVisualStudio reports whether c is the MSVC toolchain.
func (c Compiler) IsVisualStudio() bool {
	return c.Name == VisualStudio
}

// Settings is the read-only environment description supplied by the host.
type Settings struct {
	OS        string   `json:"os" yaml:"os"`
	Arch      string   `json:"arch" yaml:"arch"`
	Compiler  Compiler `json:"compiler" yaml:"compiler"`
	BuildType string   `json:"build_type" yaml:"build_type"`
}

// Options are the package options. FPIC is nil when the option does not
// apply to the active toolchain.
type Options struct {
	Shared bool  `json:"shared" yaml:"shared"`
	FPIC   *bool `json:"fPIC,omitempty" yaml:"fPIC,omitempty"`
}

// PIC reports whether position-independent code was requested.
func (o Options) PIC() bool {
	return o.FPIC != nil && *o.FPIC
}

// Bool returns a pointer to v, for filling Options.FPIC.
func Bool(v bool) *bool {
	return &v
}

// Config bundles settings and options. It is passed by value through
// every phase; once Configure returns it is not changed again.
type Config struct {
	Settings Settings `json:"settings" yaml:"settings"`
	Options  Options  `json:"options" yaml:"options"`
}

// Linkage returns "shared" or "static".
func (c Config) Linkage() string {
	if c.Options.Shared {
		return "shared"
	}
	return "static"
}

// Key renders c as a matrix string: require values joined with "-" in
// sorted key order, then options after "|". It is used to name workspace
// directories and cache entries.
func (c Config) Key() string {
	compiler := strings.ReplaceAll(strings.ToLower(c.Settings.Compiler.Name), " ", "")
	if c.Settings.Compiler.Version != "" {
		compiler += c.Settings.Compiler.Version
	}
	if c.Settings.Compiler.Runtime != "" {
		compiler += strings.ToLower(c.Settings.Compiler.Runtime)
	}
	key := fmt.Sprintf("%s-%s-%s-%s|%s",
		c.Settings.Arch,
		strings.ToLower(c.Settings.BuildType),
		compiler,
		strings.ToLower(c.Settings.OS),
		c.Linkage())
	if c.Options.PIC() {
		key += "-pic"
	}
	return key
}

// ParseCompiler splits a matrix compiler value such as "Visual Studio 15"
// or "gcc" into name and version.
func ParseCompiler(s string) Compiler {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, ' '); i > 0 {
		ver := s[i+1:]
		if ver != "" && strings.Trim(ver, "0123456789.") == "" {
			return Compiler{Name: s[:i], Version: ver}
		}
	}
	return Compiler{Name: s}
}

// FromAssignment builds a Config from one Matrix.Expand assignment.
// Missing options fall back to the matrix defaults.
func FromAssignment(m *Matrix, assign map[string]string) Config {
	get := func(key string) string {
		if v, ok := assign[key]; ok {
			return v
		}
		return m.Default(key)
	}
	cfg := Config{
		Settings: Settings{
			OS:        assign["os"],
			Arch:      assign["arch"],
			Compiler:  ParseCompiler(assign["compiler"]),
			BuildType: assign["build_type"],
		},
		Options: Options{
			Shared: strings.EqualFold(get("shared"), "true"),
		},
	}
	if cfg.Settings.BuildType == "" {
		cfg.Settings.BuildType = Release
	}
	if v := get("fPIC"); v != "" {
		cfg.Options.FPIC = Bool(strings.EqualFold(v, "true"))
	}
	return cfg
}
