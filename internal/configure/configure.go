// Package configure finalizes the recipe settings and options before any
// other phase runs.
package configure

import (
	"slices"
	"strings"

	"github.com/goplus/xzpkg/recipe"
)

var (
	knownOS         = []string{recipe.Linux, recipe.Macos, recipe.Windows, recipe.FreeBSD}
	knownArch       = []string{recipe.X86, recipe.X86_64, recipe.Armv7, recipe.Armv8}
	knownBuildTypes = []string{recipe.Debug, recipe.Release, recipe.RelWithDebInfo, recipe.MinSizeRel}
)

// Configure validates raw and returns the effective configuration:
// compiler.libcxx is dropped, and fPIC is dropped for Visual Studio.
// raw is not modified.
func Configure(raw recipe.Config) (recipe.Config, error) {
	cfg := raw
	s := &cfg.Settings

	switch {
	case s.OS == "":
		return recipe.Config{}, missing("os")
	case s.Arch == "":
		return recipe.Config{}, missing("arch")
	case s.Compiler.Name == "":
		return recipe.Config{}, missing("compiler")
	case s.BuildType == "":
		return recipe.Config{}, missing("build_type")
	}

	var ok bool
	if s.OS, ok = lookup(knownOS, s.OS); !ok {
		return recipe.Config{}, recipe.Errorf(recipe.ErrConfig, "unsupported os %q", s.OS)
	}
	if s.Arch, ok = lookup(knownArch, s.Arch); !ok {
		return recipe.Config{}, recipe.Errorf(recipe.ErrConfig, "unsupported arch %q", s.Arch)
	}
	if s.BuildType, ok = lookup(knownBuildTypes, s.BuildType); !ok {
		return recipe.Config{}, recipe.Errorf(recipe.ErrConfig, "unsupported build_type %q", s.BuildType)
	}

	if s.Compiler.IsVisualStudio() {
		if s.OS != recipe.Windows {
			return recipe.Config{}, recipe.Errorf(recipe.ErrConfig, "compiler %q requires os %s, got %s", s.Compiler.Name, recipe.Windows, s.OS)
		}
		if s.Compiler.Version == "" {
			return recipe.Config{}, missing("compiler.version")
		}
	} else if s.Compiler.Runtime != "" {
		return recipe.Config{}, recipe.Errorf(recipe.ErrConfig, "compiler.runtime %q only applies to %s", s.Compiler.Runtime, recipe.VisualStudio)
	}
	if s.Compiler.Name == "apple-clang" && s.OS != recipe.Macos {
		return recipe.Config{}, recipe.Errorf(recipe.ErrConfig, "compiler apple-clang requires os %s, got %s", recipe.Macos, s.OS)
	}

	// liblzma is plain C.
	s.Compiler.Libcxx = ""

	if s.Compiler.IsVisualStudio() {
		cfg.Options.FPIC = nil
	} else if cfg.Options.FPIC == nil {
		cfg.Options.FPIC = recipe.Bool(true)
	} else {
		cfg.Options.FPIC = recipe.Bool(*cfg.Options.FPIC)
	}
	return cfg, nil
}

func missing(field string) error {
	return recipe.Errorf(recipe.ErrConfig, "missing setting %q", field)
}

// lookup matches v against known case-insensitively and returns the
// canonical spelling.
func lookup(known []string, v string) (string, bool) {
	i := slices.IndexFunc(known, func(k string) bool {
		return strings.EqualFold(k, v)
	})
	if i < 0 {
		return v, false
	}
	return known[i], true
}
