package packager

import (
	"fmt"
	"path/filepath"

	"github.com/goplus/xzpkg/internal/build"
	"github.com/goplus/xzpkg/recipe"
)

// Package layout.
const (
	IncludeDir = "include"
	LibDir     = "lib"
	BinDir     = "bin"
	LicenseDir = "licenses"
)

// Rule copies the files under Src whose base name matches Pattern into
// Dst. Every rule must match at least one file.
type Rule struct {
	Src     string `yaml:"src"`
	Pattern string `yaml:"pattern"`
	// Exclude drops files that also match this pattern.
	Exclude string `yaml:"exclude,omitempty"`
	Dst     string `yaml:"dst"`
	// KeepPath preserves the path relative to Src; otherwise files are
	// flattened into Dst.
	KeepPath bool `yaml:"keep_path,omitempty"`
}

func (r Rule) String() string {
	s := fmt.Sprintf("%s -> %s", filepath.Join(r.Src, r.Pattern), r.Dst)
	if r.Exclude != "" {
		s += " (except " + r.Exclude + ")"
	}
	return s
}

// Rules returns the artifacts the package phase expects for cfg built
// with plan.
func Rules(cfg recipe.Config, plan *build.BuildPlan) []Rule {
	rules := []Rule{
		{Src: plan.SourceDir, Pattern: "COPYING", Dst: LicenseDir},
	}

	if plan.Kind == build.KindMSBuild {
		out := plan.ArtifactDir()
		rules = append(rules,
			Rule{Src: filepath.Join(plan.SourceDir, "src", "liblzma", "api"), Pattern: "*.h", Dst: IncludeDir, KeepPath: true},
			Rule{Src: out, Pattern: "*.lib", Dst: LibDir},
		)
		if cfg.Options.Shared {
			rules = append(rules, Rule{Src: out, Pattern: "*.dll", Dst: BinDir})
		}
		return rules
	}

	prefix := plan.ArtifactDir()
	lib := filepath.Join(prefix, "lib")
	rules = append(rules, Rule{Src: filepath.Join(prefix, "include"), Pattern: "*.h", Dst: IncludeDir, KeepPath: true})
	switch {
	case !cfg.Options.Shared:
		rules = append(rules, Rule{Src: lib, Pattern: "*.a", Exclude: "*.dll.a", Dst: LibDir})
	case cfg.Settings.OS == recipe.Windows:
		rules = append(rules,
			Rule{Src: lib, Pattern: "*.dll.a", Dst: LibDir},
			Rule{Src: filepath.Join(prefix, "bin"), Pattern: "*.dll", Dst: BinDir},
		)
	case cfg.Settings.OS == recipe.Macos:
		rules = append(rules, Rule{Src: lib, Pattern: "*.dylib", Dst: LibDir})
	default:
		rules = append(rules, Rule{Src: lib, Pattern: "*.so*", Dst: LibDir})
	}
	return rules
}
