package packager

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"

	"github.com/goplus/xzpkg/internal/build"
	"github.com/goplus/xzpkg/internal/configure"
	"github.com/goplus/xzpkg/recipe"
)

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// populate lays out what a successful build of cfg leaves behind.
func populate(t *testing.T, cfg recipe.Config, plan *build.BuildPlan) {
	t.Helper()
	src := plan.SourceDir
	write(t, filepath.Join(src, "COPYING"), "XZ Utils Licensing\n")
	write(t, filepath.Join(src, "src", "liblzma", "api", "lzma.h"), "/* lzma.h */\n")
	write(t, filepath.Join(src, "src", "liblzma", "api", "lzma", "version.h"), "/* version.h */\n")

	out := plan.ArtifactDir()
	if plan.Kind == build.KindMSBuild {
		write(t, filepath.Join(out, "liblzma.lib"), "lib")
		write(t, filepath.Join(out, "liblzma.pdb"), "pdb")
		if cfg.Options.Shared {
			write(t, filepath.Join(out, "liblzma.dll"), "dll")
		}
		return
	}

	write(t, filepath.Join(out, "include", "lzma.h"), "/* lzma.h */\n")
	write(t, filepath.Join(out, "include", "lzma", "version.h"), "/* version.h */\n")
	write(t, filepath.Join(out, "lib", "liblzma.la"), "la")
	write(t, filepath.Join(out, "lib", "pkgconfig", "liblzma.pc"), "pc")
	switch {
	case !cfg.Options.Shared:
		write(t, filepath.Join(out, "lib", "liblzma.a"), "ar")
	case cfg.Settings.OS == recipe.Windows:
		write(t, filepath.Join(out, "lib", "liblzma.dll.a"), "implib")
		write(t, filepath.Join(out, "bin", "liblzma-5.dll"), "dll")
	case cfg.Settings.OS == recipe.Macos:
		write(t, filepath.Join(out, "lib", "liblzma.5.dylib"), "dylib")
	default:
		write(t, filepath.Join(out, "lib", "liblzma.so.5.2.4"), "elf")
	}
}

func planFor(t *testing.T, raw recipe.Config) (recipe.Config, *build.BuildPlan) {
	t.Helper()
	cfg, err := configure.Configure(raw)
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	work := t.TempDir()
	p := &build.Planner{Getenv: func(string) string { return "bash" }}
	plan, err := p.Plan(cfg, filepath.Join(work, "xz-5.2.4"), work)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return cfg, plan
}

func linuxStatic() recipe.Config {
	return recipe.Config{
		Settings: recipe.Settings{
			OS:        recipe.Linux,
			Arch:      recipe.X86_64,
			Compiler:  recipe.Compiler{Name: "gcc", Version: "9"},
			BuildType: recipe.Release,
		},
		Options: recipe.Options{FPIC: recipe.Bool(true)},
	}
}

func exists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Lstat(path)
	return err == nil
}

func TestPackageLinuxStatic(t *testing.T) {
	cfg, plan := planFor(t, linuxStatic())
	populate(t, cfg, plan)
	pkg := filepath.Join(t.TempDir(), "package")

	info, err := (&Packager{}).Package(cfg, "5.2.4", plan, pkg)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	for _, rel := range []string{
		"licenses/COPYING",
		"include/lzma.h",
		"include/lzma/version.h",
		"lib/liblzma.a",
		recipe.InfoFile,
	} {
		if !exists(t, filepath.Join(pkg, filepath.FromSlash(rel))) {
			t.Errorf("package missing %s", rel)
		}
	}
	for _, rel := range []string{"lib/liblzma.la", "lib/pkgconfig", "bin"} {
		if exists(t, filepath.Join(pkg, filepath.FromSlash(rel))) {
			t.Errorf("package unexpectedly contains %s", rel)
		}
	}
	if !slices.Equal(info.Libs, []string{"lzma"}) {
		t.Errorf("Libs = %v, want [lzma]", info.Libs)
	}
	if !slices.Equal(info.Defines, []string{recipe.StaticDefine}) {
		t.Errorf("Defines = %v, want [%s]", info.Defines, recipe.StaticDefine)
	}

	saved, err := recipe.LoadInfo(pkg)
	if err != nil {
		t.Fatalf("LoadInfo: %v", err)
	}
	if saved.Key != cfg.Key() || saved.Version != "5.2.4" {
		t.Errorf("saved info = %+v", saved)
	}
}

func TestPackageVS15Shared(t *testing.T) {
	cfg, plan := planFor(t, recipe.Config{
		Settings: recipe.Settings{
			OS:        recipe.Windows,
			Arch:      recipe.X86_64,
			Compiler:  recipe.Compiler{Name: recipe.VisualStudio, Version: "15", Runtime: "MD"},
			BuildType: recipe.Release,
		},
		Options: recipe.Options{Shared: true},
	})
	populate(t, cfg, plan)
	pkg := t.TempDir()

	info, err := (&Packager{}).Package(cfg, "5.2.4", plan, pkg)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	for _, rel := range []string{"lib/liblzma.lib", "bin/liblzma.dll", "include/lzma/version.h", "licenses/COPYING"} {
		if !exists(t, filepath.Join(pkg, filepath.FromSlash(rel))) {
			t.Errorf("package missing %s", rel)
		}
	}
	if exists(t, filepath.Join(pkg, "lib", "liblzma.pdb")) {
		t.Error("pdb copied into lib")
	}
	if len(info.Defines) != 0 {
		t.Errorf("Defines = %v, want none for shared", info.Defines)
	}
	if !slices.Equal(info.Libs, []string{"liblzma"}) || !slices.Equal(info.BinDirs, []string{"bin"}) {
		t.Errorf("info = %+v", info)
	}
}

// Every supported combination packages exactly what its build produces.
func TestPackageEveryCombination(t *testing.T) {
	for _, assign := range recipe.Supported.Expand() {
		raw := recipe.FromAssignment(&recipe.Supported, assign)
		if _, err := configure.Configure(raw); err != nil {
			continue
		}
		name := strings.NewReplacer(" ", "", "/", "_").Replace(raw.Key())
		t.Run(name, func(t *testing.T) {
			cfg, plan := planFor(t, raw)
			populate(t, cfg, plan)
			info, err := (&Packager{}).Package(cfg, "5.2.4", plan, t.TempDir())
			if err != nil {
				t.Fatalf("Package: %v", err)
			}
			hasDefine := slices.Contains(info.Defines, recipe.StaticDefine)
			if hasDefine == cfg.Options.Shared {
				t.Errorf("shared=%v but %s defined=%v", cfg.Options.Shared, recipe.StaticDefine, hasDefine)
			}
			if len(info.Libs) == 0 {
				t.Error("no libs collected")
			}
		})
	}
}

func TestPackageMissingArtifacts(t *testing.T) {
	cfg, plan := planFor(t, linuxStatic())
	populate(t, cfg, plan)
	os.Remove(filepath.Join(plan.SourceDir, "COPYING"))
	os.Remove(filepath.Join(plan.ArtifactDir(), "lib", "liblzma.a"))

	_, err := (&Packager{}).Package(cfg, "5.2.4", plan, t.TempDir())
	if !errors.Is(err, recipe.ErrPackage) {
		t.Fatalf("Package() error = %v, want ErrPackage", err)
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("error %T does not aggregate failures", err)
	}
	if len(merr.Errors) != 2 {
		t.Errorf("got %d failures, want 2: %v", len(merr.Errors), merr)
	}
	for _, want := range []string{"COPYING", "*.a"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestPackageMissingDLL(t *testing.T) {
	cfg, plan := planFor(t, recipe.Config{
		Settings: recipe.Settings{
			OS:        recipe.Windows,
			Arch:      recipe.X86,
			Compiler:  recipe.Compiler{Name: recipe.VisualStudio, Version: "14", Runtime: "MT"},
			BuildType: recipe.Debug,
		},
		Options: recipe.Options{Shared: true},
	})
	populate(t, cfg, plan)
	os.Remove(filepath.Join(plan.ArtifactDir(), "liblzma.dll"))
	if _, err := (&Packager{}).Package(cfg, "5.2.4", plan, t.TempDir()); !errors.Is(err, recipe.ErrPackage) {
		t.Fatalf("Package() error = %v, want ErrPackage", err)
	}
}

func TestPackageReplacesOldContent(t *testing.T) {
	cfg, plan := planFor(t, linuxStatic())
	populate(t, cfg, plan)
	pkg := t.TempDir()
	write(t, filepath.Join(pkg, "lib", "libstale.a"), "old")

	info, err := (&Packager{}).Package(cfg, "5.2.4", plan, pkg)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if slices.Contains(info.Libs, "stale") || exists(t, filepath.Join(pkg, "lib", "libstale.a")) {
		t.Error("stale library survived repackaging")
	}
}

func TestPackageKeepsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	cfg, plan := planFor(t, func() recipe.Config {
		c := linuxStatic()
		c.Options.Shared = true
		return c
	}())
	populate(t, cfg, plan)
	lib := filepath.Join(plan.ArtifactDir(), "lib")
	if err := os.Symlink("liblzma.so.5.2.4", filepath.Join(lib, "liblzma.so.5")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("liblzma.so.5", filepath.Join(lib, "liblzma.so")); err != nil {
		t.Fatal(err)
	}

	pkg := t.TempDir()
	info, err := (&Packager{}).Package(cfg, "5.2.4", plan, pkg)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	target, err := os.Readlink(filepath.Join(pkg, "lib", "liblzma.so"))
	if err != nil || target != "liblzma.so.5" {
		t.Errorf("liblzma.so -> %q, %v", target, err)
	}
	if !slices.Equal(info.Libs, []string{"lzma"}) {
		t.Errorf("Libs = %v", info.Libs)
	}
}

func TestLibName(t *testing.T) {
	tests := map[string]string{
		"liblzma.a":        "lzma",
		"liblzma.so":       "lzma",
		"liblzma.so.5.2.4": "lzma",
		"liblzma.5.dylib":  "lzma",
		"liblzma.dylib":    "lzma",
		"liblzma.dll.a":    "lzma",
		"liblzma.lib":      "liblzma",
	}
	for file, want := range tests {
		if got, ok := libName(file); !ok || got != want {
			t.Errorf("libName(%q) = %q, %v; want %q", file, got, ok, want)
		}
	}
	for _, file := range []string{"liblzma.la", "liblzma.pc", "README", "liblzma.pdb"} {
		if got, ok := libName(file); ok {
			t.Errorf("libName(%q) = %q, want no lib", file, got)
		}
	}
}

func TestCollectLibsMissingDir(t *testing.T) {
	libs, err := CollectLibs(filepath.Join(t.TempDir(), "nope"))
	if err != nil || libs != nil {
		t.Errorf("CollectLibs(missing) = %v, %v", libs, err)
	}
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	write(t, filepath.Join(src, "include", "lzma.h"), "h")
	write(t, filepath.Join(src, "lib", "liblzma.so.5.2.4"), "so")
	if err := os.Symlink("liblzma.so.5.2.4", filepath.Join(src, "lib", "liblzma.so.5")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(src, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(t.TempDir(), "out")
	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("CopyTree: %v", err)
	}
	if data, err := os.ReadFile(filepath.Join(dst, "include", "lzma.h")); err != nil || string(data) != "h" {
		t.Errorf("lzma.h = %q, %v", data, err)
	}
	if link, err := os.Readlink(filepath.Join(dst, "lib", "liblzma.so.5")); err != nil || link != "liblzma.so.5.2.4" {
		t.Errorf("liblzma.so.5 -> %q, %v", link, err)
	}
	if !exists(t, filepath.Join(dst, "empty")) {
		t.Error("empty dir not copied")
	}
}
