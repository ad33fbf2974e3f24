// Package packager lays out the built headers, libraries and license in
// the package directory and derives the consumption metadata.
package packager

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/goplus/xzpkg/internal/build"
	"github.com/goplus/xzpkg/internal/logging"
	"github.com/goplus/xzpkg/recipe"
)

// Packager populates package directories.
type Packager struct {
	Log logrus.FieldLogger
}

// Package replaces pkgDir with the artifacts of a completed build and
// writes its metadata. Every missing artifact group is reported; the
// error matches recipe.ErrPackage.
func (p *Packager) Package(cfg recipe.Config, version string, plan *build.BuildPlan, pkgDir string) (*recipe.PackageInfo, error) {
	log := logging.OrDiscard(p.Log)

	if err := os.RemoveAll(pkgDir); err != nil {
		return nil, recipe.Errorf(recipe.ErrPackage, "clean %s: %w", pkgDir, err)
	}
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		return nil, recipe.Errorf(recipe.ErrPackage, "create %s: %w", pkgDir, err)
	}

	var result *multierror.Error
	for _, rule := range Rules(cfg, plan) {
		n, err := apply(rule, pkgDir)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		log.WithField("rule", rule.String()).Debugf("copied %d files", n)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, recipe.Errorf(recipe.ErrPackage, "%w", err)
	}

	libs, err := CollectLibs(filepath.Join(pkgDir, LibDir))
	if err != nil {
		return nil, recipe.Errorf(recipe.ErrPackage, "collect libs: %w", err)
	}
	if len(libs) == 0 {
		return nil, recipe.Errorf(recipe.ErrPackage, "no libraries in %s", filepath.Join(pkgDir, LibDir))
	}

	info := &recipe.PackageInfo{
		Name:        recipe.Name,
		Version:     version,
		Key:         cfg.Key(),
		Libs:        libs,
		IncludeDirs: []string{IncludeDir},
		LibDirs:     []string{LibDir},
	}
	if !cfg.Options.Shared {
		info.Defines = []string{recipe.StaticDefine}
	}
	if _, err := os.Stat(filepath.Join(pkgDir, BinDir)); err == nil {
		info.BinDirs = []string{BinDir}
	}
	if err := info.Save(pkgDir); err != nil {
		return nil, recipe.Errorf(recipe.ErrPackage, "write metadata: %w", err)
	}
	log.WithField("libs", strings.Join(libs, ",")).Info("package ready")
	return info, nil
}

func apply(rule Rule, pkgDir string) (int, error) {
	if _, err := os.Stat(rule.Src); err != nil {
		return 0, fmt.Errorf("missing %s: %w", rule, err)
	}
	n := 0
	err := filepath.WalkDir(rule.Src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if ok, _ := filepath.Match(rule.Pattern, name); !ok {
			return nil
		}
		if rule.Exclude != "" {
			if ok, _ := filepath.Match(rule.Exclude, name); ok {
				return nil
			}
		}
		rel := name
		if rule.KeepPath {
			if rel, err = filepath.Rel(rule.Src, path); err != nil {
				return err
			}
		}
		if err := copyEntry(path, filepath.Join(pkgDir, rule.Dst, rel)); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("copy %s: %w", rule, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("missing %s: no matching files", rule)
	}
	return n, nil
}

// CopyTree copies the contents of src into dst, recreating symlinks
// instead of following them.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}
		return copyEntry(path, filepath.Join(dst, rel))
	})
}

// copyEntry copies a regular file or recreates a symlink.
func copyEntry(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	fi, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if fi.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		os.Remove(dst)
		return os.Symlink(target, dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CollectLibs returns the link names of the libraries in dir, sorted:
// liblzma.a, liblzma.so.5 and liblzma.dll.a give "lzma", liblzma.lib
// gives "liblzma".
func CollectLibs(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var libs []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if name, ok := libName(e.Name()); ok && !slices.Contains(libs, name) {
			libs = append(libs, name)
		}
	}
	slices.Sort(libs)
	return libs, nil
}

func libName(file string) (string, bool) {
	if strings.HasSuffix(file, ".lib") {
		return strings.TrimSuffix(file, ".lib"), true
	}
	base, rest, ok := strings.Cut(file, ".")
	if !ok {
		return "", false
	}
	switch {
	case rest == "a", rest == "dll.a", rest == "dylib", rest == "so",
		strings.HasSuffix(rest, ".dylib"), strings.HasPrefix(rest, "so."):
		return strings.TrimPrefix(base, "lib"), true
	}
	return "", false
}
