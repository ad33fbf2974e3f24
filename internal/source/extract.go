package source

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// Extract unpacks a compressed tarball read from r into dest. Entries
// that would land outside dest are rejected.
func Extract(r io.Reader, format Format, dest string) error {
	var tr *tar.Reader
	switch format {
	case TarGz:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return err
		}
		defer zr.Close()
		tr = tar.NewReader(zr)
	case TarXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return err
		}
		tr = tar.NewReader(xr)
	default:
		return fmt.Errorf("unsupported archive format %q", format)
	}
	return untar(tr, dest)
}

type dirTime struct {
	path  string
	mtime time.Time
}

// extractor writes archive entries below one directory. Writes go
// through root, so existing symlinks can never carry them outside dir.
type extractor struct {
	root *os.Root
	dir  string // dest with symlinks resolved
}

func untar(tr *tar.Reader, dest string) error {
	dir, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return err
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return err
	}
	defer root.Close()
	x := &extractor{root: root, dir: dir}

	var dirs []dirTime
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		name := path.Clean(hdr.Name)
		if name == "." {
			continue
		}
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return fmt.Errorf("illegal path %q in archive", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := x.mkdirAll(name); err != nil {
				return err
			}
			target, err := x.resolve(name)
			if err != nil {
				return err
			}
			dirs = append(dirs, dirTime{target, hdr.ModTime})
		case tar.TypeReg:
			if err := x.writeFile(name, tr, hdr); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := x.symlink(name, hdr.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			if err := x.link(name, hdr.Linkname); err != nil {
				return err
			}
		default:
			// pax headers, devices and fifos carry nothing the build needs.
		}
	}

	// Directory times last: writing entries bumps them.
	for i := len(dirs) - 1; i >= 0; i-- {
		os.Chtimes(dirs[i].path, dirs[i].mtime, dirs[i].mtime)
	}
	return nil
}

// mkdirAll creates the slash-separated directory name and its parents.
func (x *extractor) mkdirAll(name string) error {
	if name == "." {
		return nil
	}
	cur := ""
	for _, elem := range strings.Split(name, "/") {
		cur = path.Join(cur, elem)
		if err := x.root.Mkdir(filepath.FromSlash(cur), 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
			return err
		}
	}
	return nil
}

// parent returns the on-disk directory holding name, relative to x.dir,
// with every symlink along the way followed. It fails when that
// directory lies outside x.dir.
func (x *extractor) parent(name string) (string, error) {
	resolved, err := filepath.EvalSymlinks(filepath.Join(x.dir, filepath.FromSlash(path.Dir(name))))
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(x.dir, resolved)
	if err != nil || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("illegal path %q in archive: parent escapes the destination", name)
	}
	return rel, nil
}

// resolve returns the absolute on-disk path of name.
func (x *extractor) resolve(name string) (string, error) {
	rel, err := x.parent(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(x.dir, rel, path.Base(name)), nil
}

func (x *extractor) symlink(name, linkname string) error {
	if path.IsAbs(linkname) || filepath.IsAbs(linkname) {
		return fmt.Errorf("illegal symlink %q -> %q in archive", name, linkname)
	}
	if err := x.mkdirAll(path.Dir(name)); err != nil {
		return err
	}
	rel, err := x.parent(name)
	if err != nil {
		return err
	}
	if !filepath.IsLocal(filepath.Join(rel, filepath.FromSlash(linkname))) {
		return fmt.Errorf("illegal symlink %q -> %q in archive", name, linkname)
	}
	target := filepath.Join(x.dir, rel, path.Base(name))
	os.Remove(target)
	return os.Symlink(linkname, target)
}

func (x *extractor) link(name, linkname string) error {
	old := path.Clean(linkname)
	if !filepath.IsLocal(filepath.FromSlash(old)) {
		return fmt.Errorf("illegal hard link %q -> %q in archive", name, linkname)
	}
	src, err := x.resolve(old)
	if err != nil {
		return err
	}
	if err := x.mkdirAll(path.Dir(name)); err != nil {
		return err
	}
	target, err := x.resolve(name)
	if err != nil {
		return err
	}
	os.Remove(target)
	return os.Link(src, target)
}

func (x *extractor) writeFile(name string, r io.Reader, hdr *tar.Header) error {
	if err := x.mkdirAll(path.Dir(name)); err != nil {
		return err
	}
	mode := hdr.FileInfo().Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	f, err := x.root.OpenFile(filepath.FromSlash(name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	target, err := x.resolve(name)
	if err != nil {
		return err
	}
	// Keep upstream timestamps so make does not try to rerun autoreconf.
	return os.Chtimes(target, hdr.ModTime, hdr.ModTime)
}
