package internal

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	"github.com/goplus/xzpkg/recipe"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errw bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errw)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseModuleArg(t *testing.T) {
	tests := []struct {
		arg         string
		wantName    string
		wantVersion string
	}{
		{"lzma@5.2.4", "lzma", "5.2.4"},
		{"lzma", "lzma", ""},
		{"simple@latest", "simple", "latest"},
		{"no-version", "no-version", ""},
		{"multiple@at@signs", "multiple@at", "signs"},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			name, version := parseModuleArg(tt.arg)
			if name != tt.wantName {
				t.Errorf("parseModuleArg(%q) name = %q, want %q", tt.arg, name, tt.wantName)
			}
			if version != tt.wantVersion {
				t.Errorf("parseModuleArg(%q) version = %q, want %q", tt.arg, version, tt.wantVersion)
			}
		})
	}
}

func TestVersionArg(t *testing.T) {
	tests := []struct {
		args    []string
		want    string
		wantErr bool
	}{
		{nil, "", false},
		{[]string{"5.2.3"}, "5.2.3", false},
		{[]string{"lzma"}, "", false},
		{[]string{"lzma@5.2.4"}, "5.2.4", false},
		{[]string{"lzma@latest"}, "", false},
		{[]string{"zlib@1.2.11"}, "", true},
	}
	for _, tt := range tests {
		got, err := versionArg(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("versionArg(%q) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("versionArg(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestOutputResult(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"include/lzma.h":   "header",
		"lib/liblzma.a":    "archive",
		"licenses/COPYING": "license",
	}
	for name, body := range files {
		p := filepath.Join(src, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink("liblzma.a", filepath.Join(src, "lib", "liblzma-link.a")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	t.Run("dir", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out")
		if err := outputResult(src, dest); err != nil {
			t.Fatal(err)
		}
		for name, body := range files {
			data, err := os.ReadFile(filepath.Join(dest, name))
			if err != nil || string(data) != body {
				t.Errorf("%s = %q, %v; want %q", name, data, err, body)
			}
		}
		if link, err := os.Readlink(filepath.Join(dest, "lib", "liblzma-link.a")); err != nil || link != "liblzma.a" {
			t.Errorf("symlink = %q, %v", link, err)
		}
	})

	t.Run("zip", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out.zip")
		if err := outputResult(src, dest); err != nil {
			t.Fatal(err)
		}
		zr, err := zip.OpenReader(dest)
		if err != nil {
			t.Fatal(err)
		}
		defer zr.Close()
		got := map[string]bool{}
		for _, f := range zr.File {
			got[f.Name] = true
		}
		for name := range files {
			if !got[name] {
				t.Errorf("zip is missing %s", name)
			}
		}
		if !got["lib/liblzma-link.a"] {
			t.Error("zip is missing the symlinked library")
		}
	})
}

func sourceTarball(t *testing.T, version string) []byte {
	t.Helper()
	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)
	for name, body := range map[string]string{"COPYING": "license\n", "configure": "#!/bin/sh\n"} {
		hdr := &tar.Header{Name: "xz-" + version + "/" + name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		tw.Write([]byte(body))
	}
	tw.Close()
	var out bytes.Buffer
	zw := gzip.NewWriter(&out)
	zw.Write(raw.Bytes())
	zw.Close()
	return out.Bytes()
}

func TestSourceCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xz/xz-5.2.4.tar.gz" {
			http.NotFound(w, r)
			return
		}
		w.Write(sourceTarball(t, "5.2.4"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	out, err := execute(t, "source", "--dir", dir, "--base-url", srv.URL+"/xz")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "xz-5.2.4")
	if strings.TrimSpace(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
	if _, err := os.Stat(filepath.Join(want, "COPYING")); err != nil {
		t.Error(err)
	}

	_, err = execute(t, "source", "5.2.3", "--dir", dir, "--base-url", srv.URL+"/xz")
	if !errors.Is(err, recipe.ErrAcquire) {
		t.Errorf("missing release: err = %v, want ErrAcquire", err)
	}
}

func TestMakeSourceFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := execute(t, "make", "lzma@5.2.4",
		"--workspace", t.TempDir(),
		"--base-url", srv.URL,
		"--os", "Linux", "--arch", "x86_64", "--compiler", "gcc")
	var pe *recipe.PhaseError
	if !errors.As(err, &pe) || pe.Phase != recipe.PhaseSource {
		t.Fatalf("err = %v, want source phase error", err)
	}
	if !errors.Is(err, recipe.ErrAcquire) {
		t.Errorf("err = %v, want ErrAcquire", err)
	}
}

func TestMakeConfigFailure(t *testing.T) {
	_, err := execute(t, "make", "--workspace", t.TempDir(),
		"--os", "Linux", "--arch", "x86_64", "--compiler", "Visual Studio 15")
	if !errors.Is(err, recipe.ErrConfig) {
		t.Errorf("err = %v, want ErrConfig", err)
	}
	if _, err := execute(t, "make", "--format", "zip"); !errors.Is(err, recipe.ErrConfig) {
		t.Errorf("bad format: err = %v, want ErrConfig", err)
	}
}

func TestPlanCommand(t *testing.T) {
	out, err := execute(t, "plan", "5.2.4", "--workspace", t.TempDir(),
		"--os", "linux", "--arch", "x86_64", "--compiler", "gcc", "--compiler-version", "9")
	if err != nil {
		t.Fatal(err)
	}
	var po planOutput
	if err := yaml.Unmarshal([]byte(out), &po); err != nil {
		t.Fatalf("decode plan: %v\n%s", err, out)
	}
	if po.Strategy != "autotools" || po.Version != "5.2.4" || po.Config.Settings.OS != recipe.Linux {
		t.Errorf("plan = %+v", po)
	}
	if len(po.Commands) != 3 || !strings.Contains(po.Commands[0], "--with-pic --disable-shared --enable-static") {
		t.Errorf("commands = %q", po.Commands)
	}
	if len(po.Artifacts) == 0 {
		t.Error("no artifacts")
	}
}

func TestPlanLeavesWorkspaceAlone(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	t.Setenv("XZPKG_HOME", home)
	out, err := execute(t, "plan", "--os", "Linux", "--arch", "x86_64", "--compiler", "gcc")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, home) {
		t.Errorf("plan paths are not under %s:\n%s", home, out)
	}
	if _, err := os.Stat(home); !os.IsNotExist(err) {
		t.Errorf("plan created the workspace %s (stat err = %v)", home, err)
	}
}

func TestPlanAll(t *testing.T) {
	t.Setenv("XZPKG_BASH", "/bin/bash")
	out, err := execute(t, "plan", "--all", "--workspace", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var plans []planOutput
	if err := yaml.Unmarshal([]byte(out), &plans); err != nil {
		t.Fatalf("decode plans: %v", err)
	}
	// Linux: gcc, clang; Macos: gcc, clang, apple-clang; Windows: gcc,
	// clang, two Visual Studio versions. Each for two arches and linkages.
	if len(plans) != 36 {
		t.Errorf("got %d plans, want 36", len(plans))
	}
	seen := map[string]bool{}
	for _, p := range plans {
		if seen[p.Key] {
			t.Errorf("duplicate plan %s", p.Key)
		}
		seen[p.Key] = true
		vs := p.Config.Settings.Compiler.IsVisualStudio()
		if vs != (p.Strategy == "msbuild") {
			t.Errorf("%s: strategy %s", p.Key, p.Strategy)
		}
		if vs && p.Config.Options.FPIC != nil {
			t.Errorf("%s: fPIC kept for Visual Studio", p.Key)
		}
	}
}

func TestVersionsCommand(t *testing.T) {
	out, err := execute(t, "versions")
	if err != nil {
		t.Fatal(err)
	}
	if want := "5.2.3\n5.2.4 (latest)\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}
