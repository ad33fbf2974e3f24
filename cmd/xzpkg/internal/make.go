package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goplus/xzpkg/internal/build"
	"github.com/goplus/xzpkg/internal/pipeline"
	"github.com/goplus/xzpkg/internal/source"
)

type makeFlags struct {
	settings  settingsFlags
	workspace string
	sha256    string
	baseURL   string
	format    string
	force     bool
	output    string
}

func newMakeCmd() *cobra.Command {
	var f makeFlags
	cmd := &cobra.Command{
		Use:   "make [version]",
		Short: "Build and package liblzma",
		Long: `Make downloads the xz sources, builds liblzma for the selected settings and
writes the package to the workspace. The package metadata is printed on success.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMake(cmd, args, &f)
		},
	}
	f.settings.register(cmd.Flags())
	cmd.Flags().StringVar(&f.workspace, "workspace", "", "Workspace directory (default $XZPKG_HOME or the user cache dir)")
	cmd.Flags().StringVar(&f.sha256, "sha256", "", "Expected SHA-256 of the source archive")
	cmd.Flags().StringVar(&f.baseURL, "base-url", source.DefaultBaseURL, "Release download location")
	cmd.Flags().StringVar(&f.format, "format", string(source.TarGz), "Source archive format (tar.gz or tar.xz)")
	cmd.Flags().BoolVar(&f.force, "force", false, "Rebuild even if a cached package exists")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output path (directory or .zip file)")
	return cmd
}

func runMake(cmd *cobra.Command, args []string, f *makeFlags) error {
	version, err := versionArg(args)
	if err != nil {
		return err
	}
	cfg, err := f.settings.config(cmd.Flags())
	if err != nil {
		return err
	}
	format, err := source.ParseFormat(f.format)
	if err != nil {
		return err
	}

	// Resolve output path to absolute before build (build may change cwd)
	output := f.output
	if output != "" {
		if output, err = filepath.Abs(output); err != nil {
			return fmt.Errorf("failed to resolve output path: %w", err)
		}
	}

	// When -o is specified without a workspace, use a temp workspace so we don't pollute the cache
	ws := f.workspace
	if ws == "" && output != "" {
		tmpDir, err := os.MkdirTemp("", "xzpkg-make-*")
		if err != nil {
			return fmt.Errorf("failed to create temp workspace: %w", err)
		}
		defer os.RemoveAll(tmpDir)
		ws = tmpDir
	}
	if ws, err = workspace(ws); err != nil {
		return fmt.Errorf("failed to get workspace: %w", err)
	}

	log := newLogger(cmd)
	p := pipeline.New(ws, log)
	p.Fetcher.Format = format
	p.Fetcher.SHA256 = f.sha256
	p.Fetcher.BaseURL = f.baseURL
	p.Builder = build.NewBuilder(toolRunner(cmd), log)
	p.Force = f.force

	res, err := p.Run(cmd.Context(), cfg, version)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Info.Metadata())

	if output != "" {
		if err := outputResult(res.PackageDir, output); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}
