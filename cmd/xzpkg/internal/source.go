package internal

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goplus/xzpkg/internal/source"
	"github.com/goplus/xzpkg/recipe"
)

func newSourceCmd() *cobra.Command {
	var dir, sha256, format, baseURL string
	cmd := &cobra.Command{
		Use:   "source [version]",
		Short: "Download and extract the xz sources",
		Long:  `Source downloads the xz release archive and extracts it to <dir>/xz-<version>.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := versionArg(args)
			if err != nil {
				return err
			}
			if version == "" {
				version = recipe.Latest()
			}
			f, err := source.ParseFormat(format)
			if err != nil {
				return err
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			fetcher := source.New()
			fetcher.BaseURL = baseURL
			fetcher.Format = f
			fetcher.SHA256 = sha256
			fetcher.Log = newLogger(cmd)
			srcDir, err := fetcher.Fetch(cmd.Context(), version, abs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), srcDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to extract into")
	cmd.Flags().StringVar(&sha256, "sha256", "", "Expected SHA-256 of the source archive")
	cmd.Flags().StringVar(&format, "format", string(source.TarGz), "Source archive format (tar.gz or tar.xz)")
	cmd.Flags().StringVar(&baseURL, "base-url", source.DefaultBaseURL, "Release download location")
	return cmd
}
