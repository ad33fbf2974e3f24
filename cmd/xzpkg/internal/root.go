package internal

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/goplus/xzpkg/internal/env"
	"github.com/goplus/xzpkg/internal/logging"
	"github.com/goplus/xzpkg/pkgs/buildsys"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "xzpkg",
		Short: "xzpkg packages the xz compression library",
		Long: `xzpkg downloads the upstream xz sources, builds liblzma with Autotools or MSBuild
and lays the result out as a package with headers, libraries and metadata.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	root.AddCommand(newMakeCmd(), newPlanCmd(), newSourceCmd(), newVersionsCmd())
	return root
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		logrus.Fatal(err)
	}
}

func isVerbose(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("verbose")
	return v
}

func newLogger(cmd *cobra.Command) *logrus.Logger {
	return logging.New(cmd.ErrOrStderr(), isVerbose(cmd))
}

// toolRunner streams tool output only in verbose mode. Failures still
// carry the tail of stderr either way.
func toolRunner(cmd *cobra.Command) buildsys.Runner {
	if isVerbose(cmd) {
		return &buildsys.ExecRunner{Stdout: cmd.OutOrStderr(), Stderr: cmd.ErrOrStderr()}
	}
	return &buildsys.ExecRunner{Stdout: io.Discard, Stderr: io.Discard}
}

func workspace(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	return env.WorkDir()
}
