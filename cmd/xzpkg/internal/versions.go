package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goplus/xzpkg/recipe"
)

func newVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List the known xz versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			latest := recipe.Latest()
			for _, v := range recipe.Sorted() {
				if v == latest {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (latest)\n", v)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
}
