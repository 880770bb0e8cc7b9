package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// newVersionCmd creates the Cobra command for displaying the application version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ccptest",
		Long:  `All software has versions. This is ccptest's.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ccptest version %s (%s %s/%s)\n",
				versionOrDev(cmd.Root().Version), runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

func versionOrDev(v string) string {
	if v == "" {
		return "dev"
	}
	return v
}
