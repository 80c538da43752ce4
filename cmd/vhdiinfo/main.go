// Command vhdiinfo inspects a VHD or VHDX image and prints its container
// metadata: format, disk type, media size, sector size, identifier, and
// (for a differential disk) the parent linkage.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/libyal/go-vhdi/internal/trace"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool
	var veryVerbose bool

	root := &cobra.Command{
		Use:           "vhdiinfo",
		Short:         "Inspect a VHD or VHDX virtual hard disk image",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			switch {
			case veryVerbose:
				trace.SetLevel(logrus.DebugLevel)
			case verbose:
				trace.SetLevel(logrus.InfoLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable info-level tracing")
	root.PersistentFlags().BoolVar(&veryVerbose, "vv", false, "enable debug-level tracing")

	root.AddCommand(newInfoCommand())
	root.AddCommand(newVersionCommand())
	root.AddCommand(newSelfUpdateCommand())
	return root
}
