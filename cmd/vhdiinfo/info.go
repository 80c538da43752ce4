package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/libyal/go-vhdi"
	"github.com/libyal/go-vhdi/internal/settings"
	"github.com/libyal/go-vhdi/internal/vhdio"
)

func newInfoCommand() *cobra.Command {
	s := settings.Default()
	var pathShort string

	cmd := &cobra.Command{
		Use:   "info [path]",
		Short: "Print container and disk metadata for a VHD or VHDX image",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := s.Path
			if path == "" {
				path = pathShort
			}
			if path == "" && len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("a path to a .vhd or .vhdx file is required")
			}

			out := cmd.OutOrStdout()
			if s.OutputFilename != "" {
				f, err := os.Create(s.OutputFilename)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return runInfo(path, s, out)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&s.Path, "path", "", "the path to a .vhd or .vhdx file")
	flags.StringVar(&pathShort, "p", "", "the path to a .vhd or .vhdx file (shorthand)")
	flags.BoolVarP(&s.SummaryOnly, "summary-only", "s", false, "print only the one-line summary")
	flags.BoolVar(&s.FollowParents, "follow-parents", true, "open and bind the differential parent chain")
	flags.StringVarP(&s.OutputFilename, "output", "o", "", "write the report to this file instead of stdout")

	return cmd
}

func runInfo(path string, s settings.Settings, out io.Writer) error {
	chain, err := openChain(path, s.FollowParents)
	if err != nil {
		return err
	}
	defer chain.Close()

	return writeReport(out, chain, s.SummaryOnly)
}

// imageChain holds an opened image and every parent Image bound to it
// (outermost last), so Close can release them in reverse order.
type imageChain struct {
	leaf    *vhdi.Image
	opened  []*vhdi.Image
	sources []*vhdio.FileSource
}

func (c *imageChain) Close() {
	for i := len(c.opened) - 1; i >= 0; i-- {
		c.opened[i].Close()
	}
	for i := len(c.sources) - 1; i >= 0; i-- {
		c.sources[i].Close()
	}
}
