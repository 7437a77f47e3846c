package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/v4l2cast/internal/api"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var formats bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List V4L2 cameras and encoders",
		Long:  `Lists the video nodes that can capture or encode video, with their role and capabilities.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listDevices(cmd.OutOrStdout(), api.HostDevices(), formats)
		},
	}

	cmd.Flags().BoolVarP(&formats, "formats", "f", false, "Also list the pixel formats of every queue")

	return cmd
}

func listDevices(out io.Writer, source api.DeviceSource, formats bool) error {
	devices, err := source.List()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(out, "no video devices found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tKIND\tDRIVER\tNAME\tCAPABILITIES")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.DevicePath, d.Kind, d.Driver, d.DeviceName, strings.Join(d.Capabilities, ", "))
		if !formats {
			continue
		}
		found, err := source.Formats(d.DevicePath)
		if err != nil {
			fmt.Fprintf(w, "\t\t\t%v\t\n", err)
			continue
		}
		for _, f := range found {
			desc := f.Description
			if f.Emulated {
				desc += " (emulated)"
			}
			fmt.Fprintf(w, "\t%s\t%s\t%s\t\n", f.Queue, f.FourCC, desc)
		}
	}
	return w.Flush()
}
