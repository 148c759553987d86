package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newInfoCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the PCD identity",
		Long: `Show the PCD identity read from the system registers: firmware version,
product type, hardware version and serial number. A PCD that does not answer
is reported with placeholder values.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withSession(cmd, func(ctx context.Context, s *session) error {
				info := s.client.GetDeviceInfo(ctx)

				return g.render(cmd.OutOrStdout(), info, func(w io.Writer) error {
					_, err := fmt.Fprintf(w,
						"Device:    %s (%s)\nProduct:   %s\nFirmware:  %s\nHardware:  %s\nSerial:    %s\n",
						s.device.ID, s.client.Transport(), info.ProductType,
						info.FirmwareVersionString, info.HWVersionString, info.SerialNumber)

					return err
				})
			})
		},
	}
}
