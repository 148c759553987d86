package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/arloliu/go-sbus/coordinator"
)

func newMonitorCommand(g *globalFlags) *cobra.Command {
	var (
		interval time.Duration
		count    int
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch one device live",
		Long: `Poll one device on its scan interval and show the values in a terminal UI.
When stdout is not a terminal every snapshot is printed as one line instead.

Keys: up/down scroll, q quits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			if !cmd.Flags().Changed("interval") {
				interval = s.device.ScanInterval
			}

			opts := []coordinator.Option{
				coordinator.WithID(s.device.ID),
				coordinator.WithInterval(interval),
				coordinator.WithLogger(s.logger),
			}
			if s.device.Poll != nil {
				opts = append(opts, coordinator.WithPlan(*s.device.Poll))
			}

			out := cmd.OutOrStdout()
			if !isTerminal(out) {
				return g.monitorPlain(cmd.Context(), cmd, opts, s, count)
			}

			return monitorTUI(cmd.Context(), opts, s)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", coordinator.DefaultInterval, "Poll interval (5s..1h, default the device scan interval)")
	cmd.Flags().IntVar(&count, "count", 0, "Stop after this many snapshots in line mode (0 runs until interrupted)")

	return cmd
}

// monitorPlain prints one line per tick until ctx is done or count snapshots were printed.
func (g *globalFlags) monitorPlain(ctx context.Context, cmd *cobra.Command, opts []coordinator.Option, s *session, count int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	printer := &snapshotPrinter{g: g, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
	seen := 0
	sink := coordinator.MultiSink{printer, coordinator.SinkFuncs{
		Update: func(*coordinator.Snapshot) {
			seen++
			if count > 0 && seen >= count {
				cancel()
			}
		},
	}}

	coord, err := coordinator.New(s.client, append(opts, coordinator.WithSink(sink))...)
	if err != nil {
		return err
	}

	info := coord.DeviceInfo(ctx)
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s, firmware %s, serial %s\n",
		s.device.ID, info.ProductType, info.FirmwareVersionString, info.SerialNumber)

	coord.Run(ctx)

	return nil
}

func monitorTUI(ctx context.Context, opts []coordinator.Option, s *session) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var p *tea.Program
	sink := coordinator.SinkFuncs{
		Update: func(snap *coordinator.Snapshot) { p.Send(snapshotMsg{snap}) },
		Error:  func(_ string, err error) { p.Send(tickErrMsg{err}) },
	}

	coord, err := coordinator.New(s.client, append(opts, coordinator.WithSink(sink))...)
	if err != nil {
		return err
	}

	p = tea.NewProgram(newMonitorModel(s.device.ID, s.client.Transport().String()), tea.WithAltScreen())

	done := make(chan struct{})
	go func() {
		defer close(done)

		p.Send(infoMsg{coord.DeviceInfo(ctx)})
		coord.Run(ctx)
	}()
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err = p.Run()
	cancel()
	<-done

	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
