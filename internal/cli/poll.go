package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-sbus/config"
	"github.com/arloliu/go-sbus/coordinator"
	"github.com/arloliu/go-sbus/logger"
	"github.com/arloliu/go-sbus/metrics"
)

const metricsShutdownTimeout = 5 * time.Second

func newPollCommand(g *globalFlags) *cobra.Command {
	var (
		metricsAddr string
		once        bool
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll every device in the device file",
		Long: `Poll every device in the device file on its scan interval and print each
snapshot. With --metrics-addr the transport and coordinator counters and the
polled values are served as Prometheus metrics on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.configPath == "" {
				return errors.New("poll needs a device file, pass --config")
			}

			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			l, err := g.newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			for i := range cfg.Devices {
				if err := fillPassword(&cfg.Devices[i], cmd.ErrOrStderr()); err != nil {
					return err
				}
			}

			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = cfg.MetricsAddr
			}

			printer := &snapshotPrinter{g: g, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
			sinks := coordinator.MultiSink{printer}

			reg := prometheus.NewRegistry()
			if metricsAddr != "" {
				exporter, err := metrics.NewValueExporter(reg)
				if err != nil {
					return err
				}
				sinks = append(sinks, exporter)
			}

			m, units, err := cfg.BuildManager(l, coordinator.WithSink(sinks))
			if err != nil {
				return err
			}
			defer func() {
				if err := m.Shutdown(); err != nil {
					l.Warn("sbusctl: shutdown", "error", err)
				}
			}()

			if once {
				return pollOnce(cmd.Context(), units, printer)
			}

			if metricsAddr != "" {
				for _, u := range units {
					if err := metrics.Register(reg, u.Device.ID, u.Client.Transport().Metrics(), u.Coordinator.Metrics()); err != nil {
						return err
					}
				}

				stop, err := serveMetrics(metricsAddr, reg, l)
				if err != nil {
					return err
				}
				defer stop()
			}

			l.Info("sbusctl: polling", "devices", m.IDs())
			m.Run(cmd.Context())

			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics_addr)")
	cmd.Flags().BoolVar(&once, "once", false, "Poll every device once and exit")

	return cmd
}

// pollOnce refreshes every unit once. It fails when any device failed.
func pollOnce(ctx context.Context, units []config.Unit, sink coordinator.Sink) error {
	var errs []error
	for _, u := range units {
		snap, err := u.Coordinator.Refresh(ctx)
		if err != nil {
			sink.OnError(u.Device.ID, err)
			errs = append(errs, fmt.Errorf("%s: %w", u.Device.ID, err))

			continue
		}
		sink.OnUpdate(snap)
	}

	return errors.Join(errs...)
}

// serveMetrics serves reg on addr/metrics until stop is called.
func serveMetrics(addr string, reg *prometheus.Registry, l logger.Logger) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("sbusctl: metrics server", "error", err)
		}
	}()
	l.Info("sbusctl: serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
