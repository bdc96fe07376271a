package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/trailhawk/common/logging"
	"github.com/telhawk-systems/trailhawk/common/messaging"
	"github.com/telhawk-systems/trailhawk/internal/parser"
	"github.com/telhawk-systems/trailhawk/internal/source"
)

func newConsumeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Land batches published to NATS",
		Long: `Subscribe to the configured NATS subject and run every message through
the pipeline as one batch. With nats.durable the batches are read from the
AUDIT_BATCHES JetStream stream and redelivered when a run fails for a
reason other than a bad batch. Serves Prometheus metrics when metrics.addr
is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := opts.cfg
			logger := opts.logger
			a := opts.newApp()
			defer a.Close()

			p, err := a.Pipeline(ctx, "auto", parser.FormatAuto)
			if err != nil {
				return err
			}

			js, err := a.JetStream()
			if err != nil {
				return err
			}

			if cfg.Metrics.Addr != "" {
				srv := serveMetrics(cfg.Metrics.Addr, logger)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			consumer := source.NewConsumer(p, logger, cfg.NATS.Subject, cfg.NATS.Queue, cfg.Pipeline.MaxBatchBytes)
			if cfg.NATS.Durable {
				stopConsume, err := consumer.Durable(ctx, js)
				if err != nil {
					return err
				}
				defer stopConsume()
			} else if _, err := consumer.Subscribe(js); err != nil {
				return err
			}

			health := messaging.CheckClientHealth(ctx, js)
			logger.InfoContext(ctx, "broker connection",
				"connected", health.Connected,
				logging.Duration(health.Latency),
			)

			<-ctx.Done()
			logger.Info("shutting down consumer")
			return js.Drain()
		},
	}
	return cmd
}

func serveMetrics(addr string, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", logging.Error(err))
		}
	}()
	return srv
}
