package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/bakerykit/bakery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand() *cobra.Command {
	var (
		configFile     string
		metricsAddress string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a process index",
		Long: `Run a process index as described by a configuration file.

In a cluster-sharded topology this process joins the cluster and hosts the
instances in the shards it is assigned.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bakery.LoadConfigFile(configFile)
			if err != nil {
				return err
			}

			logger, flush, err := newLogger()
			if err != nil {
				return err
			}
			defer flush()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			ctx := cmd.Context()

			rt, err := bakery.Start(
				ctx,
				cfg,
				bakery.WithLogger(logger),
				bakery.WithMetrics(reg),
			)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				select {
				case <-ctx.Done():
					return rt.Stop()
				case <-rt.Done():
					return rt.Err()
				}
			})

			if metricsAddress != "" {
				g.Go(func() error {
					return serveMetrics(ctx, metricsAddress, reg)
				})
			}

			err = g.Wait()

			if cmd.Context().Err() != nil {
				return cmd.Context().Err()
			}

			return err
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "bakery.yaml", "path to the configuration file")
	cmd.Flags().StringVar(&metricsAddress, "metrics-address", "", "address on which to expose prometheus metrics")

	return cmd
}

// serveMetrics exposes the metrics in reg over HTTP until ctx is canceled.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}

	return err
}
