// Command kvs-server serves a store directory over TCP.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/0xRadioAc7iv/go-kvs/core"
	"github.com/0xRadioAc7iv/go-kvs/internal/config"
	"github.com/0xRadioAc7iv/go-kvs/internal/server"
	"github.com/0xRadioAc7iv/go-kvs/internal/utils"
	"github.com/0xRadioAc7iv/go-kvs/pkg/kvs"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("kvs-server failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	var configPath string

	cmd := &cobra.Command{
		Use:           "kvs-server",
		Short:         "Serve a kvs store over TCP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resolved, err := resolveConfig(cmd.Flags(), configPath, cfg)
			if err != nil {
				return err
			}
			ctx, stop := utils.WithInterruptOrKill(cmd.Context())
			defer stop()
			return serve(ctx, resolved)
		},
	}

	bindFlags(cmd.Flags(), &cfg, &configPath)
	return cmd
}

func bindFlags(flags *pflag.FlagSet, cfg *config.Config, configPath *string) {
	flags.StringVarP(configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP listen address")
	flags.StringVarP(&cfg.Dir, "dir", "d", cfg.Dir, "store directory")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address for the Prometheus endpoint, empty to disable")
	flags.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	flags.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "log format (text or json)")
	flags.Var(&cfg.Storage.MaxSegmentSize, "max-segment-size", "size at which the active segment is rotated")
}

// resolveConfig loads the config file, if any, and applies the flags that
// were set explicitly on top of it.
func resolveConfig(flags *pflag.FlagSet, path string, fromFlags config.Config) (config.Config, error) {
	if path == "" {
		return fromFlags, fromFlags.Validate()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = fromFlags.Addr
		case "dir":
			cfg.Dir = fromFlags.Dir
		case "metrics-addr":
			cfg.MetricsAddr = fromFlags.MetricsAddr
		case "log-level":
			cfg.Log.Level = fromFlags.Log.Level
		case "log-format":
			cfg.Log.Format = fromFlags.Log.Format
		case "max-segment-size":
			cfg.Storage.MaxSegmentSize = fromFlags.Storage.MaxSegmentSize
		}
	})
	return cfg, cfg.Validate()
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	metrics := core.NewMetrics()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(registry); err != nil {
		return errors.Wrap(err, "registering metrics")
	}

	store, err := kvs.Open(cfg.Dir, cfg.EngineOptions(logger, metrics)...)
	if err != nil {
		return errors.Wrapf(err, "opening store in %s", cfg.Dir)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Error("closing store")
		}
	}()

	ln, err := server.Listen(cfg.Addr, cfg.PortAttempts)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.New(store, logger).Serve(ctx, ln)
	})

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.WithField("addr", cfg.MetricsAddr).Info("serving metrics")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
