package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/rw/config"
	"github.com/GoCodeAlone/rw/httpbind"
)

// NewServeCommand creates the serve command
func NewServeCommand(flags *globalFlags) *cobra.Command {
	var (
		watch       bool
		metricsPath string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo application over HTTP",
		Long: `Serve runs the startup phases of the demo application and serves it until
interrupted. The listener is configured in the rw.http settings category:

  rw.http:
    address: 127.0.0.1
    port: 8080
    shutdown_timeout: 10s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, flags, cmd, watch, metricsPath)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Reload settings when a config file changes")
	cmd.Flags().StringVar(&metricsPath, "metrics-path", "/metrics", "Path serving Prometheus metrics, empty to disable")
	return cmd
}

func serve(ctx context.Context, flags *globalFlags, cmd *cobra.Command, watch bool, metricsPath string) error {
	app, err := NewDemoApplication(flags.options(cmd)...)
	if err != nil {
		return err
	}
	srv, err := httpbind.New(app, httpbind.WithMetricsPath(metricsPath))
	if err != nil {
		return err
	}
	if err := app.Run(ctx); err != nil {
		return err
	}

	if watch && len(flags.configFiles) > 0 {
		go func() {
			if err := app.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, config.ErrNoFilesToWatch) {
				app.Logger().Error("Config watcher stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	return srv.Shutdown(context.WithoutCancel(ctx))
}
