package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	hotconfig "github.com/goliatone/go-hotconfig"
	"github.com/goliatone/go-hotconfig/adminhttp"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	var token string
	var poll time.Duration
	var handlerTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the administrative HTTP API and watch the file for external edits",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(commandCtx(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := ctx.openStore(cmd,
				hotconfig.WithPollInterval(poll),
				hotconfig.WithHandlerTimeout(handlerTimeout),
			)
			if err != nil {
				return err
			}
			logger, err := ctx.log(cmd)
			if err != nil {
				return err
			}

			store.RegisterReloadHandler("log", func(_ context.Context, doc hotconfig.Document) error {
				logger.Info("configuration active",
					slog.String("checksum", store.Checksum()),
					slog.Int("sections", len(doc)),
				)
				return nil
			})

			if err := store.Watch(runCtx); err != nil {
				return err
			}

			handler := adminhttp.New(store,
				adminhttp.WithToken(token),
				adminhttp.WithLogger(logger),
			)
			srv := adminhttp.NewServer(addr, handler, logger)
			if err := srv.Start(runCtx); err != nil {
				return err
			}

			<-runCtx.Done()
			logger.Info("shutting down")
			srv.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", envOr("HOTCONFIG_ADDR", "127.0.0.1:8089"), "Listen address (HOTCONFIG_ADDR)")
	cmd.Flags().StringVar(&token, "token", envOr("HOTCONFIG_TOKEN", ""), "Bearer token required by the API (HOTCONFIG_TOKEN)")
	cmd.Flags().DurationVar(&poll, "poll", hotconfig.DefaultPollInterval, "File watcher poll interval")
	cmd.Flags().DurationVar(&handlerTimeout, "handler-timeout", hotconfig.DefaultHandlerTimeout, "Per reload handler timeout")
	return cmd
}
