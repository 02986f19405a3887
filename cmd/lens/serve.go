package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/lens/pkg/logging"
	"github.com/pario-ai/lens/pkg/server"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the message API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if listen != "" {
				a.cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.Component("cmd")
			log.Info().Str("config", configPath).Str("store", a.cfg.Store.Backend).Msg("starting lens")
			return server.New(a.cfg.Listen, a.router()).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "override listen address")
	return cmd
}

func newStdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve line-delimited JSON messages on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return a.router().Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
