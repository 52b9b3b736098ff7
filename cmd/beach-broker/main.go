package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/beachcabana/beach/internal/brokerserver"
	"github.com/beachcabana/beach/internal/logger"
	"github.com/beachcabana/beach/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:   "beach-broker",
		Short: "beach rendezvous broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			dbPath, _ := cmd.Flags().GetString("db")
			sessionTTL, _ := cmd.Flags().GetDuration("session-ttl")
			logLevel, _ := cmd.Flags().GetString("log-level")

			if err := logger.Init(logLevel, ""); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			st, err := store.Open(dbPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			cfg := brokerserver.DefaultConfig()
			if sessionTTL > 0 {
				cfg.SessionTTL = sessionTTL
			}
			srv := brokerserver.NewServer(st, cfg)

			stop := make(chan struct{})
			go srv.RunSweeper(stop)
			defer close(stop)

			httpSrv := &http.Server{Addr: addr, Handler: srv}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("beach-broker listening", "addr", addr)
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				logger.Info("beach-broker shutting down")
				return httpSrv.Close()
			case err := <-errCh:
				return err
			}
		},
	}

	root.Flags().String("addr", ":8443", "listen address")
	root.Flags().String("db", "beach-broker.db", "session/envelope store path")
	root.Flags().Duration("session-ttl", time.Hour, "session time-to-live")
	root.Flags().String("log-level", "info", "log level")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
