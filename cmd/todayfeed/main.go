package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/todayfeed/internal/profile"
	"github.com/hrygo/todayfeed/server"
	"github.com/hrygo/todayfeed/internal/observability"
	apiv1 "github.com/hrygo/todayfeed/server/router/api/v1"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "todayfeed",
		Short: "Local content cache with scheduled refresh and offline sync",
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the cache service with its diagnostics API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	diagCmd = &cobra.Command{
		Use:   "diag",
		Short: "Print a one-shot diagnostic snapshot and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return diag(cmd.Context())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(diagCmd)
}

func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{}
	p.FromEnv()
	if err := p.FromConfigFile(configPath); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	observability.SetupLogger(p)
	return p, nil
}

func serve(ctx context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := server.NewService(ctx, p, server.Options{})
	if err != nil {
		return err
	}
	defer svc.Dispose()
	svc.Start(ctx)

	e := apiv1.NewAPIV1Service(p, svc).NewEcho()
	addr := fmt.Sprintf("%s:%d", p.Addr, p.Port)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("diagnostics server listening", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func diag(ctx context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}

	svc, err := server.NewService(ctx, p, server.Options{})
	if err != nil {
		return err
	}
	defer svc.Dispose()

	raw, err := json.MarshalIndent(svc.DiagnosticInfo(ctx), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
