package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/jinsol/flowline/internal/activation"
	"github.com/jinsol/flowline/internal/api"
	"github.com/jinsol/flowline/internal/config"
	"github.com/jinsol/flowline/internal/db"
	"github.com/jinsol/flowline/internal/services"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		if err := serve(); err != nil {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
		return
	}
	fmt.Println("flowline v0.1.0")
	fmt.Println("Usage: flowline serve")
}

func serve() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return errors.New("database url is not configured")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("jwt secret is not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.Database.URL, cfg.Database.TablePrefix)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		return err
	}

	runner := activation.NewRunner(database, nil)
	if err := runner.Start(ctx); err != nil {
		return err
	}
	defer runner.Stop()

	workflowSvc := services.NewWorkflowService(database, database, database, runner, cfg.Workflows)
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewServer(workflowSvc, cfg.Auth.JWTSecret).Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting flowline server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		return srv.Shutdown(context.Background())
	})
	return g.Wait()
}
