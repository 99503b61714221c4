package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/dukerupert/village/internal/config"
	"github.com/dukerupert/village/internal/database"
	"github.com/dukerupert/village/internal/email"
	"github.com/dukerupert/village/internal/logging"
	"github.com/dukerupert/village/internal/push"
	"github.com/dukerupert/village/internal/server"
	"github.com/dukerupert/village/internal/storage"
)

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	genVAPID := flag.Bool("gen-vapid", false, "print a new VAPID key pair and exit")
	flag.Parse()

	if *genVAPID {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate vapid keys: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("VILLAGE_VAPID_PUBLIC_KEY=%s\nVILLAGE_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	if err := run(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "village: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting village", "config", cfg.String())

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	emailClient := email.NewClient(cfg.Email.PostmarkToken, cfg.Email.FromAddress, cfg.BaseURL)
	if !cfg.EmailEnabled() {
		logger.Warn("postmark not configured, emails will not be sent")
	}
	avatars := storage.New(storage.Config{
		Endpoint:      cfg.Storage.Endpoint,
		Bucket:        cfg.Storage.Bucket,
		Region:        cfg.Storage.Region,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	}, logger.With("component", "storage"))
	if !cfg.StorageEnabled() {
		logger.Warn("object storage not configured, avatar uploads disabled")
	}

	srv := server.New(db, cfg, emailClient, avatars, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := srv.PushScheduler()
	if err := sched.Start(ctx, cfg.Scheduler.TickSpec, cfg.Scheduler.DigestSpec); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.RateLimiter().Cleanup(10 * time.Minute)
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
