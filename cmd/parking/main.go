// Package main запускает HTTP-сервер сервиса парковки.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/parking-system/internal/config"
	"github.com/mmeshcher/parking-system/internal/handler"
	"github.com/mmeshcher/parking-system/internal/middleware"
	"github.com/mmeshcher/parking-system/internal/model"
	"github.com/mmeshcher/parking-system/internal/pricing"
	"github.com/mmeshcher/parking-system/internal/repository"
	"github.com/mmeshcher/parking-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	tariff, err := pricing.NewTariff(model.Money(cfg.HourRateCents), cfg.MaxDiscountPercent)
	if err != nil {
		sugar.Fatalw("tariff configuration error", "error", err.Error())
	}

	var repo service.Repository
	if cfg.DatabaseURI == "" {
		sugar.Warn("DATABASE_URI is empty, using in-memory store; data will be lost on exit")
		repo = repository.NewMemoryRepository()
	} else {
		repo, err = repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
	}

	svc := service.NewService(repo, logger, service.WithTariff(tariff))
	defer svc.Close()

	var opts []handler.Option
	if cfg.AuthSecret != "" {
		opts = append(opts, handler.WithAuth(middleware.NewAuthMiddleware(cfg.AuthSecret, middleware.RoleAdmin)))
	} else {
		sugar.Warn("AUTH_SECRET is empty, API is not protected")
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		opts = append(opts, handler.WithRateLimiter(limiter))
	}

	h := handler.NewHandler(svc, logger, opts...)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if limiter != nil {
		g.Go(func() error {
			return limiter.Run(ctx)
		})
	}

	g.Go(func() error {
		sugar.Infow("starting parking server",
			"addr", cfg.RunAddress,
			"hourRate", tariff.HourRate().String(),
			"maxDiscountPercent", tariff.MaxDiscountPercent(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
