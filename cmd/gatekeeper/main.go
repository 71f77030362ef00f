package main

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	gatekeep "go.halcyon.sh/gatekeep"
	"go.halcyon.sh/gatekeep/cache"
	rediscache "go.halcyon.sh/gatekeep/cache/redis"
	"go.halcyon.sh/gatekeep/client"
	"go.halcyon.sh/gatekeep/config"
	"go.halcyon.sh/gatekeep/log"
	"go.halcyon.sh/gatekeep/middleware"
	"go.halcyon.sh/gatekeep/tracing"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	appLogger := log.NewZerologAdapter(level, cfg.LogPretty)
	if parseErr != nil {
		appLogger.Warn(ctx, "invalid LOG_LEVEL, defaulting to info",
			map[string]any{"configured": cfg.LogLevel})
	}
	appLogger.Info(ctx, "starting gatekeeper", map[string]any{
		"listen_addr": cfg.ListenAddr,
		"auth_mode":   cfg.Mode.String(),
		"candidates":  cfg.APIURIs,
		"landing":     cfg.LandingOnly,
	})

	tp, err := tracing.InitTracerProvider("gatekeep")
	if err != nil {
		appLogger.Fatal(ctx, "failed to initialize tracer provider", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "tracer provider shutdown failed", err)
		}
	}()

	var resultCache cache.ResultCache
	if cfg.VerifyCacheTTL() > 0 {
		if cfg.RedisAddr != "" {
			rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
			resultCache = rediscache.NewResultCache(rdb, "gatekeep")
			appLogger.Info(ctx, "verification cache on redis", map[string]any{"addr": cfg.RedisAddr})
		} else {
			resultCache = cache.NewMemoryCache(cfg.VerifyCacheTTL())
		}
	}

	identity := client.New(client.Config{
		Candidates: cfg.APIURIs,
		Timeout:    cfg.VerifyTimeoutDuration(),
		CacheTTL:   cfg.VerifyCacheTTL(),
	}, resultCache)

	gate := gatekeep.NewGate(cfg, identity, identity, identity)
	gk := middleware.New(cfg, gate, appLogger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(gk.Middleware())
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	if cfg.UpstreamURI != "" {
		upstream, err := url.Parse(cfg.UpstreamURI)
		if err != nil {
			appLogger.Fatal(ctx, "invalid UPSTREAM_URI", err)
		}
		proxy := httputil.NewSingleHostReverseProxy(upstream)
		e.Any("/*", echo.WrapHandler(proxy))
	} else {
		e.Any("/*", func(c echo.Context) error {
			return c.NoContent(http.StatusNoContent)
		})
	}

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(ctx, "http server failed", err)
		}
	}()
	appLogger.Info(ctx, "gatekeeper listening", map[string]any{"addr": cfg.ListenAddr})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "graceful shutdown failed", err)
	}
}
