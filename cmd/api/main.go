package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"claude-invocation/internal/config"
	"claude-invocation/internal/middleware"
	"claude-invocation/internal/routers"
	"claude-invocation/internal/setup"
	"claude-invocation/internal/shared"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"github.com/manifold-inc/manifold-sdk/lib/eflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Flags / ENV Variables
	cfg := config.Register(flag.CommandLine)
	err := eflag.SetFlagsFromEnvironment()
	if err != nil {
		panic(err)
	}
	flag.Parse()
	if err := config.Finalize(cfg, flag.CommandLine); err != nil {
		panic(err)
	}

	log, err := setup.NewLogger(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()

	ih, shutdown, err := setup.NewInvocationHandler(context.Background(), cfg, log, false)
	if err != nil {
		panic(err)
	}
	defer shutdown()

	e := echo.New()
	e.HideBanner = true
	e.GET("/ping", func(c echo.Context) error {
		return c.String(200, "")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.NewMetricsAuthMiddleware(cfg.MetricsAPIKey))

	base := e.Group("")
	base.Use(emw.CORSWithConfig(emw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodOptions, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	base.Use(middleware.NewRecoverMiddleware(log))
	base.Use(middleware.NewTrackMiddleware(log))

	routers.RegisterInvocationRoutes(base, ih)

	go func() {
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()
	log.Infow("Server started", "port", cfg.Port, "region", cfg.Region, "model", cfg.ModelID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
}
