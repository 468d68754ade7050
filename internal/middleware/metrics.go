// Package middleware defines the echo middleware shared by every route
package middleware

import (
	"fmt"
	"time"

	"claude-invocation/internal/ctx"
	"claude-invocation/internal/metrics"
	"claude-invocation/internal/shared"

	"github.com/aidarkhanov/nanoid"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const externalIDHeader = "X-Request-Id"

func NewTrackMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqID, _ := nanoid.Generate("0123456789abcdefghijklmnopqrstuvwxyz", 28)
			reqID = "req_" + reqID
			externalID := c.Request().Header.Get(externalIDHeader)
			logger := log.With("request_id", reqID)

			cc := &ctx.Context{
				Context: c,
				Log:     logger,
				Reqid:   reqID,
				LogValues: &ctx.ContextLogValues{
					RequestID:  reqID,
					ExternalID: externalID,
					StartTime:  time.Now(),
					Path:       c.Path(),
				},
			}
			err := next(cc)
			cc.LogValues.RequestDuration = time.Since(cc.LogValues.StartTime)
			cc.LogValues.StatusCode = cc.Response().Status
			log.Infow("end_of_request", zap.Object("request", cc.LogValues))
			metrics.ResponseCodes.WithLabelValues(cc.Path(), fmt.Sprintf("%d", cc.Response().Status)).Inc()
			return err
		}
	}
}

func NewRecoverMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return emw.RecoverWithConfig(emw.RecoverConfig{
		StackSize: 1 << 10, // 1 KB
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			defer func() {
				_ = log.Sync()
			}()
			log.Errorw("Api Panic", "error", err.Error())
			return c.JSON(500, map[string]string{"error": shared.ErrInternalServerError.Error()})
		},
	})
}

// NewMetricsAuthMiddleware guards the metrics endpoint with a bearer key.
func NewMetricsAuthMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key, err := shared.ExtractAPIKey(c)
			if err != nil {
				return c.String(401, "Missing or invalid API key")
			}
			if apiKey == "" || key != apiKey {
				return c.String(401, "Unauthorized API key")
			}
			return next(c)
		}
	}
}
