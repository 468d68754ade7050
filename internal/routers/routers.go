// Package routers
package routers

import (
	"io"
	"net/http"

	"claude-invocation/internal/ctx"
	"claude-invocation/internal/shared"

	"github.com/labstack/echo/v4"
)

func readRequestBody(c *ctx.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		c.Log.Errorw("Failed to read request body", "error", err.Error())
		return nil, err
	}
	return body, nil
}

// flattenHeaders keeps the first value of every request header.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// writeResponse writes an outbound response verbatim.
func writeResponse(c echo.Context, res *shared.OutboundResponse) error {
	for k, v := range res.Headers {
		c.Response().Header().Set(k, v)
	}
	contentType := res.Headers["Content-Type"]
	if contentType == "" {
		contentType = echo.MIMEApplicationJSON
	}
	return c.Blob(res.StatusCode, contentType, []byte(res.Body))
}
