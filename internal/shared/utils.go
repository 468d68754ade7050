// Package shared
package shared

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// ExtractAPIKey reads a bearer token from the Authorization header.
func ExtractAPIKey(c echo.Context) (string, error) {
	auth := c.Request().Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingAuth
	}

	parts := strings.Split(auth, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", ErrInvalidFormat
	}
	return parts[1], nil
}

// LowerKeys returns a copy of headers with every key lower cased. Keys that
// only differ by case collapse into one entry.
func LowerKeys(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[strings.ToLower(k)] = v
	}
	return out
}
