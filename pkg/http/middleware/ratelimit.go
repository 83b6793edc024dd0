package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Allower is a token-bucket limiter keyed by caller.
type Allower interface {
	Allow(key string, capacity, refillPerSec float64) bool
}

// RateLimit rejects callers, keyed by real IP, that exhaust their bucket.
func RateLimit(l Allower, capacity, refillPerSec float64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()+" "+c.Path(), capacity, refillPerSec) {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
