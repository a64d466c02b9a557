// Package echo provides Echo middleware that gates generation endpoints on
// the user's credit balance: one credit is debited before the handler runs,
// and refunded if the handler fails.
package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pixelhatch/creditledger/pkg/ledger"
)

// UserIDExtractor extracts the user ID from an Echo context
// Return empty string if user is not authenticated
type UserIDExtractor func(c echo.Context) string

// Config holds middleware configuration
type Config struct {
	// Service is the credit ledger service instance (required)
	Service *ledger.Service

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// RefundOn decides, from the handler's outcome, whether the debited
	// credit should be returned. If nil, handler errors and 5xx responses
	// refund.
	RefundOn func(status int) bool

	// OnInsufficientCredits is called when the balance is empty
	// If nil, returns 429 JSON
	OnInsufficientCredits func(c echo.Context) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that debits one credit per request
// and refunds it when the handler fails
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Service == nil {
		panic("creditledger/echo: Config.Service is required")
	}
	if cfg.GetUserID == nil {
		panic("creditledger/echo: Config.GetUserID is required")
	}

	refundOn := cfg.RefundOn
	if refundOn == nil {
		refundOn = func(status int) bool { return status >= http.StatusInternalServerError }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			ctx := c.Request().Context()
			if _, err := cfg.Service.Debit(ctx, userID); err != nil {
				if errors.Is(err, ledger.ErrInsufficientCredits) ||
					errors.Is(err, ledger.ErrAccountNotFound) {
					if cfg.OnInsufficientCredits != nil {
						return cfg.OnInsufficientCredits(c)
					}
					return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Insufficient credits"})
				}
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
			}

			err := next(c)

			status := c.Response().Status
			if err != nil {
				// An unhandled handler error becomes a 5xx downstream.
				status = http.StatusInternalServerError
				var httpErr *echo.HTTPError
				if errors.As(err, &httpErr) {
					status = httpErr.Code
				}
			}
			if refundOn(status) {
				// The generation failed after the debit; give the credit back.
				_, _ = cfg.Service.Refund(ctx, userID)
			}
			return err
		}
	}
}

// Common extractors for convenience

// FromContext returns a UserIDExtractor that reads c.Get(key)
func FromContext(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if userID, ok := c.Get(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that reads a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that reads a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns a UserIDExtractor that reads a query parameter
func FromQuery(queryName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.QueryParam(queryName)
	}
}
