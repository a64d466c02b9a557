// Package gin provides Gin middleware that gates generation endpoints on the
// user's credit balance: one credit is debited before the handler runs, and
// refunded if the handler fails.
package gin

import (
	"errors"
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/pixelhatch/creditledger/pkg/ledger"
)

// UserIDExtractor extracts the user ID from a Gin context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// Service is the credit ledger service instance (required)
	Service *ledger.Service

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// RefundOn decides, from the handler's response status, whether the
	// debited credit should be returned. If nil, 5xx responses refund.
	RefundOn func(status int) bool

	// OnInsufficientCredits is called when the balance is empty
	// If nil, returns 429 JSON
	OnInsufficientCredits func(c *gongin.Context)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that debits one credit per request
// and refunds it when the handler fails
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Service == nil {
		panic("creditledger/gin: Config.Service is required")
	}
	if cfg.GetUserID == nil {
		panic("creditledger/gin: Config.GetUserID is required")
	}

	refundOn := cfg.RefundOn
	if refundOn == nil {
		refundOn = func(status int) bool { return status >= http.StatusInternalServerError }
	}

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.JSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
			}
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		if _, err := cfg.Service.Debit(ctx, userID); err != nil {
			if errors.Is(err, ledger.ErrInsufficientCredits) ||
				errors.Is(err, ledger.ErrAccountNotFound) {
				if cfg.OnInsufficientCredits != nil {
					cfg.OnInsufficientCredits(c)
				} else {
					c.JSON(http.StatusTooManyRequests, gongin.H{"error": "Insufficient credits"})
				}
			} else {
				if cfg.OnError != nil {
					cfg.OnError(c, err)
				} else {
					c.JSON(http.StatusInternalServerError, gongin.H{"error": "Internal Server Error"})
				}
			}
			c.Abort()
			return
		}

		c.Next()

		if refundOn(c.Writer.Status()) {
			// The generation failed after the debit; give the credit back.
			if _, err := cfg.Service.Refund(ctx, userID); err != nil && cfg.OnError != nil {
				cfg.OnError(c, err)
			}
		}
	}
}

// Common extractors for convenience

// FromContext returns a UserIDExtractor that reads c.Get(key)
func FromContext(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		if v, ok := c.Get(key); ok {
			if userID, ok := v.(string); ok {
				return userID
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that reads a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromParam returns a UserIDExtractor that reads a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns a UserIDExtractor that reads a query parameter
func FromQuery(queryName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.Query(queryName)
	}
}
