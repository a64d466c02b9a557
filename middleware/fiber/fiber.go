// Package fiber provides Fiber middleware that gates generation endpoints on
// the user's credit balance: one credit is debited before the handler runs,
// and refunded if the handler fails.
package fiber

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/pixelhatch/creditledger/pkg/ledger"
)

// UserIDExtractor extracts the user ID from a Fiber context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *fiber.Ctx) string

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
	OnInsufficientCredits func(c *fiber.Ctx) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that debits one credit per request
// and refunds it when the handler fails
func Middleware(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Service == nil {
		panic("creditledger/fiber: Config.Service is required")
	}
	if cfg.GetUserID == nil {
		panic("creditledger/fiber: Config.GetUserID is required")
	}

	refundOn := cfg.RefundOn
	if refundOn == nil {
		refundOn = func(status int) bool { return status >= http.StatusInternalServerError }
	}

	return func(c *fiber.Ctx) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}

		ctx := c.UserContext()
		if _, err := cfg.Service.Debit(ctx, userID); err != nil {
			if errors.Is(err, ledger.ErrInsufficientCredits) ||
				errors.Is(err, ledger.ErrAccountNotFound) {
				if cfg.OnInsufficientCredits != nil {
					return cfg.OnInsufficientCredits(c)
				}
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Insufficient credits"})
			}
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		}

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			// An unhandled handler error becomes a 5xx downstream.
			status = fiber.StatusInternalServerError
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				status = fiberErr.Code
			}
		}
		if refundOn(status) {
			// The generation failed after the debit; give the credit back.
			_, _ = cfg.Service.Refund(ctx, userID)
		}
		return err
	}
}

// Common extractors for convenience

// FromContext returns a UserIDExtractor that reads c.Locals(key)
func FromContext(key string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		if val := c.Locals(key); val != nil {
			if userID, ok := val.(string); ok {
				return userID
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that reads a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that reads a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(paramName)
	}
}

// FromQuery returns a UserIDExtractor that reads a query parameter
func FromQuery(queryName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Query(queryName)
	}
}
