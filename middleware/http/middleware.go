// Package http provides HTTP middleware that gates generation endpoints on
// the user's credit balance: one credit is debited before the handler runs,
// and refunded if the handler fails.
package http

import (
	"errors"
	"net/http"

	"github.com/pixelhatch/creditledger/pkg/ledger"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Service is the credit ledger service instance (required)
	Service *ledger.Service

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// RefundOn decides, from the handler's response status, whether the
	// debited credit should be returned. If nil, 5xx responses refund.
	RefundOn func(status int) bool

	// OnInsufficientCredits is called when the balance is empty
	// If nil, returns 429 Too Many Requests
	OnInsufficientCredits func(w http.ResponseWriter, r *http.Request)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// statusRecorder captures the status code written by the wrapped handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return rec.ResponseWriter.Write(b)
}

// Middleware creates an HTTP middleware that debits one credit per request
// and refunds it when the handler fails
func Middleware(config Config) func(http.Handler) http.Handler {
	refundOn := config.RefundOn
	if refundOn == nil {
		refundOn = func(status int) bool { return status >= http.StatusInternalServerError }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := config.GetUserID(r)
			if userID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			ctx := r.Context()
			if _, err := config.Service.Debit(ctx, userID); err != nil {
				if errors.Is(err, ledger.ErrInsufficientCredits) ||
					errors.Is(err, ledger.ErrAccountNotFound) {
					if config.OnInsufficientCredits != nil {
						config.OnInsufficientCredits(w, r)
					} else {
						http.Error(w, "Insufficient credits", http.StatusTooManyRequests)
					}
				} else {
					if config.OnError != nil {
						config.OnError(w, r, err)
					} else {
						http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					}
				}
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if refundOn(rec.status) {
				// The generation failed after the debit; give the credit back.
				if _, err := config.Service.Refund(ctx, userID); err != nil && config.OnError != nil {
					config.OnError(w, r, err)
				}
			}
		})
	}
}

// HandlerFunc creates an HTTP middleware that debits credits (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

// Common extractors for convenience

// FromHeader returns a UserIDExtractor that reads a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromContext returns a UserIDExtractor that reads a context value
func FromContext(key interface{}) UserIDExtractor {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}
