package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/pixelhatch/creditledger/pkg/ledger"
)

const maxUserIDLen = 255

// Handler provides HTTP endpoints for account inspection
type Handler struct {
	config Config
}

// GetAccount returns the user's current plan, subscription status, and
// credit balance. Users without a ledger row get the default account, the
// same row first authentication would create.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := h.config.GetUserID(r)
	if userID == "" {
		h.handleError(w, r, fmt.Errorf("user ID not found"), http.StatusUnauthorized)
		return
	}
	if len(userID) > maxUserIDLen {
		h.handleError(w, r, fmt.Errorf("invalid user ID format"), http.StatusBadRequest)
		return
	}

	account, err := h.config.Service.Account(ctx, userID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		account = ledger.NewAccount(userID)
		err = nil
	}
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to get account: %w", err), http.StatusInternalServerError)
		return
	}

	response := AccountResponse{
		UserID:             account.UserID,
		Plan:               string(account.Plan),
		SubscriptionStatus: string(account.Status),
		Credits:            account.Credits,
	}
	if !account.UpdatedAt.IsZero() {
		updatedAt := account.UpdatedAt
		response.UpdatedAt = &updatedAt
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// Response already sent; nothing useful to do.
		return
	}
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	errorResponse := map[string]string{
		"error": err.Error(),
	}
	if encodeErr := json.NewEncoder(w).Encode(errorResponse); encodeErr != nil {
		_ = encodeErr
	}
}
