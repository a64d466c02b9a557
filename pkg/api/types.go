package api

import "time"

// AccountResponse represents the billing state for a user
type AccountResponse struct {
	UserID             string     `json:"user_id"`
	Plan               string     `json:"plan"`
	SubscriptionStatus string     `json:"subscription_status"`
	Credits            int        `json:"credits"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}
