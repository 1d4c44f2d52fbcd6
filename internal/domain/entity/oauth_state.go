package entity

import "time"

// OAuthState is the anti-forgery record created when a login flow starts.
// It lives in Redis with a short TTL and is consumed exactly once when the
// provider redirects back.
type OAuthState struct {
	State     string    `json:"state"`
	Provider  string    `json:"provider"`
	FlowID    string    `json:"flow_id"`
	CreatedAt time.Time `json:"created_at"`
}
