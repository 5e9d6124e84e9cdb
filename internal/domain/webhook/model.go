// Package webhook models outbound event subscriptions. Delivery is not
// implemented; the store surfaces that explicitly.
package webhook

import "time"

// Subscription registers a callback URL for application events.
type Subscription struct {
	ID        string    `json:"id" db:"id"`
	AppCode   string    `json:"appCode" db:"app_code"`
	URL       string    `json:"url" db:"url"`
	Events    []string  `json:"events" db:"events"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
