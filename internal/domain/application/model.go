// Package application models registered tenant applications.
package application

import "time"

// Application is a registered client application (tenant). Its Code scopes
// every company, user, and conversation in the system.
type Application struct {
	ID        string    `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	Name      string    `json:"name" db:"name"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
