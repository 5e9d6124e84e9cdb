// Package company models companies scoped under a tenant application.
package company

import "time"

// Company groups users under an application.
type Company struct {
	ID        string    `json:"id" db:"id"`
	AppCode   string    `json:"appCode" db:"app_code"`
	Name      string    `json:"name" db:"name"`
	Document  string    `json:"document,omitempty" db:"document"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
