// Package chatuser models the users that connect to the hub.
package chatuser

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role classifies a user within its application.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// User is an account scoped to an application.
type User struct {
	ID           string    `json:"id" db:"id"`
	AppCode      string    `json:"appCode" db:"app_code"`
	CompanyID    string    `json:"companyId,omitempty" db:"company_id"`
	Login        string    `json:"login" db:"login"`
	DisplayName  string    `json:"displayName" db:"display_name"`
	Role         Role      `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Filter narrows user listings.
type Filter struct {
	CompanyID string
	Role      Role
	Active    *bool
}

// SetPassword hashes and stores the password.
func (u *User) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether plain matches the stored hash.
func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}
