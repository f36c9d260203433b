// Package user defines the user model used to issue session tokens.
package user

import (
	"errors"
	"strings"
	"time"
)

// User is an account registered under one space.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	SpaceID      string    `json:"space_id"`
	PasswordHash string    `json:"-"` // never serialized
	CreatedAt    time.Time `json:"created_at"`
}

// CreateRequest is the input for registering a new user.
type CreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
	SpaceID  string `json:"space_id"`
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return errors.New("username is required")
	}
	if r.SpaceID == "" {
		return errors.New("space id is required")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	if len(r.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

// LoginRequest is the input for exchanging credentials for a session token.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=320"`
	Password string `json:"password" validate:"required,max=256"` //nolint:gosec // request field, not a hardcoded secret
}

// Validate checks that the LoginRequest has all required fields.
func (r *LoginRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return errors.New("username is required")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// LoginResponse is returned after successful authentication.
type LoginResponse struct {
	AccessToken string    `json:"access_token"` //nolint:gosec // response field, not a hardcoded secret
	ExpiresAt   time.Time `json:"expires_at"`
	User        User      `json:"user"`
}
