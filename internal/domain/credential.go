package domain

import (
	"errors"
	"time"
)

// ErrUnauthorized matches every upstream failure caused by a missing or
// unusable credential.
var ErrUnauthorized = errors.New("upstream credential unusable")

// Credential is the process-wide upstream bearer credential.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Valid reports whether the access token can be used at now.
func (c *Credential) Valid(now time.Time) bool {
	return c != nil && c.AccessToken != "" && now.Before(c.ExpiresAt)
}
