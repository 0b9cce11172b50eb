package oauth

import (
	"errors"
	"fmt"
	"time"
)

// ManagerOwnerID addresses the shared credential used to create calendar
// events on behalf of the service.
const ManagerOwnerID = "__manager__"

// Credential is a stored OAuth grant for one calendar owner.
type Credential struct {
	OwnerID      string    `json:"owner_id" db:"owner_id"`
	Email        string    `json:"email" db:"email"`
	AccessToken  string    `json:"-" db:"access_token"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	Expiry       time.Time `json:"expiry" db:"expiry"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

var (
	ErrNoCredential = errors.New("oauth: no stored credential")

	// Refresher implementations wrap these so the guard can classify failures.
	ErrRevoked   = errors.New("oauth: refresh token revoked")
	ErrTransient = errors.New("oauth: transient refresh failure")
)

type ErrorCode string

const (
	CodeNoTokens            ErrorCode = "no_tokens"
	CodeMissingRefreshToken ErrorCode = "missing_refresh_token"
	CodeRefreshRevoked      ErrorCode = "refresh_revoked"
	CodeNetwork             ErrorCode = "network"
	CodeUnknown             ErrorCode = "unknown"
)

// TokenError is returned by the Guard when no usable access token could be
// produced for an owner.
type TokenError struct {
	Code    ErrorCode
	OwnerID string
	Err     error
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oauth %s for %s: %v", e.Code, e.OwnerID, e.Err)
	}
	return fmt.Sprintf("oauth %s for %s", e.Code, e.OwnerID)
}

func (e *TokenError) Unwrap() error { return e.Err }

// Terminal reports failures that only the owner can fix by reconnecting.
func (e *TokenError) Terminal() bool {
	switch e.Code {
	case CodeNoTokens, CodeMissingRefreshToken, CodeRefreshRevoked:
		return true
	default:
		return false
	}
}

// AsTokenError unwraps err into a *TokenError if it is one.
func AsTokenError(err error) (*TokenError, bool) {
	var te *TokenError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
