package oauth

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Store persists credentials. UpdateIfUnchanged applies c only when the
// stored record still carries prevUpdatedAt.
type Store interface {
	Get(ctx context.Context, ownerID string) (Credential, error)
	UpdateIfUnchanged(ctx context.Context, c Credential, prevUpdatedAt time.Time) (bool, error)
	Delete(ctx context.Context, ownerID string) error
}

type RefreshResult struct {
	AccessToken  string
	Expiry       time.Time
	RefreshToken string
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (RefreshResult, error)
}

const DefaultSkew = 60 * time.Second

// Guard hands out access tokens that will not expire within skew.
type Guard struct {
	store     Store
	refresher Refresher
	skew      time.Duration
	log       *slog.Logger
	clock     func() time.Time
}

func NewGuard(store Store, refresher Refresher, skew time.Duration, log *slog.Logger) *Guard {
	if skew <= 0 {
		skew = DefaultSkew
	}
	if log == nil {
		log = slog.Default()
	}
	return &Guard{store: store, refresher: refresher, skew: skew, log: log, clock: time.Now}
}

// AccessToken returns a usable access token for ownerID, refreshing it when
// needed. Failures that stem from the credential itself are *TokenError;
// storage failures are returned as is.
func (g *Guard) AccessToken(ctx context.Context, ownerID string) (string, error) {
	cred, err := g.store.Get(ctx, ownerID)
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			return "", &TokenError{Code: CodeNoTokens, OwnerID: ownerID}
		}
		return "", err
	}

	now := g.clock()
	if cred.AccessToken != "" && !cred.Expiry.IsZero() && cred.Expiry.After(now.Add(g.skew)) {
		return cred.AccessToken, nil
	}

	if cred.RefreshToken == "" {
		g.drop(ctx, ownerID, CodeMissingRefreshToken)
		return "", &TokenError{Code: CodeMissingRefreshToken, OwnerID: ownerID}
	}

	res, err := g.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrRevoked):
			g.drop(ctx, ownerID, CodeRefreshRevoked)
			return "", &TokenError{Code: CodeRefreshRevoked, OwnerID: ownerID, Err: err}
		case errors.Is(err, ErrTransient):
			return "", &TokenError{Code: CodeNetwork, OwnerID: ownerID, Err: err}
		default:
			return "", &TokenError{Code: CodeUnknown, OwnerID: ownerID, Err: err}
		}
	}

	next := cred
	next.AccessToken = res.AccessToken
	next.Expiry = res.Expiry
	if res.RefreshToken != "" {
		next.RefreshToken = res.RefreshToken
	}
	// Postgres keeps microseconds; the stored value must round-trip for the
	// next conditional update to match.
	next.UpdatedAt = now.UTC().Truncate(time.Microsecond)

	ok, err := g.store.UpdateIfUnchanged(ctx, next, cred.UpdatedAt)
	if err != nil {
		g.log.Warn("oauth token persist failed", "owner_id", ownerID, "err", err)
		return res.AccessToken, nil
	}
	if ok {
		return res.AccessToken, nil
	}

	// A concurrent refresh won; prefer its token.
	latest, err := g.store.Get(ctx, ownerID)
	if err == nil && latest.AccessToken != "" {
		return latest.AccessToken, nil
	}
	return res.AccessToken, nil
}

func (g *Guard) drop(ctx context.Context, ownerID string, code ErrorCode) {
	if err := g.store.Delete(ctx, ownerID); err != nil && !errors.Is(err, ErrNoCredential) {
		g.log.Error("oauth credential delete failed", "owner_id", ownerID, "code", code, "err", err)
		return
	}
	g.log.Warn("oauth credential removed", "owner_id", ownerID, "code", code)
}
