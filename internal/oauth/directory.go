package oauth

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Directory answers which user owns the calendar credential for an email.
type Directory interface {
	CalendarOwner(ctx context.Context, email string) (ownerID string, ok bool, err error)
}

type directoryEntry struct {
	ownerID string
	ok      bool
}

// CachedDirectory remembers lookups, including misses, for a short TTL.
// Errors are never cached. A credential connected or revoked inside the TTL
// is seen late by at most that long.
type CachedDirectory struct {
	next  Directory
	cache *expirable.LRU[string, directoryEntry]
}

func NewCachedDirectory(next Directory, size int, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		next:  next,
		cache: expirable.NewLRU[string, directoryEntry](size, nil, ttl),
	}
}

func (d *CachedDirectory) CalendarOwner(ctx context.Context, email string) (string, bool, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if e, hit := d.cache.Get(key); hit {
		return e.ownerID, e.ok, nil
	}
	owner, ok, err := d.next.CalendarOwner(ctx, key)
	if err != nil {
		return "", false, err
	}
	d.cache.Add(key, directoryEntry{ownerID: owner, ok: ok})
	return owner, ok, nil
}

// Forget drops a cached answer, e.g. right after a credential changes.
func (d *CachedDirectory) Forget(email string) {
	d.cache.Remove(strings.ToLower(strings.TrimSpace(email)))
}
