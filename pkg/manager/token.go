package manager

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cloudwisp/wisp/pkg/storage"
	"github.com/cloudwisp/wisp/pkg/types"
)

// DefaultTokenTTL is the fixed expiry horizon for management tokens
const DefaultTokenTTL = 30 * 24 * time.Hour

// TokenIssuer issues and verifies site-scoped management tokens.
// Tokens are persisted in the registry so verification survives a
// restart; expiry at verification time is the only disablement
// mechanism — there is no revocation sweep.
type TokenIssuer struct {
	store storage.Store
	ttl   time.Duration
}

// NewTokenIssuer creates a token issuer with the given expiry horizon
func NewTokenIssuer(store storage.Store, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{store: store, ttl: ttl}
}

// Issue mints a new token bound to one site. The site must be
// registered; tokens are never global.
func (ti *TokenIssuer) Issue(siteID string, scope []string) (*types.ManagementToken, error) {
	if _, err := ti.store.GetSite(siteID); err != nil {
		return nil, err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate token secret: %w", err)
	}

	now := time.Now()
	token := &types.ManagementToken{
		SiteID:    siteID,
		Secret:    hex.EncodeToString(raw),
		Scope:     scope,
		IssuedAt:  now,
		ExpiresAt: now.Add(ti.ttl),
	}

	if err := ti.store.PutToken(token); err != nil {
		return nil, fmt.Errorf("failed to persist token: %w", err)
	}
	return token, nil
}

// Verify reports whether secret is a live token for siteID. Every
// rejection looks the same from the outside: an unknown secret, a
// token for a different site, and an expired token all return false
// with nothing else to observe.
func (ti *TokenIssuer) Verify(siteID, secret string) bool {
	token, err := ti.store.GetToken(secret)
	if err != nil {
		return false
	}
	if token.SiteID != siteID {
		return false
	}
	if token.Expired(time.Now()) {
		return false
	}
	return true
}

// CleanupExpired compacts the token bucket by dropping expired
// entries. Purely housekeeping; Verify never depends on it.
func (ti *TokenIssuer) CleanupExpired() int {
	tokens, err := ti.store.ListTokens("")
	if err != nil {
		return 0
	}

	now := time.Now()
	removed := 0
	for _, token := range tokens {
		if token.Expired(now) {
			if err := ti.store.DeleteToken(token.Secret); err == nil {
				removed++
			}
		}
	}
	return removed
}
