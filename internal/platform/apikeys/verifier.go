// Package apikeys resolves request API keys to tenants. Keys shaped sk-{tenant}-{secret}
// are checked against bcrypt hashes in Postgres; any other key must be a configured legacy
// key and maps to the "default" tenant.
package apikeys

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
)

const DefaultTenant = "default"

var (
	ErrMissingKey = errors.New("missing API key")
	ErrInvalidKey = errors.New("invalid or expired API key")
)

type Identity struct {
	TenantID string `json:"tenant_id"`
	KeyID    string `json:"key_id,omitempty"`
	Legacy   bool   `json:"legacy"`
}

// TenantStore looks up sk- keys. Lookup returns ErrInvalidKey when nothing matches.
type TenantStore interface {
	Lookup(ctx context.Context, tenantID, token string) (Identity, error)
}

type Verifier struct {
	legacy [][]byte
	store  TenantStore
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cachedIdentity
}

type cachedIdentity struct {
	id      Identity
	expires time.Time
}

// NewVerifier accepts a nil store, in which case sk- keys are only honoured if listed as
// legacy keys.
func NewVerifier(legacyKeys []string, store TenantStore) *Verifier {
	v := &Verifier{store: store, ttl: time.Minute, now: time.Now, cache: map[string]cachedIdentity{}}
	for _, k := range legacyKeys {
		if k = strings.TrimSpace(k); k != "" {
			v.legacy = append(v.legacy, []byte(k))
		}
	}
	return v
}

// Enabled reports whether any key source is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && (len(v.legacy) > 0 || v.store != nil)
}

func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingKey
	}
	if v.isLegacy(token) {
		return Identity{TenantID: DefaultTenant, Legacy: true}, nil
	}

	tenant, ok := tenantOf(token)
	if !ok || v.store == nil {
		return Identity{}, ErrInvalidKey
	}

	ck := cacheKey(token)
	if id, ok := v.cached(ck); ok {
		return id, nil
	}
	id, err := v.store.Lookup(ctx, tenant, token)
	if err != nil {
		return Identity{}, err
	}
	v.mu.Lock()
	v.cache[ck] = cachedIdentity{id: id, expires: v.now().Add(v.ttl)}
	v.mu.Unlock()
	return id, nil
}

func (v *Verifier) isLegacy(token string) bool {
	b := []byte(token)
	for _, k := range v.legacy {
		if subtle.ConstantTimeCompare(k, b) == 1 {
			return true
		}
	}
	return false
}

// Bcrypt at production cost is slow, so verified keys are remembered briefly.
func (v *Verifier) cached(key string) (Identity, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.cache[key]
	if !ok {
		return Identity{}, false
	}
	if v.now().After(c.expires) {
		delete(v.cache, key)
		return Identity{}, false
	}
	return c.id, true
}

// tenantOf parses sk-{tenant}-{secret}.
func tenantOf(token string) (string, bool) {
	if !strings.HasPrefix(token, "sk-") {
		return "", false
	}
	parts := strings.SplitN(token, "-", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", false
	}
	return parts[1], true
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
