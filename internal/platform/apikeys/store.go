package apikeys

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/yungbote/graphrag-gateway/internal/platform/logger"
)

// DBPool is the subset of pgxpool.Pool the store uses.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

type PGStore struct {
	pool DBPool
	log  *logger.Logger
	now  func() time.Time
}

const activeKeysQuery = `SELECT k.key_id::text, k.api_key_hash, k.expires_at
FROM api_keys k
JOIN tenants t ON t.tenant_id = k.tenant_id
WHERE k.key_prefix = $1 AND k.status = 'active' AND t.status = 'active'`

const touchKeyQuery = `UPDATE api_keys SET last_used_at = now() WHERE key_id = $1::uuid`

func NewPGStore(ctx context.Context, log *logger.Logger, databaseURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("apikeys: create pool: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apikeys: ping: %w", err)
	}
	return NewPGStoreWithPool(log, pool), nil
}

// NewPGStoreWithPool is useful for tests with pgxmock.
func NewPGStoreWithPool(log *logger.Logger, pool DBPool) *PGStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &PGStore{pool: pool, log: log.With("service", "APIKeyStore"), now: time.Now}
}

func (s *PGStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *PGStore) Lookup(ctx context.Context, tenantID, token string) (Identity, error) {
	rows, err := s.pool.Query(ctx, activeKeysQuery, "sk-"+tenantID)
	if err != nil {
		return Identity{}, fmt.Errorf("apikeys: query: %w", err)
	}
	type candidate struct {
		id      string
		hash    string
		expires *time.Time
	}
	var cands []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.hash, &c.expires); err != nil {
			rows.Close()
			return Identity{}, fmt.Errorf("apikeys: scan: %w", err)
		}
		cands = append(cands, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Identity{}, fmt.Errorf("apikeys: rows: %w", err)
	}

	now := s.now()
	for _, c := range cands {
		if c.expires != nil && c.expires.Before(now) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(c.hash), []byte(token)) != nil {
			continue
		}
		if _, err := s.pool.Exec(ctx, touchKeyQuery, c.id); err != nil {
			s.log.Warn("api key last_used_at update failed", "key_id", c.id, "error", err)
		}
		return Identity{TenantID: tenantID, KeyID: c.id}, nil
	}
	return Identity{}, ErrInvalidKey
}
