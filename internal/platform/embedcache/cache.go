// Package embedcache puts a Redis read-through cache in front of an embedding port.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
	"github.com/yungbote/graphrag-gateway/internal/platform/logger"
)

const keyPrefix = "emb:"

type Options struct {
	Addr     string
	Password string
	DB       int
	// Namespace separates vectors of different embedding models.
	Namespace string
	TTL       time.Duration
}

type Cache struct {
	inner ports.Embedder
	rdb   *goredis.Client
	ns    string
	ttl   time.Duration
	log   *logger.Logger
}

var _ ports.Embedder = (*Cache)(nil)

// New connects to Redis and verifies it with a ping.
func New(ctx context.Context, log *logger.Logger, inner ports.Embedder, opts Options) (*Cache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if inner == nil {
		return nil, fmt.Errorf("embedcache: inner embedder required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("Embedding cache enabled", "addr", opts.Addr, "ttl", opts.TTL.String())
	return wrap(log, inner, rdb, opts), nil
}

func wrap(log *logger.Logger, inner ports.Embedder, rdb *goredis.Client, opts Options) *Cache {
	return &Cache{
		inner: inner,
		rdb:   rdb,
		ns:    opts.Namespace,
		ttl:   opts.TTL,
		log:   log.With("service", "EmbeddingCache"),
	}
}

func (c *Cache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Embed serves what it can from Redis and sends only the misses upstream. Redis errors
// degrade to a straight pass-through.
func (c *Cache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	cached, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("embedding cache read failed", "error", err)
		cached = nil
	}
	for i := range texts {
		if i < len(cached) {
			if s, ok := cached[i].(string); ok {
				if vec, ok := decode(s); ok {
					out[i] = vec
					continue
				}
			}
		}
		missIdx = append(missIdx, i)
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	missTexts := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
	}
	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, ports.NewBackendError("embedder", "embed", ports.KindMalformed, 0,
			fmt.Errorf("got %d embeddings for %d texts", len(vecs), len(missTexts)))
	}

	pipe := c.rdb.Pipeline()
	for j, i := range missIdx {
		out[i] = vecs[j]
		pipe.Set(ctx, keys[i], encode(vecs[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("embedding cache write failed", "error", err, "count", len(missIdx))
	}
	return out, nil
}

func (c *Cache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return keyPrefix + c.ns + ":" + hex.EncodeToString(sum[:])
}

func encode(vec []float32) []byte {
	b := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

func decode(s string) ([]float32, bool) {
	if len(s) == 0 || len(s)%4 != 0 {
		return nil, false
	}
	b := []byte(s)
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, true
}
