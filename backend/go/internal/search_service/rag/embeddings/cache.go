package embeddings

import (
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/pkg/logger"
	"Neurologix/backend/go/pkg/util"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// DefaultCacheTTL is how long a cached query embedding stays valid.
	DefaultCacheTTL = 24 * time.Hour
	// DefaultLocalCapacity bounds the in-process cache.
	DefaultLocalCapacity = 1024
)

// CacheOption configures a CachedModel.
type CacheOption func(*CachedModel)

// WithRedis stores vectors in Redis in addition to the in-process cache.
func WithRedis(client *redis.Client) CacheOption {
	return func(c *CachedModel) {
		c.redis = client
	}
}

// WithTTL sets the expiry of cached vectors.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CachedModel) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(log *logger.Logger) CacheOption {
	return func(c *CachedModel) {
		c.log = log
	}
}

// CachedModel caches embeddings by model name and text. Lookups go to the
// in-process LRU first, then Redis, then the wrapped model. Cache errors
// never fail a request.
type CachedModel struct {
	next      interfaces.EmbeddingModel
	namespace string
	redis     *redis.Client
	local     *util.LRUCache[string, []float32]
	ttl       time.Duration
	log       *logger.Logger
}

var _ interfaces.EmbeddingModel = (*CachedModel)(nil)

// NewCachedModel wraps next. namespace should identify the provider and model
// so vectors of different models never mix.
func NewCachedModel(next interfaces.EmbeddingModel, namespace string, opts ...CacheOption) (*CachedModel, error) {
	c := &CachedModel{
		next:      next,
		namespace: namespace,
		ttl:       DefaultCacheTTL,
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	local, err := util.NewLRU[string, []float32](DefaultLocalCapacity, c.ttl)
	if err != nil {
		return nil, err
	}
	c.local = local
	return c, nil
}

// Embed returns cached vectors where possible and embeds the rest in one call.
func (c *CachedModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []int
	for i, t := range texts {
		key := c.key(t)
		if vec, ok := c.local.Get(key); ok {
			out[i] = vec
			continue
		}
		if vec, ok := c.fromRedis(ctx, key); ok {
			c.local.Put(key, vec)
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, 0, len(missing))
	for _, i := range missing {
		pending = append(pending, texts[i])
	}
	vecs, err := c.next.Embed(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(pending) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(vecs), len(pending))
	}
	for j, i := range missing {
		out[i] = vecs[j]
		key := c.key(texts[i])
		c.local.Put(key, vecs[j])
		c.toRedis(ctx, key, vecs[j])
	}
	return out, nil
}

func (c *CachedModel) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embedding:" + c.namespace + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedModel) fromRedis(ctx context.Context, key string) ([]float32, bool) {
	if c.redis == nil {
		return nil, false
	}
	raw, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn(fmt.Sprintf("embedding cache read failed: %v", err))
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		c.log.Warn(fmt.Sprintf("embedding cache entry %s is corrupt: %v", key, err))
		return nil, false
	}
	return vec, true
}

func (c *CachedModel) toRedis(ctx context.Context, key string, vec []float32) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn(fmt.Sprintf("embedding cache write failed: %v", err))
	}
}
