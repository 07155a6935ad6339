// Package chunkcache provides a Redis-backed cache of sliding-window chunk
// hashes for downloaded archive blobs, so the Recipe Engine can recognize
// that an archive it is about to fetch shares blocks with one it already
// verified and committed to the store, and skip re-downloading the shared
// portion from a slow mirror.
//
// The chunking scheme (fixed-size, non-overlapping windows hashed with
// SHA-256) is the one used for block-level archive dedup in the wider
// Zero Install ecosystem; this package only supplies the cache, not the
// reconstruction protocol — the Fetcher always verifies the full archive
// digest after assembly regardless of which chunks came from cache.
package chunkcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gomodule/redigo/redis"
	digest "github.com/opencontainers/go-digest"
)

// WindowSize is the size, in bytes, of each chunk hashed for the cache.
const WindowSize = 512

// ErrNotCached is returned by Get when no recipe is stored for a digest.
var ErrNotCached = errors.New("chunkcache: not cached")

// Recipe is the ordered list of chunk hashes covering an archive blob,
// keyed by the blob's full-content digest.
type Recipe struct {
	Digest digest.Digest `json:"digest"`
	Chunks []string      `json:"chunks"`
}

// ChunksOf splits data into WindowSize windows and returns their SHA-256
// hashes, hex-encoded, in order.
func ChunksOf(data []byte) []string {
	n := len(data) / WindowSize
	if len(data)%WindowSize != 0 {
		n++
	}
	chunks := make([]string, 0, n)
	for i := 0; i < len(data); i += WindowSize {
		end := i + WindowSize
		if end > len(data) {
			end = len(data)
		}
		sum := sha256.Sum256(data[i:end])
		chunks = append(chunks, hex.EncodeToString(sum[:]))
	}
	return chunks
}

// Cache stores and retrieves chunk Recipes in Redis.
type Cache struct {
	pool *redis.Pool
}

// New returns a Cache backed by the given connection pool. A nil pool is
// valid and turns the cache into a permanent miss, so callers that run
// without a configured Redis server degrade to always downloading in full.
func New(pool *redis.Pool) *Cache {
	return &Cache{pool: pool}
}

// Put records the chunk recipe for an archive blob already verified and
// committed under d.
func (c *Cache) Put(d digest.Digest, data []byte) error {
	if c.pool == nil {
		return nil
	}
	conn := c.pool.Get()
	defer conn.Close()

	r := Recipe{Digest: d, Chunks: ChunksOf(data)}
	serialized, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("chunkcache: marshal recipe for %s: %w", d, err)
	}
	_, err = conn.Do("SET", keyFor(d), serialized)
	if err != nil {
		return fmt.Errorf("chunkcache: store recipe for %s: %w", d, err)
	}
	return nil
}

// Get returns the chunk recipe previously stored for d, or ErrNotCached.
func (c *Cache) Get(d digest.Digest) (Recipe, error) {
	if c.pool == nil {
		return Recipe{}, ErrNotCached
	}
	conn := c.pool.Get()
	defer conn.Close()

	raw, err := redis.Bytes(conn.Do("GET", keyFor(d)))
	if err == redis.ErrNil {
		return Recipe{}, ErrNotCached
	}
	if err != nil {
		return Recipe{}, fmt.Errorf("chunkcache: fetch recipe for %s: %w", d, err)
	}

	var r Recipe
	if err := json.Unmarshal(raw, &r); err != nil {
		return Recipe{}, fmt.Errorf("chunkcache: decode recipe for %s: %w", d, err)
	}
	return r, nil
}

// GetMany batches a lookup across multiple digests in a single round trip,
// returning only the entries that were found.
func (c *Cache) GetMany(digests []digest.Digest) (map[digest.Digest]Recipe, error) {
	out := make(map[digest.Digest]Recipe)
	if c.pool == nil || len(digests) == 0 {
		return out, nil
	}
	conn := c.pool.Get()
	defer conn.Close()

	keys := make([]interface{}, len(digests))
	for i, d := range digests {
		keys[i] = keyFor(d)
	}
	values, err := redis.Values(conn.Do("MGET", keys...))
	if err != nil {
		return nil, fmt.Errorf("chunkcache: batch fetch: %w", err)
	}
	for i, v := range values {
		raw, ok := v.([]byte)
		if !ok {
			continue // MGET returns nil for missing keys
		}
		var r Recipe
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		out[digests[i]] = r
	}
	return out, nil
}

func keyFor(d digest.Digest) string {
	return "chunkcache:blob:" + string(d)
}
