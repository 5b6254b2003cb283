// Package cache is the semantic capsule cache: keys are derived from a
// normalized prompt so near-duplicate requests collapse onto one entry
// and never pay the pipeline twice within the TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/devcapsules/codecapsules-sub003/internal/kv"
)

const (
	keyPrefix     = "cache:capsule:"
	maxNormalized = 200
)

// Entry is the cached outcome of a successful generation.
type Entry struct {
	Capsule      map[string]any `json:"capsule"`
	QualityScore float64        `json:"qualityScore"`
	CachedAt     time.Time      `json:"cachedAt"`
}

type Cache struct {
	store kv.Store
	ttl   time.Duration
}

func New(store kv.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{store: store, ttl: ttl}
}

// Normalize collapses a prompt to its cache-equivalent form: trimmed,
// lower-cased, inner whitespace folded, capped in length.
func Normalize(prompt string) string {
	normalized := strings.ToLower(strings.TrimSpace(prompt))
	normalized = strings.Join(strings.Fields(normalized), " ")
	if len(normalized) > maxNormalized {
		normalized = normalized[:maxNormalized]
	}
	return normalized
}

// Key returns the store key for a prompt/language pair.
func Key(prompt, language string) string {
	h := sha256.Sum256([]byte(Normalize(prompt) + "|" + strings.ToLower(strings.TrimSpace(language))))
	return keyPrefix + hex.EncodeToString(h[:])
}

func (c *Cache) Get(ctx context.Context, prompt, language string) (*Entry, bool, error) {
	raw, ok, err := c.store.Get(ctx, Key(prompt, language))
	if err != nil {
		return nil, false, fmt.Errorf("read cache: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// A corrupt entry behaves like a miss; the next success
		// overwrites it.
		return nil, false, nil
	}
	return &entry, true, nil
}

func (c *Cache) Put(ctx context.Context, prompt, language string, entry Entry) error {
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.store.Set(ctx, Key(prompt, language), string(raw), c.ttl); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}
