package agent

import (
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/zeebo/blake3"
)

// Store holds per-configuration cached result sets across requests. It is
// injected into the loop's caller rather than living as a package-level
// singleton; implementations must be safe for concurrent use.
type Store interface {
	Get(configID string) (CachedData, bool)
	Set(configID string, data CachedData)
	Delete(configID string)
}

type lruStore struct {
	lru *expirable.LRU[string, CachedData]
}

// NewLRUStore builds the process-lifetime cache: bounded entries, entries
// expire after ttl. Refreshes safely overwrite.
func NewLRUStore(size int, ttl time.Duration) Store {
	if size <= 0 {
		size = 128
	}
	return &lruStore{lru: expirable.NewLRU[string, CachedData](size, nil, ttl)}
}

func (s *lruStore) Get(configID string) (CachedData, bool) {
	return s.lru.Get(cacheKey(configID))
}

func (s *lruStore) Set(configID string, data CachedData) {
	if data.FetchedAt.IsZero() {
		data.FetchedAt = time.Now().UTC()
	}
	s.lru.Add(cacheKey(configID), data)
}

func (s *lruStore) Delete(configID string) {
	s.lru.Remove(cacheKey(configID))
}

func cacheKey(configID string) string {
	return Fingerprint("session", configID)
}

// Fingerprint derives a stable short hash over the given parts, used for
// cache keys and call dedupe fingerprints.
func Fingerprint(parts ...string) string {
	h := blake3.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
