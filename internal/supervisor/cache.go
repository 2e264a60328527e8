package supervisor

import (
	"container/list"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shannon-mcp/shannon-mcp/internal/config"
	"github.com/shannon-mcp/shannon-mcp/internal/logging"
	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

// cacheEntry is the data-only record kept for a session evicted from the
// live map (spec §4.5 "Session caching", Open Question 3: never a live
// process handle).
type cacheEntry struct {
	ID       string
	Phase    types.Phase
	Snapshot types.Snapshot
	Size     int64
	Expires  time.Time
}

// sessionCache is an in-process LRU bounded by both entry count and total
// byte size. Each entry's snapshot is also written to a sidecar file in the
// session cache directory and removed on eviction; the cache never reads
// those files back, so after a daemon restart it starts empty.
type sessionCache struct {
	mu         sync.Mutex
	dir        string
	order      *list.List
	elems      map[string]*list.Element
	maxEntries int
	maxBytes   int64
	curBytes   int64
}

func newSessionCache(paths *config.Paths, maxEntries int, maxBytes int64) *sessionCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	dir := paths.SessionCacheDir()
	_ = os.MkdirAll(dir, 0o755)
	return &sessionCache{
		dir:        dir,
		order:      list.New(),
		elems:      make(map[string]*list.Element),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
	}
}

// Put records snap under sessionID with the given TTL, evicting the least
// recently touched entries until both bounds are satisfied.
func (c *sessionCache) Put(sessionID string, phase types.Phase, snap types.Snapshot, ttl time.Duration) {
	raw, err := json.Marshal(snap)
	if err != nil {
		logging.Warn().Err(err).Str("sessionID", sessionID).Msg("supervisor: failed to marshal session snapshot for cache")
		return
	}
	entry := &cacheEntry{ID: sessionID, Phase: phase, Snapshot: snap, Size: int64(len(raw)), Expires: time.Now().Add(ttl)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.elems[sessionID]; ok {
		old := el.Value.(*cacheEntry)
		c.curBytes -= old.Size
		el.Value = entry
		c.order.MoveToFront(el)
	} else {
		c.elems[sessionID] = c.order.PushFront(entry)
	}
	c.curBytes += entry.Size

	if err := os.WriteFile(c.sidecarPath(sessionID), raw, 0o644); err != nil {
		logging.Warn().Err(err).Str("sessionID", sessionID).Msg("supervisor: failed to persist session cache sidecar")
	}

	c.evictLocked()
}

// Get returns a cached entry, refreshing its recency, or false if absent or
// expired. Expired entries are removed on access.
func (c *sessionCache) Get(sessionID string) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.elems[sessionID]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.Expires) {
		c.removeLocked(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry, true
}

func (c *sessionCache) evictLocked() {
	for c.order.Len() > c.maxEntries || c.curBytes > c.maxBytes {
		back := c.order.Back()
		if back == nil {
			return
		}
		c.removeLocked(back)
	}
}

func (c *sessionCache) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	c.order.Remove(el)
	delete(c.elems, entry.ID)
	c.curBytes -= entry.Size
	_ = os.Remove(c.sidecarPath(entry.ID))
}

func (c *sessionCache) sidecarPath(sessionID string) string {
	return filepath.Join(c.dir, sessionID+".json")
}
