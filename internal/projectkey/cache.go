// Package projectkey implements the project-key resolver (C2): an
// in-memory, bounded cache mapping project id to HMAC secret, with
// single-flight coalescing of concurrent cache-miss loads from durable
// storage.
package projectkey

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader fetches a project's secret from durable storage. Implemented by
// *store.Store in production.
type Loader func(ctx context.Context, projectID string) (string, error)

type entry struct {
	projectID string
	secret    string
	loadedAt  time.Time
}

// Cache is a bounded LRU cache of project secrets (see DESIGN.md for why
// this one component is a container/list-backed LRU rather than a
// third-party cache library).
//
// Ownership: read by every ingest-auth request, written only by the
// single-flight refresh path below. Staleness is bounded by ttl, not zero —
// a secret rotation can take up to ttl to propagate to a running cache.
type Cache struct {
	mu       sync.Mutex
	ll       *list.List
	items    map[string]*list.Element
	capacity int
	ttl      time.Duration
	load     Loader
	group    singleflight.Group
}

func New(capacity int, ttl time.Duration, load Loader) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Cache{
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		capacity: capacity,
		ttl:      ttl,
		load:     load,
	}
}

// Secret returns the HMAC secret for projectID, serving from cache when
// fresh and coalescing concurrent misses through a single-flight load.
func (c *Cache) Secret(ctx context.Context, projectID string) (string, error) {
	if secret, ok := c.get(projectID); ok {
		return secret, nil
	}

	v, err, _ := c.group.Do(projectID, func() (any, error) {
		if secret, ok := c.get(projectID); ok {
			return secret, nil
		}
		secret, err := c.load(ctx, projectID)
		if err != nil {
			return "", err
		}
		c.set(projectID, secret)
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Cache) get(projectID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[projectID]
	if !ok {
		return "", false
	}
	e := el.Value.(*entry)
	if c.ttl > 0 && time.Since(e.loadedAt) > c.ttl {
		c.ll.Remove(el)
		delete(c.items, projectID)
		return "", false
	}
	c.ll.MoveToFront(el)
	return e.secret, true
}

func (c *Cache) set(projectID, secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[projectID]; ok {
		el.Value.(*entry).secret = secret
		el.Value.(*entry).loadedAt = time.Now()
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry{projectID: projectID, secret: secret, loadedAt: time.Now()})
	c.items[projectID] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).projectID)
	}
}
