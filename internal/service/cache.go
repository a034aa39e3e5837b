package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/loog-project/nmldiff/pkg/diffmap"
)

const (
	cacheSweepEvery = 10 * time.Second // janitor wake-up
	ttlBase         = 40 * time.Second // cold entry expires after this
	ttlHitBonus     = 4 * time.Second  // each extra read adds this much TTL
	maxCachedTrees  = 1_000            // hard memory cap
)

// cachedTree is a loaded document together with the file state it was read
// from.
type cachedTree struct {
	tree     diffmap.Tree
	modTime  time.Time
	size     int64
	lastRead int64 // unix-nsec; atomic
	hitCount uint32
}

// treeCache keeps loaded trees by path. Entries go stale as soon as the file's
// mtime or size changes.
type treeCache struct {
	mu     sync.RWMutex
	data   map[string]*cachedTree
	stopCh chan struct{}
	once   sync.Once
}

// newTreeCache returns a new cache with a janitor that evicts cold entries.
func newTreeCache() *treeCache {
	c := &treeCache{
		data:   make(map[string]*cachedTree, 16),
		stopCh: make(chan struct{}),
	}
	go c.janitor()
	return c
}

// close stops the janitor and clears the cache.
func (c *treeCache) close() {
	c.once.Do(func() { close(c.stopCh) })
	c.mu.Lock()
	c.data = make(map[string]*cachedTree)
	c.mu.Unlock()
}

func (c *treeCache) evictCold(now time.Time) {
	c.mu.Lock()
	for k, e := range c.data {
		age := now.Sub(time.Unix(0, atomic.LoadInt64(&e.lastRead)))
		ttl := ttlBase + time.Duration(atomic.LoadUint32(&e.hitCount))*ttlHitBonus
		if age > ttl {
			delete(c.data, k)
		} else {
			// decay hit counter so “old” popularity fades
			if hc := atomic.LoadUint32(&e.hitCount); hc > 0 {
				atomic.StoreUint32(&e.hitCount, hc/2)
			}
		}
	}
	c.mu.Unlock()
}

func (c *treeCache) janitor() {
	ticker := time.NewTicker(cacheSweepEvery)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			c.evictCold(now)
		case <-c.stopCh:
			return
		}
	}
}

// get returns a private copy of the cached tree, or nil on a miss or when the
// file changed since it was cached.
func (c *treeCache) get(path string, modTime time.Time, size int64) diffmap.Tree {
	c.mu.RLock()
	entry := c.data[path]
	c.mu.RUnlock()

	if entry == nil || !entry.modTime.Equal(modTime) || entry.size != size {
		return nil
	}

	atomic.AddUint32(&entry.hitCount, 1)
	atomic.StoreInt64(&entry.lastRead, time.Now().UnixNano())
	return diffmap.Clone(entry.tree)
}

// set stores a copy of tree.
func (c *treeCache) set(path string, tree diffmap.Tree, modTime time.Time, size int64) {
	entry := &cachedTree{
		tree:     diffmap.Clone(tree),
		modTime:  modTime,
		size:     size,
		lastRead: time.Now().UnixNano(),
	}
	c.mu.Lock()
	if _, exists := c.data[path]; exists || len(c.data) < maxCachedTrees {
		c.data[path] = entry
	}
	c.mu.Unlock()
}

func (c *treeCache) invalidate(path string) {
	c.mu.Lock()
	delete(c.data, path)
	c.mu.Unlock()
}

func (c *treeCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
