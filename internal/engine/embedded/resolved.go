package embedded

import "github.com/anacrolix/torrent/metainfo"

// maxResolved bounds how many resolved magnets are kept waiting for an add.
// Flows that are cancelled never come back for theirs.
const maxResolved = 16

// resolvedCache holds magnet info between ResolveMetadata and AddTorrent,
// dropping the oldest entry when full. Engine.mu guards it.
type resolvedCache struct {
	limit int
	order []string
	items map[string]*metainfo.MetaInfo
}

func newResolvedCache(limit int) *resolvedCache {
	return &resolvedCache{limit: limit, items: make(map[string]*metainfo.MetaInfo)}
}

func (c *resolvedCache) get(hash string) *metainfo.MetaInfo {
	return c.items[hash]
}

func (c *resolvedCache) put(hash string, mi *metainfo.MetaInfo) {
	if _, ok := c.items[hash]; !ok {
		c.order = append(c.order, hash)
	}
	c.items[hash] = mi
	for len(c.order) > c.limit {
		delete(c.items, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *resolvedCache) remove(hash string) {
	if _, ok := c.items[hash]; !ok {
		return
	}
	delete(c.items, hash)
	for i, h := range c.order {
		if h == hash {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *resolvedCache) len() int {
	return len(c.items)
}
