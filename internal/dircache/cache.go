package dircache

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/Ning0612/adbexplorer/internal/domain"
)

// DefaultCapacity is the number of directory listings kept when none is configured
const DefaultCapacity = 100

// Resolver resolves a normalized remote path to its symlink-free target
type Resolver func(ctx context.Context, p string) (string, error)

// Cache stores directory listings keyed by canonical path.
// Aliases map requested paths to canonical paths; evicting or invalidating
// a canonical line drops every alias pointing at it.
// Cache is not safe for concurrent use; it lives inside a single session.
type Cache struct {
	lines   *simplelru.LRU[string, []domain.Entry]
	aliases map[string]string
	reverse map[string]map[string]struct{}
}

// New creates a cache holding at most capacity listings
func New(capacity int) (*Cache, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	c := &Cache{
		aliases: make(map[string]string),
		reverse: make(map[string]map[string]struct{}),
	}
	lines, err := simplelru.NewLRU[string, []domain.Entry](capacity, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lines = lines
	return c, nil
}

// onEvict drops the aliases of a canonical line removed by eviction or invalidation
func (c *Cache) onEvict(canonical string, _ []domain.Entry) {
	c.dropAliases(canonical)
}

func (c *Cache) dropAliases(canonical string) {
	for alias := range c.reverse[canonical] {
		delete(c.aliases, alias)
	}
	delete(c.reverse, canonical)
}

func (c *Cache) remember(requested, canonical string) {
	c.aliases[requested] = canonical
	set, ok := c.reverse[canonical]
	if !ok {
		set = make(map[string]struct{})
		c.reverse[canonical] = set
	}
	set[requested] = struct{}{}
}

// Canonicalize maps a raw path to its cache key. Known aliases are answered
// without calling resolve; otherwise resolve is asked once and a failure makes
// the normalized path its own canonical key.
func (c *Cache) Canonicalize(ctx context.Context, raw string, resolve Resolver) string {
	requested := Normalize(raw)
	if canonical, ok := c.aliases[requested]; ok {
		return canonical
	}

	canonical := requested
	if resolve != nil {
		if target, err := resolve(ctx, requested); err == nil && strings.TrimSpace(target) != "" {
			canonical = Normalize(strings.TrimSpace(target))
		}
	}

	c.remember(requested, canonical)
	if canonical != requested {
		c.remember(canonical, canonical)
	}
	return canonical
}

// Alias returns the canonical path recorded for a requested path
func (c *Cache) Alias(raw string) (string, bool) {
	canonical, ok := c.aliases[Normalize(raw)]
	return canonical, ok
}

// Get returns the cached listing and marks it most recently used
func (c *Cache) Get(canonical string) ([]domain.Entry, bool) {
	return c.lines.Get(Normalize(canonical))
}

// Contains reports whether a canonical line is cached without touching recency
func (c *Cache) Contains(canonical string) bool {
	return c.lines.Contains(Normalize(canonical))
}

// Put stores a listing, evicting the least recently touched line when full
func (c *Cache) Put(canonical string, entries []domain.Entry) {
	canonical = Normalize(canonical)
	if _, ok := c.aliases[canonical]; !ok {
		c.remember(canonical, canonical)
	}
	c.lines.Add(canonical, entries)
}

// Invalidate removes the line a subsequent list of raw would read,
// together with every alias pointing to it
func (c *Cache) Invalidate(raw string) {
	requested := Normalize(raw)
	canonical, ok := c.aliases[requested]
	if !ok {
		canonical = requested
	}
	c.lines.Remove(canonical)
	c.dropAliases(canonical)

	if requested != canonical {
		c.lines.Remove(requested)
		c.dropAliases(requested)
		delete(c.aliases, requested)
	}
}

// InvalidateParent removes the line of the directory containing itemPath
func (c *Cache) InvalidateParent(itemPath string) {
	c.Invalidate(Parent(itemPath))
}

// InvalidateTree removes the line for raw and every cached line below it
func (c *Cache) InvalidateTree(raw string) {
	requested := Normalize(raw)
	roots := []string{requested}
	if canonical, ok := c.aliases[requested]; ok && canonical != requested {
		roots = append(roots, canonical)
	}
	c.Invalidate(requested)

	for _, key := range c.lines.Keys() {
		for _, root := range roots {
			if root != "/" && IsWithin(key, root) {
				c.lines.Remove(key)
				c.dropAliases(key)
				break
			}
		}
	}
	for alias, canonical := range c.aliases {
		for _, root := range roots {
			if root != "/" && IsWithin(alias, root) {
				delete(c.aliases, alias)
				if set, ok := c.reverse[canonical]; ok {
					delete(set, alias)
				}
				break
			}
		}
	}
}

// Clear drops every line and alias
func (c *Cache) Clear() {
	c.lines.Purge()
	c.aliases = make(map[string]string)
	c.reverse = make(map[string]map[string]struct{})
}

// Len returns the number of cached lines
func (c *Cache) Len() int {
	return c.lines.Len()
}

// Keys returns cached canonical paths from oldest to newest
func (c *Cache) Keys() []string {
	return c.lines.Keys()
}

// Forget invalidates the parent line of itemPath and, when tree is set, the
// item's own line and everything cached below it. When lines are cached,
// unknown spellings are resolved first so a line stored under its canonical
// path is still dropped.
func (c *Cache) Forget(ctx context.Context, itemPath string, tree bool, resolve Resolver) {
	if c.Len() == 0 {
		return
	}
	parent := Parent(itemPath)
	if _, ok := c.aliases[parent]; !ok {
		c.Canonicalize(ctx, parent, resolve)
	}
	c.Invalidate(parent)

	if tree {
		if _, ok := c.aliases[Normalize(itemPath)]; !ok {
			c.Canonicalize(ctx, itemPath, resolve)
		}
		c.InvalidateTree(itemPath)
	}
}
