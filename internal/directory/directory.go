// Package directory wraps the KV store's directory layer, resolving
// named schema paths (tables, groups, indexes, sequences) to the opaque
// packed-byte prefixes this adapter prepends to every key it writes.
//
// Resolved prefixes are immutable for a schema generation (erigon-lib's
// kv.Tx/Domain split treats its bucket prefixes the same way: resolved
// once, then reused verbatim for the life of the handle), so a bounded
// LRU in front of the directory layer is a safe read-through cache
// rather than a correctness hazard.
package directory

import (
	"context"
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/flatkv/sqladapter/internal/kvapi"
	"github.com/flatkv/sqladapter/internal/schema"
)

// Well-known top-level directory components, per the adapter's layout:
//
//	<root>/
//	  data/                    live data
//	  dataAltering/            backup of data/ evicted by an in-progress ALTER
//	  alter/                   newly built data, staged out-of-place before promotion
//	  indexCount/              one cell per group index, holds its row count
//	  indexNull/               one cell per nullable-unique index, holds its null-separator counter
const (
	DataDir         = "data"
	DataAlteringDir = "dataAltering"
	AlterDir        = "alter"
	IndexCountDir   = "indexCount"
	IndexNullDir    = "indexNull"
)

// DataPath returns the data/ path for a qualified object name.
func DataPath(qualified ...string) []string {
	return append([]string{DataDir}, qualified...)
}

// AlteringPath returns the dataAltering/ path for a qualified object name.
func AlteringPath(qualified ...string) []string {
	return append([]string{DataAlteringDir}, qualified...)
}

// AlterPath returns the alter/ path for a qualified object name.
func AlterPath(qualified ...string) []string {
	return append([]string{AlterDir}, qualified...)
}

func cacheKey(p []string) string { return path.Join(append([]string{"/"}, p...)...) }

// Client resolves directory paths to StorageDescriptions, caching
// results since prefixes never change once assigned.
type Client struct {
	dir    kvapi.Directory
	cache  *lru.Cache[string, []byte]
	log    *zap.Logger

	// IndexCount and IndexNull are populated by Start and held for the
	// life of the service; they are the "root" directories under which
	// all group-index-count and null-separator cells live.
	IndexCount schema.StorageDescription
	IndexNull  schema.StorageDescription
}

// New builds a Client in front of dir, caching up to cacheSize resolved
// prefixes.
func New(dir kvapi.Directory, cacheSize int, log *zap.Logger) (*Client, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	c, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{dir: dir, cache: c, log: log}, nil
}

// Start resolves/creates the indexCount and indexNull subdirectories and
// caches their packed prefixes, per the service contract: everything
// this adapter needs at startup is pinned once, up front.
func (c *Client) Start(ctx context.Context) error {
	countDesc, err := c.Resolve(ctx, []string{IndexCountDir})
	if err != nil {
		return err
	}
	nullDesc, err := c.Resolve(ctx, []string{IndexNullDir})
	if err != nil {
		return err
	}
	c.IndexCount = countDesc
	c.IndexNull = nullDesc
	c.log.Info("directory layer started",
		zap.Int("indexCountPrefixLen", len(countDesc.Prefix)),
		zap.Int("indexNullPrefixLen", len(nullDesc.Prefix)))
	return nil
}

// Resolve creates path if missing and returns its StorageDescription,
// serving from cache when possible.
func (c *Client) Resolve(ctx context.Context, p []string) (schema.StorageDescription, error) {
	key := cacheKey(p)
	if prefix, ok := c.cache.Get(key); ok {
		return schema.StorageDescription{Path: p, Prefix: prefix}, nil
	}
	prefix, err := c.dir.CreateOrOpen(ctx, p)
	if err != nil {
		return schema.StorageDescription{}, err
	}
	c.cache.Add(key, prefix)
	return schema.StorageDescription{Path: p, Prefix: prefix}, nil
}

// Open resolves path without creating it.
func (c *Client) Open(ctx context.Context, p []string) (schema.StorageDescription, bool, error) {
	key := cacheKey(p)
	if prefix, ok := c.cache.Get(key); ok {
		return schema.StorageDescription{Path: p, Prefix: prefix}, true, nil
	}
	prefix, ok, err := c.dir.Open(ctx, p)
	if err != nil || !ok {
		return schema.StorageDescription{}, false, err
	}
	c.cache.Add(key, prefix)
	return schema.StorageDescription{Path: p, Prefix: prefix}, true, nil
}

// List returns the immediate children of path.
func (c *Client) List(ctx context.Context, p []string) ([]string, error) {
	return c.dir.List(ctx, p)
}

// Move relocates everything under oldPath to newPath and invalidates any
// cached descendants of either path, since after a move those paths
// resolve to different prefixes, or to none.
func (c *Client) Move(ctx context.Context, oldPath, newPath []string) error {
	if err := c.dir.Move(ctx, oldPath, newPath); err != nil {
		return err
	}
	c.invalidateSubtree(oldPath)
	c.invalidateSubtree(newPath)
	return nil
}

// RemoveIfExists deletes path and invalidates its cache entry.
func (c *Client) RemoveIfExists(ctx context.Context, p []string) (bool, error) {
	removed, err := c.dir.RemoveIfExists(ctx, p)
	if err != nil {
		return false, err
	}
	c.invalidateSubtree(p)
	return removed, nil
}

func (c *Client) invalidateSubtree(p []string) {
	prefix := cacheKey(p)
	for _, key := range c.cache.Keys() {
		if key == prefix || strings.HasPrefix(key, prefix+"/") {
			c.cache.Remove(key)
		}
	}
}
