// Package sequence implements the cached, batched allocation of
// monotonic longs per sequence. A process-wide map of SequenceCaches,
// keyed by each sequence's unique storage key, amortizes the cost of a
// KV round trip over cacheSize consecutive callers.
package sequence

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/flatkv/sqladapter/internal/errs"
	"github.com/flatkv/sqladapter/internal/kvapi"
	"github.com/flatkv/sqladapter/internal/schema"
	"github.com/flatkv/sqladapter/internal/tuple"
)

// cache is one sequence's in-process batch state: value is the next raw
// tick to issue; the batch is exhausted once value reaches batchEnd.
type cache struct {
	mu        sync.Mutex
	value     int64
	batchEnd  int64
	populated bool
}

// Cache is the process-wide, concurrent registry of per-sequence caches,
// keyed by Sequence.UniqueKey(). The map-level lock only guards
// insert/lookup of entries; each entry then holds its own lock across a
// refill, so concurrent callers for different sequences never block on
// one another.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cache

	// peek collapses concurrent Current calls that race to read the same
	// not-yet-populated sequence cell: only one goroutine hits the store,
	// the rest share its result instead of all issuing the same read.
	peek singleflight.Group
}

// NewCache creates an empty process-wide sequence cache registry.
func NewCache() *Cache {
	return &Cache{entries: map[string]*cache{}}
}

func (c *Cache) entryFor(seq schema.Sequence) *cache {
	key := seq.UniqueKey()
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e
	}
	e = &cache{}
	c.entries[key] = e
	return e
}

// Forget drops seq's cache entry, e.g. on DROP SEQUENCE.
func (c *Cache) Forget(seq schema.Sequence) {
	c.mu.Lock()
	delete(c.entries, seq.UniqueKey())
	c.mu.Unlock()
}

// Next returns the next real value for seq, refilling the batch from
// store in a fresh transaction when the in-process cache is exhausted.
func (c *Cache) Next(ctx context.Context, store kvapi.Store, seq schema.Sequence) (int64, error) {
	e := c.entryFor(seq)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.populated || e.value >= e.batchEnd {
		if err := e.refillLocked(ctx, store, seq); err != nil {
			return 0, err
		}
	}
	raw := e.value
	e.value++
	return seq.RealValue(raw), nil
}

// Current peeks at seq's next raw value without consuming it (the cached
// value if populated, else the persisted cell decoded directly) and
// returns it mapped through seq.RealValue.
func (c *Cache) Current(ctx context.Context, store kvapi.Store, seq schema.Sequence) (int64, error) {
	e := c.entryFor(seq)
	e.mu.Lock()
	if e.populated {
		v := e.value
		e.mu.Unlock()
		return seq.RealValue(v), nil
	}
	e.mu.Unlock()

	v, err, _ := c.peek.Do(seq.UniqueKey(), func() (any, error) {
		tx, err := store.Begin(ctx)
		if err != nil {
			return nil, errs.Classify(err)
		}
		raw, err := tx.Get(ctx, tuple.PackPrefix(seq.Desc.Prefix))
		if err != nil {
			return nil, errs.Classify(err)
		}
		start := int64(1)
		if raw != nil {
			decoded, err := decodeLong(raw)
			if err != nil {
				return nil, err
			}
			start = decoded
		}
		return start, nil
	})
	if err != nil {
		return 0, err
	}
	return seq.RealValue(v.(int64)), nil
}

// refillLocked runs the refill protocol in a fresh transaction, never
// the caller's own: the persisted "next batch start" cell is advanced by
// cacheSize before any tick in the new batch is handed out, so retries of
// the outer statement never repeat a tick already issued to a caller
// that committed. A failed refill leaves the cache entry untouched so
// the next call retries from scratch.
func (e *cache) refillLocked(ctx context.Context, store kvapi.Store, seq schema.Sequence) error {
	tx, err := store.Begin(ctx)
	if err != nil {
		return errs.Classify(err)
	}
	key := tuple.PackPrefix(seq.Desc.Prefix)
	raw, err := tx.Get(ctx, key)
	if err != nil {
		return errs.Classify(err)
	}
	start := int64(1)
	if raw != nil {
		decoded, err := decodeLong(raw)
		if err != nil {
			return err
		}
		start = decoded
	}
	if err := tx.Set(ctx, key, encodeLong(start+seq.CacheSize)); err != nil {
		return errs.Classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Classify(err)
	}
	e.value = start
	e.batchEnd = start + seq.CacheSize
	e.populated = true
	return nil
}

func encodeLong(v int64) []byte {
	return tuple.Pack(nil, tuple.New(tuple.Int(v)), tuple.NoEdge)
}

func decodeLong(raw []byte) (int64, error) {
	decoded, err := tuple.Unpack(nil, raw)
	if err != nil || decoded.Depth() != 1 || decoded.Segments[0].Kind != tuple.KindInt {
		return 0, errs.NewCorruptValue("sequence cell is not a single int tuple")
	}
	return decoded.Segments[0].Int, nil
}
