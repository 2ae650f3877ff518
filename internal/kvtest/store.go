package kvtest

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/tidwall/btree"

	"github.com/flatkv/sqladapter/internal/kvapi"
)

// conflictCode implements the minimal storeErrorCode contract errs.IsRetryable
// looks for, so a kvtest conflict classifies the same way a real store's
// not_committed would.
type conflictCode struct{ msg string }

func (e *conflictCode) Error() string       { return e.msg }
func (e *conflictCode) StoreErrorCode() int { return 1020 }

// Store is an in-memory, snapshot-isolated key-value store ordered by
// raw key bytes, backed by a tidwall/btree.Map the way erigon-lib's
// SharedDomains keeps its in-flight writes in a btree2.Map[string,[]byte]
// ahead of being flushed to the real engine.
type Store struct {
	mu        sync.Mutex
	data      *btree.Map[string, []byte]
	keyVers   *btree.Map[string, int64]
	version   int64
	dir       *directory
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		data:    btree.NewMap[string, []byte](32),
		keyVers: btree.NewMap[string, int64](32),
		dir:     newDirectory(),
	}
}

func (s *Store) Begin(ctx context.Context) (kvapi.Tx, error) {
	s.mu.Lock()
	startVersion := s.version
	s.mu.Unlock()
	return &tx{
		store:        s,
		startVersion: startVersion,
		startTime:    now(),
		writes:       map[string][]byte{},
		cleared:      map[string]bool{},
		adds:         map[string]int64{},
	}, nil
}

var _ kvapi.Store = (*Store)(nil)

// now is a seam so tests can avoid relying on wall-clock granularity if
// ever needed; production code just calls time.Now.
var now = time.Now

type readRange struct{ begin, end string }

type tx struct {
	store        *Store
	startVersion int64
	startTime    time.Time

	mu          sync.Mutex
	readKeys    map[string]struct{}
	readRanges  []readRange
	writes      map[string][]byte
	cleared     map[string]bool
	adds        map[string]int64
	rollback    bool
	done        bool
}

var _ kvapi.Tx = (*tx)(nil)

func (t *tx) recordRead(key string) {
	if t.readKeys == nil {
		t.readKeys = map[string]struct{}{}
	}
	t.readKeys[key] = struct{}{}
}

func (t *tx) Get(ctx context.Context, key []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := string(key)
	t.recordRead(k)
	if t.cleared[k] {
		return nil, nil
	}
	if v, ok := t.writes[k]; ok {
		return append([]byte{}, v...), nil
	}
	return t.store.getCommitted(k), nil
}

func (t *tx) Set(ctx context.Context, key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := string(key)
	delete(t.cleared, k)
	t.writes[k] = append([]byte{}, value...)
	return nil
}

func (t *tx) Clear(ctx context.Context, key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := string(key)
	delete(t.writes, k)
	t.cleared[k] = true
	return nil
}

func (t *tx) GetRange(ctx context.Context, begin, end []byte, limit int, reverse bool) (kvapi.RangeIterator, error) {
	t.mu.Lock()
	b, e := string(begin), string(end)
	t.readRanges = append(t.readRanges, readRange{begin: b, end: e})
	kvs := t.store.scanCommitted(b, e)
	// Overlay this transaction's own writes (read-your-writes).
	merged := map[string][]byte{}
	for _, kv := range kvs {
		merged[kv.Key] = kv.Value
	}
	for k, v := range t.writes {
		if k >= b && k < e {
			merged[k] = v
		}
	}
	for k := range t.cleared {
		if k >= b && k < e {
			delete(merged, k)
		}
	}
	t.mu.Unlock()

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sortStrings(keys)
	if reverse {
		reverseStrings(keys)
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]kvapi.KV, 0, len(keys))
	for _, k := range keys {
		out = append(out, kvapi.KV{Key: []byte(k), Value: append([]byte{}, merged[k]...)})
	}
	return &sliceIterator{items: out}, nil
}

func (t *tx) Mutate(ctx context.Context, op kvapi.MutateOp, key []byte, operand []byte) error {
	if op != kvapi.OpAddLittleEndian {
		return &conflictCode{msg: "kvtest: unsupported mutate op"}
	}
	var delta int64
	switch len(operand) {
	case 8:
		delta = int64(binary.LittleEndian.Uint64(operand))
	default:
		return &conflictCode{msg: "kvtest: ADD operand must be 8 bytes"}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.adds[string(key)] += delta
	return nil
}

func (t *tx) Snapshot() kvapi.Snapshot {
	return &snapshot{store: t.store}
}

func (t *tx) StartTime() time.Time       { return t.startTime }
func (t *tx) Directory() kvapi.Directory { return t.store.dir }
func (t *tx) MarkRollbackPending()       { t.mu.Lock(); t.rollback = true; t.mu.Unlock() }

func (t *tx) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.store.mu.Lock()
	t.startVersion = t.store.version
	t.store.mu.Unlock()
	t.startTime = now()
	t.readKeys = nil
	t.readRanges = nil
	t.writes = map[string][]byte{}
	t.cleared = map[string]bool{}
	t.adds = map[string]int64{}
	t.rollback = false
	t.done = false
}

func (t *tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rollback {
		return &conflictCode{msg: "kvtest: transaction is rollback-pending"}
	}
	if t.done {
		return nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for k := range t.readKeys {
		if v, ok := t.store.keyVers.Get(k); ok && v > t.startVersion {
			return &conflictCode{msg: "kvtest: read conflict on key " + k}
		}
	}
	for _, rr := range t.readRanges {
		if t.store.rangeModifiedSinceLocked(rr.begin, rr.end, t.startVersion) {
			return &conflictCode{msg: "kvtest: read conflict on range"}
		}
	}

	t.store.version++
	newVersion := t.store.version
	for k, v := range t.writes {
		t.store.data.Set(k, v)
		t.store.keyVers.Set(k, newVersion)
	}
	for k := range t.cleared {
		t.store.data.Delete(k)
		t.store.keyVers.Set(k, newVersion)
	}
	for k, delta := range t.adds {
		cur := t.store.getCommittedLocked(k)
		var curVal int64
		if len(cur) == 8 {
			curVal = int64(binary.LittleEndian.Uint64(cur))
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(curVal+delta))
		t.store.data.Set(k, buf[:])
		t.store.keyVers.Set(k, newVersion)
	}
	t.done = true
	return nil
}

func (s *Store) getCommitted(k string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCommittedLocked(k)
}

func (s *Store) getCommittedLocked(k string) []byte {
	if v, ok := s.data.Get(k); ok {
		return append([]byte{}, v...)
	}
	return nil
}

func (s *Store) scanCommitted(begin, end string) []kvapi.KV {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []kvapi.KV
	s.data.Ascend(begin, func(k string, v []byte) bool {
		if k >= end {
			return false
		}
		out = append(out, kvapi.KV{Key: []byte(k), Value: append([]byte{}, v...)})
		return true
	})
	return out
}

func (s *Store) rangeModifiedSinceLocked(begin, end string, sinceVersion int64) bool {
	conflict := false
	s.keyVers.Ascend(begin, func(k string, v int64) bool {
		if k >= end {
			return false
		}
		if v > sinceVersion {
			conflict = true
			return false
		}
		return true
	})
	return conflict
}

type snapshot struct{ store *Store }

func (s *snapshot) Get(ctx context.Context, key []byte) ([]byte, error) {
	return s.store.getCommitted(string(key)), nil
}

func (s *snapshot) GetRange(ctx context.Context, begin, end []byte, limit int, reverse bool) (kvapi.RangeIterator, error) {
	kvs := s.store.scanCommitted(string(begin), string(end))
	if reverse {
		for i, j := 0, len(kvs)-1; i < j; i, j = i+1, j-1 {
			kvs[i], kvs[j] = kvs[j], kvs[i]
		}
	}
	if limit > 0 && len(kvs) > limit {
		kvs = kvs[:limit]
	}
	return &sliceIterator{items: kvs}, nil
}

var _ kvapi.Snapshot = (*snapshot)(nil)

type sliceIterator struct {
	items []kvapi.KV
	pos   int
}

func (it *sliceIterator) Next(ctx context.Context) (kvapi.KV, bool, error) {
	if it.pos >= len(it.items) {
		return kvapi.KV{}, false, nil
	}
	kv := it.items[it.pos]
	it.pos++
	return kv, true, nil
}

var _ kvapi.RangeIterator = (*sliceIterator)(nil)
