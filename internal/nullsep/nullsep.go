// Package nullsep allocates the monotonic null-separator long that
// disambiguates rows sharing the same key-column values in a
// uniqueAndMayContainNulls index.
package nullsep

import (
	"context"

	"github.com/flatkv/sqladapter/internal/errs"
	"github.com/flatkv/sqladapter/internal/kvapi"
	"github.com/flatkv/sqladapter/internal/schema"
	"github.com/flatkv/sqladapter/internal/tuple"
)

// Next allocates and returns the next null-separator value for index,
// running in a fresh transaction against store so bulk inserts into the
// index never conflict with each other over this cell. The default
// value, when the cell has never been written, is 0; Next's first
// return for a fresh index is therefore 1.
func Next(ctx context.Context, store kvapi.Store, index schema.Index) (int64, error) {
	tx, err := store.Begin(ctx)
	if err != nil {
		return 0, errs.Classify(err)
	}
	key := tuple.PackPrefix(index.NullDesc.Prefix)

	raw, err := tx.Get(ctx, key)
	if err != nil {
		return 0, errs.Classify(err)
	}
	current := int64(0)
	if raw != nil {
		decoded, err := tuple.Unpack(nil, raw)
		if err != nil || decoded.Depth() != 1 || decoded.Segments[0].Kind != tuple.KindInt {
			return 0, errs.NewCorruptValue("null-separator cell is not a single int tuple")
		}
		current = decoded.Segments[0].Int
	}

	next := current + 1
	if err := tx.Set(ctx, key, tuple.Pack(nil, tuple.New(tuple.Int(next)), tuple.NoEdge)); err != nil {
		return 0, errs.Classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, errs.Classify(err)
	}
	return next, nil
}
