// Package traverse implements long-running index scans that commit and
// reset periodically to stay under the underlying store's transaction
// size limits, resuming exactly where the previous commit left off.
package traverse

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/flatkv/sqladapter/internal/errs"
	"github.com/flatkv/sqladapter/internal/indexkv"
	"github.com/flatkv/sqladapter/internal/kvapi"
	"github.com/flatkv/sqladapter/internal/schema"
	"github.com/flatkv/sqladapter/internal/session"
	"github.com/flatkv/sqladapter/internal/tuple"
)

// Visitor is called once per row visited, in ascending key order. It
// must tolerate seeing any given key at most once, never twice, even
// across a commit-and-resume boundary.
type Visitor func(row indexkv.Row) error

// Run streams index's entire range forward, calling visitor for every
// row. Whenever wall-clock exceeds the current transaction's start time
// plus scanTimeLimit, the current transaction is committed, the session
// optionally sleeps sleepTime before resuming (ctx cancellation during
// the sleep surfaces as errs.QueryCanceled, the same error Session
// cancellation produces, which Run checks before each transaction's
// scan), and the scan resumes strictly after the last row returned.
func Run(ctx context.Context, store kvapi.Store, log *zap.Logger, index schema.Index, visitor Visitor, scanTimeLimit, sleepTime time.Duration) error {
	sess, err := session.New(ctx, store, log)
	if err != nil {
		return err
	}

	var lastKey tuple.Key
	hasLast := false

	for {
		if err := sess.CheckCanceled(); err != nil {
			return err
		}

		it, err := indexkv.Iter(ctx, sess, index, lastKey, hasLast, false, false)
		if err != nil {
			return err
		}

		deadline := sess.Tx().StartTime().Add(scanTimeLimit)
		exhausted := false
		for {
			row, ok, err := it.Next()
			if err != nil {
				return err
			}
			if !ok {
				exhausted = true
				break
			}
			if err := visitor(row); err != nil {
				return err
			}
			lastKey = row.Key
			hasLast = true
			if time.Now().After(deadline) {
				break
			}
		}

		if err := sess.Commit(ctx); err != nil {
			return err
		}
		if exhausted {
			return nil
		}

		if sleepTime > 0 {
			if err := sleep(ctx, sleepTime); err != nil {
				return err
			}
		}
		sess.Reset()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errs.QueryCanceled
	case <-timer.C:
		return nil
	}
}
