// Package alter implements the schema-alter rename/move orchestrator:
// atomically relocating a table/index/group's on-disk data between the
// data/, dataAltering/ and alter/ subspaces, keyed by how deep the
// alteration goes.
package alter

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flatkv/sqladapter/internal/directory"
	"github.com/flatkv/sqladapter/internal/errs"
)

// ChangeLevel is the granularity of a schema alteration, from name-only
// through full table/group rebuild.
type ChangeLevel int

const (
	ChangeNone ChangeLevel = iota
	ChangeMetadata
	ChangeMetadataNotNull
	ChangeIndex
	ChangeTable
	ChangeGroup
)

func (c ChangeLevel) String() string {
	switch c {
	case ChangeNone:
		return "NONE"
	case ChangeMetadata:
		return "METADATA"
	case ChangeMetadataNotNull:
		return "METADATA_NOT_NULL"
	case ChangeIndex:
		return "INDEX"
	case ChangeTable:
		return "TABLE"
	case ChangeGroup:
		return "GROUP"
	default:
		return "UNKNOWN"
	}
}

// Rename is one oldName -> newName entry of an alter's rename map.
type Rename struct {
	Old string
	New string
}

// SchemaNotifier is notified of a pure name change with no data move.
type SchemaNotifier interface {
	NameChanged(ctx context.Context, oldName, newName string) error
}

// Apply runs the rename/move protocol for renames at level, all within
// the caller's transaction so the whole alter is atomic with whatever
// schema swap the caller performs around it.
//
// INDEX promotes alter/new -> data/new: an index build happens
// out-of-place under alter/, then is promoted into place once complete.
// TABLE and GROUP instead demote the current data/new -> dataAltering/new
// (preserving a backup in case the surrounding DDL statement rolls back)
// before promoting alter/new -> data/new. This asymmetry is deliberate:
// index builds never touch live data until promotion, whereas table/group
// alters rebuild in place with a backup.
func Apply(ctx context.Context, dir *directory.Client, log *zap.Logger, renames []Rename, level ChangeLevel, notifier SchemaNotifier) error {
	if log == nil {
		log = zap.NewNop()
	}
	correlationID := uuid.New()

	switch level {
	case ChangeNone:
		return nil

	case ChangeMetadata, ChangeMetadataNotNull:
		for _, r := range renames {
			if r.Old == r.New {
				continue
			}
			log.Info("alter: metadata rename",
				zap.String("correlationID", correlationID.String()),
				zap.String("changeLevel", level.String()),
				zap.String("old", r.Old), zap.String("new", r.New))
			if notifier != nil {
				if err := notifier.NameChanged(ctx, r.Old, r.New); err != nil {
					return err
				}
			}
		}
		return nil

	case ChangeIndex:
		for _, r := range renames {
			if err := promote(ctx, dir, log, correlationID.String(), r.New); err != nil {
				return err
			}
		}
		return nil

	case ChangeTable, ChangeGroup:
		for _, r := range renames {
			if err := demoteThenPromote(ctx, dir, log, correlationID.String(), r.New); err != nil {
				return err
			}
		}
		return nil

	default:
		return errs.NewInternalInvariantViolation("unknown ChangeLevel in alter orchestrator")
	}
}

// promote moves every child subpath of alter/name into data/name, then
// removes the now-empty alter/name.
func promote(ctx context.Context, dir *directory.Client, log *zap.Logger, correlationID, name string) error {
	altered := directory.AlterPath(name)
	children, err := dir.List(ctx, altered)
	if err != nil {
		return err
	}
	for _, child := range children {
		src := directory.AlterPath(name, child)
		dst := directory.DataPath(name, child)
		if err := dir.Move(ctx, src, dst); err != nil {
			return err
		}
	}
	if _, err := dir.RemoveIfExists(ctx, altered); err != nil {
		return err
	}
	log.Info("alter: promoted index build",
		zap.String("correlationID", correlationID),
		zap.String("name", name), zap.Int("children", len(children)))
	return nil
}

// demoteThenPromote backs up every child subpath of data/name into
// dataAltering/name (skipping any child already backed up from a prior,
// interrupted attempt), removes the now-empty data/name, then promotes
// alter/name into its place.
func demoteThenPromote(ctx context.Context, dir *directory.Client, log *zap.Logger, correlationID, name string) error {
	live := directory.DataPath(name)
	backup := directory.AlteringPath(name)

	children, err := dir.List(ctx, live)
	if err != nil {
		return err
	}
	alreadyBackedUp := map[string]bool{}
	if existing, err := dir.List(ctx, backup); err == nil {
		for _, c := range existing {
			alreadyBackedUp[c] = true
		}
	}
	for _, child := range children {
		if alreadyBackedUp[child] {
			continue
		}
		if err := dir.Move(ctx, directory.DataPath(name, child), directory.AlteringPath(name, child)); err != nil {
			return err
		}
	}
	if _, err := dir.RemoveIfExists(ctx, live); err != nil {
		return err
	}
	if err := dir.Move(ctx, directory.AlterPath(name), directory.DataPath(name)); err != nil {
		return err
	}
	log.Info("alter: demoted live data and promoted rebuild",
		zap.String("correlationID", correlationID),
		zap.String("name", name), zap.Int("backedUpChildren", len(children)))
	return nil
}
