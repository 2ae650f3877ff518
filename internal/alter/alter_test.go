package alter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flatkv/sqladapter/internal/alter"
	"github.com/flatkv/sqladapter/internal/directory"
	"github.com/flatkv/sqladapter/internal/kvtest"
)

func newDirClient(t *testing.T) *directory.Client {
	t.Helper()
	store := kvtest.New()
	tx, err := store.Begin(context.Background())
	require.NoError(t, err)
	client, err := directory.New(tx.Directory(), 0, nil)
	require.NoError(t, err)
	return client
}

func TestApplyIndexPromotesAlterIntoData(t *testing.T) {
	ctx := context.Background()
	dir := newDirClient(t)

	_, err := dir.Resolve(ctx, directory.AlterPath("ix1", "chunk0"))
	require.NoError(t, err)
	_, err = dir.Resolve(ctx, directory.AlterPath("ix1", "chunk1"))
	require.NoError(t, err)

	err = alter.Apply(ctx, dir, nil, []alter.Rename{{Old: "ix1", New: "ix1"}}, alter.ChangeIndex, nil)
	require.NoError(t, err)

	children, err := dir.List(ctx, directory.DataPath("ix1"))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"chunk0", "chunk1"}, children)

	stillStaged, err := dir.List(ctx, directory.AlterPath("ix1"))
	require.NoError(t, err)
	require.Empty(t, stillStaged)
}

func TestApplyTableDemotesThenPromotes(t *testing.T) {
	ctx := context.Background()
	dir := newDirClient(t)

	_, err := dir.Resolve(ctx, directory.DataPath("t1", "rows"))
	require.NoError(t, err)
	_, err = dir.Resolve(ctx, directory.AlterPath("t1", "rows"))
	require.NoError(t, err)

	err = alter.Apply(ctx, dir, nil, []alter.Rename{{Old: "t1", New: "t1"}}, alter.ChangeTable, nil)
	require.NoError(t, err)

	_, ok, err := dir.Open(ctx, directory.DataPath("t1", "rows"))
	require.NoError(t, err)
	require.True(t, ok)

	backedUp, err := dir.List(ctx, directory.AlteringPath("t1"))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"rows"}, backedUp)
}

type recordingNotifier struct {
	calls [][2]string
}

func (n *recordingNotifier) NameChanged(ctx context.Context, oldName, newName string) error {
	n.calls = append(n.calls, [2]string{oldName, newName})
	return nil
}

func TestApplyMetadataNotifiesWithoutMovingData(t *testing.T) {
	ctx := context.Background()
	dir := newDirClient(t)
	notifier := &recordingNotifier{}

	err := alter.Apply(ctx, dir, nil, []alter.Rename{{Old: "old_name", New: "new_name"}}, alter.ChangeMetadata, notifier)
	require.NoError(t, err)
	require.Equal(t, [][2]string{{"old_name", "new_name"}}, notifier.calls)
}

func TestApplyNoneIsNoop(t *testing.T) {
	ctx := context.Background()
	dir := newDirClient(t)
	err := alter.Apply(ctx, dir, nil, []alter.Rename{{Old: "x", New: "y"}}, alter.ChangeNone, nil)
	require.NoError(t, err)
}
