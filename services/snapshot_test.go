package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moodlync/EmotionalSync-sub008/models"
)

func newSnapshotFixture(t *testing.T) (*SnapshotGateway, *Ledger) {
	t.Helper()
	db := newTestDB(t)
	ledger, gate := newTestLedger(t, db)
	store, err := NewFSBlobStore(t.TempDir())
	require.NoError(t, err)
	return NewSnapshotGateway(db, ledger, gate, store), ledger
}

func TestExportRestoreRoundTrip(t *testing.T) {
	gw, ledger := newSnapshotFixture(t)
	credit(t, ledger, 1, 100)
	credit(t, ledger, 2, 50)

	meta, err := gw.Export(context.Background(), "nightly")
	require.NoError(t, err)
	require.Equal(t, models.SnapshotStatusCompleted, meta.Status)
	require.NotEmpty(t, meta.Checksum)
	require.Positive(t, meta.SizeBytes)

	// Diverge after the export.
	credit(t, ledger, 1, 900)
	credit(t, ledger, 3, 10)

	require.NoError(t, gw.Restore(context.Background(), meta.ID))

	b1, err := ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	b2, err := ledger.Balance(context.Background(), 2)
	require.NoError(t, err)
	b3, err := ledger.Balance(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, int64(100), b1)
	require.Equal(t, int64(50), b2)
	require.Equal(t, int64(0), b3, "accounts created after the export are gone")

	// The log invariant survives the restore.
	require.Equal(t, b1, logSum(t, gw.db, 1))
	require.Equal(t, int64(1), entryCount(t, gw.db, 1))
}

func TestRestoreKeepsProtectedAccounts(t *testing.T) {
	gw, ledger := newSnapshotFixture(t)
	credit(t, ledger, 1, 100)
	credit(t, ledger, 2, 50)

	meta, err := gw.Export(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, gw.db.Model(&models.Account{}).
		Where("user_id = ?", 2).Update("is_protected", true).Error)
	credit(t, ledger, 2, 25)

	require.NoError(t, gw.Restore(context.Background(), meta.ID))

	b1, err := ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	b2, err := ledger.Balance(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, int64(100), b1, "unprotected account rolled back")
	require.Equal(t, int64(75), b2, "protected account untouched")
	require.Equal(t, int64(2), entryCount(t, gw.db, 2))
}

func TestRestoreRejectsCorruptBlob(t *testing.T) {
	gw, ledger := newSnapshotFixture(t)
	credit(t, ledger, 1, 100)

	meta, err := gw.Export(context.Background(), "")
	require.NoError(t, err)

	store := gw.store.(*FSBlobStore)
	require.NoError(t, store.Put(meta.ID, []byte(`{"version":1,"accounts":[]}`)))

	err = gw.Restore(context.Background(), meta.ID)
	require.ErrorIs(t, err, ErrSnapshotCorrupt)

	// Nothing changed.
	b1, err := ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(100), b1)
}

func TestRestoreRejectsIncompleteSnapshot(t *testing.T) {
	gw, _ := newSnapshotFixture(t)

	meta := models.SnapshotMetadata{
		ID:            "f6b7a9ce-0000-0000-0000-000000000000",
		ComponentList: "accounts,activity_log",
		Status:        models.SnapshotStatusFailed,
	}
	require.NoError(t, gw.db.Create(&meta).Error)

	err := gw.Restore(context.Background(), meta.ID)
	require.ErrorIs(t, err, ErrSnapshotCorrupt)

	err = gw.Restore(context.Background(), "no-such-snapshot")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListReportsSnapshots(t *testing.T) {
	gw, ledger := newSnapshotFixture(t)
	credit(t, ledger, 1, 10)

	_, err := gw.Export(context.Background(), "first")
	require.NoError(t, err)
	_, err = gw.Export(context.Background(), "second")
	require.NoError(t, err)

	metas, err := gw.List(context.Background())
	require.NoError(t, err)
	require.Len(t, metas, 2)
}
