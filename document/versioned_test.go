package document

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Gaburyuu/sqler/internal/sqlerr"
)

func TestUpsertWithVersionInsertsAtZero(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.EnsureVersionedTable(ctx, "accounts"))

	id, version, err := db.UpsertWithVersion(ctx, "accounts", nil, widget{Name: "a", Count: 100}, 0)
	require.NoError(t, err)
	require.Zero(t, version)

	_, gotVersion, ok, err := db.FindWithVersion(ctx, "accounts", id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, gotVersion)
}

func TestUpsertWithVersionCASSucceedsOnMatchingVersion(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	db.EnsureVersionedTable(ctx, "accounts")

	id, _, _ := db.UpsertWithVersion(ctx, "accounts", nil, widget{Name: "a", Count: 100}, 0)

	newID, newVersion, err := db.UpsertWithVersion(ctx, "accounts", &id, widget{Name: "a", Count: 150}, 0)
	require.NoError(t, err)
	require.Equal(t, id, newID)
	require.EqualValues(t, 1, newVersion)

	raw, v, _, _ := db.FindWithVersion(ctx, "accounts", id)
	var w widget
	json.Unmarshal(raw, &w)
	require.Equal(t, 150, w.Count)
	require.EqualValues(t, 1, v)
}

func TestUpsertWithVersionCASRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	db.EnsureVersionedTable(ctx, "accounts")

	id, _, _ := db.UpsertWithVersion(ctx, "accounts", nil, widget{Name: "a", Count: 100}, 0)

	// first writer advances to version 1
	_, _, err := db.UpsertWithVersion(ctx, "accounts", &id, widget{Name: "a", Count: 150}, 0)
	require.NoError(t, err)

	// second writer still thinks it's at version 0: must be rejected
	_, _, err = db.UpsertWithVersion(ctx, "accounts", &id, widget{Name: "a", Count: 200}, 0)
	require.ErrorIs(t, err, sqlerr.ErrStaleVersion)
}

func TestEnsureVersionedTableMigratesUnversionedTable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, db.EnsureTable(ctx, "accounts"))
	id, err := db.Insert(ctx, "accounts", widget{Name: "legacy"})
	require.NoError(t, err)

	require.NoError(t, db.EnsureVersionedTable(ctx, "accounts"))

	version, ok, err := db.CurrentVersion(ctx, "accounts", id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, version)
}
