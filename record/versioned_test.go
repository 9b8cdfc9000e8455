package record

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/Gaburyuu/sqler/adapter"
	"github.com/Gaburyuu/sqler/document"
	"github.com/Gaburyuu/sqler/internal/config"
	"github.com/Gaburyuu/sqler/internal/sqlerr"
)

type Counter struct {
	VersionedMeta
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func newVersionedTestDB(t *testing.T) *document.DB {
	t.Helper()
	db, err := document.OpenInMemory(context.Background(), false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestVersionedTableSaveAssignsInitialVersion(t *testing.T) {
	ctx := context.Background()
	db := newVersionedTestDB(t)
	reg := NewRegistry()
	counters, err := BindVersioned[Counter, *Counter](ctx, db, "counters", reg)
	require.NoError(t, err)

	c := &Counter{Name: "hits", Value: 1}
	require.NoError(t, counters.Save(ctx, c))
	require.Zero(t, c.Version())
	id, ok := c.ID()
	require.True(t, ok)
	require.NotZero(t, id)
}

func TestVersionedTableSaveAdvancesVersionOnUpdate(t *testing.T) {
	ctx := context.Background()
	db := newVersionedTestDB(t)
	reg := NewRegistry()
	counters, _ := BindVersioned[Counter, *Counter](ctx, db, "counters", reg)

	c := &Counter{Name: "hits", Value: 1}
	counters.Save(ctx, c)

	c.Value = 2
	require.NoError(t, counters.Save(ctx, c))
	require.EqualValues(t, 1, c.Version())
}

func TestVersionedTableSaveRejectsStaleWriter(t *testing.T) {
	ctx := context.Background()
	db := newVersionedTestDB(t)
	reg := NewRegistry()
	counters, _ := BindVersioned[Counter, *Counter](ctx, db, "counters", reg)

	c := &Counter{Name: "hits", Value: 1}
	counters.Save(ctx, c)
	id, _ := c.ID()

	// a second in-memory handle reads the same row, holding a stale version
	stale, err := counters.FromID(ctx, id)
	require.NoError(t, err)

	c.Value = 2
	require.NoError(t, counters.Save(ctx, c))

	stale.Value = 99
	err = counters.Save(ctx, stale)
	require.ErrorIs(t, err, sqlerr.ErrStaleVersion)
}

func TestVersionedTableSaveWithRetryMergesNumericDelta(t *testing.T) {
	ctx := context.Background()
	db := newVersionedTestDB(t)
	reg := NewRegistry()
	counters, _ := BindVersioned[Counter, *Counter](ctx, db, "counters", reg)
	counters.Policy.Enabled = true

	c := &Counter{Name: "hits", Value: 10}
	counters.Save(ctx, c)
	id, _ := c.ID()

	snapshot := map[string]any{"value": float64(10)}

	// a concurrent writer bumps value to 15 behind our back
	other, _ := counters.FromID(ctx, id)
	other.Value = 15
	require.NoError(t, counters.Save(ctx, other))

	// our in-hand copy applies a +3 delta on top of its stale view (10 -> 13)
	c.Value = 13
	require.NoError(t, counters.SaveWithRetry(ctx, c, snapshot))

	// expected merged result: latest(15) + (current(13) - snapshot(10)) = 18
	require.Equal(t, 18, c.Value)
}

func TestVersionedTableSaveWithRetryRetriesOnStorageLocked(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "locked.db")

	db, err := document.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	reg := NewRegistry()
	counters, err := BindVersioned[Counter, *Counter](ctx, db, "counters", reg)
	require.NoError(t, err)
	counters.Policy.Enabled = true

	// A second connection to the same file holds a write transaction open
	// for a while, forcing any concurrent writer on a near-zero busy_timeout
	// connection to observe SQLITE_BUSY rather than silently block.
	holder, err := adapter.OpenOnDisk(ctx, path, adapter.OnDiskProfile(5000, 0, 0, 0))
	require.NoError(t, err)
	t.Cleanup(func() { holder.Close() })

	released := make(chan struct{})
	go func() {
		defer close(released)
		holder.WithTx(ctx, func(tx *adapter.Tx) error {
			_, _ = tx.Exec(ctx, `INSERT INTO counters (data, _version) VALUES (json(?), 0)`, `{"name":"filler","value":0}`)
			time.Sleep(80 * time.Millisecond)
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond) // let holder acquire the write lock first

	contester, err := adapter.OpenOnDisk(ctx, path, adapter.OnDiskProfile(1, 0, 0, 0))
	require.NoError(t, err)
	t.Cleanup(func() { contester.Close() })
	contesterDB := document.NewDB(contester)
	contesterReg := NewRegistry()
	contesterTable, err := BindVersioned[Counter, *Counter](ctx, contesterDB, "counters", contesterReg)
	require.NoError(t, err)
	contesterTable.Policy.Enabled = true
	contesterTable.Policy.MaxRetries = 20
	contesterTable.Policy.Backoff = backoff.NewConstantBackOff(15 * time.Millisecond)

	c := &Counter{Name: "hits", Value: 1}
	err = contesterTable.SaveWithRetry(ctx, c, map[string]any{"value": float64(1)})
	require.NoError(t, err, "SaveWithRetry should retry past the transient lock and eventually succeed")

	id, ok := c.ID()
	require.True(t, ok)
	require.NotZero(t, id)

	<-released
}

func TestVersionedTableApplyConfigWiresRetryPolicyAndToggles(t *testing.T) {
	ctx := context.Background()
	db := newVersionedTestDB(t)
	reg := NewRegistry()
	counters, err := BindVersioned[Counter, *Counter](ctx, db, "counters", reg)
	require.NoError(t, err)

	cfg := config.DefaultEngineConfig()
	cfg.RetryOnStale = true
	cfg.RetryMaxAttempts = 7
	cfg.IncludeVersionOnQuery = true
	cfg.JITVersion = true

	counters.ApplyConfig(cfg)
	require.True(t, counters.Policy.Enabled)
	require.Equal(t, 7, counters.Policy.MaxRetries)
	require.True(t, counters.IncludeVersionOnQuery)
	require.True(t, counters.JITVersion)
}

func TestVersionedTableSaveWithRetryDisabledBehavesLikeSave(t *testing.T) {
	ctx := context.Background()
	db := newVersionedTestDB(t)
	reg := NewRegistry()
	counters, _ := BindVersioned[Counter, *Counter](ctx, db, "counters", reg)
	// Policy.Enabled is false by default

	c := &Counter{Name: "hits", Value: 1}
	counters.Save(ctx, c)
	id, _ := c.ID()

	other, _ := counters.FromID(ctx, id)
	other.Value = 2
	counters.Save(ctx, other)

	c.Value = 3
	err := counters.SaveWithRetry(ctx, c, map[string]any{"value": float64(1)})
	require.ErrorIs(t, err, sqlerr.ErrStaleVersion)
}
