package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Gaburyuu/sqler/document"
	"github.com/Gaburyuu/sqler/internal/config"
	"github.com/Gaburyuu/sqler/internal/sqlerr"
	"github.com/Gaburyuu/sqler/query"
)

// VersionedEntity is implemented by any type embedding VersionedMeta.
type VersionedEntity interface {
	Entity
	versionedMeta() *VersionedMeta
}

func (v *VersionedMeta) versionedMeta() *VersionedMeta { return v }

type versionedEntityPtr[T any] interface {
	*T
	VersionedEntity
}

// RetryPolicy governs the versioned table's behavior on a stale-version
// conflict: how many times to retry, the backoff schedule between attempts,
// and whether to attempt a numeric-delta merge against the pre-mutation
// snapshot before retrying (see SPEC_FULL.md §4.8).
type RetryPolicy struct {
	Enabled            bool
	MaxRetries         int
	Backoff            backoff.BackOff
	MergeNumericDeltas bool
}

// DefaultRetryPolicy matches the environment-toggle defaults described in
// SPEC_FULL.md §6 (retry disabled unless explicitly turned on).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Enabled:            false,
		MaxRetries:         3,
		Backoff:            backoff.NewConstantBackOff(25 * time.Millisecond),
		MergeNumericDeltas: true,
	}
}

// RetryPolicyFromConfig builds a RetryPolicy from cfg's RetryOnStale/
// RetryMaxAttempts toggles (SPEC_FULL.md §4.8: "configurable via
// config.EngineConfig"), keeping DefaultRetryPolicy's backoff schedule and
// numeric-merge behavior.
func RetryPolicyFromConfig(cfg config.EngineConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Enabled = cfg.RetryOnStale
	if cfg.RetryMaxAttempts > 0 {
		p.MaxRetries = cfg.RetryMaxAttempts
	}
	return p
}

// VersionedTable is the record.Table counterpart for optimistic-locking
// record types: every Save runs as a compare-and-swap against the stored
// _version, with an optional retry-and-merge policy on conflict.
type VersionedTable[T any, PT versionedEntityPtr[T]] struct {
	db     *document.DB
	name   string
	reg    *Registry
	Policy RetryPolicy

	// IncludeVersionOnQuery mirrors config.EngineConfig.IncludeVersionOnQuery:
	// when true, All rehydrates every row through FromID to pick up the
	// authoritative version; when false, it re-reads each row's payload and
	// leaves the instance's version at its unhydrated zero value.
	IncludeVersionOnQuery bool

	// JITVersion mirrors config.EngineConfig.JITVersion: when true, Save
	// re-reads the stored version immediately before a CAS write on a
	// record that already has an id, instead of trusting whatever version
	// the in-memory instance was last hydrated with.
	JITVersion bool
}

// ApplyConfig applies cfg's retry policy and query/save toggles to t (see
// SPEC_FULL.md §4.8 and §6). Call it once after BindVersioned.
func (t *VersionedTable[T, PT]) ApplyConfig(cfg config.EngineConfig) {
	t.Policy = RetryPolicyFromConfig(cfg)
	t.IncludeVersionOnQuery = cfg.IncludeVersionOnQuery
	t.JITVersion = cfg.JITVersion
}

// BindVersioned ensures the versioned table schema exists and registers T's
// loader with reg (Default if nil).
func BindVersioned[T any, PT versionedEntityPtr[T]](ctx context.Context, db *document.DB, table string, reg *Registry) (*VersionedTable[T, PT], error) {
	if reg == nil {
		reg = Default
	}
	if err := db.EnsureVersionedTable(ctx, table); err != nil {
		return nil, err
	}
	t := &VersionedTable[T, PT]{db: db, name: table, reg: reg, Policy: DefaultRetryPolicy()}

	typ := reflect.TypeOf(*new(T))
	reg.register(table, typ,
		func(ctx context.Context, id int64) (any, error) {
			return t.FromID(ctx, id)
		},
		func(ctx context.Context, rec any) (int64, error) {
			p, ok := rec.(PT)
			if !ok {
				return 0, fmt.Errorf("sqler: cannot save %T through table %q", rec, table)
			}
			if err := t.Save(ctx, p); err != nil {
				return 0, err
			}
			id, _ := p.recordMeta().ID()
			return id, nil
		},
	)
	return t, nil
}

func (t *VersionedTable[T, PT]) Name() string { return t.name }

// Query returns a fresh query.Builder bound to this table.
func (t *VersionedTable[T, PT]) Query() *query.Builder {
	return query.New(t.name, t.db.Adapter)
}

// EnsureIndex creates (or no-ops) an index on field.
func (t *VersionedTable[T, PT]) EnsureIndex(ctx context.Context, field string, opts document.IndexOptions) error {
	return t.db.CreateIndex(ctx, t.name, field, opts)
}

// FromID loads a record by id along with its version, resolving references.
func (t *VersionedTable[T, PT]) FromID(ctx context.Context, id int64) (*T, error) {
	raw, version, ok, err := t.db.FindWithVersion(ctx, t.name, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var inst T
	if err := json.Unmarshal(raw, &inst); err != nil {
		return nil, fmt.Errorf("sqler: unmarshal %s id=%d: %w", t.name, id, err)
	}
	if err := resolveRefs(ctx, t.reg, reflect.ValueOf(&inst).Elem()); err != nil {
		return nil, err
	}
	p := PT(&inst)
	vm := p.versionedMeta()
	vm.recordMeta().setID(id, t.name)
	vm.setVersion(version)
	return &inst, nil
}

// All loads every row of t's table in id order, honoring
// IncludeVersionOnQuery: when set, each row is rehydrated through FromID to
// pick up the authoritative version; otherwise each row's payload is re-read
// with FindWithVersion and decoded, and the version is left at its zero value.
func (t *VersionedTable[T, PT]) All(ctx context.Context) ([]*T, error) {
	rows, err := t.Query().AllDicts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		idRaw, _ := row["id"].(int64)
		if t.IncludeVersionOnQuery {
			rec, err := t.FromID(ctx, idRaw)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				out = append(out, rec)
			}
			continue
		}

		raw, _, found, err := t.db.FindWithVersion(ctx, t.name, idRaw)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		var inst T
		if err := json.Unmarshal(raw, &inst); err != nil {
			return nil, fmt.Errorf("sqler: unmarshal %s id=%d: %w", t.name, idRaw, err)
		}
		if err := resolveRefs(ctx, t.reg, reflect.ValueOf(&inst).Elem()); err != nil {
			return nil, err
		}
		p := PT(&inst)
		p.recordMeta().setID(idRaw, t.name)
		out = append(out, &inst)
	}
	return out, nil
}

// Save performs a single compare-and-swap write: insert at version 0 for an
// unsaved record, or UPDATE ... WHERE _version = <current> otherwise. On a
// stale-version conflict it does not retry; use SaveWithRetry for that. Before
// the write, it runs the same encode-on-save walk as Table.Save.
func (t *VersionedTable[T, PT]) Save(ctx context.Context, rec PT) error {
	if err := encodeRefs(ctx, t.reg, reflect.ValueOf(rec).Elem()); err != nil {
		return err
	}
	vm := rec.versionedMeta()
	m := vm.recordMeta()

	var idPtr *int64
	expected := vm.Version()
	if id, ok := m.ID(); ok {
		idPtr = &id
		if t.JITVersion {
			_, storedVersion, found, err := t.db.FindWithVersion(ctx, t.name, id)
			if err != nil {
				return err
			}
			if found {
				expected = storedVersion
				vm.setVersion(storedVersion)
			}
		}
	}

	newID, newVersion, err := t.db.UpsertWithVersion(ctx, t.name, idPtr, rec, expected)
	if err != nil {
		return err
	}
	m.setID(newID, t.name)
	vm.setVersion(newVersion)
	return nil
}

// SaveWithRetry runs Save, and on sqlerr.ErrStaleVersion retries according to
// t.Policy: it reloads the latest row, merges numeric-field deltas between
// rec's pre-mutation snapshot and its current state on top of the latest
// value (see SPEC_FULL.md §4.8), and retries the CAS write.
func (t *VersionedTable[T, PT]) SaveWithRetry(ctx context.Context, rec PT, snapshot map[string]any) error {
	if !t.Policy.Enabled {
		return t.Save(ctx, rec)
	}

	attempts := 0
	for {
		err := t.Save(ctx, rec)
		if err == nil {
			return nil
		}

		if errors.Is(err, sqlerr.ErrStorageLocked) {
			attempts++
			if attempts > t.Policy.MaxRetries {
				return err
			}
			if waitErr := t.waitBackoff(ctx, err); waitErr != nil {
				return waitErr
			}
			// Lock contention never touched the row, so the same write is
			// retried as-is: no reload or merge needed.
			continue
		}

		if !errors.Is(err, sqlerr.ErrStaleVersion) {
			return err
		}
		attempts++
		if attempts > t.Policy.MaxRetries {
			return err
		}

		m := rec.recordMeta()
		id, ok := m.ID()
		if !ok {
			return err
		}
		latestRaw, latestVersion, found, ferr := t.db.FindWithVersion(ctx, t.name, id)
		if ferr != nil {
			return ferr
		}
		if !found {
			return sqlerr.ErrNotFound
		}

		var latestMap map[string]any
		if uerr := json.Unmarshal(latestRaw, &latestMap); uerr != nil {
			return uerr
		}

		currentRaw, merr := json.Marshal(rec)
		if merr != nil {
			return merr
		}
		var currentMap map[string]any
		if uerr := json.Unmarshal(currentRaw, &currentMap); uerr != nil {
			return uerr
		}

		merged := mergeVersionedState(latestMap, currentMap, snapshot, t.Policy.MergeNumericDeltas)
		mergedRaw, merr := json.Marshal(merged)
		if merr != nil {
			return merr
		}
		var next T
		if uerr := json.Unmarshal(mergedRaw, &next); uerr != nil {
			return uerr
		}
		*rec = next
		vm := rec.versionedMeta()
		vm.recordMeta().setID(id, t.name)
		vm.setVersion(latestVersion)

		if waitErr := t.waitBackoff(ctx, err); waitErr != nil {
			return waitErr
		}
	}
}

// waitBackoff sleeps for t.Policy.Backoff's next interval, or returns
// fallback (the error that triggered the retry) if the schedule is
// exhausted, or ctx.Err() if ctx is canceled first.
func (t *VersionedTable[T, PT]) waitBackoff(ctx context.Context, fallback error) error {
	if t.Policy.Backoff == nil {
		return nil
	}
	d := t.Policy.Backoff.NextBackOff()
	if d == backoff.Stop {
		return fallback
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// mergeVersionedState applies SPEC_FULL.md §4.8's numeric-delta merge: for
// keys present in both snapshot and current where both values are numeric,
// the merged value is latest + (current - snapshot); every other key takes
// the caller's current value, so non-numeric edits always win over a
// concurrent writer.
func mergeVersionedState(latest, current, snapshot map[string]any, mergeNumeric bool) map[string]any {
	merged := make(map[string]any, len(latest))
	for k, v := range latest {
		merged[k] = v
	}
	for k, cv := range current {
		if mergeNumeric {
			if sv, ok := snapshot[k]; ok {
				if cf, ok := cv.(float64); ok {
					if sf, ok := sv.(float64); ok {
						if lv, ok := merged[k]; ok {
							if lf, ok := lv.(float64); ok {
								merged[k] = lf + (cf - sf)
								continue
							}
						}
						merged[k] = cf
						continue
					}
				}
			}
		}
		merged[k] = cv
	}
	return merged
}
