// Package record binds Go struct types to document-store tables: typed
// FromID/Save/Delete/Refresh/Query, reference encoding/resolution through a
// type registry, and an optimistic-locking variant with compare-and-swap
// writes and a backoff-driven retry policy.
package record

// Meta is embedded (by value) into every record type. It carries the
// surrogate id assigned on first save and the owning table name, both kept
// out of the record's own JSON payload (the fields are unexported, so
// encoding/json skips them) the same way the source's
// Pydantic PrivateAttr keeps _id out of model_fields.
type Meta struct {
	id    int64
	hasID bool
	table string
}

// ID returns the record's assigned id, or (0, false) if it has never been
// saved.
func (m *Meta) ID() (int64, bool) { return m.id, m.hasID }

func (m *Meta) setID(id int64, table string) {
	m.id = id
	m.hasID = true
	m.table = table
}

func (m *Meta) clearID() {
	m.id = 0
	m.hasID = false
}

// recordMeta makes Meta (and anything embedding it) satisfy the unexported
// Entity interface below; only types in this package can implement it, which
// forces every bindable record to embed Meta rather than fake the shape.
func (m *Meta) recordMeta() *Meta { return m }

// Entity is implemented by any type embedding Meta. It is intentionally
// unexported-method-gated: application code can never satisfy it directly,
// only by embedding record.Meta.
type Entity interface {
	recordMeta() *Meta
}

// VersionedMeta extends Meta with the optimistic-concurrency version
// counter. Versioned record types embed this instead of plain Meta.
type VersionedMeta struct {
	Meta
	version int64
}

// Version returns the last-known version for this instance.
func (v *VersionedMeta) Version() int64 { return v.version }

func (v *VersionedMeta) setVersion(n int64) { v.version = n }

// metaOf extracts the *Meta from an Entity through its recordMeta method,
// for generic code working over T that doesn't statically know T embeds
// Meta — only that *T satisfies Entity via the entityPtr constraint.
func metaOf(e Entity) *Meta { return e.recordMeta() }
