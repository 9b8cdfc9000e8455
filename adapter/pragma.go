package adapter

import "github.com/Gaburyuu/sqler/internal/config"

// Profile is a named set of SQLite pragmas applied immediately after a
// connection is opened.
type Profile struct {
	// Name identifies the profile for logging purposes.
	Name string
	// Pragmas are applied in order via a single PRAGMA statement each.
	Pragmas []string
	// BusyTimeoutMS, CacheSizeKiB, MmapSizeBytes and WALAutocheckpoint mirror
	// the pragma values for profiles where config.EngineConfig overrides are
	// meaningful (on-disk); they are zero/unused for the in-memory profile.
	BusyTimeoutMS     int
	CacheSizeKiB      int
	MmapSizeBytes     int64
	WALAutocheckpoint int
}

// InMemoryProfile mirrors the source adapter's in_memory() pragma set:
// exclusive locking and an all-memory journal, tuned for throughput over
// durability since nothing survives process exit anyway.
func InMemoryProfile() Profile {
	return Profile{
		Name: "in-memory",
		Pragmas: []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA synchronous = OFF",
			"PRAGMA journal_mode = MEMORY",
			"PRAGMA temp_store = MEMORY",
			"PRAGMA cache_size = -32000",
			"PRAGMA locking_mode = EXCLUSIVE",
		},
	}
}

// OnDiskProfile mirrors the source adapter's on_disk() pragma set: WAL
// journaling with a bounded busy timeout so a writer never blocks forever
// behind another connection, plus a generous mmap window for read-heavy
// workloads.
func OnDiskProfile(busyTimeoutMS, cacheSizeKiB int, mmapSizeBytes int64, walAutocheckpoint int) Profile {
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = 5000
	}
	if cacheSizeKiB <= 0 {
		cacheSizeKiB = 64000
	}
	if mmapSizeBytes <= 0 {
		mmapSizeBytes = 268435456
	}
	if walAutocheckpoint <= 0 {
		walAutocheckpoint = 1000
	}
	return Profile{
		Name: "on-disk",
		Pragmas: []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA temp_store = MEMORY",
		},
		BusyTimeoutMS:     busyTimeoutMS,
		CacheSizeKiB:      cacheSizeKiB,
		MmapSizeBytes:     mmapSizeBytes,
		WALAutocheckpoint: walAutocheckpoint,
	}
}

// ProfileFromConfig builds an on-disk Profile from cfg's pragma overrides
// (see SPEC_FULL.md §4.8 and §6: the retry and pragma toggles are
// "configurable via config.EngineConfig"). Zero fields in cfg fall back to
// OnDiskProfile's own defaults, same as passing zeros directly.
func ProfileFromConfig(cfg config.EngineConfig) Profile {
	return OnDiskProfile(cfg.BusyTimeoutMS, cfg.CacheSizeKiB, cfg.MmapSizeBytes, cfg.WALAutocheckpoint)
}
