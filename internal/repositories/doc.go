// Package repositories implements local persistence for the engine.
//
// Key Implementations:
//   - [Store] : Byte-oriented key/value contract every backend satisfies
//   - [SQLiteStore] : Default backend over the cache_entries table
//   - [RedisStore] : Backend for hosts that share one cache between processes
//   - [MemoryStore] : Process-local backend used by tests and ephemeral runs
//   - [LocalCache] : Typed view over a [Store] holding the profile, the link list and the session snapshot
//   - [SyncLogRepository] : Append-only history of remote reads and writes
//
// Keys written by [LocalCache] are pubkytree_profile, pubkytree_links and pubkytree_session.
// An entry that no longer parses is reported as [shared.ErrCacheCorrupt]; a missing one as [shared.ErrCacheMiss].
package repositories
