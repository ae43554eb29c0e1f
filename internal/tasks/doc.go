// Package tasks reconciles a pubkytree profile and link list across the local cache, the remote store and the
// social index.
//
// # Engine
//
// [Engine] owns the canonical [models.Profile] and [models.LinkList]. It operates in two modes:
//
//  1. Anonymous: mutations are applied in memory and written to the local cache only
//  2. Connected: mutations are also pushed to the remote store on background goroutines
//
// The operations are:
//   - [Engine.Init] : read the cache and restore an exported session
//   - [Engine.Load] : read the cache, then pull both objects from the remote store
//   - [Engine.ImportSocial] : seed state from the social index once per session
//   - [Engine.AddLink], [Engine.DeleteLink], [Engine.EditProfile] : mutate, cache, push
//   - [Engine.Sync] : push everything and report the outcome
//   - [Engine.StartConnect], [Engine.AwaitConnect], [Engine.Disconnect] : session lifecycle
//
// The remote store is last-writer-wins. Pushes are never retried or rolled back.
//
// # Progress Reporting
//
// When [EngineOpts.Updates] is set the engine sends a [SyncEvent] for each phase.
// Sends use select with default to prevent blocking.
//
// # Public View
//
// [PublicViewer] renders any identity from the social index and its public link list. Its merge gives the
// app links priority, the opposite of [Engine.ImportSocial].
package tasks
