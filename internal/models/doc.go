// Package models defines the domain entities shared by the sync engine, the local cache and the presentation layers.
//
// The package contains three categories of types:
//
// 1. Owned documents: written by the user and mirrored to the local cache and the remote store
//   - [Profile] : Display name, bio and avatar references
//   - [Link] : One entry of the link list with display order and click count
//   - [LinkList] : Ordered collection of links with ordering and merge helpers
//
// 2. Social index snapshots: read-only data fetched from the indexer
//   - [SocialProfile] : Indexed details plus counters for one identity
//   - [SocialDetails], [SocialLink], [SocialCounts]
//
// 3. Derived views: never persisted
//   - [SyncState] : Connection flag, last successful sync and in-flight push count
//   - [PublicProfile] : Merged read-only view of any identity
//
// [MergeByURL] implements the priority-ordered, URL keyed union used by both the social import and the public view.
package models
