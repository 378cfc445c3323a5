// Package models defines domain entities and persistence interfaces for the ytlib library pipeline.
//
// The package contains two categories of types:
//
// 1. Catalog DTOs: metadata resolved from the catalog collaborator
//   - [CatalogItem] : A resolved URL (track, album, playlist or discography) with its ordered tracks
//   - [CatalogTrack] : Authoritative track metadata used for tagging and the canonical layout
//
// 2. Persistent Entities: database-backed records
//   - [Job] : One execution of the pipeline, driven through the [JobStatus] state machine
//   - [Subscription] : A saved playlist URL synced on an interval
//   - [TrackRecord] : An append-only dedup index entry mapping a catalog track to its canonical file
//
// Jobs reference the Subscription that spawned them by id only; neither type owns the other.
// The [Repository] interface defines standard CRUD operations for database access.
package models
