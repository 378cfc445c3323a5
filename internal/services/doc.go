// Package services defines the external collaborators of the job pipeline and implements them.
//
// # Collaborators
//
// The pipeline only talks to three interfaces:
//   - [Catalog] resolves a source URL into a [models.CatalogItem] with its track listing
//   - [Retriever] downloads one track's audio and thumbnail into a working directory
//   - [Tagger] writes metadata and cover art into a retrieved file
//
// Errors that are worth retrying are marked with [Transient]; everything else fails the track or phase at once.
//
// # Catalog Implementation
//
// [HTTPCatalog] calls the catalog lookup proxy through a retrying HTTP client. When a token URL and client id are
// configured, requests carry an oauth2 client-credentials token that refreshes itself. [CachedCatalog] wraps any
// catalog in a TTL-bounded LRU so repeated lookups of the same URL share one request.
//
// # Retriever and Tagger
//
// [YTDLPRetriever] drives yt-dlp to extract audio in the configured format. [ID3Tagger] writes ID3v2 frames
// and only supports mp3 files.
//
// # API Client
//
// [APIService] is the client for the ytlib HTTP API used by the CLI. Error bodies are turned back into the
// shared sentinel errors, so callers can test the result with errors.Is exactly as the server did.
package services
