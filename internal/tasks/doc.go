// package tasks runs the phase pipeline for a single job.
//
// A [Pipeline] resolves the job's URL through the catalog, retrieves every track it does not already have,
// tags and files the retrieved audio into the library layout and, for playlists, writes an M3U that links the
// canonical files. The dedup index is consulted before every retrieval so overlapping jobs never fetch the same
// track twice.
//
// Status changes are reported through a [Tracker]; log lines go to both the process logger and the job's
// stream through an [Emitter]. Progress is described with [ProgressUpdate] values.
package tasks
