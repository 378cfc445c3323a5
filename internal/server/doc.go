// Package server exposes the job, subscription, scheduler and library controls over HTTP.
//
// # Routing
//
// Routes are registered on a chi router. Each resource is a [Handler] that mounts its own endpoints, and
// [Middleware] wraps every route in the order it is added: request ids, panic recovery, request logging,
// CORS and prometheus request metrics.
//
// # Errors
//
// Every non-2xx response carries a [models.ErrorResponse] body whose error field is one of not_found,
// conflict, validation or internal, derived from the returned error with [shared.KindOf]. Conflicts caused by
// an existing job also name that job in active_job_id.
//
// # Streams
//
// Job log lines and lifecycle events are served over websockets by [stream.Handler]:
// /api/jobs/{id}/logs for a single job and /api/events for everything.
package server
