// Package server exposes the download engine over HTTP.
//
// # Routes
//
//	GET    /health                    pool statistics, no identity required
//	POST   /api/tasks                 submit URLs, returns created ids and skipped count
//	GET    /api/tasks                 list tasks (admins see every owner unless ?scope=mine)
//	DELETE /api/tasks                 clear tasks, moving their directories to the trash
//	GET    /api/tasks/{id}            one task
//	POST   /api/tasks/{id}/pause      stop the in-flight run, keeping the task resumable
//	POST   /api/tasks/{id}/cancel     stop and fail the task
//	POST   /api/tasks/{id}/retry      resubmit as a new task
//	POST   /api/tasks/retry-failed    resubmit every failed task
//	POST   /api/probe                 metadata preview for up to ten URLs
//	GET    /download/{id}             the artifact of a completed task
//	GET    /download-all              zip of completed artifacts
//
// # Identity
//
// Authentication is external. [Identity] maps the proxy header
// [AccessEmailHeader] (or the CLI's X-Owner header) onto a configured user and
// falls back to the first admin, matching a single-user deployment.
//
// # Middleware
//
// [BasicRouter] applies [Middleware] in reverse order (last added executes first).
// Submissions pass through a per-owner token bucket ([OwnerLimiter]).
package server
