// Package tasks turns submitted URLs into downloaded files.
//
// # Flow
//
// [Manager.Submit] normalizes the input ([Normalize]), lets the task store drop URLs the owner
// already has, and queues one [Job] per new task on the [Pool]. Each worker hands its job to
// [Orchestrator.Run], which owns the task until it reaches a terminal state:
//
//  1. Probe the URL with each network config from [ResolveNetwork], advancing only when the
//     platform rejects the session cookies ([ProbeStrategies])
//  2. Download into <base>/<owner>/<id>/<title>.<ext> using [FormatSelector]
//  3. Pick the artifact with [ResolveArtifact], reusing an earlier completed download or
//     retrying once without the archive when the download archive skipped the item
//  4. Mark the task completed, paused or failed and release its run control
//
// # Cancellation
//
// Pause and cancel set the task's run control. The progress callback polls it on every tick
// and cancels the run context, which kills the extractor process. A paused run ends PAUSED;
// a cancelled one stays FAILED with "cancelled by user".
//
// # Progress Reporting
//
// Runs emit [ProgressUpdate] values on an optional channel. Sends use select with default so a
// slow reader never stalls a download.
//
// # Packaging
//
// [Manager.Bundle] zips completed artifacts, storing identical files once, and
// [Manager.ClearToTrash] moves cleared task directories under <base>/.trash.
package tasks
