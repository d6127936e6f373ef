// Package models defines the entities shared by the download engine, its HTTP API, and the CLI.
//
//   - [Task] : one download job. Identity fields are immutable; everything else is guarded by a
//     per-task lock and changed only through transition methods ([Task.MarkDownloading],
//     [Task.SetProgress], [Task.MarkCompleted], [Task.MarkFailed], [Task.MarkPaused]) so that
//     status, output path, and error message never disagree.
//   - [TaskView] : a point-in-time copy of a task, safe to serialize and hand to other goroutines.
//   - [Options], [NetworkConfig], [Metadata] : download inputs and probe results.
//   - [TaskRun] : a finished run recorded in the history database.
//
// The [Repository] interface describes persistence for [Model] implementations.
package models
