// Package repositories holds the task registry and the run history store.
//
//   - [TaskStore] : the in-memory, authoritative registry of tasks. It issues task ids (never
//     reused for the life of the process), performs atomic per-owner URL deduplication for
//     batches, and owns the [RunControl] flags through which pause and cancel reach a run.
//   - [HistoryRepository] : SQLite audit log of finished runs (task_runs table). It implements
//     models.Repository[*models.TaskRun]; nothing is ever restored from it into the registry.
package repositories
