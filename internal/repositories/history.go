package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/shared"
)

// HistoryRepository implements models.Repository[*models.TaskRun] over the task_runs table.
//
// Rows are written once per finished run and never read back into the [TaskStore].
type HistoryRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.TaskRun] = (*HistoryRepository)(nil)

// NewHistoryRepository creates a new HistoryRepository with the given database connection
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

const runColumns = `id, task_id, owner, url, title, status, error_message, output_path, output_size, quality, started_at, finished_at, created_at`

// Create inserts run, generating its id when empty.
func (r *HistoryRepository) Create(run *models.TaskRun) error {
	if run.RunID == "" {
		run.RunID = shared.GenerateID()
	}
	if run.Created.IsZero() {
		run.Created = time.Now().UTC()
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, err := r.db.Exec(`INSERT INTO task_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.TaskID,
		run.Owner,
		run.URL,
		run.Title,
		string(run.Status),
		run.Error,
		run.OutputPath,
		run.OutputSize,
		run.Quality,
		nullTime(run.StartedAt),
		nullTime(run.FinishedAt),
		run.Created,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task run: %w", err)
	}
	return nil
}

// Record stores the terminal state of a task view.
func (r *HistoryRepository) Record(v models.TaskView) error {
	return r.Create(models.NewTaskRun("", v))
}

// Get retrieves a run by id.
func (r *HistoryRepository) Get(id string) (*models.TaskRun, error) {
	row := r.db.QueryRow(`SELECT `+runColumns+` FROM task_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task run not found: %s", id)
	}
	return run, err
}

// Delete removes a run by id.
func (r *HistoryRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM task_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task run not found: %s", id)
	}
	return nil
}

// List returns runs newest first. Supported criteria: owner, status, task_id (strings) and limit (int).
func (r *HistoryRepository) List(criteria map[string]any) ([]*models.TaskRun, error) {
	query := `SELECT ` + runColumns + ` FROM task_runs WHERE 1 = 1`
	args := []any{}

	for _, key := range []string{"owner", "status", "task_id"} {
		if v, ok := criteria[key].(string); ok && v != "" {
			query += " AND " + key + " = ?"
			args = append(args, v)
		}
	}

	query += " ORDER BY created_at DESC, rowid DESC"
	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query task runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.TaskRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task runs: %w", err)
	}
	return runs, nil
}

// Stats counts runs per status for owner, or for everyone when owner is empty.
func (r *HistoryRepository) Stats(owner string) (map[models.Status]int, error) {
	query := `SELECT status, COUNT(*) FROM task_runs`
	args := []any{}
	if owner != "" {
		query += ` WHERE owner = ?`
		args = append(args, owner)
	}
	query += ` GROUP BY status`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan run stats: %w", err)
		}
		stats[models.Status(status)] = n
	}
	return stats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.TaskRun, error) {
	var (
		run               models.TaskRun
		status            string
		started, finished sql.NullTime
	)
	err := s.Scan(
		&run.RunID,
		&run.TaskID,
		&run.Owner,
		&run.URL,
		&run.Title,
		&status,
		&run.Error,
		&run.OutputPath,
		&run.OutputSize,
		&run.Quality,
		&started,
		&finished,
		&run.Created,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan task run: %w", err)
	}
	run.Status = models.Status(status)
	run.StartedAt = started.Time
	run.FinishedAt = finished.Time
	return &run, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
