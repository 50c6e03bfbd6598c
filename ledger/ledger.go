// Package ledger keeps a Postgres record of submitted export tasks so that
// an operator can look them up after a fire-and-forget run.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/NoobML/ndvi-anomaly-detection/model"
	"github.com/NoobML/ndvi-anomaly-detection/util"
	"github.com/lib/pq"
)

// ConnectionProvider is a function that can provide a database connection.
type ConnectionProvider func(util.LogContext) (*sql.DB, error)

// ErrDuplicateTask is returned when a request ID was already recorded
var ErrDuplicateTask = errors.New("export task already recorded")

const uniqueViolation = "23505"

// Store records export tasks in the export_tasks table
type Store struct {
	DB *sql.DB

	logContext util.BasicLogContext
}

// NewStore opens a connection through the provider
func NewStore(provider ConnectionProvider) (*Store, error) {
	store := &Store{}
	db, err := provider(store)
	if err != nil {
		return nil, err
	}
	store.DB = db
	return store, nil
}

// AppName returns the application name
func (s *Store) AppName() string {
	return s.logContext.AppName()
}

// SessionID returns a Session ID, creating one if needed
func (s *Store) SessionID() string {
	return s.logContext.SessionID()
}

// Close closes the underlying connection
func (s *Store) Close() error {
	return s.DB.Close()
}

// Record inserts one task
func (s *Store) Record(ctx context.Context, task model.ExportTask) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO export_tasks
			(id, description, operation_name, month_start, month_end,
			west, south, east, north, scale, file_format, max_pixels, engine, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		task.ID, task.Description, task.OperationName, task.Month.Start, task.Month.End,
		task.Region.West, task.Region.South, task.Region.East, task.Region.North,
		task.Scale, string(task.FileFormat), task.MaxPixels, string(task.Engine), task.SubmittedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}
	if err != nil {
		return util.LogSimpleErr(s, "Failed to record export task "+task.Description+".", err)
	}
	return nil
}

// List returns every recorded task, oldest month first
func (s *Store) List(ctx context.Context) ([]model.ExportTask, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, description, operation_name, month_start, month_end,
			west, south, east, north, scale, file_format, max_pixels, engine, submitted_at
		FROM export_tasks
		ORDER BY month_start, submitted_at`)
	if err != nil {
		return nil, util.LogSimpleErr(s, "Failed to query export tasks.", err)
	}
	defer rows.Close()

	var tasks []model.ExportTask
	for rows.Next() {
		var (
			task                 model.ExportTask
			format, engine       string
			monthStart, monthEnd time.Time
		)
		err = rows.Scan(&task.ID, &task.Description, &task.OperationName, &monthStart, &monthEnd,
			&task.Region.West, &task.Region.South, &task.Region.East, &task.Region.North,
			&task.Scale, &format, &task.MaxPixels, &engine, &task.SubmittedAt)
		if err != nil {
			return nil, err
		}
		task.Month = model.MonthWindow{Start: monthStart.UTC(), End: monthEnd.UTC()}
		task.FileFormat = model.FileFormat(format)
		task.Engine = model.Engine(engine)
		task.SubmittedAt = task.SubmittedAt.UTC()
		tasks = append(tasks, task)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}
