package ledger

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/NoobML/ndvi-anomaly-detection/model"
	"github.com/NoobML/ndvi-anomaly-detection/util"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"id", "description", "operation_name", "month_start", "month_end",
	"west", "south", "east", "north", "scale", "file_format", "max_pixels", "engine", "submitted_at"}

func testTask() model.ExportTask {
	month := model.MonthWindows(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), 1)[0]
	return model.ExportTask{
		ID:            "11111111-2222-3333-4444-555555555555",
		Description:   "NDVI_2023_01",
		OperationName: "projects/p/operations/OP1",
		Month:         month,
		Region:        model.Region{West: 73.95, South: 31.05, East: 74.10, North: 31.20},
		Scale:         10,
		FileFormat:    model.GeoTIFF,
		MaxPixels:     1e13,
		Engine:        model.RemoteEngine,
		SubmittedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func mockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := NewStore(func(util.LogContext) (*sql.DB, error) { return db, nil })
	require.NoError(t, err)
	return store, mock
}

func TestNewStore_ProviderError(t *testing.T) {
	_, err := NewStore(func(util.LogContext) (*sql.DB, error) { return nil, errors.New("no database") })
	assert.EqualError(t, err, "no database")
}

func TestRecord(t *testing.T) {
	// Mock
	store, mock := mockStore(t)
	task := testTask()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO export_tasks")).
		WithArgs(task.ID, "NDVI_2023_01", "projects/p/operations/OP1", task.Month.Start, task.Month.End,
			73.95, 31.05, 74.10, 31.20, 10.0, "GeoTIFF", int64(1e13), "remote", task.SubmittedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	// Tested code
	err := store.Record(context.Background(), task)

	// Asserts
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_Duplicate(t *testing.T) {
	store, mock := mockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO export_tasks")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := store.Record(context.Background(), testTask())

	assert.ErrorIs(t, err, ErrDuplicateTask)
}

func TestRecord_Error(t *testing.T) {
	store, mock := mockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO export_tasks")).WillReturnError(errors.New("connection reset"))

	err := store.Record(context.Background(), testTask())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NotErrorIs(t, err, ErrDuplicateTask)
}

func TestList(t *testing.T) {
	// Mock
	store, mock := mockStore(t)
	task := testTask()
	rows := sqlmock.NewRows(columns).
		AddRow(task.ID, task.Description, task.OperationName, task.Month.Start, task.Month.End,
			73.95, 31.05, 74.10, 31.20, 10.0, "GeoTIFF", int64(1e13), "local", task.SubmittedAt)
	mock.ExpectQuery(regexp.QuoteMeta("FROM export_tasks")).WillReturnRows(rows)

	// Tested code
	tasks, err := store.List(context.Background())

	// Asserts
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "NDVI_2023_01", tasks[0].Description)
	assert.Equal(t, model.LocalEngine, tasks[0].Engine)
	assert.Equal(t, model.GeoTIFF, tasks[0].FileFormat)
	assert.Equal(t, task.Region, tasks[0].Region)
	assert.Equal(t, task.Month.Start, tasks[0].Month.Start)
	assert.Equal(t, "2023_01", tasks[0].Month.Label())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_QueryError(t *testing.T) {
	store, mock := mockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM export_tasks")).WillReturnError(errors.New("relation does not exist"))

	_, err := store.List(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "relation does not exist")
}

