package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/sheetflow/sheetflow/internal/adapter/repo/postgres"
	"github.com/sheetflow/sheetflow/internal/domain"
)

func sampleTask() domain.Task {
	return domain.Task{
		TaskID:     "t1",
		Kind:       domain.TaskKindValidation,
		Status:     domain.StatusCompleted,
		Code:       200,
		Message:    "done",
		Data:       map[string]any{"valid": float64(3)},
		ImportName: "orders",
		UploadDate: time.Now().UTC().Truncate(time.Second),
		UpdateDate: time.Now().UTC().Truncate(time.Second),
	}
}

func taskScan(t *testing.T, task domain.Task) func(dest ...any) error {
	t.Helper()
	dataRaw, err := json.Marshal(task.Data)
	require.NoError(t, err)
	return func(dest ...any) error {
		*dest[0].(*string) = task.TaskID
		*dest[1].(*domain.TaskKind) = task.Kind
		*dest[2].(*domain.TaskStatus) = task.Status
		*dest[3].(*int) = task.Code
		*dest[4].(*string) = task.Message
		*dest[5].(*[]byte) = dataRaw
		*dest[6].(*string) = task.ImportName
		*dest[7].(*time.Time) = task.UploadDate
		*dest[8].(*time.Time) = task.UpdateDate
		return nil
	}
}

func TestTaskRepo_Upsert(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewTaskRepo(pool)

	require.NoError(t, repo.Upsert(context.Background(), sampleTask()))
	require.Len(t, pool.execs, 1)
	require.Contains(t, pool.execs[0].sql, "ON CONFLICT (task_id, task_kind)")
	require.Equal(t, "t1", pool.execs[0].args[0])
}

func TestTaskRepo_UpsertError(t *testing.T) {
	pool := &poolStub{execErr: pgx.ErrTxClosed}
	repo := postgres.NewTaskRepo(pool)

	err := repo.Upsert(context.Background(), sampleTask())
	require.Error(t, err)
	require.Contains(t, err.Error(), "op=tasks.upsert")
}

func TestTaskRepo_GetFound(t *testing.T) {
	want := sampleTask()
	pool := &poolStub{row: rowStub{scan: taskScan(t, want)}}
	repo := postgres.NewTaskRepo(pool)

	got, found, err := repo.Get(context.Background(), "t1", domain.TaskKindValidation)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, want.TaskID, got.TaskID)
	require.Equal(t, want.Status, got.Status)
	require.Equal(t, float64(3), got.Data["valid"])
}

func TestTaskRepo_GetMissing(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewTaskRepo(pool)

	_, found, err := repo.Get(context.Background(), "ghost", domain.TaskKindValidation)
	require.NoError(t, err)
	require.False(t, found)
}

func TestTaskRepo_GetByImportSkipsMalformed(t *testing.T) {
	good := sampleTask()
	malformed := func(dest ...any) error {
		if err := taskScan(t, good)(dest...); err != nil {
			return err
		}
		*dest[5].(*[]byte) = []byte("{broken")
		return nil
	}
	pool := &poolStub{rows: &rowsStub{scans: []func(dest ...any) error{
		taskScan(t, good),
		malformed,
	}}}
	repo := postgres.NewTaskRepo(pool)

	tasks, err := repo.GetByImport(context.Background(), "orders", domain.TaskKindValidation)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "t1", tasks[0].TaskID)
}

func TestTaskRepo_GetByImportQueryError(t *testing.T) {
	pool := &poolStub{queryErr: pgx.ErrTxClosed}
	repo := postgres.NewTaskRepo(pool)

	_, err := repo.GetByImport(context.Background(), "orders", domain.TaskKindValidation)
	require.Error(t, err)
	require.Contains(t, err.Error(), "op=tasks.get_by_import")
}
