package history

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return gormDB, mock
}

func TestRecordAndRecent(t *testing.T) {
	svc := NewService(newSQLiteDB(t), zap.NewNop())
	require.NoError(t, svc.Migrate())

	spec := map[string]any{"field": "Gender", "op": "eq", "value": "Female"}
	svc.Record(context.Background(), "ray-1", "show me females", spec, 2, 120*time.Millisecond)
	svc.Record(context.Background(), "ray-2", "how many labs", map[string]any{"and": []any{}}, 7, 80*time.Millisecond)

	entries, err := svc.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byRay := map[string]Entry{}
	for _, e := range entries {
		byRay[e.RayID] = e
	}
	first := byRay["ray-1"]
	assert.Equal(t, "show me females", first.Query)
	assert.Contains(t, first.Spec, `"op":"eq"`)
	assert.Equal(t, 2, first.MatchedCount)
	assert.Equal(t, int64(120), first.DurationMs)
}

func TestRecentLimitClamped(t *testing.T) {
	svc := NewService(newSQLiteDB(t), zap.NewNop())
	require.NoError(t, svc.Migrate())

	for i := 0; i < 5; i++ {
		svc.Record(context.Background(), "ray", "q", map[string]any{"and": []any{}}, i, time.Millisecond)
	}

	entries, err := svc.Recent(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRecordSwallowsDBError(t *testing.T) {
	gormDB, mock := newMockDB(t)
	svc := NewService(gormDB, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `query_history`").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	// Must not panic or return anything; the failure is only logged.
	svc.Record(context.Background(), "ray-1", "q", map[string]any{"and": []any{}}, 0, time.Millisecond)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentQueriesNewestFirst(t *testing.T) {
	gormDB, mock := newMockDB(t)
	svc := NewService(gormDB, zap.NewNop())

	rows := sqlmock.NewRows([]string{"id", "ray_id", "query", "spec", "matched_count", "duration_ms", "created_at"}).
		AddRow(2, "ray-2", "newest", "{}", 1, 10, time.Now()).
		AddRow(1, "ray-1", "older", "{}", 3, 20, time.Now().Add(-time.Minute))
	mock.ExpectQuery("SELECT \\* FROM `query_history` ORDER BY created_at DESC").WillReturnRows(rows)

	entries, err := svc.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "newest", entries[0].Query)
	assert.NoError(t, mock.ExpectationsWereMet())
}
