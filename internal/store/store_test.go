package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/logger"
	"codeberg.org/mutker/energymon/internal/telemetry"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func mustPoint(t *testing.T, m string, tags telemetry.Tags, fields telemetry.Fields) telemetry.Point {
	t.Helper()
	p, err := telemetry.NewPoint(m, tags, fields, t0)
	require.NoError(t, err)
	return p
}

func openTemp(t *testing.T) (*Store, Config) {
	t.Helper()
	cfg := Config{DBPath: filepath.Join(t.TempDir(), "points.db"), Enabled: true}
	s, err := Open(cfg, logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, cfg
}

func TestWriteAndQuery(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	batch := []telemetry.Point{
		mustPoint(t, "carbon_intensity", telemetry.Tags{"zone_code": "DE"}, telemetry.Fields{"value": 312}),
		mustPoint(t, "voltage", telemetry.Tags{"location": "Lab", "phase": "L1"}, telemetry.Fields{"value": 230.1}),
	}
	require.NoError(t, s.Write(ctx, batch))

	rows, err := s.Query(ctx, "carbon_intensity", t0.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, t0, rows[0].Time)
	assert.Equal(t, telemetry.Tags{"zone_code": "DE"}, rows[0].Tags)
	assert.Equal(t, "value", rows[0].Field)
	assert.InDelta(t, 312.0, rows[0].Value, 1e-9)

	volts, err := s.Query(ctx, "voltage", t0)
	require.NoError(t, err)
	require.Len(t, volts, 1)
	assert.Equal(t, rows[0].BatchID, volts[0].BatchID, "one batch id per write")

	later, err := s.Query(ctx, "voltage", t0.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, later)
}

func TestWriteBatchIDsDiffer(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	p := mustPoint(t, "active_power", telemetry.Tags{"location": "Lab"}, telemetry.Fields{"value": 1})
	require.NoError(t, s.Write(ctx, []telemetry.Point{p}))
	require.NoError(t, s.Write(ctx, []telemetry.Point{p}))

	rows, err := s.Query(ctx, "active_power", t0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.NotEqual(t, rows[0].BatchID, rows[1].BatchID)
}

func TestWriteEmptyBatch(t *testing.T) {
	s, _ := openTemp(t)
	assert.NoError(t, s.Write(context.Background(), nil))
}

func TestOpenBacksUpOtherSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(Config{DBPath: path, Enabled: true}, logger.Default())
	require.NoError(t, err)
	defer s.Close()

	version, err := GetSchemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)

	backups, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "points_v99_")
}

func TestWriteRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO points")
	prep.ExpectExec().WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	s := newStore(db, Config{}, logger.Default())
	s.newID = func() string { return "batch-1" }

	err = s.Write(context.Background(), []telemetry.Point{
		mustPoint(t, "voltage", nil, telemetry.Fields{"value": 230}),
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrTransactionFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteBeginFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

	s := newStore(db, Config{}, logger.Default())
	err = s.Write(context.Background(), []telemetry.Point{
		mustPoint(t, "voltage", nil, telemetry.Fields{"value": 230}),
	})
	assert.True(t, errors.HasCode(err, ErrTransactionFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Enabled: true}.Validate())
	assert.Equal(t, filepath.Join("/data", "backups"), Config{DBPath: "/data/p.db"}.backupDir())
}
