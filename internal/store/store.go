// Package store is a local SQLite sink for telemetry points. Every batch is
// written in a single transaction and tagged with its own batch id.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/logger"
	"codeberg.org/mutker/energymon/internal/telemetry"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Row is one stored field of one point.
type Row struct {
	Time        time.Time
	Measurement string
	Tags        telemetry.Tags
	Field       string
	Value       float64
	BatchID     string
}

// Store implements telemetry.Sink.
type Store struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
	mu     sync.Mutex
	newID  func() string
}

func Open(cfg Config, log logger.Logger) (*Store, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}
	// SQLite allows a single writer; one connection keeps transactions serial.
	db.SetMaxOpenConns(1)

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Point store initialized")

	return newStore(db, cfg, log), nil
}

func newStore(db *sql.DB, cfg Config, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log,
		cfg:    cfg,
		newID:  func() string { return uuid.NewString() },
	}
}

func (*Store) Name() string { return "sqlite" }

// Write stores the batch atomically: either every point is stored or none.
func (s *Store) Write(ctx context.Context, points []telemetry.Point) error {
	if len(points) == 0 {
		return nil
	}

	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	batchID := s.newID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				s.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertPointSQL)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	rows := 0
	for _, p := range points {
		tags, err := encodeTags(p.Tags)
		if err != nil {
			return errFactory.Wrap(ErrEncodeTags, err)
		}

		for field, value := range p.Fields {
			if _, err := stmt.ExecContext(ctx,
				p.Time.UnixNano(), p.Measurement, tags, field, value, batchID); err != nil {
				return errFactory.WithData(ErrTransactionFailed, struct {
					Series string
					Field  string
					Error  string
				}{
					Series: p.SeriesKey(),
					Field:  field,
					Error:  err.Error(),
				})
			}
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	s.logger.Debug().
		Str("batch_id", batchID).
		Int("points", len(points)).
		Int("rows", rows).
		Msg("Stored batch")

	return nil
}

// Query returns every stored field of measurement observed at or after
// since, ordered by time.
func (s *Store) Query(ctx context.Context, measurement string, since time.Time) ([]Row, error) {
	errFactory := errors.New()

	rows, err := s.db.QueryContext(ctx, queryPointsSQL, measurement, since.UnixNano())
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r    Row
			ts   int64
			tags string
		)
		if err := rows.Scan(&ts, &r.Measurement, &tags, &r.Field, &r.Value, &r.BatchID); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		r.Time = time.Unix(0, ts).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return out, nil
}

func (s *Store) Close() error {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := s.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	s.logger.Info().Msg("Point store closed")

	return nil
}

// encodeTags renders tags as JSON. Map keys are emitted in sorted order, so
// equal tag sets always encode to the same string.
func encodeTags(tags telemetry.Tags) (string, error) {
	if tags == nil {
		tags = telemetry.Tags{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
