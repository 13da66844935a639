package metrics

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []*ReadingSnapshot
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

// phaseError records which storage step failed and on what.
type phaseError struct {
	Phase  string
	Target string
	Error  string
}

func storageError(code errors.ErrorCode, phase, target string, err error) errors.Error {
	return errors.New().WithData(code, phaseError{Phase: phase, Target: target, Error: err.Error()})
}

// NewRepository opens or creates the database at cfg.DBPath, migrating the
// schema when its version is stale.
func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, storageError(ErrStorageInit, "create_directory", cfg.DBPath, err)
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, storageError(ErrStorageInit, "open_database", cfg.DBPath, err)
	}

	if err := ValidateAndUpdateSchema(db, cfg.DBPath, log); err != nil {
		db.Close()
		return nil, storageError(ErrStorageInit, "schema_version", cfg.DBPath, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Recording readings")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*ReadingSnapshot, 0, max(cfg.BatchSize, 1)),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchSize > 1 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) RecordReading(snapshot *ReadingSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, snapshot)

	// Failed flushes keep their readings; past the limit the oldest go.
	if limit := max(r.cfg.BatchSize, 1) * MaxBufferedBatches; len(r.buffer) > limit {
		dropped := len(r.buffer) - limit
		r.buffer = append(r.buffer[:0], r.buffer[dropped:]...)
		r.logger.Warn().
			Int("dropped", dropped).
			Int("buffered", limit).
			Msg("Metrics buffer full, dropping oldest readings")
	}

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) RecordModeChange(change *ModeChange) error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(insertModeChangeSQL,
		change.Timestamp.UnixMilli(),
		change.Mode,
		int64(change.Steps),
		int64(change.Failed),
		int64(change.Skipped),
		change.Duration.Milliseconds(),
		int64(boolToInt(change.Succeeded())),
	)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to record mode change")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	return nil
}

func (r *repository) Close() error {
	var closeErr error

	r.closeOnce.Do(func() {
		close(r.shutdownChan)
		if r.flushTicker != nil {
			r.flushTicker.Stop()
		}
		<-r.flushDoneChan

		r.mu.Lock()
		if err := r.flush(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to flush metrics on close")
		}
		r.mu.Unlock()

		if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			closeErr = storageError(ErrStorageClose, "checkpoint_wal", r.cfg.DBPath, err)
			r.db.Close()
			return
		}

		if err := r.db.Close(); err != nil {
			closeErr = storageError(ErrStorageClose, "close_database", r.cfg.DBPath, err)
			return
		}

		r.logger.Debug().Msg("Metrics database closed")
	})

	return closeErr
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Error().Err(err).Msg("Periodic metrics flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes buffered readings in one transaction. Callers hold r.mu.
// The buffer is kept on failure so the next flush retries it.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	if err := r.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(insertReadingSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, snapshot := range r.buffer {
			if _, err := stmt.Exec(
				snapshot.Timestamp.UnixMilli(),
				sql.NullInt64{Int64: int64(snapshot.CPUFrequencyMHz), Valid: snapshot.CPUFrequencyOK},
				sql.NullFloat64{Float64: snapshot.TemperatureC, Valid: snapshot.TemperatureOK},
			); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		r.logger.Error().Err(err).Int("records", len(r.buffer)).Msg("Failed to flush readings")
		return errors.New().Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed readings to database")
	r.buffer = r.buffer[:0]

	return nil
}

func (r *repository) inTx(fn func(tx *sql.Tx) error) error {
	return withTx(r.db, r.logger, fn)
}

// withTx runs fn in a transaction, committing on success and rolling back
// on any error.
func withTx(db *sql.DB, log logger.Logger, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return err
	}

	return tx.Commit()
}
