package metrics_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/logger"
	"codeberg.org/mutker/boostctl/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) metrics.Config {
	t.Helper()

	cfg := metrics.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = filepath.Join(t.TempDir(), "data", "metrics.db")
	cfg.BatchSize = 3
	cfg.BatchTimeout = time.Hour

	return cfg
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))

	return n
}

func TestDisabledServiceIsNoop(t *testing.T) {
	collector, err := metrics.NewService(metrics.DefaultConfig(), logger.Default())
	require.NoError(t, err)

	assert.NoError(t, collector.RecordReading(context.Background(), &metrics.ReadingSnapshot{}))
	assert.NoError(t, collector.RecordModeChange(context.Background(), &metrics.ModeChange{}))
	assert.NoError(t, collector.Close())
}

func TestInvalidConfig(t *testing.T) {
	cfg := metrics.Config{Enabled: true}

	_, err := metrics.NewService(cfg, logger.Default())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidDBPath))
}

func TestRecordReadings(t *testing.T) {
	cfg := testConfig(t)
	collector, err := metrics.NewService(cfg, logger.Default())
	require.NoError(t, err)

	base := time.UnixMilli(1_700_000_000_000)
	ctx := context.Background()
	require.NoError(t, collector.RecordReading(ctx, &metrics.ReadingSnapshot{
		Timestamp: base, CPUFrequencyMHz: 2400, CPUFrequencyOK: true, TemperatureC: 36.5, TemperatureOK: true,
	}))
	require.NoError(t, collector.RecordReading(ctx, &metrics.ReadingSnapshot{
		Timestamp: base.Add(time.Second),
	}))

	// Below the batch size nothing is written yet.
	db := openDB(t, cfg.DBPath)
	assert.Equal(t, 0, countRows(t, db, "readings"))

	require.NoError(t, collector.Close())

	assert.Equal(t, 2, countRows(t, db, "readings"))

	var (
		freq sql.NullInt64
		temp sql.NullFloat64
	)
	require.NoError(t, db.QueryRow(
		"SELECT cpu_freq_mhz, temperature_c FROM readings WHERE timestamp_ms = ?", base.UnixMilli(),
	).Scan(&freq, &temp))
	assert.Equal(t, sql.NullInt64{Int64: 2400, Valid: true}, freq)
	assert.Equal(t, sql.NullFloat64{Float64: 36.5, Valid: true}, temp)

	require.NoError(t, db.QueryRow(
		"SELECT cpu_freq_mhz, temperature_c FROM readings WHERE timestamp_ms = ?", base.Add(time.Second).UnixMilli(),
	).Scan(&freq, &temp))
	assert.False(t, freq.Valid)
	assert.False(t, temp.Valid)
}

func TestBatchFlush(t *testing.T) {
	cfg := testConfig(t)
	collector, err := metrics.NewService(cfg, logger.Default())
	require.NoError(t, err)
	defer collector.Close()

	base := time.UnixMilli(1_700_000_000_000)
	for i := 0; i < cfg.BatchSize; i++ {
		require.NoError(t, collector.RecordReading(context.Background(), &metrics.ReadingSnapshot{
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	db := openDB(t, cfg.DBPath)
	assert.Equal(t, cfg.BatchSize, countRows(t, db, "readings"))
}

func TestRecordModeChange(t *testing.T) {
	cfg := testConfig(t)
	collector, err := metrics.NewService(cfg, logger.Default())
	require.NoError(t, err)

	change := &metrics.ModeChange{
		Timestamp: time.Now(),
		Mode:      "Diablo",
		Steps:     12,
		Failed:    1,
		Duration:  40 * time.Millisecond,
	}
	require.NoError(t, collector.RecordModeChange(context.Background(), change))
	require.NoError(t, collector.Close())

	db := openDB(t, cfg.DBPath)
	var (
		mode      string
		steps     int
		succeeded int
	)
	require.NoError(t, db.QueryRow("SELECT mode, steps, succeeded FROM mode_changes").Scan(&mode, &steps, &succeeded))
	assert.Equal(t, "Diablo", mode)
	assert.Equal(t, 12, steps)
	assert.Equal(t, 0, succeeded)
}

func TestRecordNilSnapshot(t *testing.T) {
	collector, err := metrics.NewService(testConfig(t), logger.Default())
	require.NoError(t, err)
	defer collector.Close()

	err = collector.RecordReading(context.Background(), nil)
	assert.Equal(t, metrics.ErrInvalidMetrics, errors.CodeOf(err))
}

func TestRecordCancelledContext(t *testing.T) {
	collector, err := metrics.NewService(testConfig(t), logger.Default())
	require.NoError(t, err)
	defer collector.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = collector.RecordReading(ctx, &metrics.ReadingSnapshot{Timestamp: time.Now()})
	assert.Equal(t, metrics.ErrOperationTimeout, errors.CodeOf(err))
}

func TestCloseTwice(t *testing.T) {
	collector, err := metrics.NewService(testConfig(t), logger.Default())
	require.NoError(t, err)

	require.NoError(t, collector.Close())
	assert.NoError(t, collector.Close())
}

func TestSchemaMismatchBacksUp(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))

	db := openDB(t, cfg.DBPath)
	_, err := db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));
		CREATE TABLE readings (legacy INTEGER);
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	collector, err := metrics.NewService(cfg, logger.Default())
	require.NoError(t, err)
	require.NoError(t, collector.Close())

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(cfg.DBPath), "backups", "metrics_v99_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	db = openDB(t, cfg.DBPath)
	version, err := metrics.GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, metrics.SchemaVersion, version)
}

func TestModeChangeSucceeded(t *testing.T) {
	assert.True(t, (&metrics.ModeChange{Steps: 4}).Succeeded())
	assert.False(t, (&metrics.ModeChange{Steps: 4, Skipped: 2}).Succeeded())
}

func TestBufferCappedWhileWritesFail(t *testing.T) {
	cfg := testConfig(t)
	collector, err := metrics.NewService(cfg, logger.Default())
	require.NoError(t, err)

	db := openDB(t, cfg.DBPath)
	_, err = db.Exec("DROP TABLE readings")
	require.NoError(t, err)

	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)
	record := func(i int) error {
		return collector.RecordReading(ctx, &metrics.ReadingSnapshot{
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	for i := 0; i < 20; i++ {
		err := record(i)
		if i+1 >= cfg.BatchSize {
			assert.True(t, errors.HasCode(err, metrics.ErrRecordFailed))
		}
	}

	_, err = db.Exec(`CREATE TABLE readings (
		timestamp_ms  INTEGER PRIMARY KEY,
		cpu_freq_mhz  INTEGER,
		temperature_c REAL
	)`)
	require.NoError(t, err)

	require.NoError(t, record(20))
	require.NoError(t, collector.Close())

	limit := cfg.BatchSize * metrics.MaxBufferedBatches
	assert.Equal(t, limit, countRows(t, db, "readings"))

	var oldest int64
	require.NoError(t, db.QueryRow("SELECT MIN(timestamp_ms) FROM readings").Scan(&oldest))
	assert.Equal(t, base.Add(time.Duration(21-limit)*time.Second).UnixMilli(), oldest)
}
