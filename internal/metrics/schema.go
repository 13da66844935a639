package metrics

import (
	"database/sql"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/logger"
)

// SchemaVersion is bumped whenever a table changes shape. A database at any
// other version is backed up and recreated on open.
const SchemaVersion = 1

const (
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS readings (
	       timestamp_ms  INTEGER PRIMARY KEY,
	       cpu_freq_mhz  INTEGER CHECK (cpu_freq_mhz IS NULL OR typeof(cpu_freq_mhz) = 'integer'),
	       temperature_c REAL
	   );
	   CREATE TABLE IF NOT EXISTS mode_changes (
	       id           INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp_ms INTEGER NOT NULL,
	       mode         TEXT NOT NULL,
	       steps        INTEGER NOT NULL CHECK (typeof(steps) = 'integer'),
	       failed       INTEGER NOT NULL CHECK (typeof(failed) = 'integer'),
	       skipped      INTEGER NOT NULL CHECK (typeof(skipped) = 'integer'),
	       duration_ms  INTEGER NOT NULL,
	       succeeded    INTEGER NOT NULL CHECK (succeeded IN (0, 1))
	   );`

	recordVersionSQL = `
    INSERT INTO schema_versions (version, applied_at)
    VALUES (?, datetime('now'))`

	latestVersionSQL = `
    SELECT version FROM schema_versions
    ORDER BY version DESC
    LIMIT 1`

	tableExistsSQL = `
    SELECT EXISTS (
        SELECT 1 FROM sqlite_master
        WHERE type = 'table' AND name = ?
    )`

	// Readings are keyed by millisecond timestamp; a repeated tick
	// overwrites rather than failing the batch.
	insertReadingSQL = `
    INSERT INTO readings (
        timestamp_ms, cpu_freq_mhz, temperature_c
    ) VALUES (?, ?, ?)
    ON CONFLICT(timestamp_ms) DO UPDATE SET
        cpu_freq_mhz = excluded.cpu_freq_mhz,
        temperature_c = excluded.temperature_c`

	insertModeChangeSQL = `
    INSERT INTO mode_changes (
        timestamp_ms, mode, steps, failed, skipped, duration_ms, succeeded
    ) VALUES (?, ?, ?, ?, ?, ?, ?)`
)

var tables = []string{"readings", "mode_changes", "schema_versions"}

// InitSchema creates every table and records SchemaVersion.
func InitSchema(db *sql.DB, log logger.Logger) error {
	log.Debug().Msg("Creating database...")

	phase := "create_tables"
	err := withTx(db, log, func(tx *sql.Tx) error {
		if _, err := tx.Exec(createTablesSQL); err != nil {
			return err
		}
		phase = "record_version"
		_, err := tx.Exec(recordVersionSQL, SchemaVersion)
		return err
	})
	if err != nil {
		return storageError(ErrSchemaInitFailed, phase, "", err)
	}

	log.Info().Int("version", SchemaVersion).Msg("Schema initialized")

	return nil
}

// GetSchemaVersion returns the recorded schema version, 0 for a new database
func GetSchemaVersion(db *sql.DB) (int, error) {
	exists, err := TableExists(db, "schema_versions")
	if err != nil || !exists {
		return 0, err
	}

	var version int
	err = db.QueryRow(latestVersionSQL).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, storageError(ErrSchemaValidationFailed, "get_version", "schema_versions", err)
	}

	return version, nil
}

// TableExists reports whether tableName is present in the database.
func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	if err := db.QueryRow(tableExistsSQL, tableName).Scan(&exists); err != nil {
		return false, storageError(ErrSchemaValidationFailed, "check_table_exists", tableName, err)
	}
	return exists, nil
}
