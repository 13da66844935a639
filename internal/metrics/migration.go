package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/logger"
)

// backupDatabase snapshots the database into a backups directory beside
// dbPath and returns the snapshot's path.
func backupDatabase(db *sql.DB, dbPath string, version int, log logger.Logger) (string, error) {
	backupDir := filepath.Join(filepath.Dir(dbPath), backupDirName)
	if err := os.MkdirAll(backupDir, defaultDirPerm); err != nil {
		return "", storageError(ErrSchemaMigrationFailed, "create_backup_dir", backupDir, err)
	}

	name := fmt.Sprintf("metrics_v%d_%s.db", version, time.Now().UTC().Format("20060102T150405Z"))
	backupPath := filepath.Join(backupDir, name)

	// VACUUM INTO must run outside a transaction.
	quoted := strings.ReplaceAll(backupPath, "'", "''")
	if _, err := db.Exec("VACUUM INTO '" + quoted + "'"); err != nil {
		return "", storageError(ErrSchemaMigrationFailed, "create_backup", backupPath, err)
	}

	log.Info().
		Str("path", backupPath).
		Int("version", version).
		Msg("Database backup created")

	return backupPath, nil
}

// ValidateAndUpdateSchema leaves a current schema untouched, initializes an
// empty database, and backs up then recreates one at any other version.
func ValidateAndUpdateSchema(db *sql.DB, dbPath string, log logger.Logger) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return errors.New().Wrap(ErrSchemaValidationFailed, err)
	}

	log.Debug().
		Int("version", version).
		Int("want", SchemaVersion).
		Msg("Checked schema version")

	switch version {
	case SchemaVersion:
		return nil
	case 0:
	default:
		if _, err := backupDatabase(db, dbPath, version, log); err != nil {
			return err
		}
	}

	if err := dropTables(db, log); err != nil {
		return err
	}

	return InitSchema(db, log)
}

func dropTables(db *sql.DB, log logger.Logger) error {
	var current string
	err := withTx(db, log, func(tx *sql.Tx) error {
		for _, table := range tables {
			current = table
			if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storageError(ErrSchemaMigrationFailed, "drop_table", current, err)
	}

	return nil
}
