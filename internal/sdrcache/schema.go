package sdrcache

import (
	"database/sql"

	"codeberg.org/mutker/smfd/internal/errors"
	"codeberg.org/mutker/smfd/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS repository (
	       id            INTEGER PRIMARY KEY CHECK (id = 1),
	       record_count  INTEGER NOT NULL CHECK (typeof(record_count) = 'integer'),
	       last_addition INTEGER NOT NULL CHECK (typeof(last_addition) = 'integer'),
	       last_erase    INTEGER NOT NULL CHECK (typeof(last_erase) = 'integer'),
	       synced_at     TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS records (
	       record_id   INTEGER PRIMARY KEY CHECK (record_id BETWEEN 0 AND 65535),
	       record_type INTEGER NOT NULL CHECK (typeof(record_type) = 'integer'),
	       data        BLOB NOT NULL
	   );`

	selectStampSQL = `
    SELECT record_count, last_addition, last_erase
    FROM repository
    WHERE id = 1`

	selectRecordSQL = `
    SELECT record_id, record_type, data
    FROM records
    WHERE record_id = ?`

	upsertStampSQL = `
    INSERT INTO repository (id, record_count, last_addition, last_erase, synced_at)
    VALUES (1, ?, ?, ?, datetime('now'))
    ON CONFLICT (id) DO UPDATE SET
        record_count = excluded.record_count,
        last_addition = excluded.last_addition,
        last_erase = excluded.last_erase,
        synced_at = excluded.synced_at`

	insertRecordSQL = `
    INSERT OR REPLACE INTO records (record_id, record_type, data)
    VALUES (?, ?, ?)`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Debug().
		Int("version", SchemaVersion).
		Msg("SDR cache schema initialized")

	return nil
}

// GetSchemaVersion returns the current schema version, or 0 for an empty
// database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}
