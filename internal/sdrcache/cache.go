package sdrcache

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/smfd/internal/errors"
	"codeberg.org/mutker/smfd/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

const defaultDirPerm = 0o755

// checkpointTimeout bounds the WAL checkpoint run on Close.
var checkpointTimeout = 5 * time.Second

// Cache is the on-disk copy of the BMC's sensor data repository.
type Cache struct {
	db     *sql.DB
	path   string
	logger logger.Logger
}

func Open(path string, log logger.Logger) (*Cache, error) {
	errFactory := errors.New()

	if path == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  path,
			Error: err.Error(),
		})
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}
	db.SetMaxOpenConns(1)

	if err := ValidateAndUpdateSchema(db, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Debug().
		Str("path", path).
		Int("schema_version", SchemaVersion).
		Msg("SDR cache opened")

	return &Cache{db: db, path: path, logger: log}, nil
}

// Stamp returns the repository stamp the cache was built from. ok is false
// for a cache that has never been filled.
func (c *Cache) Stamp(ctx context.Context) (Stamp, bool, error) {
	var s Stamp
	err := c.db.QueryRowContext(ctx, selectStampSQL).Scan(&s.RecordCount, &s.LastAddition, &s.LastErase)
	if errors.Is(err, sql.ErrNoRows) {
		return Stamp{}, false, nil
	}
	if err != nil {
		return Stamp{}, false, errors.New().Wrap(ErrStorageAccess, err)
	}

	return s, true, nil
}

func (c *Cache) Lookup(ctx context.Context, id uint16) (Record, bool, error) {
	var rec Record
	err := c.db.QueryRowContext(ctx, selectRecordSQL, id).Scan(&rec.ID, &rec.Type, &rec.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.New().WithData(ErrStorageAccess, struct {
			RecordID uint16
			Error    string
		}{
			RecordID: id,
			Error:    err.Error(),
		})
	}

	return rec, true, nil
}

// Replace discards every cached record and stores records under stamp in
// a single transaction.
func (c *Cache) Replace(ctx context.Context, stamp Stamp, records []Record) error {
	errFactory := errors.New()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				c.logger.Debug().Err(err).Msg("Failed to rollback SDR cache update")
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Type, rec.Data); err != nil {
			return errFactory.WithData(ErrTransactionFailed, struct {
				RecordID uint16
				Error    string
			}{
				RecordID: rec.ID,
				Error:    err.Error(),
			})
		}
	}

	if _, err := tx.ExecContext(ctx, upsertStampSQL, stamp.RecordCount, stamp.LastAddition, stamp.LastErase); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	c.logger.Debug().Int("records", len(records)).Msg("Stored SDR records")

	return nil
}

func (c *Cache) Close() error {
	var firstErr error
	fail := func(phase string, err error) {
		if firstErr == nil {
			firstErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: phase,
				Error: err.Error(),
			})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
	defer cancel()

	if _, err := c.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fail("checkpoint_wal", err)
	}
	if err := c.db.Close(); err != nil {
		fail("close_database", err)
	}
	if firstErr != nil {
		return firstErr
	}

	c.logger.Debug().Str("path", c.path).Msg("SDR cache closed")

	return nil
}
