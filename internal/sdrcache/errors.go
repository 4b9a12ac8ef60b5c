package sdrcache

import "codeberg.org/mutker/smfd/internal/errors"

const (
	// Configuration Errors
	ErrInvalidDBPath = errors.ErrorCode("sdrcache_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("sdrcache_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("sdrcache_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("sdrcache_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("sdrcache_transaction_failed")

	// Storage Errors
	ErrStorageAccess = errors.ErrorCode("sdrcache_storage_access_failed")
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageClose  = errors.ErrShutdownFailed
)
