package store

import "codeberg.org/mutker/energymon/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("store_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("store_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("store_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("store_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("store_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed
	ErrEncodeTags   = errors.ErrorCode("store_encode_tags_failed")
	ErrQueryFailed  = errors.ErrorCode("store_query_failed")
)
