package schema

import "errors"

var (
	// ErrSchemaNotFound means the name (or the exact version) was never registered.
	ErrSchemaNotFound = errors.New("schema not found")
	// ErrNoValidSchema means the name is known but nothing matches the
	// requested context inside its validity window.
	ErrNoValidSchema = errors.New("no valid schema")
	// ErrMigrationPathNotFound means no direct edge exists for the version pair.
	ErrMigrationPathNotFound = errors.New("migration path not found")
	// ErrValidationFailed means a document does not fit the resolved shape.
	ErrValidationFailed = errors.New("validation failed")
	// ErrUnresolvableType means a mirrored version has no type in the catalog.
	ErrUnresolvableType = errors.New("unresolvable schema type")
	// ErrTimeout means store I/O around a registry operation ran out of time.
	ErrTimeout = errors.New("timed out")

	ErrInvalidRegistration = errors.New("invalid schema registration")
	ErrDuplicateVersion    = errors.New("schema version already registered")
	ErrInvalidRuleSet      = errors.New("invalid migration rule set")
	ErrRuleFailed          = errors.New("migration rule failed")
	ErrInvalidVersion      = errors.New("invalid schema version")
	ErrInvalidContext      = errors.New("invalid schema context")
)
