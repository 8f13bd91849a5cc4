package orm

import (
	"errors"

	"github.com/tinywasm/fmt"
)

// ErrNotFound is returned when a lookup by primary key finds no matching row.
var ErrNotFound = errors.New("record not found")

// ErrValidation is returned when an assignment violates a field declaration.
var ErrValidation = errors.New("validation error")

// ErrEmptyTable is returned when an entity has no table name.
var ErrEmptyTable = errors.New("empty table name")

// ErrNoTxSupport is returned when a transactional flush runs on an executor
// that does not implement TxExecutor.
var ErrNoTxSupport = errors.New("transaction not supported")

// ErrConcurrencyConflict is returned when a version-checked write matched no row.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// ErrConstraintViolation is returned when storage rejects a write on a constraint.
var ErrConstraintViolation = errors.New("constraint violation")

// ErrConnection is returned by executors when the transport failed.
var ErrConnection = errors.New("connection error")

// ErrMigrationDivergence is returned when live and declared schema cannot be
// reconciled by a clean diff.
var ErrMigrationDivergence = errors.New("migration divergence")

// ErrPendingMigration is returned when a migration is created while stored
// migrations are still waiting to be applied.
var ErrPendingMigration = errors.New("pending migration")

// ErrInvalidMetadata is returned by RegistryBuilder.Build.
var ErrInvalidMetadata = errors.New("invalid metadata")

// ErrUnknownEntity is returned when an entity name is not registered.
var ErrUnknownEntity = errors.New("unknown entity")

// ErrDetached is returned when mutating an instance whose context was cleared.
var ErrDetached = errors.New("instance is detached")

// ErrCyclicDependency is returned when pending inserts reference each other.
var ErrCyclicDependency = errors.New("cyclic dependency between pending inserts")

// NotFoundError reports a primary-key lookup without a row.
type NotFoundError struct {
	Entity string
	Key    any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s with key %v", ErrNotFound.Error(), e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError reports a value rejected by a field or relation declaration.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s.%s: %s", ErrValidation.Error(), e.Entity, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConcurrencyConflictError reports a row changed since its version snapshot.
type ConcurrencyConflictError struct {
	Entity  string
	Key     any
	Version any
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s: %s with key %v at version %v", ErrConcurrencyConflict.Error(), e.Entity, e.Key, e.Version)
}

func (e *ConcurrencyConflictError) Unwrap() error { return ErrConcurrencyConflict }

// ViolationKind tags the constraint a storage error was raised on.
type ViolationKind int

const (
	ViolationUnique ViolationKind = iota
	ViolationForeignKey
	ViolationNotNull
	ViolationCheck
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationUnique:
		return "unique"
	case ViolationForeignKey:
		return "foreign-key"
	case ViolationNotNull:
		return "not-null"
	case ViolationCheck:
		return "check"
	}
	return "unknown"
}

// ConstraintViolationError wraps a driver error raised on a constraint.
// errors.Is matches ErrConstraintViolation; errors.As reaches the driver error.
type ConstraintViolationError struct {
	Kind ViolationKind
	Err  error
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrConstraintViolation.Error(), e.Kind.String(), e.Err)
}

func (e *ConstraintViolationError) Is(target error) bool { return target == ErrConstraintViolation }

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

// MigrationDivergenceError names the schema object that prevents a clean diff.
type MigrationDivergenceError struct {
	Table  string
	Object string
	Reason string
}

func (e *MigrationDivergenceError) Error() string {
	if e.Object == "" {
		return fmt.Sprintf("%s: table %s: %s", ErrMigrationDivergence.Error(), e.Table, e.Reason)
	}
	return fmt.Sprintf("%s: table %s, %s: %s", ErrMigrationDivergence.Error(), e.Table, e.Object, e.Reason)
}

func (e *MigrationDivergenceError) Unwrap() error { return ErrMigrationDivergence }

type metadataError struct{ msg string }

func (e *metadataError) Error() string { return ErrInvalidMetadata.Error() + ": " + e.msg }

func (e *metadataError) Unwrap() error { return ErrInvalidMetadata }

func invalidMetadata(format string, args ...any) error {
	return &metadataError{msg: fmt.Sprintf(format, args...)}
}

type unknownEntityError struct{ name string }

func (e *unknownEntityError) Error() string { return ErrUnknownEntity.Error() + ": " + e.name }

func (e *unknownEntityError) Unwrap() error { return ErrUnknownEntity }
