package sqldb

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/tinywasm/orm/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Classify maps driver errors onto orm error kinds. Constraint failures become
// *orm.ConstraintViolationError, transport failures match orm.ErrConnection.
// Anything else is returned unchanged, as is nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var cv *orm.ConstraintViolationError
	if errors.As(err, &cv) {
		return err
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		if kind, ok := sqliteKind(se.Code()); ok {
			return &orm.ConstraintViolationError{Kind: kind, Err: err}
		}
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) {
		if kind, ok := mysqlKind(me.Number); ok {
			return &orm.ConstraintViolationError{Kind: kind, Err: err}
		}
	}

	if kind, ok := messageKind(err.Error()); ok {
		return &orm.ConstraintViolationError{Kind: kind, Err: err}
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, mysql.ErrInvalidConn) {
		return &connError{err: err}
	}
	return err
}

func sqliteKind(code int) (orm.ViolationKind, bool) {
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return orm.ViolationUnique, true
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return orm.ViolationForeignKey, true
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return orm.ViolationNotNull, true
	case sqlite3.SQLITE_CONSTRAINT_CHECK:
		return orm.ViolationCheck, true
	}
	return 0, false
}

func mysqlKind(number uint16) (orm.ViolationKind, bool) {
	switch number {
	case 1062:
		return orm.ViolationUnique, true
	case 1451, 1452:
		return orm.ViolationForeignKey, true
	case 1048:
		return orm.ViolationNotNull, true
	case 3819:
		return orm.ViolationCheck, true
	}
	return 0, false
}

// messageKind covers drivers reporting only the primary result code.
func messageKind(msg string) (orm.ViolationKind, bool) {
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return orm.ViolationUnique, true
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return orm.ViolationForeignKey, true
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return orm.ViolationNotNull, true
	case strings.Contains(msg, "CHECK constraint failed"):
		return orm.ViolationCheck, true
	}
	return 0, false
}

type connError struct {
	err error
}

func (e *connError) Error() string { return orm.ErrConnection.Error() + ": " + e.err.Error() }

func (e *connError) Is(target error) bool { return target == orm.ErrConnection }

func (e *connError) Unwrap() error { return e.err }
