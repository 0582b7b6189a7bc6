package repo

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicate        = errors.New("duplicate record")
	ErrMissingReference = errors.New("missing reference")
)

// DBError wraps a driver failure that has no dedicated sentinel. Code is the
// driver's own error code when it has one.
type DBError struct {
	Code string
	Err  error
}

func (e *DBError) Error() string {
	if e.Code == "" {
		return "database error: " + e.Err.Error()
	}
	return fmt.Sprintf("database error %s: %s", e.Code, e.Err.Error())
}

func (e *DBError) Unwrap() error { return e.Err }
