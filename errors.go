package strata

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced during operator construction. All are fatal to
// building the operator; none is retried internally.
var (
	// ErrNotEnoughArguments is returned when an operator's argument list
	// is shorter than its construction contract requires.
	ErrNotEnoughArguments = errors.New("strata: not enough arguments")

	// ErrParse is returned for malformed operator arguments, including a
	// keyed scoped dict passed to Insert (inserts write brand-new rows;
	// they cannot address existing ones by key).
	ErrParse = errors.New("strata: parse error")

	// ErrTableNotFound is returned when a target table name does not
	// resolve in the catalog.
	ErrTableNotFound = errors.New("strata: table not found")

	// ErrAssocNotFound is returned when a named association is not
	// declared for the target table.
	ErrAssocNotFound = errors.New("strata: association not found")
)

// KeyConflictError is returned by insert mode when the primary key already
// exists. It carries the offending key so the caller can deduplicate
// upstream or switch to upsert.
type KeyConflictError struct {
	Key Tuple
}

func (e *KeyConflictError) Error() string {
	return fmt.Sprintf("strata: key conflict on %s", e.Key)
}
