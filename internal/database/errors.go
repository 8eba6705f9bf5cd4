package database

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Constraint kinds reported by SQLite.
const (
	ConstraintUnique     = "unique"
	ConstraintNotNull    = "not_null"
	ConstraintCheck      = "check"
	ConstraintForeignKey = "foreign_key"
)

// ConstraintError is a classified SQLite constraint failure. Table and
// Column name the first column SQLite reported, when it reported one.
type ConstraintError struct {
	Kind   string
	Table  string
	Column string
	Err    error
}

func (e *ConstraintError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s constraint failed", e.Kind)
	}
	return fmt.Sprintf("%s constraint failed on %s.%s", e.Kind, e.Table, e.Column)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

var constraintPattern = regexp.MustCompile(`(UNIQUE|NOT NULL|CHECK|FOREIGN KEY) constraint failed(?::\s*(\S+))?`)

var constraintKinds = map[string]string{
	"UNIQUE":      ConstraintUnique,
	"NOT NULL":    ConstraintNotNull,
	"CHECK":       ConstraintCheck,
	"FOREIGN KEY": ConstraintForeignKey,
}

// ClassifyError wraps SQLite constraint failures in a *ConstraintError and
// returns any other error unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	m := constraintPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return err
	}

	ce := &ConstraintError{Kind: constraintKinds[m[1]], Err: err}

	// CHECK failures report the expression, not a column.
	if ce.Kind != ConstraintCheck {
		if table, column, ok := strings.Cut(strings.TrimSuffix(m[2], ","), "."); ok {
			ce.Table = table
			ce.Column = column
		}
	}

	return ce
}

// AsConstraintError returns the classified constraint failure in err's
// chain, or nil.
func AsConstraintError(err error) *ConstraintError {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

func IsUniqueError(err error) bool {
	ce := AsConstraintError(err)
	return ce != nil && ce.Kind == ConstraintUnique
}
