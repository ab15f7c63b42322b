package table

import "fmt"

// ConstraintError reports a row that fails a table's data-integrity rules:
// NOT_NULL, type, PRIMARY_KEY/UNIQUE_KEY, or FOREIGN_KEY.
type ConstraintError struct {
	Table   string
	Column  string
	Message string
}

func (e *ConstraintError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("constraint violation in table %q column %q: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("constraint violation in table %q: %s", e.Table, e.Message)
}
