package schema

import (
	"fmt"
	"strings"
)

// ValidationError reports a defect in a Table's schema.
type ValidationError struct {
	Entity  string
	Name    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in %s %q field %q: %s", e.Entity, e.Name, e.Field, e.Message)
	}
	return fmt.Sprintf("validation error in %s %q: %s", e.Entity, e.Name, e.Message)
}

// Validate checks structural well-formedness of the table's schema:
// non-empty name, at least one column, no duplicate column names, at most
// one primary key, and well-formed foreign keys.
func (t *Table) Validate() error {
	if t == nil {
		return &ValidationError{Entity: "table", Message: "table is nil"}
	}
	if strings.TrimSpace(t.Name) == "" {
		return &ValidationError{Entity: "table", Name: "(empty)", Message: "table name is empty"}
	}
	if len(t.Cols) == 0 {
		return &ValidationError{Entity: "table", Name: t.Name, Message: "table has no columns"}
	}

	seen := make(map[string]bool, len(t.Cols))
	pkCount := 0
	for i, c := range t.Cols {
		if c == nil {
			return &ValidationError{Entity: "table", Name: t.Name, Message: fmt.Sprintf("column at index %d is nil", i)}
		}
		if err := c.Validate(); err != nil {
			return err
		}
		lower := strings.ToLower(c.Name)
		if seen[lower] {
			return &ValidationError{Entity: "table", Name: t.Name, Message: fmt.Sprintf("duplicate column name %q", c.Name)}
		}
		seen[lower] = true
		if c.PrimaryKey {
			pkCount++
		}
	}
	if pkCount > 1 {
		return &ValidationError{Entity: "table", Name: t.Name, Message: "table has more than one PRIMARY_KEY column"}
	}
	return nil
}

// Validate checks a single column definition in isolation.
func (c *Column) Validate() error {
	if c == nil {
		return &ValidationError{Entity: "column", Message: "column is nil"}
	}
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Entity: "column", Name: "(empty)", Message: "column name is empty"}
	}
	if c.Type != TypeInt && c.Type != TypeString {
		return &ValidationError{Entity: "column", Name: c.Name, Field: "Type", Message: fmt.Sprintf("unknown type %q", c.Type)}
	}
	if c.Width <= 0 {
		return &ValidationError{Entity: "column", Name: c.Name, Field: "Width", Message: "width must be positive"}
	}
	if c.ForeignKey != nil {
		if strings.TrimSpace(c.ForeignKey.RefTable) == "" || strings.TrimSpace(c.ForeignKey.RefColumn) == "" {
			return &ValidationError{Entity: "column", Name: c.Name, Field: "ForeignKey", Message: "foreign key must name a reference table and column"}
		}
	}
	return nil
}
