package table

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/RecDB/recdb/internal/expr"
	"github.com/RecDB/recdb/internal/index"
	"github.com/RecDB/recdb/internal/record"
	"github.com/RecDB/recdb/internal/schema"
)

// Insert validates and appends one row. Validation order per column
// matches the original engine: NOT_NULL, then type, then
// PRIMARY_KEY/UNIQUE_KEY uniqueness, then FOREIGN_KEY existence — any
// failure aborts before anything is written.
func (t *Table) Insert(values []string) error {
	return t.insertInto(dataPath(t.Dir, t.Schema.Name), values)
}

// InsertInto behaves like Insert but appends the encoded row to targetPath
// instead of the table's live data file. Used by package txn to apply a
// logged INSERT against a staged temp file.
func (t *Table) InsertInto(targetPath string, values []string) error {
	return t.insertInto(targetPath, values)
}

func (t *Table) insertInto(targetPath string, values []string) error {
	if len(values) != len(t.Schema.Cols) {
		return &ConstraintError{Table: t.Schema.Name, Message: fmt.Sprintf("expected %d values, got %d", len(t.Schema.Cols), len(values))}
	}

	for i, c := range t.Schema.Cols {
		v := values[i]

		if c.NotNull && v == "" {
			return &ConstraintError{Table: t.Schema.Name, Column: c.Name, Message: "value cannot be null"}
		}

		switch c.Type {
		case schema.TypeInt:
			if v != "" {
				if _, err := strconv.Atoi(v); err != nil {
					return &ConstraintError{Table: t.Schema.Name, Column: c.Name, Message: fmt.Sprintf("invalid INT value %q", v)}
				}
			}
		case schema.TypeString:
			if len(v) > c.Width {
				return &ConstraintError{Table: t.Schema.Name, Column: c.Name, Message: fmt.Sprintf("value %q exceeds size limit of %d", v, c.Width)}
			}
		}

		if c.PrimaryKey || c.Unique {
			exists, err := t.valueExists(c.Name, i, v)
			if err != nil {
				return err
			}
			if exists {
				kind := "unique"
				if c.PrimaryKey {
					kind = "primary key"
				}
				return &ConstraintError{Table: t.Schema.Name, Column: c.Name, Message: fmt.Sprintf("%s value %q already exists", kind, v)}
			}
		}

		if c.ForeignKey != nil {
			if err := t.checkForeignKeyTarget(c, v); err != nil {
				return err
			}
		}
	}

	buf, err := record.Encode(t.Schema.Cols, values)
	if err != nil {
		return err
	}

	info, err := os.Stat(targetPath)
	var offset int64
	if err == nil {
		offset = info.Size()
	}

	f, err := os.OpenFile(targetPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("table: open %s for append: %w", targetPath, err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("table: write row to %s: %w", targetPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("table: write row to %s: %w", targetPath, err)
	}

	for i, c := range t.Schema.Cols {
		if c.Indexed {
			t.Indexes[c.Name].Insert(values[i], uint64(offset))
			if err := t.saveIndex(c.Name); err != nil {
				return err
			}
		}
	}

	fmt.Fprintf(t.opts.out(), "inserted row into %q at offset %d\n", t.Schema.Name, offset)
	return nil
}

// valueExists reports whether column colIdx (name col) already holds
// value, preferring that column's index when one exists.
func (t *Table) valueExists(col string, colIdx int, value string) (bool, error) {
	if tree, ok := t.Indexes[col]; ok {
		return len(tree.Search(value)) > 0, nil
	}
	rows, err := t.SelectAll()
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if row[colIdx] == value {
			return true, nil
		}
	}
	return false, nil
}

// checkForeignKeyTarget verifies that value exists in the primary-key
// column a FOREIGN_KEY column references.
func (t *Table) checkForeignKeyTarget(c *schema.Column, value string) error {
	fk := c.ForeignKey
	ref, err := Load(t.Dir, fk.RefTable, Options{})
	if err != nil {
		return &ConstraintError{Table: t.Schema.Name, Column: c.Name, Message: fmt.Sprintf("foreign key validation failed: %v", err)}
	}
	refCol := ref.Schema.FindColumn(fk.RefColumn)
	if refCol == nil || !refCol.PrimaryKey {
		return &ConstraintError{Table: t.Schema.Name, Column: c.Name, Message: fmt.Sprintf("referenced column %q in table %q is not a primary key", fk.RefColumn, fk.RefTable)}
	}
	refIdx, _ := ref.Schema.ColumnIndex(fk.RefColumn)
	exists, err := ref.valueExists(fk.RefColumn, refIdx, value)
	if err != nil {
		return err
	}
	if !exists {
		return &ConstraintError{Table: t.Schema.Name, Column: c.Name, Message: fmt.Sprintf("value %q does not exist in referenced table %q column %q", value, fk.RefTable, fk.RefColumn)}
	}
	return nil
}

// Update sets column to newValue on every row matching whereClause,
// rewriting the whole data file and rebuilding any indexes if a row
// changed.
func (t *Table) Update(column, newValue, whereClause string) (int, error) {
	return t.updateInto(dataPath(t.Dir, t.Schema.Name), column, newValue, whereClause)
}

// UpdateInto behaves like Update but reads rows from and rewrites
// targetPath instead of the table's live data file. Used by package txn to
// apply a logged UPDATE against a staged temp file.
func (t *Table) UpdateInto(targetPath, column, newValue, whereClause string) (int, error) {
	return t.updateInto(targetPath, column, newValue, whereClause)
}

func (t *Table) updateInto(targetPath, column, newValue, whereClause string) (int, error) {
	idx, _ := t.Schema.ColumnIndex(column)
	if idx == -1 {
		return 0, &ConstraintError{Table: t.Schema.Name, Message: fmt.Sprintf("column %q does not exist", column)}
	}
	c := t.Schema.Cols[idx]

	if c.NotNull && newValue == "" {
		return 0, &ConstraintError{Table: t.Schema.Name, Column: column, Message: "value cannot be null"}
	}
	switch c.Type {
	case schema.TypeInt:
		if newValue != "" {
			if _, err := strconv.Atoi(newValue); err != nil {
				return 0, &ConstraintError{Table: t.Schema.Name, Column: column, Message: fmt.Sprintf("invalid INT value %q", newValue)}
			}
		}
	case schema.TypeString:
		if len(newValue) > c.Width {
			return 0, &ConstraintError{Table: t.Schema.Name, Column: column, Message: fmt.Sprintf("value %q exceeds size limit of %d", newValue, c.Width)}
		}
	}
	if c.ForeignKey != nil {
		if err := t.checkForeignKeyTarget(c, newValue); err != nil {
			return 0, err
		}
	}

	if strings.TrimSpace(whereClause) == "" {
		return 0, &ConstraintError{Table: t.Schema.Name, Message: "WHERE clause is required"}
	}
	if err := expr.Validate(t.Schema.Cols, whereClause); err != nil {
		return 0, err
	}

	rows, err := t.selectAllFrom(targetPath)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, row := range rows {
		match, err := expr.EvalRow(t.Schema.Cols, row, whereClause)
		if err != nil {
			return 0, err
		}
		if match {
			row[idx] = newValue
			updated++
		}
	}

	if err := t.rewriteRowsTo(targetPath, rows); err != nil {
		return 0, err
	}

	if updated > 0 {
		for _, col := range t.Schema.Cols {
			if col.Indexed {
				if err := t.rebuildIndex(col.Name); err != nil {
					return 0, err
				}
			}
		}
	}

	fmt.Fprintf(t.opts.out(), "updated %d rows in %q\n", updated, t.Schema.Name)
	return updated, nil
}

// DeleteWhere removes every row matching whereClause. Before any row is
// removed, every matched row's primary key value is checked against every
// sibling table's foreign keys; if any reference is found, the whole
// operation aborts without modifying the data file.
func (t *Table) DeleteWhere(whereClause string) (int, error) {
	return t.deleteWhereInto(dataPath(t.Dir, t.Schema.Name), whereClause)
}

// DeleteWhereInto behaves like DeleteWhere but reads rows from and
// rewrites targetPath instead of the table's live data file. Used by
// package txn to apply a logged DELETE against a staged temp file.
func (t *Table) DeleteWhereInto(targetPath, whereClause string) (int, error) {
	return t.deleteWhereInto(targetPath, whereClause)
}

func (t *Table) deleteWhereInto(targetPath, whereClause string) (int, error) {
	if strings.TrimSpace(whereClause) == "" {
		return 0, &ConstraintError{Table: t.Schema.Name, Message: "WHERE clause is required"}
	}
	if err := expr.Validate(t.Schema.Cols, whereClause); err != nil {
		return 0, err
	}

	rows, err := t.selectAllFrom(targetPath)
	if err != nil {
		return 0, err
	}

	var toDelete, toKeep [][]string
	for _, row := range rows {
		match, err := expr.EvalRow(t.Schema.Cols, row, whereClause)
		if err != nil {
			return 0, err
		}
		if match {
			toDelete = append(toDelete, row)
		} else {
			toKeep = append(toKeep, row)
		}
	}

	if pk := t.Schema.PrimaryKey(); pk != nil {
		pkIdx, _ := t.Schema.ColumnIndex(pk.Name)
		for _, row := range toDelete {
			refTable, refCol, found, err := t.checkForeignKeyReferences(pk.Name, row[pkIdx])
			if err != nil {
				return 0, err
			}
			if found {
				return 0, &ConstraintError{
					Table:   t.Schema.Name,
					Column:  pk.Name,
					Message: fmt.Sprintf("cannot delete primary key value %q: referenced by table %q column %q", row[pkIdx], refTable, refCol),
				}
			}
		}
	}

	if len(toDelete) == 0 {
		return 0, nil
	}

	if err := t.rewriteRowsTo(targetPath, toKeep); err != nil {
		return 0, err
	}

	for _, col := range t.Schema.Cols {
		if col.Indexed {
			if err := t.rebuildIndex(col.Name); err != nil {
				return 0, err
			}
		}
	}

	fmt.Fprintf(t.opts.out(), "deleted %d rows from %q\n", len(toDelete), t.Schema.Name)
	return len(toDelete), nil
}

// checkForeignKeyReferences scans every sibling *.schema file in t.Dir for
// a foreign key pointing at (t, pkColumn) and reports the first such
// table and column that holds pkValue in some row.
func (t *Table) checkForeignKeyReferences(pkColumn, pkValue string) (refTable, refColumn string, found bool, err error) {
	entries, err := os.ReadDir(t.Dir)
	if err != nil {
		return "", "", false, fmt.Errorf("table: scan %s for foreign key references: %w", t.Dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".schema") {
			continue
		}
		depName := strings.TrimSuffix(e.Name(), ".schema")
		if depName == t.Schema.Name {
			continue
		}
		dep, loadErr := Load(t.Dir, depName, Options{})
		if loadErr != nil {
			continue
		}
		for i, c := range dep.Schema.Cols {
			if c.ForeignKey == nil || c.ForeignKey.RefTable != t.Schema.Name || c.ForeignKey.RefColumn != pkColumn {
				continue
			}
			exists, existsErr := dep.valueExists(c.Name, i, pkValue)
			if existsErr != nil {
				return "", "", false, existsErr
			}
			if exists {
				return depName, c.Name, true, nil
			}
		}
	}
	return "", "", false, nil
}

// rewriteRowsTo truncates targetPath and writes rows back in order,
// encoding each with the table's current schema.
func (t *Table) rewriteRowsTo(targetPath string, rows [][]string) error {
	f, err := os.OpenFile(targetPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("table: rewrite %s: %w", targetPath, err)
	}
	defer f.Close()
	for _, row := range rows {
		buf, err := record.Encode(t.Schema.Cols, row)
		if err != nil {
			return err
		}
		if _, err := f.Write(buf); err != nil {
			return fmt.Errorf("table: rewrite %s: %w", targetPath, err)
		}
	}
	return nil
}

// CreateIndex builds a fresh B+Tree over column, persists it, and marks
// the column INDEXED in the schema file.
func (t *Table) CreateIndex(column string) error {
	c := t.Schema.FindColumn(column)
	if c == nil {
		return &ConstraintError{Table: t.Schema.Name, Message: fmt.Sprintf("column %q not found", column)}
	}
	c.Indexed = true
	t.Indexes[column] = index.New(c.Type)
	if err := t.rebuildIndex(column); err != nil {
		return err
	}
	if err := schema.Save(schemaPath(t.Dir, t.Schema.Name), t.Schema); err != nil {
		return err
	}
	fmt.Fprintf(t.opts.out(), "created index on %q.%q\n", t.Schema.Name, column)
	return nil
}
