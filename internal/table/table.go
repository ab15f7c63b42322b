// Package table implements the on-disk table contract: fixed-width record
// storage backed by a ".db" file and a ".schema" file, with per-column
// B+Tree indexes, constraint-checked inserts/updates/deletes, and both
// indexed and full-scan read paths.
package table

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/RecDB/recdb/internal/expr"
	"github.com/RecDB/recdb/internal/index"
	"github.com/RecDB/recdb/internal/record"
	"github.com/RecDB/recdb/internal/schema"
)

// Options configures how a Table narrates its work. Out defaults to
// io.Discard: callers that want a trace of what an operation did (the CLI)
// set it to os.Stdout or a buffer; library callers see no output at all.
type Options struct {
	Out io.Writer
}

func (o Options) out() io.Writer {
	if o.Out == nil {
		return io.Discard
	}
	return o.Out
}

// Table is a loaded table: its schema, the directory its files live in,
// and any indexes it has open.
type Table struct {
	Schema  *schema.Table
	Dir     string
	Indexes map[string]*index.Tree
	opts    Options
}

func dataPath(dir, name string) string   { return filepath.Join(dir, name+".db") }
func schemaPath(dir, name string) string { return filepath.Join(dir, name+".schema") }
func indexPath(dir, name, col string) string {
	return filepath.Join(dir, name+"."+col+".idx")
}

// Create makes a new table: the data directory (if missing), an empty data
// file, and the schema file. Returns an error if sch fails Validate or
// declares a FOREIGN_KEY whose target isn't a primary key in a sibling
// table already in dir.
func Create(dir string, sch *schema.Table, opts Options) (*Table, error) {
	if err := sch.Validate(); err != nil {
		return nil, err
	}
	if err := validateForeignKeys(dir, sch); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("table: create data dir %s: %w", dir, err)
	}
	dp := dataPath(dir, sch.Name)
	f, err := os.OpenFile(dp, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("table: create data file %s: %w", dp, err)
	}
	f.Close()

	if err := schema.Save(schemaPath(dir, sch.Name), sch); err != nil {
		return nil, err
	}

	t := &Table{Schema: sch, Dir: dir, Indexes: map[string]*index.Tree{}, opts: opts}
	for _, c := range sch.Cols {
		if c.Indexed {
			t.Indexes[c.Name] = index.New(c.Type)
		}
	}
	fmt.Fprintf(opts.out(), "created table %q in %s\n", sch.Name, dir)
	return t, nil
}

// validateForeignKeys confirms every declared FOREIGN_KEY column's
// RefTable/RefColumn resolves to an existing PRIMARY_KEY column in a
// sibling table already in dir, so a dangling or non-PK FK target is
// rejected at CREATE TABLE time rather than surfacing later as a broken
// reference during insert/update.
func validateForeignKeys(dir string, sch *schema.Table) error {
	for _, c := range sch.Cols {
		if c.ForeignKey == nil {
			continue
		}
		fk := c.ForeignKey
		ref, err := Load(dir, fk.RefTable, Options{})
		if err != nil {
			return &ConstraintError{Table: sch.Name, Column: c.Name, Message: fmt.Sprintf("foreign key references unknown table %q", fk.RefTable)}
		}
		refCol := ref.Schema.FindColumn(fk.RefColumn)
		if refCol == nil || !refCol.PrimaryKey {
			return &ConstraintError{Table: sch.Name, Column: c.Name, Message: fmt.Sprintf("referenced column %q in table %q is not a primary key", fk.RefColumn, fk.RefTable)}
		}
	}
	return nil
}

// Load reads a table's schema from dir and opens any indexes its columns
// declare.
func Load(dir, name string, opts Options) (*Table, error) {
	sch, err := schema.Load(schemaPath(dir, name))
	if err != nil {
		return nil, err
	}
	t := &Table{Schema: sch, Dir: dir, Indexes: map[string]*index.Tree{}, opts: opts}
	for _, c := range sch.Cols {
		if c.Indexed {
			if err := t.loadIndex(c.Name); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func (t *Table) loadIndex(col string) error {
	c := t.Schema.FindColumn(col)
	if c == nil {
		return fmt.Errorf("table: column %q not found in table %q", col, t.Schema.Name)
	}
	tree := index.New(c.Type)
	path := indexPath(t.Dir, t.Schema.Name, col)
	f, err := os.Open(path)
	if err != nil {
		t.Indexes[col] = tree
		fmt.Fprintf(t.opts.out(), "no existing index at %s, starting empty\n", path)
		return nil
	}
	defer f.Close()
	if loadErr := tree.Load(f); loadErr != nil {
		fmt.Fprintf(t.opts.out(), "failed to load index %s: %v\n", path, loadErr)
	}
	t.Indexes[col] = tree
	return nil
}

func (t *Table) saveIndex(col string) error {
	tree, ok := t.Indexes[col]
	if !ok {
		return nil
	}
	path := indexPath(t.Dir, t.Schema.Name, col)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("table: write index %s: %w", path, err)
	}
	defer f.Close()
	if err := tree.Save(f); err != nil {
		return fmt.Errorf("table: write index %s: %w", path, err)
	}
	return nil
}

// rebuildIndex rebuilds a single column's index by scanning the entire
// data file, used after bulk row rewrites (UPDATE, DELETE, CreateIndex).
func (t *Table) rebuildIndex(col string) error {
	tree, ok := t.Indexes[col]
	if !ok {
		return nil
	}
	tree.Clear()

	idx, _ := t.Schema.ColumnIndex(col)
	if idx == -1 {
		return nil
	}

	f, err := os.Open(dataPath(t.Dir, t.Schema.Name))
	if err != nil {
		return nil
	}
	defer f.Close()

	rowWidth := t.Schema.RowWidth()
	buf := make([]byte, rowWidth)
	var offset uint64
	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			break
		}
		row := record.Decode(t.Schema.Cols, buf)
		tree.Insert(row[idx], offset)
		offset += uint64(rowWidth)
	}
	return t.saveIndex(col)
}

// SelectAll decodes every row in the data file, in file order.
func (t *Table) SelectAll() ([][]string, error) {
	return t.selectAllFrom(dataPath(t.Dir, t.Schema.Name))
}

func (t *Table) selectAllFrom(path string) ([][]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("table: read %s: %w", t.Schema.Name, err)
	}
	defer f.Close()

	rowWidth := t.Schema.RowWidth()
	buf := make([]byte, rowWidth)
	var rows [][]string
	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			break
		}
		rows = append(rows, record.Decode(t.Schema.Cols, buf))
	}
	return rows, nil
}

// RowCount derives the number of rows from the data file's size, without
// decoding any of them.
func (t *Table) RowCount() (int64, error) {
	info, err := os.Stat(dataPath(t.Dir, t.Schema.Name))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	rw := int64(t.Schema.RowWidth())
	if rw == 0 {
		return 0, nil
	}
	return info.Size() / rw, nil
}

// SelectWhere filters by a single column/operator/value comparison. When
// the column is indexed and op is "=", it reads only the matching offsets
// instead of scanning the file.
func (t *Table) SelectWhere(column, op, value string) ([][]string, error) {
	colIdx, _ := t.Schema.ColumnIndex(column)
	if colIdx == -1 {
		return nil, fmt.Errorf("table: column %q not found in table %q", column, t.Schema.Name)
	}

	if tree, ok := t.Indexes[column]; ok && op == "=" {
		offsets := tree.Search(value)
		if len(offsets) == 0 {
			return nil, nil
		}
		f, err := os.Open(dataPath(t.Dir, t.Schema.Name))
		if err != nil {
			return nil, fmt.Errorf("table: read %s: %w", t.Schema.Name, err)
		}
		defer f.Close()

		rowWidth := t.Schema.RowWidth()
		buf := make([]byte, rowWidth)
		var rows [][]string
		for _, off := range offsets {
			if _, err := f.ReadAt(buf, int64(off)); err != nil {
				continue
			}
			rows = append(rows, record.Decode(t.Schema.Cols, buf))
		}
		return rows, nil
	}

	all, err := t.SelectAll()
	if err != nil {
		return nil, err
	}

	col := t.Schema.Cols[colIdx]
	isNumeric := col.Type == schema.TypeInt
	var numericValue int
	if isNumeric {
		v, err := strconv.Atoi(value)
		if err != nil {
			return nil, nil
		}
		numericValue = v
	}

	var rows [][]string
	for _, row := range all {
		var matches bool
		if isNumeric {
			rv, err := strconv.Atoi(row[colIdx])
			if err != nil {
				continue
			}
			matches = compareInts(rv, op, numericValue)
		} else {
			matches = compareStrings(row[colIdx], op, value)
		}
		if matches {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func compareInts(a int, op string, b int) bool {
	switch op {
	case "=":
		return a == b
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	case "!=":
		return a != b
	}
	return false
}

func compareStrings(a, op, b string) bool {
	switch op {
	case "=":
		return a == b
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	case "!=":
		return a != b
	}
	return false
}

// SelectWhereExpr filters rows with the boolean predicate language in
// package expr, rejecting a predicate that references an unknown column.
func (t *Table) SelectWhereExpr(predicate string) ([][]string, error) {
	if err := expr.Validate(t.Schema.Cols, predicate); err != nil {
		return nil, err
	}
	all, err := t.SelectAll()
	if err != nil {
		return nil, err
	}
	var rows [][]string
	for _, row := range all {
		ok, err := expr.EvalRow(t.Schema.Cols, row, predicate)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// SelectJoin performs an equi-join between t (as the left/self table) and
// other on t's selfCol = other's otherCol. When selfCol is indexed on t,
// the join drives off other's rows and looks each one up by offset;
// otherwise it falls back to a nested-loop scan of both tables.
func (t *Table) SelectJoin(other *Table, selfCol, otherCol string) ([][]string, error) {
	selfIdx, _ := t.Schema.ColumnIndex(selfCol)
	otherIdx, _ := other.Schema.ColumnIndex(otherCol)
	if selfIdx == -1 || otherIdx == -1 {
		return nil, fmt.Errorf("table: join column not found (%q or %q)", selfCol, otherCol)
	}

	otherRows, err := other.SelectAll()
	if err != nil {
		return nil, err
	}

	if tree, ok := t.Indexes[selfCol]; ok {
		f, err := os.Open(dataPath(t.Dir, t.Schema.Name))
		if err != nil {
			return nil, fmt.Errorf("table: read %s: %w", t.Schema.Name, err)
		}
		defer f.Close()
		rowWidth := t.Schema.RowWidth()
		buf := make([]byte, rowWidth)

		var result [][]string
		for _, row2 := range otherRows {
			offsets := tree.Search(row2[otherIdx])
			for _, off := range offsets {
				if _, err := f.ReadAt(buf, int64(off)); err != nil {
					continue
				}
				row1 := record.Decode(t.Schema.Cols, buf)
				result = append(result, combineRows(row1, row2))
			}
		}
		return result, nil
	}

	selfRows, err := t.SelectAll()
	if err != nil {
		return nil, err
	}
	var result [][]string
	for _, row1 := range selfRows {
		for _, row2 := range otherRows {
			if expr.MatchCond(row1[selfIdx], row2[otherIdx], "=") {
				result = append(result, combineRows(row1, row2))
			}
		}
	}
	return result, nil
}

func combineRows(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
