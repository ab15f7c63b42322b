// Package schema defines the column and table metadata that drives the
// fixed-width record format, and the on-disk schema file codec.
package schema

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// DataType is the declared type of a column. Only two are supported.
type DataType string

const (
	TypeInt    DataType = "INT"
	TypeString DataType = "STRING"
)

// DefaultIntWidth is the on-disk width, in bytes, of an INT column whose
// schema line does not specify one explicitly. Ten decimal digits of text
// is the width the original engine always wrote, so new schemas default to
// it for compatibility with data files produced the same way.
const DefaultIntWidth = 10

// ForeignKey names the table and column a FOREIGN_KEY column references.
type ForeignKey struct {
	RefTable  string
	RefColumn string
}

// Column describes one fixed-width field of a Table.
type Column struct {
	Name       string
	Type       DataType
	Width      int
	PrimaryKey bool
	Unique     bool
	NotNull    bool
	Indexed    bool
	ForeignKey *ForeignKey
}

// Table is the schema of a single on-disk table: its name and its columns
// in record order.
type Table struct {
	Name string
	Cols []*Column
}

// FindColumn returns the column with the given name, or nil.
func (t *Table) FindColumn(name string) *Column {
	for _, c := range t.Cols {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ColumnIndex returns the position and byte offset of the named column, or
// (-1, 0) if it does not exist.
func (t *Table) ColumnIndex(name string) (index int, offset int) {
	offset = 0
	for i, c := range t.Cols {
		if c.Name == name {
			return i, offset
		}
		offset += c.Width
	}
	return -1, 0
}

// PrimaryKey returns the table's primary-key column, or nil if it has none.
func (t *Table) PrimaryKey() *Column {
	for _, c := range t.Cols {
		if c.PrimaryKey {
			return c
		}
	}
	return nil
}

// RowWidth is the sum of every column's width: the fixed byte length of one
// encoded row.
func (t *Table) RowWidth() int {
	w := 0
	for _, c := range t.Cols {
		w += c.Width
	}
	return w
}

var stringTypeRe = regexp.MustCompile(`(?i)^STRING\((\d+)\)$`)

// Load parses a schema file: one column per line,
// "name TYPE[(width)|width] [flag...]", flags being any of PRIMARY_KEY,
// FOREIGN_KEY ref_table ref_column, UNIQUE_KEY, NOT_NULL, INDEXED.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open %s: %w", path, err)
	}
	defer f.Close()

	name := strings.TrimSuffix(baseName(path), ".schema")
	t := &Table{Name: name}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		col, err := parseColumnLine(line)
		if err != nil {
			return nil, fmt.Errorf("schema: %s: %w", path, err)
		}
		t.Cols = append(t.Cols, col)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	return t, nil
}

func parseColumnLine(line string) (*Column, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("malformed column line %q", line)
	}
	col := &Column{Name: fields[0]}
	i := 1

	typeTok := fields[i]
	if m := stringTypeRe.FindStringSubmatch(typeTok); m != nil {
		col.Type = TypeString
		width, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("invalid STRING width in %q", typeTok)
		}
		col.Width = width
		i++
	} else if strings.EqualFold(typeTok, "INT") {
		col.Type = TypeInt
		i++
		if i < len(fields) {
			if width, err := strconv.Atoi(fields[i]); err == nil {
				col.Width = width
				i++
			}
		}
		if col.Width == 0 {
			col.Width = DefaultIntWidth
		}
	} else {
		return nil, fmt.Errorf("invalid type %q for column %q", typeTok, col.Name)
	}

	for i < len(fields) {
		tok := strings.ToUpper(fields[i])
		switch tok {
		case "PRIMARY_KEY":
			col.PrimaryKey = true
			i++
		case "FOREIGN_KEY":
			if i+2 >= len(fields) {
				return nil, fmt.Errorf("invalid FOREIGN_KEY reference for column %q", col.Name)
			}
			col.ForeignKey = &ForeignKey{RefTable: fields[i+1], RefColumn: fields[i+2]}
			i += 3
		case "UNIQUE_KEY":
			col.Unique = true
			i++
		case "NOT_NULL":
			col.NotNull = true
			i++
		case "INDEXED":
			col.Indexed = true
			i++
		default:
			return nil, fmt.Errorf("invalid constraint %q for column %q", fields[i], col.Name)
		}
	}
	return col, nil
}

// Save writes the schema file in the same one-line-per-column format Load
// reads, columns in declaration order.
func Save(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("schema: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, c := range t.Cols {
		if _, err := fmt.Fprint(w, c.Name, " ", string(c.Type)); err != nil {
			return err
		}
		if c.Type == TypeString {
			if _, err := fmt.Fprintf(w, "(%d)", c.Width); err != nil {
				return err
			}
		} else {
			if _, err := fmt.Fprintf(w, " %d", c.Width); err != nil {
				return err
			}
		}
		if c.PrimaryKey {
			fmt.Fprint(w, " PRIMARY_KEY")
		}
		if c.ForeignKey != nil {
			if c.ForeignKey.RefTable == "" || c.ForeignKey.RefColumn == "" {
				return fmt.Errorf("schema: column %q has incomplete foreign key reference", c.Name)
			}
			fmt.Fprintf(w, " FOREIGN_KEY %s %s", c.ForeignKey.RefTable, c.ForeignKey.RefColumn)
		}
		if c.Unique {
			fmt.Fprint(w, " UNIQUE_KEY")
		}
		if c.NotNull {
			fmt.Fprint(w, " NOT_NULL")
		}
		if c.Indexed {
			fmt.Fprint(w, " INDEXED")
		}
		fmt.Fprint(w, "\n")
	}
	return w.Flush()
}

func baseName(path string) string {
	i := strings.LastIndexAny(path, `/\`)
	if i < 0 {
		return path
	}
	return path[i+1:]
}
