// Package record packs and unpacks the fixed-width rows that make up a
// table's ".db" data file: one column per slot, byte offset of row i is
// i * row_width, no record header.
package record

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/RecDB/recdb/internal/schema"
)

// Encode packs values (one per column, same order as cols) into a single
// fixed-width row buffer, NUL-padding every column to its declared width.
// An oversized value is a validation failure, not a silent truncation.
func Encode(cols []*schema.Column, values []string) ([]byte, error) {
	if len(values) != len(cols) {
		return nil, fmt.Errorf("record: expected %d values, got %d", len(cols), len(values))
	}
	buf := make([]byte, 0, sumWidths(cols))
	for i, c := range cols {
		v := values[i]
		if c.Type == schema.TypeInt {
			if _, err := strconv.Atoi(v); v != "" && err != nil {
				return nil, fmt.Errorf("record: invalid INT value %q for column %q", v, c.Name)
			}
		}
		if len(v) > c.Width {
			return nil, fmt.Errorf("record: value %q exceeds width %d for column %q", v, c.Width, c.Name)
		}
		field := make([]byte, c.Width)
		copy(field, v)
		buf = append(buf, field...)
	}
	return buf, nil
}

// Decode unpacks a single fixed-width row buffer into one string per
// column, trimming NUL padding (and any trailing NUL-terminated garbage).
func Decode(cols []*schema.Column, buf []byte) []string {
	vals := make([]string, len(cols))
	offset := 0
	for i, c := range cols {
		field := buf[offset : offset+c.Width]
		if j := bytes.IndexByte(field, 0); j >= 0 {
			field = field[:j]
		}
		vals[i] = string(field)
		offset += c.Width
	}
	return vals
}

func sumWidths(cols []*schema.Column) int {
	w := 0
	for _, c := range cols {
		w += c.Width
	}
	return w
}
