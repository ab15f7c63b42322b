// Package catalog resolves an active database name to its data directory
// and enumerates the tables within it. It exists so callers pass a Session
// value explicitly through the call chain instead of reaching for process
// global state: the engine underneath (package table) never asks "what
// database am I in" on its own, it is always told.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RecDB/recdb/internal/schema"
	"github.com/RecDB/recdb/internal/table"
)

// Session names the data root and the database currently selected within
// it. A Session is a plain value: create one, pass it to the operations
// that need it, discard it when done. Nothing stores it implicitly.
type Session struct {
	Root     string
	Database string
}

// DataDir is the directory holding every table's .schema/.db/.idx files
// for the session's active database.
func (s Session) DataDir() string {
	return filepath.Join(s.Root, s.Database, "data")
}

// Catalog operates against a Session's active database.
type Catalog struct {
	Session Session
}

// New creates a Catalog bound to session.
func New(session Session) *Catalog {
	return &Catalog{Session: session}
}

// CreateDatabase makes the directory layout for a new, empty database.
func (c *Catalog) CreateDatabase() error {
	if err := os.MkdirAll(c.Session.DataDir(), 0o755); err != nil {
		return fmt.Errorf("catalog: create database %q: %w", c.Session.Database, err)
	}
	return nil
}

// Tables lists the names of every table in the active database, derived
// from its *.schema files.
func (c *Catalog) Tables() ([]string, error) {
	entries, err := os.ReadDir(c.Session.DataDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: list tables in %q: %w", c.Session.Database, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".schema") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".schema"))
	}
	return names, nil
}

// OpenTable loads an existing table from the active database.
func (c *Catalog) OpenTable(name string, opts table.Options) (*table.Table, error) {
	return table.Load(c.Session.DataDir(), name, opts)
}

// CreateTable creates and returns a new table in the active database.
func (c *Catalog) CreateTable(sch *schema.Table, opts table.Options) (*table.Table, error) {
	if err := c.CreateDatabase(); err != nil {
		return nil, err
	}
	return table.Create(c.Session.DataDir(), sch, opts)
}
