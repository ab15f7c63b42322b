package catalog

import (
	"testing"

	"github.com/RecDB/recdb/internal/schema"
	"github.com/RecDB/recdb/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTableAndListTables(t *testing.T) {
	root := t.TempDir()
	cat := New(Session{Root: root, Database: "shop"})

	sch := &schema.Table{
		Name: "products",
		Cols: []*schema.Column{{Name: "id", Type: schema.TypeInt, Width: 10}},
	}
	_, err := cat.CreateTable(sch, table.Options{})
	require.NoError(t, err)

	names, err := cat.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"products"}, names)
}

func TestOpenTableRoundTrip(t *testing.T) {
	root := t.TempDir()
	cat := New(Session{Root: root, Database: "shop"})

	sch := &schema.Table{
		Name: "products",
		Cols: []*schema.Column{{Name: "id", Type: schema.TypeInt, Width: 10}},
	}
	created, err := cat.CreateTable(sch, table.Options{})
	require.NoError(t, err)
	require.NoError(t, created.Insert([]string{"1"}))

	opened, err := cat.OpenTable("products", table.Options{})
	require.NoError(t, err)
	rows, err := opened.SelectAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1"}}, rows)
}

func TestTablesOnMissingDatabaseIsEmpty(t *testing.T) {
	root := t.TempDir()
	cat := New(Session{Root: root, Database: "ghost"})
	names, err := cat.Tables()
	require.NoError(t, err)
	assert.Empty(t, names)
}
