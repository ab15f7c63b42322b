package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.schema")

	orig := &Table{
		Name: "users",
		Cols: []*Column{
			{Name: "id", Type: TypeInt, Width: 10, PrimaryKey: true, Indexed: true},
			{Name: "name", Type: TypeString, Width: 32, NotNull: true},
			{Name: "dept_id", Type: TypeInt, Width: 10, ForeignKey: &ForeignKey{RefTable: "departments", RefColumn: "id"}},
			{Name: "email", Type: TypeString, Width: 64, Unique: true},
		},
	}

	require.NoError(t, Save(path, orig))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "users", loaded.Name)
	require.Len(t, loaded.Cols, 4)

	assert.Equal(t, orig.Cols[0].Name, loaded.Cols[0].Name)
	assert.True(t, loaded.Cols[0].PrimaryKey)
	assert.True(t, loaded.Cols[0].Indexed)

	assert.True(t, loaded.Cols[1].NotNull)

	require.NotNil(t, loaded.Cols[2].ForeignKey)
	assert.Equal(t, "departments", loaded.Cols[2].ForeignKey.RefTable)
	assert.Equal(t, "id", loaded.Cols[2].ForeignKey.RefColumn)

	assert.True(t, loaded.Cols[3].Unique)
}

func TestLoadDefaultsIntWidth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.schema")
	require.NoError(t, writeFile(path, "count INT\n"))

	tbl, err := Load(path)
	require.NoError(t, err)
	require.Len(t, tbl.Cols, 1)
	assert.Equal(t, DefaultIntWidth, tbl.Cols[0].Width)
}

func TestLoadRejectsUnknownConstraint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.schema")
	require.NoError(t, writeFile(path, "id INT 10 BOGUS\n"))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.schema")
	require.NoError(t, writeFile(path, "id FLOAT\n"))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestTableValidateRejectsDuplicateColumns(t *testing.T) {
	tbl := &Table{Name: "t", Cols: []*Column{
		{Name: "id", Type: TypeInt, Width: 10},
		{Name: "id", Type: TypeInt, Width: 10},
	}}
	err := tbl.Validate()
	require.Error(t, err)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestTableValidateRejectsMultiplePrimaryKeys(t *testing.T) {
	tbl := &Table{Name: "t", Cols: []*Column{
		{Name: "a", Type: TypeInt, Width: 10, PrimaryKey: true},
		{Name: "b", Type: TypeInt, Width: 10, PrimaryKey: true},
	}}
	assert.Error(t, tbl.Validate())
}

func TestColumnIndex(t *testing.T) {
	tbl := &Table{Cols: []*Column{
		{Name: "a", Width: 4},
		{Name: "b", Width: 8},
		{Name: "c", Width: 2},
	}}
	idx, off := tbl.ColumnIndex("b")
	assert.Equal(t, 1, idx)
	assert.Equal(t, 4, off)

	idx, _ = tbl.ColumnIndex("missing")
	assert.Equal(t, -1, idx)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
