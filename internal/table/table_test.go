package table

import (
	"testing"

	"github.com/RecDB/recdb/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usersSchema() *schema.Table {
	return &schema.Table{
		Name: "users",
		Cols: []*schema.Column{
			{Name: "id", Type: schema.TypeInt, Width: 10, PrimaryKey: true, Indexed: true},
			{Name: "name", Type: schema.TypeString, Width: 16, NotNull: true},
			{Name: "age", Type: schema.TypeInt, Width: 10},
		},
	}
}

func mustCreate(t *testing.T, dir string, sch *schema.Table) *Table {
	t.Helper()
	tbl, err := Create(dir, sch, Options{})
	require.NoError(t, err)
	return tbl
}

func TestInsertAndSelectAll(t *testing.T) {
	dir := t.TempDir()
	tbl := mustCreate(t, dir, usersSchema())

	require.NoError(t, tbl.Insert([]string{"1", "alice", "30"}))
	require.NoError(t, tbl.Insert([]string{"2", "bob", "25"}))

	rows, err := tbl.SelectAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "alice", "30"}, rows[0])
	assert.Equal(t, []string{"2", "bob", "25"}, rows[1])
}

func TestInsertRejectsDuplicatePrimaryKey(t *testing.T) {
	dir := t.TempDir()
	tbl := mustCreate(t, dir, usersSchema())
	require.NoError(t, tbl.Insert([]string{"1", "alice", "30"}))

	err := tbl.Insert([]string{"1", "carol", "40"})
	assert.Error(t, err)
}

func TestInsertRejectsNotNullViolation(t *testing.T) {
	dir := t.TempDir()
	tbl := mustCreate(t, dir, usersSchema())
	err := tbl.Insert([]string{"1", "", "30"})
	assert.Error(t, err)
}

func TestInsertRejectsBadArity(t *testing.T) {
	dir := t.TempDir()
	tbl := mustCreate(t, dir, usersSchema())
	err := tbl.Insert([]string{"1", "alice"})
	assert.Error(t, err)
}

func TestSelectWhereUsesIndexedFastPath(t *testing.T) {
	dir := t.TempDir()
	tbl := mustCreate(t, dir, usersSchema())
	for i := 1; i <= 5; i++ {
		require.NoError(t, tbl.Insert([]string{itoa(i), "u" + itoa(i), "20"}))
	}

	rows, err := tbl.SelectWhere("id", "=", "3")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "u3", rows[0][1])
}

func TestSelectWhereNonIndexedScansAndComparesNumerically(t *testing.T) {
	dir := t.TempDir()
	tbl := mustCreate(t, dir, usersSchema())
	require.NoError(t, tbl.Insert([]string{"1", "a", "18"}))
	require.NoError(t, tbl.Insert([]string{"2", "b", "40"}))

	rows, err := tbl.SelectWhere("age", ">", "20")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0][1])
}

func TestSelectWhereExprRejectsUnknownColumn(t *testing.T) {
	dir := t.TempDir()
	tbl := mustCreate(t, dir, usersSchema())
	_, err := tbl.SelectWhereExpr("bogus = 1")
	assert.Error(t, err)
}

func TestSelectWhereExprFiltersWithLogic(t *testing.T) {
	dir := t.TempDir()
	tbl := mustCreate(t, dir, usersSchema())
	require.NoError(t, tbl.Insert([]string{"1", "a", "18"}))
	require.NoError(t, tbl.Insert([]string{"2", "b", "40"}))

	rows, err := tbl.SelectWhereExpr("age > 20 && id = 2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0][1])
}

func TestUpdateRewritesMatchingRowsAndRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	tbl := mustCreate(t, dir, usersSchema())
	require.NoError(t, tbl.Insert([]string{"1", "a", "18"}))
	require.NoError(t, tbl.Insert([]string{"2", "b", "40"}))

	n, err := tbl.Update("name", "renamed", "id = 2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := tbl.SelectWhere("id", "=", "2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "renamed", rows[0][1])
}

func TestUpdateRequiresWhereClause(t *testing.T) {
	dir := t.TempDir()
	tbl := mustCreate(t, dir, usersSchema())
	require.NoError(t, tbl.Insert([]string{"1", "a", "18"}))
	_, err := tbl.Update("name", "x", "")
	assert.Error(t, err)
}

func TestDeleteWhereRemovesMatchingRows(t *testing.T) {
	dir := t.TempDir()
	tbl := mustCreate(t, dir, usersSchema())
	require.NoError(t, tbl.Insert([]string{"1", "a", "18"}))
	require.NoError(t, tbl.Insert([]string{"2", "b", "40"}))

	n, err := tbl.DeleteWhere("id = 1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := tbl.SelectAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0][0])
}

func TestDeleteWhereBlockedByForeignKeyReference(t *testing.T) {
	dir := t.TempDir()
	mustCreate(t, dir, usersSchema())

	ordersSchema := &schema.Table{
		Name: "orders",
		Cols: []*schema.Column{
			{Name: "id", Type: schema.TypeInt, Width: 10, PrimaryKey: true},
			{Name: "user_id", Type: schema.TypeInt, Width: 10, ForeignKey: &schema.ForeignKey{RefTable: "users", RefColumn: "id"}},
		},
	}
	orders := mustCreate(t, dir, ordersSchema)

	users, err := Load(dir, "users", Options{})
	require.NoError(t, err)
	require.NoError(t, users.Insert([]string{"1", "alice", "30"}))
	require.NoError(t, orders.Insert([]string{"100", "1"}))

	_, err = users.DeleteWhere("id = 1")
	assert.Error(t, err)
}

func TestInsertRejectsDanglingForeignKey(t *testing.T) {
	dir := t.TempDir()
	mustCreate(t, dir, usersSchema())

	ordersSchema := &schema.Table{
		Name: "orders",
		Cols: []*schema.Column{
			{Name: "id", Type: schema.TypeInt, Width: 10, PrimaryKey: true},
			{Name: "user_id", Type: schema.TypeInt, Width: 10, ForeignKey: &schema.ForeignKey{RefTable: "users", RefColumn: "id"}},
		},
	}
	orders := mustCreate(t, dir, ordersSchema)

	err := orders.Insert([]string{"100", "999"})
	assert.Error(t, err)
}

func TestCreateRejectsForeignKeyTargetingUnknownTable(t *testing.T) {
	dir := t.TempDir()
	ordersSchema := &schema.Table{
		Name: "orders",
		Cols: []*schema.Column{
			{Name: "id", Type: schema.TypeInt, Width: 10, PrimaryKey: true},
			{Name: "user_id", Type: schema.TypeInt, Width: 10, ForeignKey: &schema.ForeignKey{RefTable: "users", RefColumn: "id"}},
		},
	}
	_, err := Create(dir, ordersSchema, Options{})
	assert.Error(t, err)
}

func TestCreateRejectsForeignKeyTargetingNonPrimaryKeyColumn(t *testing.T) {
	dir := t.TempDir()
	mustCreate(t, dir, usersSchema())

	ordersSchema := &schema.Table{
		Name: "orders",
		Cols: []*schema.Column{
			{Name: "id", Type: schema.TypeInt, Width: 10, PrimaryKey: true},
			{Name: "user_name", Type: schema.TypeString, Width: 16, ForeignKey: &schema.ForeignKey{RefTable: "users", RefColumn: "name"}},
		},
	}
	_, err := Create(dir, ordersSchema, Options{})
	assert.Error(t, err)
}

func TestSelectJoinIndexedFastPath(t *testing.T) {
	dir := t.TempDir()
	users := mustCreate(t, dir, usersSchema())
	require.NoError(t, users.Insert([]string{"1", "alice", "30"}))
	require.NoError(t, users.Insert([]string{"2", "bob", "25"}))

	ordersSchema := &schema.Table{
		Name: "orders",
		Cols: []*schema.Column{
			{Name: "id", Type: schema.TypeInt, Width: 10, PrimaryKey: true},
			{Name: "user_id", Type: schema.TypeInt, Width: 10},
		},
	}
	orders := mustCreate(t, dir, ordersSchema)
	require.NoError(t, orders.CreateIndex("user_id"))
	require.NoError(t, orders.Insert([]string{"100", "1"}))
	require.NoError(t, orders.Insert([]string{"101", "2"}))

	rows, err := users.SelectJoin(orders, "id", "user_id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestCreateIndexThenSearchByIndex(t *testing.T) {
	dir := t.TempDir()
	sch := &schema.Table{
		Name: "items",
		Cols: []*schema.Column{
			{Name: "id", Type: schema.TypeInt, Width: 10},
			{Name: "sku", Type: schema.TypeString, Width: 12},
		},
	}
	tbl := mustCreate(t, dir, sch)
	require.NoError(t, tbl.Insert([]string{"1", "abc"}))
	require.NoError(t, tbl.Insert([]string{"2", "def"}))

	require.NoError(t, tbl.CreateIndex("sku"))

	rows, err := tbl.SelectWhere("sku", "=", "def")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0][0])
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
