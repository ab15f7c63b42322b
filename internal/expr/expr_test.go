package expr

import (
	"testing"

	"github.com/RecDB/recdb/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCols() []*schema.Column {
	return []*schema.Column{
		{Name: "age", Type: schema.TypeInt, Width: 10},
		{Name: "dept", Type: schema.TypeString, Width: 16},
	}
}

func TestEvalRowNumericComparison(t *testing.T) {
	cols := testCols()
	ok, err := EvalRow(cols, []string{"30", "eng"}, "age > 18")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvalRow(cols, []string{"10", "eng"}, "age > 18")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvalRowLogicalConnectives(t *testing.T) {
	cols := testCols()
	row := []string{"30", "eng"}

	ok, err := EvalRow(cols, row, `age > 18 && dept = "eng"`)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvalRow(cols, row, "age > 18 AND dept = eng")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvalRow(cols, row, `age < 18 || dept = "eng"`)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvalRow(cols, row, "! ( age < 18 )")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvalRowParentheses(t *testing.T) {
	cols := testCols()
	row := []string{"30", "eng"}
	ok, err := EvalRow(cols, row, `( age > 18 && dept = "eng" ) || age = 0`)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNumericComparisonExcludesNegativeNumbers(t *testing.T) {
	// Matches the original engine: only unsigned digit runs are compared
	// numerically. A value with a leading '-' falls back to lexicographic
	// byte comparison instead of signed numeric comparison, so "-5" < "3"
	// holds because '-' (0x2D) sorts below '3' (0x33) byte-for-byte, not
	// because -5 is numerically less than 3.
	ok, err := Eval(`"-5" < "3"`)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidateRejectsUnknownColumn(t *testing.T) {
	cols := testCols()
	assert.Error(t, Validate(cols, "salary > 100"))
}

func TestValidateAcceptsAllKnownColumns(t *testing.T) {
	cols := testCols()
	assert.NoError(t, Validate(cols, `age > 18 && dept = "eng"`))
}

func TestValidateChecksEveryToken(t *testing.T) {
	// Regression for the original's early-return bug: a clause with a
	// known column followed by an unknown one must fail, not succeed on
	// the first match.
	cols := testCols()
	err := Validate(cols, "age > 18 && bogus = 1")
	assert.Error(t, err)
}
