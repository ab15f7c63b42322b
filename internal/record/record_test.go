package record

import (
	"testing"

	"github.com/RecDB/recdb/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cols() []*schema.Column {
	return []*schema.Column{
		{Name: "id", Type: schema.TypeInt, Width: 10},
		{Name: "name", Type: schema.TypeString, Width: 8},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := cols()
	buf, err := Encode(c, []string{"42", "bob"})
	require.NoError(t, err)
	assert.Len(t, buf, 18)

	vals := Decode(c, buf)
	assert.Equal(t, []string{"42", "bob"}, vals)
}

func TestEncodeRejectsOversizedString(t *testing.T) {
	c := cols()
	_, err := Encode(c, []string{"1", "way too long for 8 bytes"})
	assert.Error(t, err)
}

func TestEncodeRejectsNonIntValue(t *testing.T) {
	c := cols()
	_, err := Encode(c, []string{"notanumber", "bob"})
	assert.Error(t, err)
}

func TestEncodeRejectsWrongArity(t *testing.T) {
	c := cols()
	_, err := Encode(c, []string{"1"})
	assert.Error(t, err)
}

func TestDecodeTrimsNulPadding(t *testing.T) {
	c := cols()
	buf := make([]byte, 18)
	copy(buf[0:10], "7")
	copy(buf[10:18], "al")
	vals := Decode(c, buf)
	assert.Equal(t, "7", vals[0])
	assert.Equal(t, "al", vals[1])
}
