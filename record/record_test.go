package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayoutOffsets(t *testing.T) {
	layout := NewLayout(
		Char("name", 10),
		Int32("qty"),
		Float64("price"),
	)

	assert.Equal(t, 0, layout.Offset("name"))
	assert.Equal(t, 10, layout.Offset("qty"))
	assert.Equal(t, 14, layout.Offset("price"))
	assert.Equal(t, 22, layout.Size())
}

func TestRoundTrip(t *testing.T) {
	layout := NewLayout(
		Int32("id"),
		Char("label", 6),
		Float64("weight"),
	)

	rec := layout.New()
	layout.PutInt32(rec, "id", -42)
	layout.PutChar(rec, "label", "box")
	layout.PutFloat64(rec, "weight", 12.5)

	assert.Equal(t, int32(-42), layout.Int32(rec, "id"))
	assert.Equal(t, []byte{'b', 'o', 'x', 0, 0, 0}, layout.Char(rec, "label"))
	assert.Equal(t, 12.5, layout.Float64(rec, "weight"))
}

func TestCharTruncation(t *testing.T) {
	layout := NewLayout(Char("s", 4))
	rec := layout.New()
	layout.PutChar(rec, "s", "overflowing")
	assert.Equal(t, []byte("over"), layout.Char(rec, "s"))
}
