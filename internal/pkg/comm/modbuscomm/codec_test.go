package modbuscomm

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"gotest.tools/v3/assert"
)

func TestEncode(t *testing.T) {
	cases := []struct {
		dt     DataType
		endian Endian
		val    float64
		want   []byte
	}{
		{u16, bigEndian, 1234, []byte{4, 210}},
		{u16, littleEndian, 1234, []byte{210, 4}},
		{i16, bigEndian, -1234, []byte{251, 46}},
		{u32, bigEndian, 1234, []byte{0, 0, 4, 210}},
		{i32, littleEndian, -1234, []byte{46, 251, 255, 255}},
		{f32, bigEndian, -1234, []byte{196, 154, 64, 0}},
		{u64, littleEndian, 1234, []byte{210, 4, 0, 0, 0, 0, 0, 0}},
		{i64, bigEndian, 1234, []byte{0, 0, 0, 0, 0, 0, 4, 210}},
		{f64, bigEndian, -1234, []byte{192, 147, 72, 0, 0, 0, 0, 0}},
	}
	for _, c := range cases {
		reg := Register{Name: "test", DataType: c.dt, Endianness: c.endian}
		assert.DeepEqual(t, encode(c.val, reg), c.want)
		assert.Equal(t, decode(c.want, reg), c.val)
	}
}

func TestDecodeShortResponse(t *testing.T) {
	reg := Register{Name: "test", DataType: u32, Endianness: bigEndian}
	assert.Equal(t, decode([]byte{1, 2}, reg), 0.0)
}

func TestSigned16Truncates(t *testing.T) {
	properties := gopter.NewProperties(nil)
	reg := Register{Name: "test", DataType: i16, Endianness: littleEndian}

	properties.Property("i16 keeps the integer part", prop.ForAll(
		func(v float64) bool {
			return decode(encode(v, reg), reg) == math.Trunc(v)
		},
		gen.Float64Range(-32767, 32767),
	))
	properties.TestingRun(t)
}
