package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []Frame{
		{},
		{Opcode: 0x01, Arg1: 2.0},
		{Opcode: 0x05, Arg1: -10.5, Arg2: 10.5},
		{Opcode: 0xee, Arg1: 7},
		{Opcode: 0xff, Arg1: math.MaxFloat32, Arg2: -math.MaxFloat32},
		{Opcode: 0x7f, Arg1: float32(math.Inf(1)), Arg2: 1e-45},
	}
	for _, f := range cases {
		b := f.Marshal()
		require.Equal(t, FrameSize, len(b))
		back, err := Unmarshal(b)
		require.NoError(t, err)
		assert.Equal(t, f, back)
	}
}

func TestLayout(t *testing.T) {
	t.Parallel()
	f := Frame{Opcode: 0x01, Arg1: 2.0, Arg2: -1.0}
	// opcode byte then two little-endian float32
	assert.Equal(t, []byte{0x01, 0, 0, 0, 0x40, 0, 0, 0x80, 0xbf}, f.Marshal())
}

func TestMalformed(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, 1, 8, 10, 64} {
		_, err := Unmarshal(make([]byte, n))
		assert.Equal(t, ErrFrameSize, err, "len=%d", n)
	}
}

func TestMarshalTo(t *testing.T) {
	t.Parallel()
	// response overwrites the request buffer in place
	buf := make([]byte, FrameSize)
	Frame{Opcode: 0x07, Arg1: 1, Arg2: 2}.MarshalTo(buf)
	f, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, byte(0x07), f.Opcode)
	Frame{Opcode: 0x07, Arg1: 3, Arg2: 4}.MarshalTo(buf)
	f, err = Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, float32(3), f.Arg1)
}
