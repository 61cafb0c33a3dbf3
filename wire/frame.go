// Package wire implements the fixed-size binary frame shared by requests,
// responses and telemetry pushes.
//
// Layout is 1 opcode byte followed by two little-endian IEEE-754 float32
// values, 9 bytes total. The same layout is used in both directions so one
// buffer can be rewritten in place and echoed back. A datagram is either a
// complete frame or garbage, there is no reassembly.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

const FrameSize = 1 + 2*4

// ErrFrameSize reports a malformed frame: datagram length != FrameSize.
// Per protocol such input is dropped without a response.
var ErrFrameSize = fmt.Errorf("frame must be exactly %d bytes", FrameSize)

type Frame struct {
	Opcode byte
	Arg1   float32
	Arg2   float32
}

func (f Frame) String() string {
	return fmt.Sprintf("op=%02x arg1=%g arg2=%g", f.Opcode, f.Arg1, f.Arg2)
}

// Marshal appends nothing, always returns a fresh FrameSize slice.
func (f Frame) Marshal() []byte {
	b := make([]byte, FrameSize)
	f.MarshalTo(b)
	return b
}

// MarshalTo writes the frame into b which must hold at least FrameSize bytes.
func (f Frame) MarshalTo(b []byte) {
	b[0] = f.Opcode
	binary.LittleEndian.PutUint32(b[1:], math.Float32bits(f.Arg1))
	binary.LittleEndian.PutUint32(b[5:], math.Float32bits(f.Arg2))
}

func Unmarshal(b []byte) (Frame, error) {
	if len(b) != FrameSize {
		return Frame{}, ErrFrameSize
	}
	f := Frame{
		Opcode: b[0],
		Arg1:   math.Float32frombits(binary.LittleEndian.Uint32(b[1:])),
		Arg2:   math.Float32frombits(binary.LittleEndian.Uint32(b[5:])),
	}
	return f, nil
}
