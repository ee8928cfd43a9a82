package isotp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleFrameRoundTrip(t *testing.T) {
	frame := SingleFrame{Data: []byte{0x10, 0x01}}
	got := frame.Encode(EncodeOptions{Variant: Variant2004, FrameSize: ClassicMTU, Padding: 0x00})
	assert.Equal(t, []byte{0x02, 0x10, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00}, got)

	decoded, err := Decode(got, Variant2004, ClassicMTU)
	require.NoError(t, err)
	assert.Equal(t, SingleFrame{Data: []byte{0x10, 0x01}}, decoded)
}

func TestFirstFrameRoundTrip(t *testing.T) {
	frame := FirstFrame{Length: 0x0F, Data: []byte{0x62, 0xF1, 0x87, 0x44, 0x56, 0x43}}
	got := frame.Encode(EncodeOptions{Variant: Variant2004, FrameSize: ClassicMTU})
	assert.Equal(t, []byte{0x10, 0x0F, 0x62, 0xF1, 0x87, 0x44, 0x56, 0x43}, got)

	decoded, err := Decode(got, Variant2004, ClassicMTU)
	require.NoError(t, err)
	assert.Equal(t, FirstFrame{Length: 0x0F, Data: []byte{0x62, 0xF1, 0x87, 0x44, 0x56, 0x43}}, decoded)
}

func TestConsecutiveFrameEncode(t *testing.T) {
	frame := ConsecutiveFrame{Sequence: 1, Data: []byte{0x37, 0x45, 0x32, 0x30, 0x30, 0x30, 0x30}}
	got := frame.Encode(EncodeOptions{Variant: Variant2004, FrameSize: ClassicMTU})
	assert.Equal(t, []byte{0x21, 0x37, 0x45, 0x32, 0x30, 0x30, 0x30, 0x30}, got)
}

func TestFlowControlEncode(t *testing.T) {
	frame := FlowControlFrame{State: FlowContinue, BlockSize: 0, STmin: 0x0A}
	got := frame.Encode(EncodeOptions{Variant: Variant2004, FrameSize: ClassicMTU, Padding: 0x55})
	assert.Equal(t, []byte{0x30, 0x00, 0x0A, 0x55, 0x55, 0x55, 0x55, 0x55}, got)

	decoded, err := Decode(got, Variant2004, ClassicMTU)
	require.NoError(t, err)
	fc, ok := decoded.(FlowControlFrame)
	require.True(t, ok)
	assert.Equal(t, FlowContinue, fc.State)
	assert.Equal(t, uint8(0), fc.BlockSize)
	assert.Equal(t, uint8(0x0A), fc.STmin)
}

func TestDefaultFlowControlFrame(t *testing.T) {
	frame := DefaultFlowControlFrame()
	got := frame.Encode(EncodeOptions{Variant: Variant2004, FrameSize: ClassicMTU, Padding: 0x55})
	assert.Equal(t, []byte{0x30, 0x00, 0x0A, 0x55, 0x55, 0x55, 0x55, 0x55}, got)
}

func TestDecodeEmptyPdu(t *testing.T) {
	_, err := Decode(nil, Variant2004, ClassicMTU)
	assert.ErrorIs(t, err, ErrEmptyPdu)
}

func TestDecodeShortPdu(t *testing.T) {
	_, err := Decode([]byte{0x02, 0x10}, Variant2004, ClassicMTU)
	var invalid *InvalidPduError
	assert.ErrorAs(t, err, &invalid)
}
