package isotp

// FrameKind is the high nibble of an ISO-TP PDU's first byte.
type FrameKind uint8

const (
	KindSingle FrameKind = iota
	KindFirst
	KindConsecutive
	KindFlowControl
)

// FlowControlState is the low nibble of a flow-control PDU's first byte.
type FlowControlState uint8

const (
	FlowContinue FlowControlState = iota
	FlowWait
	FlowOverflow
)

func (s FlowControlState) valid() bool {
	return s == FlowContinue || s == FlowWait || s == FlowOverflow
}

// Frame is the ISO-TP PDU sum type: SingleFrame, FirstFrame,
// ConsecutiveFrame, FlowControlFrame. Encode renders the variant-specific
// byte form; Kind reports which variant this is without a type switch.
type Frame interface {
	Kind() FrameKind
	Encode(opts EncodeOptions) []byte
}

// EncodeOptions parameterises Encode: which edition's header rules apply,
// which physical MTU to pad to, and the padding byte.
type EncodeOptions struct {
	Variant   Variant
	FrameSize int // physical MTU: ClassicMTU or FDMTU
	Padding   byte
}

func (o EncodeOptions) padding() byte {
	return o.Padding
}

// SingleFrame carries a payload that fits in one physical CAN frame.
type SingleFrame struct {
	Data []byte
}

func (SingleFrame) Kind() FrameKind { return KindSingle }

func (f SingleFrame) Encode(opts EncodeOptions) []byte {
	if opts.Variant == Variant2016 {
		return encodeSingle2016(f.Data, opts)
	}
	return encodeSingle2004(f.Data, opts)
}

// FirstFrame opens a multi-frame transfer, declaring the total payload
// length.
type FirstFrame struct {
	Length uint32
	Data   []byte
}

func (FirstFrame) Kind() FrameKind { return KindFirst }

func (f FirstFrame) Encode(opts EncodeOptions) []byte {
	if opts.Variant == Variant2016 {
		return encodeFirst2016(f.Length, f.Data)
	}
	return encodeFirst2004(f.Length, f.Data)
}

// ConsecutiveFrame carries one segment of a multi-frame transfer, tagged
// with a 4-bit sequence number that wraps 0..15.
type ConsecutiveFrame struct {
	Sequence uint8
	Data     []byte
}

func (ConsecutiveFrame) Kind() FrameKind { return KindConsecutive }

func (f ConsecutiveFrame) Encode(opts EncodeOptions) []byte {
	out := append([]byte{byte(KindConsecutive)<<4 | (f.Sequence & 0x0F)}, f.Data...)
	return padTo(out, opts)
}

// FlowControlFrame paces the sender of a multi-frame transfer.
type FlowControlFrame struct {
	State     FlowControlState
	BlockSize uint8
	STmin     uint8
}

func (FlowControlFrame) Kind() FrameKind { return KindFlowControl }

func (f FlowControlFrame) Encode(opts EncodeOptions) []byte {
	out := []byte{byte(KindFlowControl)<<4 | byte(f.State), f.BlockSize, f.STmin}
	return padTo(out, opts)
}

// DefaultFlowControlFrame answers a FirstFrame with Continue, unlimited
// block size, and the default separation time.
func DefaultFlowControlFrame() FlowControlFrame {
	return FlowControlFrame{State: FlowContinue, BlockSize: DefaultBlockSize, STmin: DefaultSTmin}
}

func padTo(data []byte, opts EncodeOptions) []byte {
	size := opts.FrameSize
	if size == 0 {
		size = ClassicMTU
	}
	if len(data) >= size {
		return data
	}
	pad := opts.padding()
	out := make([]byte, size)
	copy(out, data)
	for i := len(data); i < size; i++ {
		out[i] = pad
	}
	return out
}

// Decode dispatches on the high nibble of byte 0 and validates the PDU
// against variant and frameSize (ClassicMTU or FDMTU).
func Decode(data []byte, variant Variant, frameSize int) (Frame, error) {
	length := len(data)
	switch {
	case length == 0:
		return nil, ErrEmptyPdu
	case length < 3:
		return nil, &InvalidPduError{Bytes: data}
	}

	byte0 := data[0]
	kind := FrameKind(byte0 >> 4)
	switch kind {
	case KindSingle:
		if variant == Variant2016 {
			return decodeSingle2016(data, byte0, length, frameSize)
		}
		return decodeSingle2004(data, byte0, length, frameSize)
	case KindFirst:
		if variant == Variant2016 {
			return decodeFirst2016(data, byte0, length, frameSize)
		}
		return decodeFirst2004(data, byte0, length, frameSize)
	case KindConsecutive:
		sequence := byte0 & 0x0F
		return ConsecutiveFrame{Sequence: sequence, Data: append([]byte(nil), data[1:]...)}, nil
	case KindFlowControl:
		state := FlowControlState(byte0 & 0x0F)
		if !state.valid() {
			return nil, &InvalidPduError{Bytes: data}
		}
		return FlowControlFrame{State: state, BlockSize: data[1], STmin: data[2]}, nil
	default:
		return nil, &InvalidPduError{Bytes: data}
	}
}

func frameMax(frameSize int) int {
	if frameSize == 0 {
		return ClassicMTU
	}
	return frameSize
}

func invalidDataLength(actual, expect int) error {
	return &InvalidDataLengthError{Actual: actual, Expect: expect}
}
