package cantp

import "time"

// DefaultPadding is applied when extending a payload to the physical frame
// slot size.
const DefaultPadding byte = 0xAA

// MTU sizes per declared frame type. CAN-XL is declared but its wire
// encoding is not specified; ClassicMTU/FDMTU are the two this module
// actually encodes against.
const (
	ClassicMTU = 8
	FDMTU      = 64
	XLMTU      = 2048
)

// FrameType tags the physical frame format a message travels in.
type FrameType uint8

const (
	FrameClassic FrameType = iota
	FrameFD
	FrameXL
)

func (t FrameType) mtu() int {
	switch t {
	case FrameFD:
		return FDMTU
	case FrameXL:
		return XLMTU
	default:
		return ClassicMTU
	}
}

// Direction tags whether a message was sent or received.
type Direction uint8

const (
	DirectionTx Direction = iota
	DirectionRx
)

// TxMode carries a vendor tx-mode word through unchanged. Its exact
// semantics (Once vs SelfReception) vary across vendor ABIs; this module
// never interprets it, only stores and forwards it.
type TxMode uint8

const (
	TxModeNormal TxMode = iota
	TxModeOnce
	TxModeSelfReception
	TxModeSelfReceptionOnce
)

// ChannelID is the opaque handle distinguishing one bus attachment. For
// kernel sockets it holds an interface name; for vendor devices a small
// integer rendered as a string. It is always Display-printable and usable
// as a map key.
type ChannelID string

func (c ChannelID) String() string { return string(c) }

// CanMessage is the abstract message carried between the driver contract
// and everything above it.
type CanMessage struct {
	Timestamp time.Time
	ID        CanId
	Channel   ChannelID
	Length    int
	Data      []byte

	FrameType           FrameType
	Direction           Direction
	IsRemote            bool
	IsError             bool
	BitrateSwitch       bool
	ErrorStateIndicator bool
	TxMode              TxMode
}

// NewDataMessage builds a Tx data message on channel. data is stored as
// given and is not truncated to the frame type's MTU (the caller is
// expected to have already segmented longer payloads).
func NewDataMessage(channel ChannelID, id CanId, frameType FrameType, data []byte) CanMessage {
	return CanMessage{
		ID:        id,
		Channel:   channel,
		Length:    len(data),
		Data:      data,
		FrameType: frameType,
		Direction: DirectionTx,
	}
}

// NewRemoteMessage builds a remote-frame request: no payload, but a
// declared length.
func NewRemoteMessage(channel ChannelID, id CanId, frameType FrameType, length int) CanMessage {
	return CanMessage{
		ID:        id,
		Channel:   channel,
		Length:    length,
		FrameType: frameType,
		Direction: DirectionTx,
		IsRemote:  true,
	}
}

// Pad extends data to the frame type's MTU using padByte, returning a new
// slice; data longer than the MTU is returned unchanged (callers segment
// before reaching the codec).
func Pad(data []byte, frameType FrameType, padByte byte) []byte {
	mtu := frameType.mtu()
	if len(data) >= mtu {
		return data
	}
	out := make([]byte, mtu)
	copy(out, data)
	for i := len(data); i < mtu; i++ {
		out[i] = padByte
	}
	return out
}
