package vcan

import (
	"bytes"
	"encoding/binary"

	"github.com/vehicleware/cantp"
)

// wireMessage is the fixed 15-byte frame layout serialised onto the
// broker connection, the same bytes.Buffer/binary.Write-then-length-prefix
// scheme as the teacher's virtual.Bus.serializeFrame/deserializeFrame.
type wireMessage struct {
	ID       uint32
	Extended uint8
	Remote   uint8
	Len      uint8
	Data     [8]byte
}

// serializeMessage renders msg as a length-prefixed wireMessage. Only the
// classic 8-byte MTU is supported; vcan models a classic virtual bus for
// test traffic, not an FD one.
func serializeMessage(msg cantp.CanMessage) ([]byte, error) {
	wire := wireMessage{ID: msg.ID.Raw(), Len: uint8(len(msg.Data))}
	if msg.ID.IsExtended() {
		wire.Extended = 1
	}
	if msg.IsRemote {
		wire.Remote = 1
	}
	copy(wire.Data[:], msg.Data)

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, wire); err != nil {
		return nil, err
	}
	body := buf.Bytes()
	framed := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(framed[:4], uint32(len(body)))
	copy(framed[4:], body)
	return framed, nil
}

// deserializeMessage is serializeMessage's inverse, given the payload
// already stripped of its 4-byte length prefix.
func deserializeMessage(payload []byte) (cantp.CanMessage, error) {
	var wire wireMessage
	if err := binary.Read(bytes.NewReader(payload), binary.BigEndian, &wire); err != nil {
		return cantp.CanMessage{}, err
	}
	id := cantp.NewCanId(wire.ID, wire.Extended != 0)
	data := append([]byte(nil), wire.Data[:wire.Len]...)
	return cantp.CanMessage{
		ID:        id,
		Length:    int(wire.Len),
		Data:      data,
		FrameType: cantp.FrameClassic,
		Direction: cantp.DirectionRx,
		IsRemote:  wire.Remote != 0,
	}, nil
}
