//go:build linux

package socketcan

import (
	"github.com/vehicleware/cantp"
)

const (
	canfdBRS = 0x01 // bit rate switch
	canfdESI = 0x02 // error state indicator
)

// classicFrame is the 16-byte struct linux/can.h calls struct can_frame.
type classicFrame struct {
	id   uint32
	dlc  uint8
	pad  uint8
	res0 uint8
	res1 uint8
	data [8]uint8
}

// fdFrame is the 72-byte struct linux/can.h calls struct canfd_frame.
type fdFrame struct {
	id    uint32
	len   uint8
	flags uint8
	res0  uint8
	res1  uint8
	data  [64]uint8
}

// encodeID applies the socketcan flag bits (EFF/RTR/ERR) on top of the
// 29-bit or 11-bit arbitration value, matching the kernel wire convention
// shared with the abstract CanId.
func encodeID(msg cantp.CanMessage) uint32 {
	raw := msg.ID.Raw()
	if msg.ID.IsExtended() {
		raw |= cantp.IdentifierExtendedFlag
	}
	if msg.IsRemote {
		raw |= cantp.IdentifierRemoteFlag
	}
	if msg.IsError {
		raw |= cantp.IdentifierErrorFlag
	}
	return raw
}

func decodeID(raw uint32) (cantp.CanId, bool, bool) {
	extended := raw&cantp.IdentifierExtendedFlag != 0
	remote := raw&cantp.IdentifierRemoteFlag != 0
	isError := raw&cantp.IdentifierErrorFlag != 0
	value := raw & cantp.EffMask
	if !extended {
		value &= cantp.SffMask
	}
	return cantp.NewCanId(value, extended), remote, isError
}
