package cantp

import "fmt"

// Bit layout on the raw 32-bit arbitration word, shared with the Linux
// SocketCAN wire convention. Vendor adapters converting to/from their own
// ABIs preserve this layout on the abstract side.
const (
	IdentifierExtendedFlag uint32 = 0x8000_0000
	IdentifierRemoteFlag   uint32 = 0x4000_0000
	IdentifierErrorFlag    uint32 = 0x2000_0000

	SffMask uint32 = 0x0000_07FF
	EffMask uint32 = 0x1FFF_FFFF
)

// CanId is a tagged union over standard (11-bit) and extended (29-bit)
// arbitration identifiers.
type CanId struct {
	raw      uint32
	extended bool
}

// NewCanId masks raw to EffMask and classifies it according to extended.
// A value that does not fit under SffMask forces Extended regardless of the
// hint; otherwise the hint decides.
func NewCanId(raw uint32, extended bool) CanId {
	masked := raw & EffMask
	if !extended && masked&^SffMask != 0 {
		extended = true
	}
	if extended {
		return CanId{raw: masked & EffMask, extended: true}
	}
	return CanId{raw: masked & SffMask, extended: false}
}

// StandardCanId builds an 11-bit standard id, masking to SffMask.
func StandardCanId(raw uint16) CanId {
	return CanId{raw: uint32(raw) & SffMask, extended: false}
}

// ExtendedCanId builds a 29-bit extended id, masking to EffMask.
func ExtendedCanId(raw uint32) CanId {
	return CanId{raw: raw & EffMask, extended: true}
}

// Raw returns the 32-bit form without any flag bits.
func (id CanId) Raw() uint32 {
	return id.raw
}

// Hex renders the raw id as a zero-padded hex string.
func (id CanId) Hex() string {
	if id.extended {
		return fmt.Sprintf("%08X", id.raw)
	}
	return fmt.Sprintf("%03X", id.raw)
}

// IsExtended reports whether this id carries 29 bits.
func (id CanId) IsExtended() bool {
	return id.extended
}

// StandardID projects an extended id down to its upper 11 bits (ID-28..ID-18).
// Standard ids are returned unchanged.
func (id CanId) StandardID() uint16 {
	if !id.extended {
		return uint16(id.raw)
	}
	return uint16(id.raw >> 18)
}

// String implements fmt.Stringer so a CanId is Display-printable and usable
// as a map key through its comparable struct form.
func (id CanId) String() string {
	return id.Hex()
}
