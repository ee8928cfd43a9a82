package isotp

import "encoding/binary"

func decodeSingle2016(data []byte, byte0 byte, length, frameSize int) (Frame, error) {
	max := frameMax(frameSize)
	if length > max {
		return nil, &LengthOutOfRangeError{Len: length}
	}
	pduLen := int(byte0 & 0x0F)
	if pduLen > 0 {
		if length < pduLen+1 {
			return nil, &InvalidPduError{Bytes: data}
		}
		return SingleFrame{Data: append([]byte(nil), data[1:1+pduLen]...)}, nil
	}
	pduLen = int(data[1])
	if length < pduLen+2 {
		return nil, &InvalidPduError{Bytes: data}
	}
	return SingleFrame{Data: append([]byte(nil), data[2:2+pduLen]...)}, nil
}

func decodeFirst2016(data []byte, byte0 byte, length, frameSize int) (Frame, error) {
	max := frameMax(frameSize)
	if length != max {
		return nil, invalidDataLength(length, max)
	}
	pduLen := uint32(byte0&0x0F)<<8 | uint32(data[1])
	if pduLen > 0 {
		return FirstFrame{Length: pduLen, Data: append([]byte(nil), data[2:]...)}, nil
	}
	pduLen = binary.BigEndian.Uint32(data[2:6])
	return FirstFrame{Length: pduLen, Data: append([]byte(nil), data[6:]...)}, nil
}

func encodeSingle2016(data []byte, opts EncodeOptions) []byte {
	length := len(data)
	compactCap := singleCompactCap2016(opts.FrameSize)
	var out []byte
	if length <= compactCap {
		out = make([]byte, 0, length+1)
		out = append(out, byte(KindSingle)<<4|byte(length))
	} else {
		out = make([]byte, 0, length+2)
		out = append(out, byte(KindSingle)<<4, byte(length))
	}
	out = append(out, data...)
	return padTo(out, opts)
}

// encodeFirst2016 mirrors decodeFirst2016's escape convention: a 12-bit
// length field of zero signals the 4-byte big-endian escape form starting
// immediately after it, matched byte-for-byte with the decode side above.
func encodeFirst2016(length uint32, data []byte) []byte {
	if length <= MaxLength2004 {
		lenH := byte((length & 0x0F00) >> 8)
		lenL := byte(length & 0x00FF)
		out := make([]byte, 0, len(data)+2)
		out = append(out, byte(KindFirst)<<4|lenH, lenL)
		out = append(out, data...)
		return out
	}
	out := make([]byte, 0, len(data)+6)
	out = append(out, byte(KindFirst)<<4, 0, 0, 0, 0, 0)
	binary.BigEndian.PutUint32(out[2:6], length)
	out = append(out, data...)
	return out
}

func singleCompactCap2016(frameSize int) int {
	max := frameMax(frameSize) - 2
	if max > 15 {
		max = 15
	}
	return max
}

func firstFrameCap2016(frameSize int) int {
	return frameMax(frameSize) - 6
}
