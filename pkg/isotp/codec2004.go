package isotp

func decodeSingle2004(data []byte, byte0 byte, length, frameSize int) (Frame, error) {
	max := frameMax(frameSize)
	if length > max {
		return nil, &LengthOutOfRangeError{Len: length}
	}
	pduLen := int(byte0 & 0x0F)
	if length < pduLen+1 {
		return nil, &InvalidPduError{Bytes: data}
	}
	return SingleFrame{Data: append([]byte(nil), data[1:1+pduLen]...)}, nil
}

func decodeFirst2004(data []byte, byte0 byte, length, frameSize int) (Frame, error) {
	max := frameMax(frameSize)
	if length != max {
		return nil, invalidDataLength(length, max)
	}
	pduLen := uint32(byte0&0x0F)<<8 | uint32(data[1])
	return FirstFrame{Length: pduLen, Data: append([]byte(nil), data[2:]...)}, nil
}

func encodeSingle2004(data []byte, opts EncodeOptions) []byte {
	length := len(data)
	out := make([]byte, 0, length+1)
	out = append(out, byte(KindSingle)<<4|byte(length))
	out = append(out, data...)
	return padTo(out, opts)
}

func encodeFirst2004(length uint32, data []byte) []byte {
	lenH := byte((length & 0x0F00) >> 8)
	lenL := byte(length & 0x00FF)
	out := make([]byte, 0, len(data)+2)
	out = append(out, byte(KindFirst)<<4|lenH, lenL)
	out = append(out, data...)
	return out
}

func singleFrameCap2004(frameSize int) int {
	return frameMax(frameSize) - 1
}

func firstFrameCap2004(frameSize int) int {
	return frameMax(frameSize) - 2
}

func consecutiveFrameCap(frameSize int) int {
	return frameMax(frameSize) - 1
}
