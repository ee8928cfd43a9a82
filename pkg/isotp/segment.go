package isotp

// Segment splits payload into the Frame sequence a multi-frame ISO-TP send
// transmits: either a single SingleFrame, or a FirstFrame followed by
// ConsecutiveFrames with sequence numbers starting at 1 and wrapping
// 15 -> 0.
func Segment(payload []byte, variant Variant, frameSize int) ([]Frame, error) {
	length := len(payload)
	singleCap := consecutiveFrameCap(frameSize)
	if variant == Variant2016 {
		singleCap = frameMax(frameSize) - 2
	}
	switch {
	case length == 0:
		return nil, ErrEmptyPdu
	case length <= singleCap:
		return []Frame{SingleFrame{Data: append([]byte(nil), payload...)}}, nil
	case length <= MaxLength2004:
		return segmentWithFirstCap(payload, firstFrameCap2004(frameSize), frameSize), nil
	case variant == Variant2016 && uint64(length) <= MaxLength2016:
		return segmentWithFirstCap(payload, firstFrameCap2016(frameSize), frameSize), nil
	default:
		return nil, &LengthOutOfRangeError{Len: length}
	}
}

func segmentWithFirstCap(payload []byte, firstCap, frameSize int) []Frame {
	length := len(payload)
	consecutiveCap := consecutiveFrameCap(frameSize)

	frames := make([]Frame, 0, 1+(length-firstCap+consecutiveCap-1)/consecutiveCap)
	frames = append(frames, FirstFrame{Length: uint32(length), Data: append([]byte(nil), payload[:firstCap]...)})

	offset := firstCap
	sequence := uint8(1)
	for offset < length {
		end := offset + consecutiveCap
		if end > length {
			end = length
		}
		frames = append(frames, ConsecutiveFrame{Sequence: sequence, Data: append([]byte(nil), payload[offset:end]...)})
		offset = end
		if sequence == 0x0F {
			sequence = 0
		} else {
			sequence++
		}
	}
	return frames
}
