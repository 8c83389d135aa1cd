package bitstream

import "errors"

// Reversebitstream serves bits from the tail of a byte buffer toward its
// head. The first bit read is the most significant bit of the last byte.
// Entropy-coded payloads are written front to back by the encoder, so the
// decoder has to start at the back.
type Reversebitstream struct {
	Data   []byte
	offset int
}

// cant implement this on a reader because we need to read backwards
func NewReversebitstream(data []byte) *Reversebitstream {
	return &Reversebitstream{Data: data, offset: (len(data) * 8) - 1}
}

// BitsRemaining is negative once the stream has been overrun. Decode loops
// use this as their exhaustion signal instead of a read error.
func (rbs *Reversebitstream) BitsRemaining() int {
	return rbs.offset + 1
}

var ErrReadTooLarge = errors.New("Can only serve reads up to 56 bits")

// Read returns the next n bits, first-read bit in the highest position.
// Reading past the start of the buffer yields zero bits and keeps
// decrementing the position, so BitsRemaining goes negative instead of
// Read failing. The only error is a request outside [0,56].
func (rbs *Reversebitstream) Read(n int) (uint64, error) {
	if n < 0 || n > 56 {
		return 0, ErrReadTooLarge
	}

	var value uint64

	if rbs.offset <= -1 {
		// reading over the end of the stream only updates the offset
		rbs.offset -= n
		return 0, nil
	}

	bitsLeftInLastByte := (rbs.offset + 1) % 8
	if bitsLeftInLastByte == 0 {
		bitsLeftInLastByte = 8 // at the highest bit of the next byte
	}
	idxOfLastByte := rbs.offset / 8

	// can satisfy with bits from the last byte
	if n < bitsLeftInLastByte {
		keepBitsInLastByte := uint(bitsLeftInLastByte - n)
		mask := byte(1<<uint(n)) - 1

		tmp := rbs.Data[idxOfLastByte]
		tmp = tmp >> keepBitsInLastByte

		value = uint64(tmp & mask)

		rbs.offset -= n
		return value, nil
	}

	lastByteMask := byte(1<<uint(bitsLeftInLastByte)) - 1
	lastByteValue := uint64(rbs.Data[idxOfLastByte] & lastByteMask)

	if n == bitsLeftInLastByte {
		rbs.offset -= n
		return lastByteValue, nil
	}

	spanningFullBytes := (n - bitsLeftInLastByte) / 8
	idxOfLowestByte := idxOfLastByte - spanningFullBytes

	// the lowest bits of the value come from the highest bits of the byte
	// below the spanned ones. We read backwards.
	bitsFromLowestByte := (n - bitsLeftInLastByte) % 8
	shiftInLowestByte := 8 - bitsFromLowestByte

	// we may go beyond the start of the buffer. Act as if those were just zeros
	if idxOfLowestByte-1 >= 0 {
		value = uint64(rbs.Data[idxOfLowestByte-1] >> uint(shiftInLowestByte))
	}

	start := 0
	if idxOfLowestByte < 0 {
		start = -idxOfLowestByte
	}

	for i := start; i < spanningFullBytes; i++ {
		value += uint64(rbs.Data[idxOfLowestByte+i]) << uint(i*8+bitsFromLowestByte)
	}

	shift := uint(spanningFullBytes*8 + bitsFromLowestByte)
	value += lastByteValue << shift

	rbs.offset -= n
	return value, nil
}
