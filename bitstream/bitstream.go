package bitstream

import "errors"

// Bitstream reads a byte slice front to back, least significant bit first.
// Table descriptions are laid out this way, opposite to the reversed
// payload streams.
type Bitstream struct {
	data     []byte
	position int
}

func NewBitstream(data []byte) *Bitstream {
	return &Bitstream{data: data}
}

// BitsRead returns the total number of bits consumed so far. Callers use it
// to account for whole bytes taken out of the source.
func (bs *Bitstream) BitsRead() int {
	return bs.position
}

var ErrCantUnwind = errors.New("Cant unwind past the start of the stream")

// UnwindBit steps one bit back. Probability parsing reads one speculative
// bit that sometimes belongs to the next field.
func (bs *Bitstream) UnwindBit() error {
	if bs.position == 0 {
		return ErrCantUnwind
	}
	bs.position--
	return nil
}

var ErrNotEnoughBits = errors.New("Not enough bits left in the stream")

func (bs *Bitstream) Read(n int) (uint64, error) {
	if n < 0 || n > 56 {
		return 0, ErrReadTooLarge
	}
	if bs.position+n > len(bs.data)*8 {
		return 0, ErrNotEnoughBits
	}

	var value uint64
	collected := 0
	for collected < n {
		idx := bs.position / 8
		bitInByte := bs.position % 8

		take := 8 - bitInByte
		if take > n-collected {
			take = n - collected
		}

		mask := byte(1<<uint(take)) - 1
		value |= uint64((bs.data[idx]>>uint(bitInByte))&mask) << uint(collected)

		collected += take
		bs.position += take
	}
	return value, nil
}
