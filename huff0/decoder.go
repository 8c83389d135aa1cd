package huff0

import (
	"errors"
	"fmt"

	"github.com/ifd3f/zstdhuff/bitstream"
)

// HuffmanDecoder tracks one decode position walking over a table. The state
// is the last MaxNumBits bits read from the stream, the table tells how many
// of them the current symbol actually consumed.
type HuffmanDecoder struct {
	Table *HuffmanTable
	State int
}

func NewHuffmanDecoder(table *HuffmanTable) *HuffmanDecoder {
	return &HuffmanDecoder{Table: table}
}

// Reset readies the decoder for a new stream. A nil table keeps the current
// one.
func (dec *HuffmanDecoder) Reset(table *HuffmanTable) {
	if table != nil {
		dec.Table = table
	}
	dec.State = 0
}

// InitState loads the first full window of bits from the stream.
// Returns the number of bits read.
func (dec *HuffmanDecoder) InitState(src *bitstream.Reversebitstream) (int, error) {
	state, err := src.Read(dec.Table.MaxNumBits)
	if err != nil {
		return 0, err
	}
	dec.State = int(state)
	return dec.Table.MaxNumBits, nil
}

// DecodeSymbol returns the symbol the current state maps to, without
// advancing the state.
func (dec *HuffmanDecoder) DecodeSymbol() byte {
	return dec.Table.Decode[dec.State].Symbol
}

// NextState shifts out the bits the current symbol consumed and pulls the
// same number of fresh bits into the window. Returns the number of bits
// read.
func (dec *HuffmanDecoder) NextState(src *bitstream.Reversebitstream) (int, error) {
	numBits := dec.Table.Decode[dec.State].NumBits
	newBits, err := src.Read(int(numBits))
	if err != nil {
		return 0, err
	}
	dec.State = dec.State<<numBits&(len(dec.Table.Decode)-1) | int(newBits)
	return int(numBits), nil
}

var ErrNotAllBitsUsed = errors.New("Did not use all bits of the stream. Likely data is corrupted")
var ErrOutputTooSmall = errors.New("Output buffer is too small for the decoded stream")

// DecodeStream decodes one huffman coded stream into output and returns the
// number of symbols written. The stream must account for every bit: after
// the last symbol the reader has to sit exactly MaxNumBits past the end.
func (table *HuffmanTable) DecodeStream(data []byte, output []byte) (int, error) {
	bitsrc := bitstream.NewReversebitstream(data)

	// skip the zero padding at the end of the last byte and throw away the
	// first 1 found
	skipped := 0
	for {
		val, err := bitsrc.Read(1)
		if err != nil {
			return 0, err
		}
		skipped++
		if val == 1 || skipped > 8 {
			break
		}
	}
	if skipped > 8 {
		return 0, fmt.Errorf("%w: %d zero bits", ErrExtraPadding, skipped)
	}

	dec := NewHuffmanDecoder(table)
	if _, err := dec.InitState(bitsrc); err != nil {
		return 0, err
	}

	written := 0
	for bitsrc.BitsRemaining() > -table.MaxNumBits {
		if written == len(output) {
			return written, ErrOutputTooSmall
		}
		output[written] = dec.DecodeSymbol()
		written++
		if _, err := dec.NextState(bitsrc); err != nil {
			return written, err
		}
	}

	// a well formed stream overruns by exactly the initial window
	if bitsrc.BitsRemaining() != -table.MaxNumBits {
		return written, fmt.Errorf("%w: %d bits overrun, want %d", ErrNotAllBitsUsed, -bitsrc.BitsRemaining(), table.MaxNumBits)
	}
	return written, nil
}
