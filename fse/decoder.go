package fse

import (
	"errors"

	"github.com/ifd3f/zstdhuff/bitstream"
)

// FSEDecoder tracks one decode state walking over a table. Two of these can
// share the same table to decode interleaved streams.
type FSEDecoder struct {
	Table *FSETable
	State int
}

func NewFSEDecoder(table *FSETable) *FSEDecoder {
	return &FSEDecoder{Table: table}
}

var ErrTableUninitialized = errors.New("Decoding table was not built yet")

// InitState reads the initial state from the stream.
// Returns the number of bits read.
func (dec *FSEDecoder) InitState(src *bitstream.Reversebitstream) (int, error) {
	if dec.Table == nil || len(dec.Table.DecodingTable) == 0 {
		return 0, ErrTableUninitialized
	}
	state, err := src.Read(dec.Table.AccuracyLog)
	if err != nil {
		return 0, err
	}
	dec.State = int(state)
	return dec.Table.AccuracyLog, nil
}

// DecodeSymbol returns the symbol the current state maps to, without
// advancing the state.
func (dec *FSEDecoder) DecodeSymbol() byte {
	return dec.Table.DecodingTable[dec.State].Symbol
}

// UpdateState reads the bits for the current state's transition and moves to
// the next state. Returns the number of bits read.
func (dec *FSEDecoder) UpdateState(src *bitstream.Reversebitstream) (int, error) {
	entry := dec.Table.DecodingTable[dec.State]
	add, err := src.Read(int(entry.NumberOfBits))
	if err != nil {
		return 0, err
	}
	dec.State = int(entry.Baseline) + int(add)
	return int(entry.NumberOfBits), nil
}
