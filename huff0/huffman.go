package huff0

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/ifd3f/zstdhuff/bitstream"
	"github.com/ifd3f/zstdhuff/fse"
)

// longest huffman code the format allows
const maxMaxNumBits = 11

type Entry struct {
	Symbol  byte
	NumBits byte
}

// HuffmanTable maps all possible maxNumBits wide bit patterns to the symbol
// whose code is a prefix of the pattern. Codes shorter than maxNumBits own a
// whole range of cells, so a decoder can always look up maxNumBits at once.
// Once built the table is only read from, any number of decoders can share
// it. Rebuilding needs exclusive access.
type HuffmanTable struct {
	Decode []Entry

	Weights     []byte
	MaxNumBits  int
	Bits        []byte
	BitRanks    []int
	RankIndexes []int

	fseTable fse.FSETable
}

func NewHuffmanTable() *HuffmanTable {
	return &HuffmanTable{}
}

// Reset clears the table for reuse but keeps the allocations around.
func (table *HuffmanTable) Reset() {
	table.Decode = table.Decode[:0]
	table.Weights = table.Weights[:0]
	table.MaxNumBits = 0
	table.Bits = table.Bits[:0]
	table.BitRanks = table.BitRanks[:0]
	table.RankIndexes = table.RankIndexes[:0]
	table.fseTable.Reset()
}

// CopyFrom makes table an independent copy of other, ready for decoding
// without rebuilding.
func (table *HuffmanTable) CopyFrom(other *HuffmanTable) {
	table.Decode = append(table.Decode[:0], other.Decode...)
	table.Weights = append(table.Weights[:0], other.Weights...)
	table.MaxNumBits = other.MaxNumBits
	table.Bits = append(table.Bits[:0], other.Bits...)
	table.BitRanks = append(table.BitRanks[:0], other.BitRanks...)
	table.RankIndexes = append(table.RankIndexes[:0], other.RankIndexes...)
}

// BuildDecoder reads a weight section from the start of source and builds
// the decoding table from it. It reports the number of bytes the section
// occupied.
func (table *HuffmanTable) BuildDecoder(source []byte) (int, error) {
	table.Decode = table.Decode[:0]

	bytesUsed, err := table.readWeights(source)
	if err != nil {
		return bytesUsed, err
	}
	if err := table.buildTableFromWeights(); err != nil {
		return bytesUsed, err
	}
	return bytesUsed, nil
}

var ErrSourceEmpty = errors.New("Weight source needs to have at least one byte")
var ErrNotEnoughBytesForWeights = errors.New("Weight section is smaller than its header says")
var ErrTableUsedTooManyBytes = errors.New("Table description used more bytes than the weight section contains")
var ErrNotEnoughBytesToDecompressWeights = errors.New("No bytes left to decompress weights from")
var ErrExtraPadding = errors.New("More than 8 padding bits at the end of the stream. Likely data is corrupted")
var ErrTooManyWeights = errors.New("More than 255 weights decoded. Stream is probably corrupted")
var ErrNotEnoughBytesInSource = errors.New("Not enough bytes to read the directly encoded weights")

func (table *HuffmanTable) readWeights(source []byte) (int, error) {
	if len(source) == 0 {
		return 0, ErrSourceEmpty
	}
	header := source[0]

	if header >= 128 {
		// weights are directly encoded, one nibble each
		numWeights := int(header) - 127
		bytesNeeded := (numWeights + 1) / 2

		weightsRaw := source[1:]
		if len(weightsRaw) < bytesNeeded {
			return 1, fmt.Errorf("%w: got %d, need %d", ErrNotEnoughBytesInSource, len(weightsRaw), bytesNeeded)
		}

		table.Weights = table.Weights[:0]
		for idx := 0; idx < numWeights; idx++ {
			if idx%2 == 0 {
				table.Weights = append(table.Weights, weightsRaw[idx/2]>>4)
			} else {
				table.Weights = append(table.Weights, weightsRaw[idx/2]&0xF)
			}
		}
		return 1 + bytesNeeded, nil
	}

	// weights are compressed as two interleaved fse streams
	fseStream := source[1:]
	if int(header) > len(fseStream) {
		return 1, fmt.Errorf("%w: got %d, expected %d", ErrNotEnoughBytesForWeights, len(fseStream), header)
	}

	fseBytes, err := table.fseTable.BuildDecoder(fseStream, 255)
	if err != nil {
		return 1 + fseBytes, err
	}
	if fseBytes > int(header) {
		return 1 + fseBytes, fmt.Errorf("%w: used %d, available %d", ErrTableUsedTooManyBytes, fseBytes, header)
	}

	compressedLength := int(header) - fseBytes
	compressedWeights := fseStream[fseBytes:]
	if len(compressedWeights) < compressedLength {
		return 1 + fseBytes, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughBytesToDecompressWeights, len(compressedWeights), compressedLength)
	}
	compressedWeights = compressedWeights[:compressedLength]

	bitsrc := bitstream.NewReversebitstream(compressedWeights)

	// skip the zero padding at the end of the last byte and throw away the
	// first 1 found
	skipped := 0
	for {
		val, err := bitsrc.Read(1)
		if err != nil {
			return 1 + int(header), err
		}
		skipped++
		if val == 1 || skipped > 8 {
			break
		}
	}
	if skipped > 8 {
		return 1 + int(header), fmt.Errorf("%w: %d zero bits", ErrExtraPadding, skipped)
	}

	dec1 := fse.NewFSEDecoder(&table.fseTable)
	dec2 := fse.NewFSEDecoder(&table.fseTable)

	if _, err := dec1.InitState(bitsrc); err != nil {
		return 1 + int(header), err
	}
	if _, err := dec2.InitState(bitsrc); err != nil {
		return 1 + int(header), err
	}

	table.Weights = table.Weights[:0]

	for {
		table.Weights = append(table.Weights, dec1.DecodeSymbol())
		if _, err := dec1.UpdateState(bitsrc); err != nil {
			return 1 + int(header), err
		}
		if bitsrc.BitsRemaining() <= -1 {
			// collect the other decoder's final state
			table.Weights = append(table.Weights, dec2.DecodeSymbol())
			break
		}

		table.Weights = append(table.Weights, dec2.DecodeSymbol())
		if _, err := dec2.UpdateState(bitsrc); err != nil {
			return 1 + int(header), err
		}
		if bitsrc.BitsRemaining() <= -1 {
			table.Weights = append(table.Weights, dec1.DecodeSymbol())
			break
		}

		// the maximum is 255 weights because symbols are bytes and the last
		// weight is inferred from the sum of all others
		if len(table.Weights) > 255 {
			return 1 + int(header), fmt.Errorf("%w: got %d", ErrTooManyWeights, len(table.Weights))
		}
	}

	return 1 + int(header), nil
}

var ErrWeightTooBig = errors.New("Weights cant be bigger than 11")
var ErrMissingWeights = errors.New("Cant build a huffman table without any weights")
var ErrLeftoverNotPowerOfTwo = errors.New("Leftover weight must be a power of two")
var ErrMaxBitsTooHigh = errors.New("Weights require codes longer than 11 bits")

func (table *HuffmanTable) buildTableFromWeights() error {
	weightSum := uint32(0)
	for _, w := range table.Weights {
		if w > maxMaxNumBits {
			return fmt.Errorf("%w: got %d", ErrWeightTooBig, w)
		}
		if w > 0 {
			weightSum += 1 << (w - 1)
		}
	}
	if weightSum == 0 {
		return ErrMissingWeights
	}

	maxBits := bits.Len32(weightSum)
	leftOver := uint32(1)<<uint(maxBits) - weightSum

	// the last weight is not stored, it fills the gap up to the next power
	// of two. No gap or a gap that is not a power of two means the weights
	// are corrupted
	if leftOver == 0 || leftOver&(leftOver-1) != 0 {
		return fmt.Errorf("%w: got %d", ErrLeftoverNotPowerOfTwo, leftOver)
	}
	lastWeight := bits.Len32(leftOver)

	table.Bits = table.Bits[:0]
	for _, w := range table.Weights {
		if w > 0 {
			table.Bits = append(table.Bits, byte(maxBits+1)-w)
		} else {
			table.Bits = append(table.Bits, 0)
		}
	}
	table.Bits = append(table.Bits, byte(maxBits+1-lastWeight))
	table.MaxNumBits = maxBits

	if maxBits > maxMaxNumBits {
		return fmt.Errorf("%w: got %d", ErrMaxBitsTooHigh, maxBits)
	}

	if cap(table.BitRanks) >= maxBits+1 {
		table.BitRanks = table.BitRanks[:maxBits+1]
		for i := range table.BitRanks {
			table.BitRanks[i] = 0
		}
	} else {
		table.BitRanks = make([]int, maxBits+1)
	}
	for _, numBits := range table.Bits {
		table.BitRanks[numBits]++
	}

	tableSize := 1 << uint(maxBits)
	if cap(table.Decode) >= tableSize {
		table.Decode = table.Decode[:tableSize]
		for i := range table.Decode {
			table.Decode[i] = Entry{}
		}
	} else {
		table.Decode = make([]Entry, tableSize)
	}

	// starting index for each code length. Long codes fill the table from
	// the bottom, short ones from the top
	if cap(table.RankIndexes) >= maxBits+1 {
		table.RankIndexes = table.RankIndexes[:maxBits+1]
	} else {
		table.RankIndexes = make([]int, maxBits+1)
	}
	table.RankIndexes[maxBits] = 0
	for numBits := maxBits; numBits >= 1; numBits-- {
		table.RankIndexes[numBits-1] = table.RankIndexes[numBits] + table.BitRanks[numBits]*(1<<uint(maxBits-numBits))
	}
	if table.RankIndexes[0] != tableSize {
		panic("Rank indexes do not cover the whole table")
	}

	// a code of length numBits ignores the lower maxBits - numBits bits of a
	// lookup, so the symbol owns that whole range of cells
	for symbol, numBits := range table.Bits {
		if numBits == 0 {
			continue
		}
		baseIdx := table.RankIndexes[numBits]
		count := 1 << uint(maxBits-int(numBits))
		table.RankIndexes[numBits] += count
		for idx := 0; idx < count; idx++ {
			table.Decode[baseIdx+idx] = Entry{Symbol: byte(symbol), NumBits: numBits}
		}
	}

	return nil
}
