package fse

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/ifd3f/zstdhuff/bitstream"
)

// MaxAccuracyLog bounds the size of the decoding table. Table descriptions
// can encode accuracy logs up to 20 but huffman weight streams never need
// more than 9, so anything bigger is treated as corruption.
const MaxAccuracyLog = 9

// MinAccuracyLog is the smallest accuracy log a table description can encode,
// the 4-bit field is biased by 5. The spread walk needs the bound too: below
// 16 cells its step is not always odd, so the walk could revisit a cell
// before covering the table.
const MinAccuracyLog = 5

type FSETableEntry struct {
	Baseline     uint16
	NumberOfBits byte
	Symbol       byte
}

type FSETable struct {
	AccuracyLog   int
	Probabilities []int
	DecodingTable []FSETableEntry
}

var ErrAccuracyLogTooBig = errors.New("Accuracy log in the table description is too big")
var ErrAccuracyLogTooSmall = errors.New("Accuracy log cant be smaller than 5")
var ErrTooManySymbols = errors.New("Table description defines more symbols than the caller allows")
var ErrBadProbabilitySum = errors.New("Probabilities do not add up to the table size")
var ErrBadProbability = errors.New("Probabilities must be -1 or bigger")

// BuildDecoder reads a table description from the start of source and builds
// the decoding table from it. Symbols run from 0 to maxSymbol. It reports
// the number of bytes the description occupied, rounding partial bytes up.
func (fset *FSETable) BuildDecoder(source []byte, maxSymbol int) (int, error) {
	bytesUsed, err := fset.readProbabilities(source, maxSymbol)
	if err != nil {
		return bytesUsed, err
	}
	fset.buildDecodingTable()
	return bytesUsed, nil
}

// BuildFromProbabilities builds the decoding table from an explicit
// distribution instead of a serialized description. The probabilities must
// fill the table exactly, a -1 occupies one cell.
func (fset *FSETable) BuildFromProbabilities(accLog int, probabilities []int) error {
	if accLog < MinAccuracyLog {
		return fmt.Errorf("%w: got %d, min %d", ErrAccuracyLogTooSmall, accLog, MinAccuracyLog)
	}
	if accLog > MaxAccuracyLog {
		return fmt.Errorf("%w: got %d, max %d", ErrAccuracyLogTooBig, accLog, MaxAccuracyLog)
	}
	if len(probabilities) > 256 {
		return fmt.Errorf("%w: got %d, max 256", ErrTooManySymbols, len(probabilities))
	}

	cells := 0
	for _, prob := range probabilities {
		if prob < -1 {
			return fmt.Errorf("%w: got %d", ErrBadProbability, prob)
		}
		if prob == -1 {
			cells++
		} else {
			cells += prob
		}
	}
	if cells != 1<<uint(accLog) {
		return fmt.Errorf("%w: got %d cells, want %d", ErrBadProbabilitySum, cells, 1<<uint(accLog))
	}

	fset.AccuracyLog = accLog
	fset.Probabilities = append(fset.Probabilities[:0], probabilities...)
	fset.buildDecodingTable()
	return nil
}

// Reset clears the table for reuse but keeps the allocations around.
func (fset *FSETable) Reset() {
	fset.AccuracyLog = 0
	fset.Probabilities = fset.Probabilities[:0]
	fset.DecodingTable = fset.DecodingTable[:0]
}

// CopyFrom makes fset an independent copy of other.
func (fset *FSETable) CopyFrom(other *FSETable) {
	fset.AccuracyLog = other.AccuracyLog
	fset.Probabilities = append(fset.Probabilities[:0], other.Probabilities...)
	fset.DecodingTable = append(fset.DecodingTable[:0], other.DecodingTable...)
}

func (fset *FSETable) readProbabilities(source []byte, maxSymbol int) (int, error) {
	fset.Probabilities = fset.Probabilities[:0]

	bitsrc := bitstream.NewBitstream(source)
	bytesUsed := func() int {
		return (bitsrc.BitsRead() + 7) / 8
	}

	acclog, err := bitsrc.Read(4)
	if err != nil {
		return bytesUsed(), err
	}
	fset.AccuracyLog = int(acclog) + 5
	if fset.AccuracyLog > MaxAccuracyLog {
		return bytesUsed(), fmt.Errorf("%w: got %d, max %d", ErrAccuracyLogTooBig, fset.AccuracyLog, MaxAccuracyLog)
	}

	remaining := 1 << uint(fset.AccuracyLog)

	for remaining > 0 {
		bitsNeeded := bits.Len32(uint32(remaining + 1))

		v, err := bitsrc.Read(bitsNeeded)
		if err != nil {
			return bytesUsed(), err
		}
		value := uint16(v)

		lowerMask := uint16(1)<<uint(bitsNeeded-1) - 1
		thresh := uint16(1)<<uint(bitsNeeded) - 1 - uint16(remaining+1)

		if value&lowerMask < thresh {
			// small value, the last bit belongs to the next field
			bitsrc.UnwindBit()
			value = value & lowerMask
		} else if value > lowerMask {
			value = value - thresh
		}

		probability := int(value) - 1
		fset.Probabilities = append(fset.Probabilities, probability)

		if probability == -1 {
			remaining-- // still occupies one cell in the decoding table
		} else {
			remaining -= probability
		}

		// a zero is followed by two bits telling how many more zeros come.
		// A value of 3 means another two bits follow.
		if probability == 0 {
			for {
				skip, err := bitsrc.Read(2)
				if err != nil {
					return bytesUsed(), err
				}
				for i := uint64(0); i < skip; i++ {
					fset.Probabilities = append(fset.Probabilities, 0)
				}
				if skip != 3 {
					break
				}
			}
		}

		if len(fset.Probabilities) > maxSymbol+1 {
			return bytesUsed(), fmt.Errorf("%w: got %d, max %d", ErrTooManySymbols, len(fset.Probabilities), maxSymbol+1)
		}
	}

	if remaining != 0 {
		return bytesUsed(), fmt.Errorf("%w: %d cells unaccounted for", ErrBadProbabilitySum, remaining)
	}

	return bytesUsed(), nil
}

// marks a cell as taken until the final pass fills in the real bit count
const placedMarker = 0xFF

func (fset *FSETable) buildDecodingTable() {
	tablesize := 1 << uint(fset.AccuracyLog)

	if cap(fset.DecodingTable) >= tablesize {
		fset.DecodingTable = fset.DecodingTable[:tablesize]
		for i := range fset.DecodingTable {
			fset.DecodingTable[i] = FSETableEntry{}
		}
	} else {
		fset.DecodingTable = make([]FSETableEntry, tablesize)
	}

	symbolNext := make([]int, len(fset.Probabilities))

	// symbols with a -1 probability get exactly one cell at the top of the
	// table and always reset to a full state
	highposition := tablesize - 1
	for symbol, probability := range fset.Probabilities {
		if probability == -1 {
			if highposition < 0 {
				panic("Too many low probability symbols")
			}
			fset.DecodingTable[highposition] = FSETableEntry{Symbol: byte(symbol)}
			highposition--
			symbolNext[symbol] = 1
		} else {
			symbolNext[symbol] = probability
		}
	}

	// spread the other symbols over the remaining cells. The step is odd and
	// the table size a power of two, so the walk visits every cell once.
	position := 0
	step := (tablesize >> 1) + (tablesize >> 3) + 3
	for symbol, probability := range fset.Probabilities {
		if probability <= 0 {
			continue
		}
		for i := 0; i < probability; i++ {
			if fset.DecodingTable[position].NumberOfBits != 0 {
				panic("Overwriting a cell should never happen")
			}
			fset.DecodingTable[position] = FSETableEntry{Symbol: byte(symbol), NumberOfBits: placedMarker}

			position = (position + step) & (tablesize - 1)
			for position > highposition {
				// low probability area at the top stays untouched
				position = (position + step) & (tablesize - 1)
			}
		}
	}
	if position != 0 {
		panic("Position did not end up at 0")
	}

	// each cell's baseline and bit count fall out of counting how often its
	// symbol has appeared in the table so far. Cells visited early get the
	// wide ranges, later ones the narrow high ranges.
	for i := 0; i < tablesize; i++ {
		symbol := fset.DecodingTable[i].Symbol
		nextState := symbolNext[symbol]
		symbolNext[symbol]++

		numBits := fset.AccuracyLog - (bits.Len32(uint32(nextState)) - 1)
		fset.DecodingTable[i].NumberOfBits = byte(numBits)
		fset.DecodingTable[i].Baseline = uint16(nextState<<uint(numBits) - tablesize)
	}
}
