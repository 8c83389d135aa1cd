package huff0

import (
	"bytes"
	"testing"

	"github.com/nareix/bits"
)

// codeFor reads a symbol's canonical code out of the decoding table: the
// index of the first cell of its range, shifted down by the bits the code
// ignores.
func codeFor(table *HuffmanTable, sym byte) (uint64, int) {
	numBits := int(table.Bits[sym])
	for i, entry := range table.Decode {
		if entry.Symbol == sym && int(entry.NumBits) == numBits {
			return uint64(i) >> uint(table.MaxNumBits-numBits), numBits
		}
	}
	return 0, numBits
}

// encodeStream builds a payload the decoder should accept: zero padding up
// to a byte boundary, a sentinel 1 and then each symbol's code, all in read
// order. The bytes go in back to front because the decoder starts at the
// tail of the buffer. The writer buffers 64 bits internally and garbles
// writes straddling that buffer, so codes are split at the boundary and the
// buffer drained whenever it fills. 64 bits is whole bytes, draining there
// adds no padding.
func encodeStream(t *testing.T, table *HuffmanTable, symbols []byte) []byte {
	t.Helper()

	totalBits := 1
	for _, sym := range symbols {
		if int(sym) >= len(table.Bits) || table.Bits[sym] == 0 {
			t.Fatalf("Symbol %d has no code in this table", sym)
		}
		totalBits += int(table.Bits[sym])
	}
	padding := (8 - totalBits%8) % 8

	var buf bytes.Buffer
	writer := &bits.Writer{W: &buf}
	filled := 0
	write := func(val uint64, n int) {
		for n > 0 {
			take := n
			if room := 64 - filled; take > room {
				take = room
			}
			n -= take
			if err := writer.WriteBits64(val>>uint(n), take); err != nil {
				t.Fatalf("WriteBits64 errored: %v", err)
			}
			val &= 1<<uint(n) - 1
			filled += take
			if filled == 64 {
				if err := writer.FlushBits(); err != nil {
					t.Fatalf("FlushBits errored: %v", err)
				}
				filled = 0
			}
		}
	}
	write(0, padding)
	write(1, 1)
	for _, sym := range symbols {
		code, numBits := codeFor(table, sym)
		write(code, numBits)
	}
	if err := writer.FlushBits(); err != nil {
		t.Fatalf("FlushBits errored: %v", err)
	}

	data := buf.Bytes()
	for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
		data[i], data[j] = data[j], data[i]
	}
	return data
}

func roundtrip(t *testing.T, table *HuffmanTable, symbols []byte) {
	t.Helper()

	data := encodeStream(t, table, symbols)
	output := make([]byte, len(symbols)+8)
	n, err := table.DecodeStream(data, output)
	if err != nil {
		t.Fatalf("DecodeStream errored on %v: %v", symbols, err)
	}
	if n != len(symbols) {
		t.Fatalf("Decoded %d symbols, want %d", n, len(symbols))
	}
	for i, want := range symbols {
		if output[i] != want {
			t.Fatalf("Symbol %d is %d, want %d", i, output[i], want)
		}
	}
}

func TestRoundtripTwoSymbolTable(t *testing.T) {
	table := NewHuffmanTable()
	if _, err := table.BuildDecoder([]byte{129, 0x21}); err != nil {
		t.Fatalf("BuildDecoder errored: %v", err)
	}

	sequences := [][]byte{
		{0},
		{2},
		{0, 0, 0, 0, 0, 0, 0},
		{0, 1, 2, 0, 1, 2},
		{1, 1, 1, 1, 2, 2, 0},
	}
	for _, seq := range sequences {
		roundtrip(t, table, seq)
	}
}

func TestRoundtripFiveLengthTable(t *testing.T) {
	table := NewHuffmanTable()
	if _, err := table.BuildDecoder([]byte{132, 0x54, 0x32, 0x10}); err != nil {
		t.Fatalf("BuildDecoder errored: %v", err)
	}

	sequences := [][]byte{
		{0},
		{5},
		{0, 1, 2, 3, 4, 5},
		{5, 4, 3, 2, 1, 0, 0, 1, 2, 3, 4, 5},
		{1, 0, 2, 0, 3, 0, 4, 0, 5, 0},
	}
	for _, seq := range sequences {
		roundtrip(t, table, seq)
	}

	// long mixed sequence crossing many byte boundaries
	pattern := []byte{0, 5, 1, 0, 2, 0, 3, 4, 0, 1, 5, 0, 2, 0, 4, 4, 3, 0}
	long := make([]byte, 0, 180)
	for i := 0; i < 10; i++ {
		long = append(long, pattern...)
	}
	roundtrip(t, table, long)
}

func TestEncodeStreamPacking(t *testing.T) {
	table := NewHuffmanTable()
	if _, err := table.BuildDecoder([]byte{132, 0x54, 0x32, 0x10}); err != nil {
		t.Fatalf("BuildDecoder errored: %v", err)
	}

	// expected bytes follow from the code lengths the table assigns:
	// padding and a sentinel 1, then the codes packed high to low, stored
	// back to front. The last case crosses the writer's 64 bit buffer mid
	// code, the middle one lands on it exactly.
	cases := []struct {
		name    string
		symbols []byte
		want    []byte
	}{
		{
			"five bytes",
			[]byte{0, 5, 1, 0, 2, 0, 3, 4, 0, 1, 5, 0, 2, 0},
			[]byte{0x33, 0x14, 0xC4, 0x2C, 0x0C},
		},
		{
			"exactly eight bytes",
			[]byte{0, 5, 1, 0, 2, 0, 3, 4, 0, 1, 5, 0, 2, 0, 4, 4, 3, 0, 0, 5, 1, 0, 2, 0},
			[]byte{0xB3, 0x70, 0x00, 0x30, 0x43, 0x41, 0xCC, 0xC2},
		},
		{
			"nine bytes",
			[]byte{0, 5, 1, 0, 2, 0, 3, 4, 0, 1, 5, 0, 2, 0, 4, 4, 3, 0, 0, 5, 1, 0, 2, 0, 0, 1},
			[]byte{0x9D, 0x85, 0x03, 0x80, 0x19, 0x0A, 0x62, 0x16, 0x06},
		},
	}
	for _, c := range cases {
		got := encodeStream(t, table, c.symbols)
		if !bytes.Equal(got, c.want) {
			t.Errorf("%s: packed % X, want % X", c.name, got, c.want)
		}
		roundtrip(t, table, c.symbols)
	}
}

func TestRoundtripCompressedWeightsTable(t *testing.T) {
	table := NewHuffmanTable()
	if _, err := table.BuildDecoder([]byte{0x06, 0x30, 0x21, 0x7A, 0xBF, 0xE8, 0xFF}); err != nil {
		t.Fatalf("BuildDecoder errored: %v", err)
	}

	// symbol 3 has weight 0 and no code, everything else is fair game
	sequences := [][]byte{
		{6},
		{2, 2, 2, 2},
		{0, 1, 2, 4, 5, 6},
		{6, 6, 2, 0, 2, 1, 5, 4, 2, 2},
	}
	for _, seq := range sequences {
		roundtrip(t, table, seq)
	}
}
