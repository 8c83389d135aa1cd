package huff0

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// TableCache keeps decoding tables for recently seen weight sections.
// Blocks inside one frame tend to reuse the same table, so rebuilding it
// from the weights every time is wasted work. Safe for concurrent use as
// long as each caller passes its own target table.
type TableCache struct {
	tables *lru.Cache[string, *HuffmanTable]
}

func NewTableCache(maxEntries int) (*TableCache, error) {
	tables, err := lru.New[string, *HuffmanTable](maxEntries)
	if err != nil {
		return nil, err
	}
	return &TableCache{tables: tables}, nil
}

// DescriptionSize returns how many bytes of source the weight section
// claims, header included. The source is not validated beyond the header.
func DescriptionSize(source []byte) (int, error) {
	if len(source) == 0 {
		return 0, ErrSourceEmpty
	}
	header := source[0]
	if header >= 128 {
		numWeights := int(header) - 127
		return 1 + (numWeights+1)/2, nil
	}
	return 1 + int(header), nil
}

// GetOrBuild fills table from the weight section at the start of source,
// reusing a cached build when the same section has been seen before. It
// reports the bytes the section occupied and whether the cache served it.
// Failed builds are never cached.
func (cache *TableCache) GetOrBuild(table *HuffmanTable, source []byte) (int, bool, error) {
	size, err := DescriptionSize(source)
	if err != nil {
		return 0, false, err
	}
	if len(source) < size {
		// too short to key, the build reports the proper error
		bytesUsed, err := table.BuildDecoder(source)
		return bytesUsed, false, err
	}

	key := string(source[:size])
	if cached, ok := cache.tables.Get(key); ok {
		table.CopyFrom(cached)
		return size, true, nil
	}

	bytesUsed, err := table.BuildDecoder(source)
	if err != nil {
		return bytesUsed, false, err
	}

	snapshot := NewHuffmanTable()
	snapshot.CopyFrom(table)
	cache.tables.Add(key, snapshot)
	return bytesUsed, false, nil
}

func (cache *TableCache) Len() int {
	return cache.tables.Len()
}

func (cache *TableCache) Purge() {
	cache.tables.Purge()
}
