// Package keyindex freezes the final per-key totals of a run into a
// read-only index backed by a minimal perfect hash.
package keyindex

import (
	"encoding/binary"
	"fmt"

	"github.com/eunmann/txagg/pkg/accum"
	"github.com/relab/bbhash"
	"github.com/zeebo/xxh3"
)

// Index maps keys to their totals. It is immutable and safe for
// concurrent lookups.
type Index struct {
	mph    *bbhash.BBHash2
	keys   []int64
	totals []accum.Totals
}

// Build constructs an Index over every key in totals.
func Build(totals map[int64]accum.Totals) (*Index, error) {
	if len(totals) == 0 {
		return &Index{}, nil
	}

	hashes := make([]uint64, 0, len(totals))
	for k := range totals {
		hashes = append(hashes, hashKey(k))
	}

	// Gamma 2.0 trades a little space for faster construction.
	mph, err := bbhash.New(hashes, bbhash.Gamma(2.0))
	if err != nil {
		return nil, fmt.Errorf("build key index: %w", err)
	}

	// Find is 1-indexed; slot i holds the key that hashes to i+1.
	ix := &Index{
		mph:    mph,
		keys:   make([]int64, len(totals)),
		totals: make([]accum.Totals, len(totals)),
	}
	for k, t := range totals {
		pos := mph.Find(hashKey(k))
		if pos == 0 || pos > uint64(len(totals)) {
			return nil, fmt.Errorf("build key index: no slot for key %d", k)
		}
		// Every key seen by a run has Count >= 1, so a filled slot is non-zero.
		if ix.totals[pos-1].Count != 0 {
			return nil, fmt.Errorf("build key index: hash collision at key %d", k)
		}
		ix.keys[pos-1] = k
		ix.totals[pos-1] = t
	}
	return ix, nil
}

// Len returns the number of indexed keys.
func (ix *Index) Len() int {
	return len(ix.keys)
}

// Lookup returns the totals for key. Keys that were not indexed report
// false.
func (ix *Index) Lookup(key int64) (accum.Totals, bool) {
	if ix.mph == nil {
		return accum.Totals{}, false
	}
	pos := ix.mph.Find(hashKey(key))
	if pos == 0 || pos > uint64(len(ix.keys)) {
		return accum.Totals{}, false
	}
	if ix.keys[pos-1] != key {
		return accum.Totals{}, false
	}
	return ix.totals[pos-1], true
}

// hashKey spreads sequential keys across the hash space before they reach
// the perfect hash.
func hashKey(k int64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(k))
	return xxh3.Hash(b[:])
}
