// Package randomizer orders spec files deterministically from a seed.
package randomizer

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"unicode/utf16"
)

// Shuffle returns a permutation of items ordered by a hash of seed+item.
// The same seed and input always give the same output; items is not modified.
func Shuffle(items []string, seed string) []string {
	type keyed struct {
		key  uint32
		item string
	}
	decorated := make([]keyed, len(items))
	for i, item := range items {
		decorated[i] = keyed{key: hash(seed + item), item: item}
	}
	slices.SortStableFunc(decorated, func(a, b keyed) int {
		switch {
		case a.key < b.key:
			return -1
		case a.key > b.key:
			return 1
		}
		return 0
	})
	out := make([]string, len(decorated))
	for i, d := range decorated {
		out[i] = d.item
	}
	return out
}

// hash is Jenkins' one-at-a-time hash over UTF-16 code units.
func hash(s string) uint32 {
	var h uint32
	for _, c := range utf16.Encode([]rune(s)) {
		h += uint32(c)
		h += h << 10
		h ^= h >> 6
	}
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}

// NewSeed returns a five-digit seed suitable for display and for reproducing a run.
func NewSeed() string {
	return fmt.Sprintf("%05d", rand.IntN(100000))
}
