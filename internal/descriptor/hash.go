package descriptor

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"strings"

	"github.com/corona10/goimagehash"
)

// Hash is a difference hash. Bit i lives in word i/64 at position 63-i%64,
// the layout goimagehash uses.
type Hash struct {
	ext *goimagehash.ExtImageHash
}

// NewHash packs bits into a Hash.
func NewHash(b []bool) Hash {
	words := make([]uint64, (len(b)+63)/64)
	for i, set := range b {
		if set {
			words[i/64] |= 1 << uint(63-i%64)
		}
	}
	return Hash{ext: goimagehash.NewExtImageHash(words, goimagehash.DHash, len(b))}
}

// ParseHashBits reads a string of '0' and '1'.
func ParseHashBits(s string) (Hash, error) {
	b := make([]bool, len(s))
	for i, r := range s {
		switch r {
		case '0':
		case '1':
			b[i] = true
		default:
			return Hash{}, fmt.Errorf("invalid hash bit %q at %d", r, i)
		}
	}
	return NewHash(b), nil
}

// Len is the number of bits.
func (h Hash) Len() int {
	if h.ext == nil {
		return 0
	}
	return h.ext.Bits()
}

// Bit reports whether bit i is set.
func (h Hash) Bit(i int) bool {
	return h.ext.GetHash()[i/64]&(1<<uint(63-i%64)) != 0
}

// Hamming counts differing bits over the first min(Len) bits of both hashes
// and returns that overlap length.
func (h Hash) Hamming(o Hash) (diff, n int) {
	n = min(h.Len(), o.Len())
	if n == 0 {
		return 0, 0
	}
	if h.Len() == o.Len() {
		if d, err := h.ext.Distance(o.ext); err == nil {
			return d, n
		}
	}
	a, b := h.ext.GetHash(), o.ext.GetHash()
	for w := 0; w*64 < n; w++ {
		x := a[w] ^ b[w]
		if rem := n - w*64; rem < 64 {
			x &= ^uint64(0) << uint(64-rem)
		}
		diff += bits.OnesCount64(x)
	}
	return diff, n
}

// String renders the bits as '0'/'1'.
func (h Hash) String() string {
	var sb strings.Builder
	sb.Grow(h.Len())
	for i := 0; i < h.Len(); i++ {
		if h.Bit(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

type hashJSON struct {
	Bits int    `json:"bits"`
	Hash string `json:"hash"`
}

func (h Hash) MarshalJSON() ([]byte, error) {
	if h.ext == nil {
		return json.Marshal(hashJSON{})
	}
	return json.Marshal(hashJSON{Bits: h.ext.Bits(), Hash: h.ext.ToString()})
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var raw hashJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Bits == 0 {
		*h = Hash{}
		return nil
	}
	ext, err := goimagehash.ExtImageHashFromString(raw.Hash)
	if err != nil {
		return fmt.Errorf("parse hash: %w", err)
	}
	words := ext.GetHash()
	if raw.Bits < 0 || raw.Bits > len(words)*64 || raw.Bits <= (len(words)-1)*64 {
		return fmt.Errorf("hash declares %d bits but carries %d words", raw.Bits, len(words))
	}
	h.ext = goimagehash.NewExtImageHash(words, goimagehash.DHash, raw.Bits)
	return nil
}
