package parallel

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"
)

// Hasher fingerprints a fixed number of uint16 values written in any order
// from any goroutine. The digest depends on the values and their positions only.
type Hasher struct {
	mut  sync.Mutex
	data []uint16
	set  []bool
}

// NewUint16Hasher creates a hasher for n values.
func NewUint16Hasher(n int) *Hasher {
	return &Hasher{
		data: make([]uint16, n),
		set:  make([]bool, n),
	}
}

// MustPutUint16 stores value at position n. It panics on out of range or
// duplicate writes.
func (h *Hasher) MustPutUint16(n int, value uint16) {
	h.mut.Lock()
	defer h.mut.Unlock()
	if n < 0 || n >= len(h.data) {
		panic("uint16 write out of range")
	}
	if h.set[n] {
		panic("duplicate write")
	}
	h.set[n] = true
	h.data[n] = value
}

// Sum returns the SHA-256 of the stored values. Unwritten positions hash as zero.
func (h *Hasher) Sum() (ret [32]byte) {
	h.mut.Lock()
	defer h.mut.Unlock()
	sha := sha256.New()
	var buf [2]byte
	for _, v := range h.data {
		binary.LittleEndian.PutUint16(buf[:], v)
		sha.Write(buf[:])
	}
	copy(ret[:], sha.Sum(nil))
	return
}
