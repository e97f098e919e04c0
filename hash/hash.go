// Package hash implements the fast salted integer hash used to derive
// reproducible random streams, one per episode.
package hash

func mix(n uint32, s uint32) uint32 {
	// mixing stage, mix input with salt using subtraction
	var m = uint32(n) - uint32(s)

	// hashing stage, use xor shift with prime coefficients
	m ^= m << 2
	m ^= m << 3
	m ^= m >> 5
	m ^= m >> 7
	m ^= m << 11
	m ^= m << 13
	m ^= m >> 17
	m ^= m << 19

	// mixing stage 2, mix input with salt using addition
	m += s

	return m
}

// Seed derives a 64 bit seed from an index and a salt. Neighbouring indices
// give unrelated seeds.
func Seed(index uint32, salt uint64) uint64 {
	lo := mix(index, uint32(salt))
	hi := mix(lo^index, uint32(salt>>32)^0x9e3779b9)
	return uint64(hi)<<32 | uint64(lo)
}
