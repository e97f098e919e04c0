package parallel

// Range is a half open interval [Lo, Hi) of loop indices.
type Range struct {
	Lo, Hi int
}

// Split divides length iterations into at most parts contiguous ranges of
// nearly equal size. Empty ranges are never returned.
func Split(length, parts int) (o []Range) {
	if length <= 0 {
		return nil
	}
	if parts <= 0 {
		parts = 1
	}
	if parts > length {
		parts = length
	}
	base := length / parts
	extra := length % parts
	lo := 0
	for i := 0; i < parts; i++ {
		hi := lo + base
		if i < extra {
			hi++
		}
		o = append(o, Range{lo, hi})
		lo = hi
	}
	return
}

// Chunks splits length iterations into ranges and runs body once per range
// concurrently. The chunk index lets callers keep per-chunk accumulators.
// It returns the number of chunks used.
func Chunks(length, limit int, body func(chunk int, r Range)) int {
	ranges := Split(length, limit)
	ForEach(len(ranges), len(ranges), func(i int) {
		body(i, ranges[i])
	})
	return len(ranges)
}
