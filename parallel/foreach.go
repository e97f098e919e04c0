// Package parallel contains parallel ForEach() and chunked loops plus other concurrency primitives.
package parallel

import "runtime"
import "sync"
import "sync/atomic"

var limit atomic.Int64

// Limit returns the default number of goroutines used by the numeric kernels.
func Limit() int {
	if l := limit.Load(); l > 0 {
		return int(l)
	}
	return runtime.GOMAXPROCS(0)
}

// SetLimit sets the default number of goroutines used by the numeric kernels.
// Zero or negative restores GOMAXPROCS.
func SetLimit(n int) {
	limit.Store(int64(n))
}

// ForEach executes a for loop with a limited number of concurrent goroutines.
// Each goroutine processes one integer, from 0 to length.
func ForEach(length, limit int, body func(i int)) {
	if limit <= 0 {
		limit = 1 // Default to 1 if limit is zero or negative
	}
	if length <= 0 {
		return // No iterations to perform
	}
	if limit == 1 || length == 1 {
		for i := 0; i < length; i++ {
			body(i)
		}
		return
	}

	sem := make(chan struct{}, limit) // Semaphore with buffer size 'limit'
	var wg sync.WaitGroup
	wg.Add(length)

	for i := 0; i < length; i++ {
		sem <- struct{}{} // Acquire semaphore
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }() // Release semaphore after function exits

			body(i)
		}(i)
	}

	wg.Wait() // Wait for all goroutines to finish
}
