package datasets

import "context"
import "sync"

// Item is a loaded episode or the error that prevented loading it.
type Item struct {
	Episode *Episode
	Err     error
}

// Loader prefetches episodes with a bounded number of workers and delivers
// them in episode order.
type Loader struct {
	Sampler *EpisodeSampler
	Workers int

	// Start is the first episode to load
	Start int
}

// NewLoader creates a loader over all episodes of sampler.
func NewLoader(sampler *EpisodeSampler, workers int) *Loader {
	if workers < 1 {
		workers = 1
	}
	return &Loader{Sampler: sampler, Workers: workers}
}

// Run starts loading and returns the ordered episode channel. The channel is
// closed after the last episode or when ctx is done. At most Workers episodes
// are held ahead of the consumer.
func (l *Loader) Run(ctx context.Context) <-chan Item {
	out := make(chan Item)
	n := l.Sampler.Len()
	if l.Start >= n {
		close(out)
		return out
	}
	// one slot per worker, episode i lands in slots[i%workers]
	slots := make([]chan Item, l.Workers)
	for i := range slots {
		slots[i] = make(chan Item, 1)
	}
	var wg sync.WaitGroup
	for w := 0; w < l.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := l.Start + w; i < n; i += l.Workers {
				ep, err := l.Sampler.Episode(ctx, i)
				select {
				case slots[w] <- Item{Episode: ep, Err: err}:
				case <-ctx.Done():
					return
				}
			}
		}(w)
	}
	go func() {
		defer close(out)
		for i := l.Start; i < n; i++ {
			if ctx.Err() != nil {
				break
			}
			var it Item
			select {
			case it = <-slots[(i-l.Start)%l.Workers]:
			case <-ctx.Done():
				wg.Wait()
				return
			}
			select {
			case out <- it:
			case <-ctx.Done():
				wg.Wait()
				return
			}
		}
		wg.Wait()
	}()
	return out
}
