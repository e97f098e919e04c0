package datasets

import "context"
import "errors"
import "fmt"
import "testing"

import "github.com/neurlang/musicfsl/layer"

// fixture has classes a..e with perClass clips each, clip value encodes its index
func fixture(t *testing.T, classes, perClass int) *Memory {
	t.Helper()
	var clips []Clip
	for c := 0; c < classes; c++ {
		for j := 0; j < perClass; j++ {
			i := len(clips)
			clips = append(clips, Clip{
				Audio: []float32{float32(i), float32(c), 0, 0},
				Label: string(rune('a' + c)),
				Path:  fmt.Sprint(i),
			})
		}
	}
	m, err := NewMemory(clips)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMemory(t *testing.T) {
	m := fixture(t, 3, 4)
	if m.Len() != 12 || len(m.Labels()) != 3 || len(m.Indices("b")) != 4 {
		t.Fatalf("len %d labels %v", m.Len(), m.Labels())
	}
	if _, err := m.Clip(12); err == nil {
		t.Fatal("expected range error")
	}
	if _, err := NewMemory([]Clip{{Audio: []float32{1}}, {Audio: []float32{1, 2}}}); err == nil {
		t.Fatal("expected length error")
	}
}

func TestEpisode(t *testing.T) {
	m := fixture(t, 6, 10)
	s, err := NewEpisodeSampler(m, 3, 2, 4, 20, 7)
	if err != nil {
		t.Fatal(err)
	}
	ep, err := s.Episode(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if !ep.Support.Audio.Shape().Eq([]int{6, 1, 4}) || !ep.Query.Audio.Shape().Eq([]int{12, 1, 4}) {
		t.Fatalf("shapes %v %v", ep.Support.Audio.Shape(), ep.Query.Audio.Shape())
	}
	if len(ep.Support.Classes) != 3 {
		t.Fatalf("classes %v", ep.Support.Classes)
	}
	seen := make(map[float32]bool)
	for _, set := range []*Set{&ep.Support, &ep.Query} {
		a := layer.Float32s(set.Audio)
		for k, target := range set.Target {
			if target < 0 || target >= 3 {
				t.Fatalf("target %d", target)
			}
			id, class := a[k*4], a[k*4+1]
			// relabeled target names the original class
			if string(rune('a'+int(class))) != set.Classes[target] {
				t.Fatalf("clip %v of class %v labeled %s", id, class, set.Classes[target])
			}
			if seen[id] {
				t.Fatalf("clip %v drawn twice", id)
			}
			seen[id] = true
		}
	}
	// class major order
	for k, want := range []int{0, 0, 1, 1, 2, 2} {
		if ep.Support.Target[k] != want {
			t.Fatalf("support targets %v", ep.Support.Target)
		}
	}
}

func TestEpisodeDeterministic(t *testing.T) {
	m := fixture(t, 6, 10)
	a, _ := NewEpisodeSampler(m, 3, 2, 4, 20, 7)
	b, _ := NewEpisodeSampler(m, 3, 2, 4, 20, 7)
	pa, err := a.Plan(3)
	if err != nil {
		t.Fatal(err)
	}
	pb, _ := b.Plan(3)
	if fmt.Sprint(pa) != fmt.Sprint(pb) {
		t.Fatalf("%v != %v", pa, pb)
	}
	other, _ := a.Plan(4)
	if fmt.Sprint(pa) == fmt.Sprint(other) {
		t.Fatal("episodes 3 and 4 are identical")
	}
	if _, err := a.Plan(20); err == nil {
		t.Fatal("expected range error")
	}
}

func TestSamplerErrors(t *testing.T) {
	m := fixture(t, 3, 5)
	if _, err := NewEpisodeSampler(m, 4, 1, 1, 1, 0); !errors.Is(err, ErrNotEnough) {
		t.Fatalf("too many ways: %v", err)
	}
	if _, err := NewEpisodeSampler(m, 3, 3, 3, 1, 0); !errors.Is(err, ErrNotEnough) {
		t.Fatalf("too many shots: %v", err)
	}
	if _, err := NewEpisodeSampler(m, 0, 3, 3, 1, 0); err == nil {
		t.Fatal("expected error for zero ways")
	}
}

func TestLoader(t *testing.T) {
	m := fixture(t, 4, 6)
	s, err := NewEpisodeSampler(m, 2, 1, 2, 17, 1)
	if err != nil {
		t.Fatal(err)
	}
	next := 0
	for it := range NewLoader(s, 3).Run(context.Background()) {
		if it.Err != nil {
			t.Fatal(it.Err)
		}
		if it.Episode.Index != next {
			t.Fatalf("episode %d, want %d", it.Episode.Index, next)
		}
		next++
	}
	if next != 17 {
		t.Fatalf("loaded %d episodes", next)
	}

	l := NewLoader(s, 4)
	l.Start = 15
	var got []int
	for it := range l.Run(context.Background()) {
		got = append(got, it.Episode.Index)
	}
	if len(got) != 2 || got[0] != 15 || got[1] != 16 {
		t.Fatalf("resumed episodes %v", got)
	}
}

func TestLoaderCancel(t *testing.T) {
	m := fixture(t, 4, 6)
	s, _ := NewEpisodeSampler(m, 2, 1, 2, 1000, 1)
	ctx, cancel := context.WithCancel(context.Background())
	ch := NewLoader(s, 2).Run(ctx)
	<-ch
	cancel()
	n := 0
	for range ch {
		n++
	}
	if n > 2 {
		t.Fatalf("%d episodes after cancel", n)
	}
}

func TestEpisodeCancelled(t *testing.T) {
	s, err := NewEpisodeSampler(fixture(t, 3, 4), 2, 1, 2, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Episode(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
