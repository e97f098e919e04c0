// Package tinysol loads the TinySOL orchestral instrument dataset
//
// The dataset root is expected either to hold TinySOL_metadata.csv, whose Path
// column is relative to the root or to its audio/ subdirectory, or the plain
// directory tree Family/Instrument/Technique/*.wav.
package tinysol

import "context"
import "encoding/csv"
import "errors"
import "fmt"
import "io"
import "io/fs"
import "os"
import "path/filepath"
import "slices"
import "strings"
import "sync"

import "github.com/neurlang/musicfsl/audio"
import "github.com/neurlang/musicfsl/datasets"

// MetadataFile is the name of the metadata table in the dataset root.
const MetadataFile = "TinySOL_metadata.csv"

// TrainInstruments are the classes seen during training.
var TrainInstruments = []string{
	"French Horn",
	"Violin",
	"Flute",
	"Contrabass",
	"Trombone",
	"Cello",
	"Clarinet in Bb",
	"Oboe",
	"Accordion",
}

// TestInstruments are the classes held out for validation.
var TestInstruments = []string{
	"Bassoon",
	"Viola",
	"Trumpet in C",
	"Bass Tuba",
	"Alto Saxophone",
}

// directory names of the instruments in the audio tree
var directories = map[string]string{
	"Bass_Tuba":   "Bass Tuba",
	"French_Horn": "French Horn",
	"Trombone":    "Trombone",
	"Trumpet_C":   "Trumpet in C",
	"Accordion":   "Accordion",
	"Cello":       "Cello",
	"Contrabass":  "Contrabass",
	"Viola":       "Viola",
	"Violin":      "Violin",
	"Bassoon":     "Bassoon",
	"Clarinet_Bb": "Clarinet in Bb",
	"Flute":       "Flute",
	"Oboe":        "Oboe",
	"Sax_Alto":    "Alto Saxophone",
}

// ErrMissingInstrument reports a requested instrument without any audio.
var ErrMissingInstrument = errors.New("tinysol: instrument not found")

// TinySOL is a lazily decoded view of the dataset restricted to some instruments.
// Decoded clips are cached.
type TinySOL struct {
	datasets.Index

	paths      []string
	labels     []string
	sampleRate int
	duration   float64

	cache sync.Map
}

type entry struct {
	path, label string
}

// New scans root and keeps the clips of instruments. Clips are resampled to
// sampleRate and cropped or padded to duration seconds when loaded.
func New(ctx context.Context, root string, instruments []string, sampleRate int, duration float64) (*TinySOL, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("tinysol: sample rate must be positive, got %d", sampleRate)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("tinysol: duration must be positive, got %v", duration)
	}
	entries, err := readMetadata(root)
	if errors.Is(err, fs.ErrNotExist) {
		entries, err = walk(ctx, root)
	}
	if err != nil {
		return nil, fmt.Errorf("tinysol: %w", err)
	}
	d := &TinySOL{sampleRate: sampleRate, duration: duration}
	for _, e := range entries {
		if slices.Contains(instruments, e.label) {
			d.paths = append(d.paths, e.path)
			d.labels = append(d.labels, e.label)
		}
	}
	d.Index = datasets.NewIndex(d.labels)
	for _, in := range instruments {
		if len(d.Indices(in)) == 0 {
			return nil, fmt.Errorf("%w: %q under %s", ErrMissingInstrument, in, root)
		}
	}
	return d, nil
}

func readMetadata(root string) ([]entry, error) {
	f, err := os.Open(filepath.Join(root, MetadataFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MetadataFile, err)
	}
	pathCol := slices.Index(header, "Path")
	instCol := slices.Index(header, "Instrument (in full)")
	if pathCol < 0 || instCol < 0 {
		return nil, fmt.Errorf("%s: missing Path or Instrument (in full) column", MetadataFile)
	}
	base := root
	if st, err := os.Stat(filepath.Join(root, "audio")); err == nil && st.IsDir() {
		base = filepath.Join(root, "audio")
	}
	var entries []entry
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", MetadataFile, err)
		}
		entries = append(entries, entry{
			path:  filepath.Join(base, filepath.FromSlash(rec[pathCol])),
			label: rec[instCol],
		})
	}
	return entries, nil
}

// instrument names the instrument of a file from the closest known directory
func instrument(path string) string {
	dir := filepath.Dir(path)
	for d := dir; d != filepath.Dir(d); d = filepath.Dir(d) {
		if name, ok := directories[filepath.Base(d)]; ok {
			return name
		}
	}
	// Family/Instrument/Technique/file.wav
	return strings.ReplaceAll(filepath.Base(filepath.Dir(dir)), "_", " ")
}

func walk(ctx context.Context, root string) (entries []entry, err error) {
	err = filepath.WalkDir(root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if de.IsDir() || !strings.EqualFold(filepath.Ext(path), ".wav") {
			return nil
		}
		entries = append(entries, entry{path: path, label: instrument(path)})
		return nil
	})
	return
}

// Len returns the number of clips.
func (d *TinySOL) Len() int {
	return len(d.paths)
}

// Clip decodes the clip at index i.
func (d *TinySOL) Clip(i int) (datasets.Clip, error) {
	return d.ClipContext(context.Background(), i)
}

// ClipContext is Clip that stops before reading when ctx is done.
func (d *TinySOL) ClipContext(ctx context.Context, i int) (datasets.Clip, error) {
	if i < 0 || i >= len(d.paths) {
		return datasets.Clip{}, fmt.Errorf("tinysol: clip index %d out of range [0, %d)", i, len(d.paths))
	}
	if x, ok := d.cache.Load(i); ok {
		return x.(datasets.Clip), nil
	}
	samples, err := audio.Load(ctx, d.paths[i], d.sampleRate, d.duration)
	if err != nil {
		return datasets.Clip{}, fmt.Errorf("tinysol: %w", err)
	}
	c := datasets.Clip{Audio: samples, Label: d.labels[i], Path: d.paths[i]}
	d.cache.Store(i, c)
	return c, nil
}
