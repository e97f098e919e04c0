package trainer

import "encoding/json"
import "fmt"
import "os"
import "path/filepath"
import "sync"
import "time"

import "github.com/google/uuid"

// MetricsFile is the name of the per run metrics log.
const MetricsFile = "metrics.jsonl"

// MetricsLog appends one JSON object per logged step to
// <dir>/<run id>/metrics.jsonl.
type MetricsLog struct {
	mut   sync.Mutex
	runID string
	path  string
	file  *os.File
	enc   *json.Encoder
}

type metricsRecord struct {
	Step    int                `json:"step"`
	Time    time.Time          `json:"time"`
	Metrics map[string]float64 `json:"metrics"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// OpenMetricsLog creates the run directory under dir. An empty runID
// generates a new one.
func OpenMetricsLog(dir, runID string) (*MetricsLog, error) {
	if runID == "" {
		runID = NewRunID()
	}
	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("trainer: run id %q: %w", runID, err)
	}
	runDir := filepath.Join(dir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("trainer: %w", err)
	}
	path := filepath.Join(runDir, MetricsFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trainer: %w", err)
	}
	return &MetricsLog{runID: runID, path: path, file: f, enc: json.NewEncoder(f)}, nil
}

// RunID returns the run identifier.
func (m *MetricsLog) RunID() string {
	return m.runID
}

// Path returns the log file path.
func (m *MetricsLog) Path() string {
	return m.path
}

// Write appends the metrics of step.
func (m *MetricsLog) Write(step int, metrics map[string]float64) error {
	m.mut.Lock()
	defer m.mut.Unlock()
	if m.file == nil {
		return fmt.Errorf("trainer: metrics log closed")
	}
	return m.enc.Encode(metricsRecord{Step: step, Time: time.Now().UTC(), Metrics: metrics})
}

// Close closes the log file.
func (m *MetricsLog) Close() error {
	m.mut.Lock()
	defer m.mut.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}
