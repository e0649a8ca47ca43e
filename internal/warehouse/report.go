package warehouse

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Run statuses recorded in reports and metrics.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// StageReport is the outcome of one pipeline stage.
type StageReport struct {
	Name     string        `json:"name"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration_ns"`
}

// RunReport summarizes a single pipeline run for operators: per-stage row
// counts and timings, the detection records skipped for malformed
// payloads, and any mirror failure the run survived.
type RunReport struct {
	RunID             string        `json:"run_id"`
	Status            string        `json:"status"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	Stages            []StageReport `json:"stages"`
	SkippedDetections int           `json:"skipped_detections"`
	MirrorError       string        `json:"mirror_error,omitempty"`
	Error             string        `json:"error,omitempty"`
}

func newRunReport() *RunReport {
	return &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
}

func (r *RunReport) addStage(name string, rows int, duration time.Duration) {
	r.Stages = append(r.Stages, StageReport{Name: name, Rows: rows, Duration: duration})
}

func (r *RunReport) finish(err error) {
	r.FinishedAt = time.Now().UTC()
	if err != nil {
		r.Status = StatusFailed
		r.Error = err.Error()
		return
	}
	r.Status = StatusSucceeded
}

// TotalDuration is the wall-clock span of the run.
func (r *RunReport) TotalDuration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// WriteFile persists the report as pretty-printed JSON under dir, named
// by run id. The directory is created when missing.
func (r *RunReport) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal run report: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("pipeline_report_%s.json", r.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write run report: %w", err)
	}
	return path, nil
}
