// Package progress does sequential bookkeeping for a fixed deployment
// pipeline: which stage is running, which passed or failed, and a rough
// estimate of time remaining. It knows nothing about what the stages do.
package progress

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/slipway-sh/slipway/internal/entity"
)

type Tracker struct {
	stages []entity.StageProgress
}

// NewTracker builds a tracker over an ordered list of stage names. Stages
// are numbered from 1 and start pending.
func NewTracker(names []string) *Tracker {
	stages := make([]entity.StageProgress, len(names))
	for i, name := range names {
		stages[i] = entity.StageProgress{
			Number: i + 1,
			Total:  len(names),
			Name:   name,
			Status: entity.StageStatusPending,
		}
	}
	return &Tracker{stages: stages}
}

// Start marks stage n running. The caller is responsible for sequencing;
// the tracker only enforces that no two stages run at once.
func (t *Tracker) Start(n int) error {
	stage, err := t.stage(n)
	if err != nil {
		return err
	}
	for i := range t.stages {
		if t.stages[i].Status == entity.StageStatusRunning && t.stages[i].Number != n {
			return &entity.ValidationError{
				Field: "stage",
				Msg:   fmt.Sprintf("stage %d is still running", t.stages[i].Number),
			}
		}
	}
	stage.Status = entity.StageStatusRunning
	stage.StartTime = time.Now()
	return nil
}

// Complete transitions stage n to passed or failed. Duration is measured
// from Start if it was called, zero otherwise.
func (t *Tracker) Complete(n int, passed bool) error {
	stage, err := t.stage(n)
	if err != nil {
		return err
	}
	if !stage.StartTime.IsZero() {
		stage.Duration = time.Since(stage.StartTime)
	}
	if passed {
		stage.Status = entity.StageStatusPassed
	} else {
		stage.Status = entity.StageStatusFailed
	}
	return nil
}

// Skip transitions stage n directly to skipped.
func (t *Tracker) Skip(n int) error {
	stage, err := t.stage(n)
	if err != nil {
		return err
	}
	stage.Status = entity.StageStatusSkipped
	return nil
}

// FailureSummary describes a failure at stage n for reporting: the stage's
// name, position, and how many stages passed before it.
func (t *Tracker) FailureSummary(n int) (string, error) {
	stage, err := t.stage(n)
	if err != nil {
		return "", err
	}
	passed := 0
	for _, s := range t.stages {
		if s.Status == entity.StageStatusPassed {
			passed++
		}
	}
	return fmt.Sprintf("stage %d/%d (%s) failed after %d passed stage(s)", stage.Number, stage.Total, stage.Name, passed), nil
}

// EstimatedRemaining returns average(completed durations) * pending count,
// rounded to whole seconds. This is a linear estimator and makes no claim
// to statistical rigor. ok is false until at least one stage has completed
// with a recorded duration.
func (t *Tracker) EstimatedRemaining() (estimate time.Duration, ok bool) {
	var total time.Duration
	completed := 0
	pending := 0
	for _, s := range t.stages {
		switch s.Status {
		case entity.StageStatusPassed, entity.StageStatusFailed:
			if s.Duration > 0 {
				total += s.Duration
				completed++
			}
		case entity.StageStatusPending:
			pending++
		}
	}
	if completed == 0 {
		return 0, false
	}
	avg := float64(total) / float64(completed)
	seconds := math.Round(avg * float64(pending) / float64(time.Second))
	return time.Duration(seconds) * time.Second, true
}

// Stages returns a snapshot of the pipeline for rendering.
func (t *Tracker) Stages() []entity.StageProgress {
	out := make([]entity.StageProgress, len(t.stages))
	copy(out, t.stages)
	return out
}

// Bar renders a fixed-width progress bar over terminal-friendly runes.
// Terminal stages (passed, failed, skipped) count as done.
func (t *Tracker) Bar(width int) string {
	if width <= 0 {
		width = 20
	}
	done := 0
	for _, s := range t.stages {
		switch s.Status {
		case entity.StageStatusPassed, entity.StageStatusFailed, entity.StageStatusSkipped:
			done++
		}
	}
	filled := 0
	if len(t.stages) > 0 {
		filled = done * width / len(t.stages)
	}
	return fmt.Sprintf("[%s%s] %d/%d", strings.Repeat("#", filled), strings.Repeat("-", width-filled), done, len(t.stages))
}

func (t *Tracker) stage(n int) (*entity.StageProgress, error) {
	if n < 1 || n > len(t.stages) {
		return nil, &entity.NotFoundError{Kind: "stage", ID: fmt.Sprintf("%d", n)}
	}
	return &t.stages[n-1], nil
}
