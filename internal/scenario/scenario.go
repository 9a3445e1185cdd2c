// Package scenario replays scripted producer activity against a pipeline.
// It lets the command line tool exercise a configuration without live
// producers.
package scenario

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"mrisync/internal/models"
	"mrisync/pkg/service"
	"mrisync/pkg/synchronizer"
)

// Step is one scripted action. Fields are applied in declaration order:
// delays, clears, pushes, then the optional synchronization.
type Step struct {
	// Delay updates delays by key, e.g. frameDelay_0: 2
	Delay map[string]int64 `yaml:"delay,omitempty"`

	// Clear empties the named timelines
	Clear []string `yaml:"clear,omitempty"`

	// Frames pushes one frame per named timeline at the given timestamp
	Frames map[string]int64 `yaml:"frames,omitempty"`

	// Matrices pushes one sample per named timeline at the given timestamp
	Matrices map[string]int64 `yaml:"matrices,omitempty"`

	// Sync runs a synchronization after the step
	Sync bool `yaml:"sync,omitempty"`
}

// Scenario is an ordered list of steps
type Scenario struct {
	Steps []Step `yaml:"steps"`
}

// Load reads a scenario file
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading scenario file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a scenario document
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("error parsing scenario: %w", err)
	}
	return &s, nil
}

// Report is the outcome of one synchronizing step
type Report struct {
	Step   int
	Result synchronizer.Result
}

// Run replays every step against p and returns one report per synchronization
func (s *Scenario) Run(p *service.Pipeline) ([]Report, error) {
	var reports []Report
	for i, step := range s.Steps {
		if err := apply(p, step); err != nil {
			return reports, fmt.Errorf("step %d: %w", i+1, err)
		}
		if !step.Sync {
			continue
		}
		res, ran := p.Service.TrySync()
		if !ran {
			res = synchronizer.Result{Outcome: synchronizer.OutcomeNoOp}
		}
		reports = append(reports, Report{Step: i + 1, Result: res})
	}
	return reports, nil
}

func apply(p *service.Pipeline, step Step) error {
	for _, key := range sortedKeys(step.Delay) {
		if err := p.Service.SetDelay(key, step.Delay[key]); err != nil {
			return err
		}
	}

	for _, key := range step.Clear {
		if tl, ok := p.FrameTimeline(key); ok {
			tl.Clear()
			continue
		}
		if tl, ok := p.MatrixTimeline(key); ok {
			tl.Clear()
			continue
		}
		return fmt.Errorf("unknown timeline %q", key)
	}

	for _, key := range sortedKeys(step.Frames) {
		tl, ok := p.FrameTimeline(key)
		if !ok {
			return fmt.Errorf("unknown frame timeline %q", key)
		}
		ts := step.Frames[key]
		if err := tl.PushFrame(ts, FramePattern(tl.Format(), ts)); err != nil {
			return err
		}
	}

	for _, key := range sortedKeys(step.Matrices) {
		tl, ok := p.MatrixTimeline(key)
		if !ok {
			return fmt.Errorf("unknown matrix timeline %q", key)
		}
		ts := step.Matrices[key]
		values := make(map[int]models.Matrix4, tl.MaxElements())
		for e := 0; e < tl.MaxElements(); e++ {
			values[e] = MatrixPattern(ts, e)
		}
		if err := tl.PushElements(ts, values); err != nil {
			return err
		}
	}
	return nil
}

// FramePattern returns a frame whose bytes all encode the timestamp
func FramePattern(format models.FrameFormat, ts int64) []byte {
	data := make([]byte, format.Size())
	for i := range data {
		data[i] = byte(ts)
	}
	return data
}

// MatrixPattern returns a translation by (ts, element, 0)
func MatrixPattern(ts int64, element int) models.Matrix4 {
	m := models.Identity4()
	m[3] = float64(ts)
	m[7] = float64(element)
	return m
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
