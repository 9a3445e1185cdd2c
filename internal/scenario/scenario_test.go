package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"mrisync/pkg/config"
	"mrisync/pkg/service"
	"mrisync/pkg/synchronizer"
)

const workedExample = `
steps:
  - {frames: {f1: 1, f2: 1}, matrices: {m1: 1}, sync: true}
  - {frames: {f1: 2, f2: 2}, matrices: {m1: 2}, sync: true}
  - {frames: {f1: 6, f2: 6}, matrices: {m1: 6}, sync: true}
  - {frames: {f1: 8, f2: 8}, sync: true}
  - {frames: {f1: 9}, matrices: {m1: 9}, sync: true}
  - {frames: {f1: 10}, sync: true}
  - {frames: {f1: 11}, matrices: {m1: 11}, sync: true}
  - {frames: {f1: 12, f2: 12}, sync: true}
  - {frames: {f1: 13, f2: 13}, sync: true}
  - {frames: {f1: 14}, matrices: {m1: 14}, sync: true}
  - {frames: {f1: 15, f2: 15}, matrices: {m1: 15}, sync: true}
`

func testPipeline(t *testing.T) *service.Pipeline {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Inputs.Frames = []config.InputConfig{
		{Key: "f1", Width: 2, Height: 2},
		{Key: "f2", Width: 2, Height: 2},
	}
	cfg.Inputs.Matrices = []config.InputConfig{{Key: "m1", Elements: 2}}
	cfg.Outputs.Frames = []config.OutputConfig{{Key: "frame1"}, {Key: "frame2"}}
	tl := 0
	cfg.Outputs.Matrices = []config.OutputConfig{{Key: "matrix1"}, {Key: "matrix2", TL: &tl, Index: 1}}

	p, err := service.Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return p
}

// TestWorkedExample replays the reference three-timeline sequence
func TestWorkedExample(t *testing.T) {
	s, err := Parse([]byte(workedExample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	p := testPipeline(t)

	reports, err := s.Run(p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(reports) != 11 {
		t.Fatalf("Expected 11 reports, got %d", len(reports))
	}

	var done []int64
	for _, r := range reports {
		if r.Result.Outcome == synchronizer.OutcomeDone {
			done = append(done, r.Result.Timestamp)
		}
	}
	want := []int64{1, 2, 6, 8, 11, 13, 15}
	if len(done) != len(want) {
		t.Fatalf("Expected references %v, got %v", want, done)
	}
	for i := range want {
		if done[i] != want[i] {
			t.Errorf("Expected references %v, got %v", want, done)
			break
		}
	}

	frame2, _ := p.FrameOutput("frame2")
	if frame2.Data[0] != 15 {
		t.Errorf("Expected frame2 value 15, got %d", frame2.Data[0])
	}
	matrix2, _ := p.MatrixOutput("matrix2")
	if matrix2.At(0, 3) != 15 || matrix2.At(1, 3) != 1 {
		t.Errorf("Expected matrix2 translation (15,1), got (%v,%v)", matrix2.At(0, 3), matrix2.At(1, 3))
	}
}

// TestClearAndDelaySteps verifies the clear and delay actions
func TestClearAndDelaySteps(t *testing.T) {
	s, err := Parse([]byte(`
steps:
  - {frames: {f1: 40, f2: 40}, matrices: {m1: 40}, sync: true}
  - {clear: [f1, f2, m1], frames: {f1: 5, f2: 5}, matrices: {m1: 5}, sync: true}
  - {delay: {matrixDelay_0: 2}, frames: {f1: 8, f2: 8}, matrices: {m1: 8}, sync: true}
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	p := testPipeline(t)

	reports, err := s.Run(p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	wantRefs := []int64{40, 5, 6}
	for i, r := range reports {
		if r.Result.Outcome != synchronizer.OutcomeDone || r.Result.Timestamp != wantRefs[i] {
			t.Errorf("Step %d: expected done(%d), got %s(%d)", r.Step, wantRefs[i], r.Result.Outcome, r.Result.Timestamp)
		}
	}
}

// TestUnknownTimeline verifies that scripting errors are reported
func TestUnknownTimeline(t *testing.T) {
	s := &Scenario{Steps: []Step{{Frames: map[string]int64{"nope": 1}}}}
	if _, err := s.Run(testPipeline(t)); err == nil {
		t.Error("Expected error for unknown timeline")
	}
}

// TestLoad verifies reading a scenario from disk
func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(workedExample), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(s.Steps) != 11 || !s.Steps[0].Sync || s.Steps[3].Matrices != nil {
		t.Errorf("Unexpected scenario %+v", s.Steps[:4])
	}
}
