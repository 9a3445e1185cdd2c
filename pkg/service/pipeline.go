package service

import (
	"fmt"
	"log/slog"
	"time"

	"mrisync/internal/models"
	"mrisync/pkg/config"
	"mrisync/pkg/dicom"
	"mrisync/pkg/synchronizer"
	"mrisync/pkg/timeline"
)

// Pipeline is a fully wired synchronizer: timelines, outputs and the
// service driving them, built from a configuration.
type Pipeline struct {
	Service *Service

	FrameTimelines  []*timeline.FrameTimeline
	MatrixTimelines []*timeline.MatrixTimeline

	// FrameOutputs are DICOM image series so that every synchronized frame
	// also carries its acquisition date time
	FrameOutputs  []*dicom.ImageSeries
	MatrixOutputs []*models.Matrix

	frameInputKeys   map[string]int
	matrixInputKeys  map[string]int
	frameOutputKeys  map[string]int
	matrixOutputKeys map[string]int
}

// Build creates the timelines, outputs, engine and service described by cfg
func Build(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := synchronizer.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}

	engine := synchronizer.New(synchronizer.Options{
		Tolerance: cfg.Tolerance,
		Policy:    policy,
		Logger:    logger,
	})
	p := &Pipeline{
		frameInputKeys:   make(map[string]int),
		matrixInputKeys:  make(map[string]int),
		frameOutputKeys:  make(map[string]int),
		matrixOutputKeys: make(map[string]int),
	}

	for i, in := range cfg.Inputs.Frames {
		format, err := in.FrameFormat()
		if err != nil {
			return nil, fmt.Errorf("frame input %s: %w", in.Key, err)
		}
		tl := timeline.NewFrameTimeline(format, in.ElementCount(), in.TimelineCapacity())
		if err := engine.BindFrameInput(i, tl); err != nil {
			return nil, err
		}
		if err := setInputDelay(engine, synchronizer.KindFrame, i, in.Delay); err != nil {
			return nil, err
		}
		p.FrameTimelines = append(p.FrameTimelines, tl)
		p.frameInputKeys[in.Key] = i
	}

	for i, in := range cfg.Inputs.Matrices {
		tl := timeline.NewMatrixTimeline(in.ElementCount(), in.TimelineCapacity())
		if err := engine.BindMatrixInput(i, tl); err != nil {
			return nil, err
		}
		if err := setInputDelay(engine, synchronizer.KindMatrix, i, in.Delay); err != nil {
			return nil, err
		}
		p.MatrixTimelines = append(p.MatrixTimelines, tl)
		p.matrixInputKeys[in.Key] = i
	}

	for i, out := range cfg.Outputs.Frames {
		series := dicom.NewImageSeries()
		if err := engine.AttachFrameOutput(i, series, out.Binding(i)); err != nil {
			return nil, fmt.Errorf("frame output %s: %w", out.Key, err)
		}
		p.FrameOutputs = append(p.FrameOutputs, series)
		p.frameOutputKeys[out.Key] = i
	}

	for i, out := range cfg.Outputs.Matrices {
		m := models.NewMatrix()
		if err := engine.AttachMatrixOutput(i, m, out.Binding(i)); err != nil {
			return nil, fmt.Errorf("matrix output %s: %w", out.Key, err)
		}
		p.MatrixOutputs = append(p.MatrixOutputs, m)
		p.matrixOutputKeys[out.Key] = i
	}

	p.Service = New(engine, Options{
		LegacyAutoSync: cfg.LegacyAutoSync,
		TimeStep:       time.Duration(cfg.TimeStep) * time.Millisecond,
		Logger:         logger,
	})
	for _, tl := range p.FrameTimelines {
		p.Service.Watch(tl)
	}
	for _, tl := range p.MatrixTimelines {
		p.Service.Watch(tl)
	}

	return p, nil
}

func setInputDelay(engine *synchronizer.Engine, kind synchronizer.Kind, index int, delay int64) error {
	if delay == 0 {
		return nil
	}
	target := synchronizer.DelayTarget{
		Scope: synchronizer.ScopeInput,
		Slot:  synchronizer.Slot{Kind: kind, Index: index},
	}
	return engine.SetDelay(target, delay)
}

// FrameTimeline returns a frame timeline by key
func (p *Pipeline) FrameTimeline(key string) (*timeline.FrameTimeline, bool) {
	i, ok := p.frameInputKeys[key]
	if !ok {
		return nil, false
	}
	return p.FrameTimelines[i], true
}

// MatrixTimeline returns a matrix timeline by key
func (p *Pipeline) MatrixTimeline(key string) (*timeline.MatrixTimeline, bool) {
	i, ok := p.matrixInputKeys[key]
	if !ok {
		return nil, false
	}
	return p.MatrixTimelines[i], true
}

// FrameOutput returns a frame output by key
func (p *Pipeline) FrameOutput(key string) (*dicom.ImageSeries, bool) {
	i, ok := p.frameOutputKeys[key]
	if !ok {
		return nil, false
	}
	return p.FrameOutputs[i], true
}

// MatrixOutput returns a matrix output by key
func (p *Pipeline) MatrixOutput(key string) (*models.Matrix, bool) {
	i, ok := p.matrixOutputKeys[key]
	if !ok {
		return nil, false
	}
	return p.MatrixOutputs[i], true
}

// FrameOutputSlot returns the engine slot of a frame output by key
func (p *Pipeline) FrameOutputSlot(key string) (synchronizer.Slot, bool) {
	i, ok := p.frameOutputKeys[key]
	return synchronizer.Slot{Kind: synchronizer.KindFrame, Index: i}, ok
}

// MatrixOutputSlot returns the engine slot of a matrix output by key
func (p *Pipeline) MatrixOutputSlot(key string) (synchronizer.Slot, bool) {
	i, ok := p.matrixOutputKeys[key]
	return synchronizer.Slot{Kind: synchronizer.KindMatrix, Index: i}, ok
}
