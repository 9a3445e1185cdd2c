package synchronizer

import (
	"fmt"
	"log/slog"
	"math"
)

// DefaultTolerance is the tolerance used when none is configured
const DefaultTolerance int64 = 5

// Policy selects how the reference timestamp is derived from the candidates
type Policy string

const (
	// PolicyMinimum uses the minimum candidate over every non-empty input.
	PolicyMinimum Policy = "minimum"
	// PolicyToleranceWindow uses the minimum of the candidates lying within
	// tolerance of the newest candidate, so a stalled input stops holding
	// back the reference.
	PolicyToleranceWindow Policy = "window"
)

// ParsePolicy converts a configuration string into a Policy
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyMinimum:
		return PolicyMinimum, nil
	case PolicyToleranceWindow:
		return PolicyToleranceWindow, nil
	default:
		return "", fmt.Errorf("unsupported synchronization policy %q", s)
	}
}

// Outcome is the result class of one synchronization attempt
type Outcome int

const (
	// OutcomeNoOp means no bound input holds any sample
	OutcomeNoOp Outcome = iota
	// OutcomeSkipped means the reference did not advance past the watermark
	OutcomeSkipped
	// OutcomeDone means outputs were synchronized on a new reference
	OutcomeDone
)

// String returns the outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDone:
		return "done"
	default:
		return "no-op"
	}
}

// Result describes one TrySynchronize call
type Result struct {
	Outcome   Outcome
	Timestamp int64
	Events    []Event
}

// Options configures an engine
type Options struct {
	// Tolerance is the maximum |sample - target| accepted, inclusive
	Tolerance int64

	// Policy selects the reference computation, PolicyMinimum by default
	Policy Policy

	// StatsWindow is the number of skew samples kept per output
	StatsWindow int

	// Logger receives diagnostics, slog.Default() when nil
	Logger *slog.Logger
}

// Engine is the synchronization engine. It is not safe for concurrent use.
type Engine struct {
	opts   Options
	logger *slog.Logger
	table  bindingTable

	watermark    int64
	watermarkSet bool

	listeners []Listener
	counters  counters
}

// New creates an engine with no inputs or outputs
func New(opts Options) *Engine {
	if opts.Policy == "" {
		opts.Policy = PolicyMinimum
	}
	if opts.StatsWindow <= 0 {
		opts.StatsWindow = defaultStatsWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		opts:   opts,
		logger: logger.With("component", "synchronizer"),
	}
}

// Tolerance returns the configured tolerance
func (e *Engine) Tolerance() int64 {
	return e.opts.Tolerance
}

// SetTolerance changes the tolerance used from the next call on
func (e *Engine) SetTolerance(tolerance int64) {
	e.opts.Tolerance = tolerance
}

// Policy returns the reference policy
func (e *Engine) Policy() Policy {
	return e.opts.Policy
}

// Subscribe registers a listener for every emitted event
func (e *Engine) Subscribe(l Listener) {
	e.listeners = append(e.listeners, l)
}

// Watermark returns the last accepted reference timestamp, if any
func (e *Engine) Watermark() (int64, bool) {
	return e.watermark, e.watermarkSet
}

// LastWritten returns the timestamp of the last sample written to an output
func (e *Engine) LastWritten(slot Slot) (int64, bool) {
	out, err := e.table.output(slot)
	if err != nil {
		return 0, false
	}
	return out.lastWritten, out.hasWritten
}

// Synchronized reports whether an output is currently within tolerance
func (e *Engine) Synchronized(slot Slot) bool {
	out, err := e.table.output(slot)
	if err != nil {
		return false
	}
	return out.state == stateSynchronized
}

// Reset forgets the watermark and the per-output tracking, so the next call
// accepts any reference, including one lower than previously seen.
// Timelines and bindings are left untouched.
func (e *Engine) Reset() {
	e.watermark = 0
	e.watermarkSet = false
	for _, outs := range e.table.outputs {
		for _, out := range outs {
			if out != nil {
				out.resetTracking()
			}
		}
	}
	e.logger.Debug("synchronization state reset")
}

// TrySynchronize runs one synchronization tick. It never blocks and never
// fails on timing conditions: see Result.Outcome for what happened.
func (e *Engine) TrySynchronize() Result {
	reference, ok := e.reference()
	if !ok {
		e.counters.noOp++
		e.logger.Debug("skip synchronization, no input holds any sample")
		return Result{Outcome: OutcomeNoOp}
	}

	if e.watermarkSet && reference <= e.watermark {
		e.counters.skipped++
		e.logger.Debug("skip synchronization, reference did not advance",
			"reference", reference, "watermark", e.watermark)
		ev := Event{Type: EventSynchronizationSkipped}
		e.emit(ev)
		return Result{Outcome: OutcomeSkipped, Timestamp: reference, Events: []Event{ev}}
	}

	e.watermark = reference
	e.watermarkSet = true

	var events []Event
	for kind := KindFrame; kind <= KindMatrix; kind++ {
		for index, out := range e.table.outputs[kind] {
			if out == nil {
				continue
			}
			slot := Slot{Kind: kind, Index: index}
			if ev, ok := e.extract(slot, out, reference); ok {
				events = append(events, ev)
			}
		}
	}

	events = append(events, Event{Type: EventSynchronizationDone, Timestamp: reference})
	e.counters.done++
	for _, ev := range events {
		e.emit(ev)
	}
	return Result{Outcome: OutcomeDone, Timestamp: reference, Events: events}
}

// reference computes the reference timestamp from the delay-adjusted newest
// timestamps of every bound, non-empty input.
func (e *Engine) reference() (int64, bool) {
	var candidates []int64
	for kind := KindFrame; kind <= KindMatrix; kind++ {
		for _, in := range e.table.inputs[kind] {
			if !in.bound {
				continue
			}
			newest, ok := in.newest()
			if !ok {
				continue
			}
			candidates = append(candidates, newest-in.delay)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}

	newest := candidates[0]
	for _, c := range candidates[1:] {
		newest = max(newest, c)
	}

	reference := newest
	for _, c := range candidates {
		if e.opts.Policy == PolicyToleranceWindow && newest-c > e.opts.Tolerance {
			continue
		}
		reference = min(reference, c)
	}
	return reference, true
}

// extract writes the sample selected for reference into one output and
// returns the transition event to emit, if any.
func (e *Engine) extract(slot Slot, out *output, reference int64) (Event, bool) {
	b := out.binding
	in, err := e.table.input(slot.Kind, b.Input)
	if err != nil {
		// The input was unbound after the output was attached
		return e.desynchronize(slot, out)
	}

	target := reference + in.delay + b.Delay

	var (
		sampleTS int64
		written  bool
	)
	switch slot.Kind {
	case KindFrame:
		sampleTS, written = e.extractFrame(slot, out, in, target)
	case KindMatrix:
		sampleTS, written = e.extractMatrix(out, in, target)
	}
	if !written {
		return e.desynchronize(slot, out)
	}

	out.lastWritten = sampleTS
	out.hasWritten = true
	out.skew.add(math.Abs(float64(sampleTS) - float64(target)))

	previous := out.state
	out.state = stateSynchronized
	if previous != stateSynchronized && b.SendStatus {
		return channelEvent(slot, true), true
	}
	return Event{}, false
}

func (e *Engine) extractFrame(slot Slot, out *output, in *input, target int64) (int64, bool) {
	buf, ok := in.frame.Closest(target)
	if !ok || !e.withinTolerance(buf.Timestamp(), target) {
		return 0, false
	}
	data, ok := buf.Element(out.binding.Element)
	if !ok {
		return 0, false
	}

	if err := out.frame.WriteFrame(in.frame.Format(), data); err != nil {
		e.logger.Error("failed to write frame output", "output", slot, "error", err)
		return 0, false
	}

	if tagger, ok := out.frame.(AcquisitionTagger); ok {
		if err := tagger.SetFrameAcquisitionTimePoint(0, buf.Timestamp()); err != nil {
			e.counters.tagFailures++
			e.logger.Warn("failed to tag frame acquisition time",
				"output", slot, "timestamp", buf.Timestamp(), "error", err)
		}
	}
	return buf.Timestamp(), true
}

func (e *Engine) extractMatrix(out *output, in *input, target int64) (int64, bool) {
	buf, ok := in.matrix.Closest(target)
	if !ok || !e.withinTolerance(buf.Timestamp(), target) {
		return 0, false
	}
	values, ok := buf.Element(out.binding.Element)
	if !ok {
		return 0, false
	}
	out.matrix.SetMatrix(values)
	return buf.Timestamp(), true
}

func (e *Engine) desynchronize(slot Slot, out *output) (Event, bool) {
	previous := out.state
	out.state = stateUnsynchronized
	if previous == stateSynchronized {
		e.logger.Debug("output out of tolerance", "output", slot)
		if out.binding.SendStatus {
			return channelEvent(slot, false), true
		}
	}
	return Event{}, false
}

func (e *Engine) emit(ev Event) {
	for _, l := range e.listeners {
		l.OnEvent(ev)
	}
}

// withinTolerance reports whether |ts - target| <= tolerance. The
// difference may overflow int64 near the extremes, so it is checked first.
func (e *Engine) withinTolerance(ts, target int64) bool {
	d := ts - target
	if (target > 0 && ts < math.MinInt64+target) || (target < 0 && ts > math.MaxInt64+target) {
		return false
	}
	return d <= e.opts.Tolerance && d >= -e.opts.Tolerance
}
