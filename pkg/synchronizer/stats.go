package synchronizer

import (
	"gonum.org/v1/gonum/stat"
)

const defaultStatsWindow = 256

type counters struct {
	done        uint64
	skipped     uint64
	noOp        uint64
	tagFailures uint64
}

// ChannelStats summarizes the selection skew of one output
type ChannelStats struct {
	Slot         Slot
	Synchronized bool
	LastWritten  int64
	HasWritten   bool

	// Samples is the number of skew values in the window
	Samples int

	// MeanSkew and StdDevSkew describe |sample - target| over the window
	MeanSkew   float64
	StdDevSkew float64
}

// Stats is a snapshot of engine counters and per-output skew
type Stats struct {
	Done        uint64
	Skipped     uint64
	NoOp        uint64
	TagFailures uint64
	Channels    []ChannelStats
}

// Stats returns a snapshot of the engine statistics
func (e *Engine) Stats() Stats {
	s := Stats{
		Done:        e.counters.done,
		Skipped:     e.counters.skipped,
		NoOp:        e.counters.noOp,
		TagFailures: e.counters.tagFailures,
	}
	for kind := KindFrame; kind <= KindMatrix; kind++ {
		for index, out := range e.table.outputs[kind] {
			if out == nil {
				continue
			}
			cs := ChannelStats{
				Slot:         Slot{Kind: kind, Index: index},
				Synchronized: out.state == stateSynchronized,
				LastWritten:  out.lastWritten,
				HasWritten:   out.hasWritten,
			}
			cs.Samples, cs.MeanSkew, cs.StdDevSkew = out.skew.summary()
			s.Channels = append(s.Channels, cs)
		}
	}
	return s
}

// skewWindow is a fixed size ring of skew values
type skewWindow struct {
	values []float64
	next   int
	full   bool
}

func newSkewWindow(size int) *skewWindow {
	if size <= 0 {
		size = defaultStatsWindow
	}
	return &skewWindow{values: make([]float64, size)}
}

func (w *skewWindow) add(v float64) {
	w.values[w.next] = v
	w.next++
	if w.next == len(w.values) {
		w.next = 0
		w.full = true
	}
}

func (w *skewWindow) reset() {
	w.next = 0
	w.full = false
}

func (w *skewWindow) samples() []float64 {
	if w.full {
		return w.values
	}
	return w.values[:w.next]
}

func (w *skewWindow) summary() (n int, mean, stddev float64) {
	data := w.samples()
	switch len(data) {
	case 0:
		return 0, 0, 0
	case 1:
		return 1, data[0], 0
	}
	mean, stddev = stat.MeanStdDev(data, nil)
	return len(data), mean, stddev
}
