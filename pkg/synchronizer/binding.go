package synchronizer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mrisync/internal/models"
	"mrisync/pkg/timeline"
)

// Binding configuration errors. They indicate a configuration bug, not a
// runtime timing condition.
var (
	ErrInvalidIndex      = errors.New("invalid slot index")
	ErrUnknownInput      = errors.New("unknown input slot")
	ErrUnknownOutput     = errors.New("unknown output slot")
	ErrElementOutOfRange = errors.New("element index out of range")
	ErrNilSink           = errors.New("nil output")
	ErrUnknownDelayKey   = errors.New("unknown delay key")
)

// Delay key prefixes accepted by SetDelayByKey
const (
	FrameDelayPrefix        = "frameDelay_"
	MatrixDelayPrefix       = "matrixDelay_"
	FrameOutputDelayPrefix  = "frameOutputDelay_"
	MatrixOutputDelayPrefix = "matrixOutputDelay_"
)

// Kind separates frame channels from matrix channels
type Kind int

const (
	KindFrame Kind = iota
	KindMatrix
)

// String returns the channel kind name
func (k Kind) String() string {
	if k == KindMatrix {
		return "matrix"
	}
	return "frame"
}

// Slot identifies an input or output channel
type Slot struct {
	Kind  Kind
	Index int
}

// String renders the slot as kind#index
func (s Slot) String() string {
	return fmt.Sprintf("%s#%d", s.Kind, s.Index)
}

// FrameSource is a frame timeline as read by the engine
type FrameSource interface {
	timeline.Reader[[]byte]
	Format() models.FrameFormat
}

// MatrixSource is a matrix timeline as read by the engine
type MatrixSource interface {
	timeline.Reader[models.Matrix4]
}

// FrameSink is a frame output written in place
type FrameSink interface {
	WriteFrame(format models.FrameFormat, data []byte) error
}

// MatrixSink is a matrix output written in place
type MatrixSink interface {
	SetMatrix(values models.Matrix4)
}

// AcquisitionTagger is implemented by frame outputs that also record the
// acquisition time of the frame they hold (DICOM image series).
type AcquisitionTagger interface {
	SetFrameAcquisitionTimePoint(frame int, timestamp int64) error
}

// Binding links an output to an input timeline element
type Binding struct {
	// Input is the index of the source input of the same kind
	Input int

	// Element is the element index within a multi-element sample
	Element int

	// SendStatus enables synchronized/unsynchronized events for the output
	SendStatus bool

	// Delay is the output delay, added to the input delay when selecting a sample
	Delay int64
}

// DelayScope selects the input or the output delay namespace
type DelayScope int

const (
	ScopeInput DelayScope = iota
	ScopeOutput
)

// DelayTarget addresses one delay
type DelayTarget struct {
	Scope DelayScope
	Slot
}

type channelState int

const (
	stateNever channelState = iota
	stateSynchronized
	stateUnsynchronized
)

type input struct {
	bound  bool
	delay  int64
	frame  FrameSource
	matrix MatrixSource
}

func (in *input) maxElements() int {
	if in.frame != nil {
		return in.frame.MaxElements()
	}
	if in.matrix != nil {
		return in.matrix.MaxElements()
	}
	return 0
}

func (in *input) newest() (int64, bool) {
	switch {
	case in.frame != nil:
		return in.frame.Newest()
	case in.matrix != nil:
		return in.matrix.Newest()
	default:
		return 0, false
	}
}

type output struct {
	binding Binding
	frame   FrameSink
	matrix  MatrixSink

	state       channelState
	lastWritten int64
	hasWritten  bool
	skew        *skewWindow
}

func (o *output) resetTracking() {
	o.state = stateNever
	o.lastWritten = 0
	o.hasWritten = false
	o.skew.reset()
}

// bindingTable holds inputs and outputs per kind
type bindingTable struct {
	inputs  [2][]*input
	outputs [2][]*output
}

func (t *bindingTable) input(kind Kind, index int) (*input, error) {
	if index < 0 || index >= len(t.inputs[kind]) || !t.inputs[kind][index].bound {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInput, Slot{Kind: kind, Index: index})
	}
	return t.inputs[kind][index], nil
}

func (t *bindingTable) output(slot Slot) (*output, error) {
	if slot.Index < 0 || slot.Index >= len(t.outputs[slot.Kind]) || t.outputs[slot.Kind][slot.Index] == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOutput, slot)
	}
	return t.outputs[slot.Kind][slot.Index], nil
}

func (t *bindingTable) ensureInput(kind Kind, index int) *input {
	for len(t.inputs[kind]) <= index {
		t.inputs[kind] = append(t.inputs[kind], &input{})
	}
	return t.inputs[kind][index]
}

func (t *bindingTable) validate(kind Kind, b Binding) error {
	in, err := t.input(kind, b.Input)
	if err != nil {
		return err
	}
	if b.Element < 0 || b.Element >= in.maxElements() {
		return fmt.Errorf("%w: element %d of %s (max %d)",
			ErrElementOutOfRange, b.Element, Slot{Kind: kind, Index: b.Input}, in.maxElements())
	}
	return nil
}

func (t *bindingTable) attach(slot Slot, out *output) {
	for len(t.outputs[slot.Kind]) <= slot.Index {
		t.outputs[slot.Kind] = append(t.outputs[slot.Kind], nil)
	}
	t.outputs[slot.Kind][slot.Index] = out
}

// BindFrameInput binds a frame timeline to input slot index. Binding nil
// unbinds the slot; the slot delay is kept either way.
func (e *Engine) BindFrameInput(index int, src FrameSource) error {
	if index < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	in := e.table.ensureInput(KindFrame, index)
	in.frame = src
	in.bound = src != nil
	return nil
}

// BindMatrixInput binds a matrix timeline to input slot index
func (e *Engine) BindMatrixInput(index int, src MatrixSource) error {
	if index < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	in := e.table.ensureInput(KindMatrix, index)
	in.matrix = src
	in.bound = src != nil
	return nil
}

// AttachFrameOutput registers a frame output at slot index with its binding
func (e *Engine) AttachFrameOutput(index int, sink FrameSink, b Binding) error {
	if sink == nil {
		return ErrNilSink
	}
	return e.attachOutput(Slot{Kind: KindFrame, Index: index}, &output{binding: b, frame: sink})
}

// AttachMatrixOutput registers a matrix output at slot index with its binding
func (e *Engine) AttachMatrixOutput(index int, sink MatrixSink, b Binding) error {
	if sink == nil {
		return ErrNilSink
	}
	return e.attachOutput(Slot{Kind: KindMatrix, Index: index}, &output{binding: b, matrix: sink})
}

func (e *Engine) attachOutput(slot Slot, out *output) error {
	if slot.Index < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, slot.Index)
	}
	if err := e.table.validate(slot.Kind, out.binding); err != nil {
		return err
	}
	out.skew = newSkewWindow(e.opts.StatsWindow)
	e.table.attach(slot, out)
	return nil
}

// BindOutput replaces the source of an attached output. The output delay and
// the synchronization tracking of the slot are preserved; the new binding is
// used from the next TrySynchronize call on.
func (e *Engine) BindOutput(slot Slot, inputIndex, element int, sendStatus bool) error {
	out, err := e.table.output(slot)
	if err != nil {
		return err
	}
	b := Binding{
		Input:      inputIndex,
		Element:    element,
		SendStatus: sendStatus,
		Delay:      out.binding.Delay,
	}
	if err := e.table.validate(slot.Kind, b); err != nil {
		return err
	}
	out.binding = b
	return nil
}

// OutputBinding returns the current binding of an output
func (e *Engine) OutputBinding(slot Slot) (Binding, error) {
	out, err := e.table.output(slot)
	if err != nil {
		return Binding{}, err
	}
	return out.binding, nil
}

// SetDelay updates an input or output delay. Negative delays are allowed.
// Already written outputs are not re-evaluated.
func (e *Engine) SetDelay(target DelayTarget, delay int64) error {
	switch target.Scope {
	case ScopeInput:
		in, err := e.table.input(target.Kind, target.Index)
		if err != nil {
			return err
		}
		in.delay = delay
	case ScopeOutput:
		out, err := e.table.output(target.Slot)
		if err != nil {
			return err
		}
		out.binding.Delay = delay
	default:
		return fmt.Errorf("unknown delay scope %d", target.Scope)
	}
	return nil
}

// Delay returns the delay of an input or output
func (e *Engine) Delay(target DelayTarget) (int64, error) {
	if target.Scope == ScopeInput {
		in, err := e.table.input(target.Kind, target.Index)
		if err != nil {
			return 0, err
		}
		return in.delay, nil
	}
	out, err := e.table.output(target.Slot)
	if err != nil {
		return 0, err
	}
	return out.binding.Delay, nil
}

// SetDelayByKey updates a delay addressed by a key such as "frameDelay_0",
// "matrixDelay_1", "frameOutputDelay_0" or "matrixOutputDelay_2".
func (e *Engine) SetDelayByKey(key string, delay int64) error {
	target, err := ParseDelayKey(key)
	if err != nil {
		return err
	}
	return e.SetDelay(target, delay)
}

// ParseDelayKey converts a delay key into a DelayTarget
func ParseDelayKey(key string) (DelayTarget, error) {
	prefixes := []struct {
		prefix string
		target DelayTarget
	}{
		{FrameOutputDelayPrefix, DelayTarget{Scope: ScopeOutput, Slot: Slot{Kind: KindFrame}}},
		{MatrixOutputDelayPrefix, DelayTarget{Scope: ScopeOutput, Slot: Slot{Kind: KindMatrix}}},
		{FrameDelayPrefix, DelayTarget{Scope: ScopeInput, Slot: Slot{Kind: KindFrame}}},
		{MatrixDelayPrefix, DelayTarget{Scope: ScopeInput, Slot: Slot{Kind: KindMatrix}}},
	}

	for _, p := range prefixes {
		if !strings.HasPrefix(key, p.prefix) {
			continue
		}
		index, err := strconv.Atoi(strings.TrimPrefix(key, p.prefix))
		if err != nil || index < 0 {
			return DelayTarget{}, fmt.Errorf("%w: %q has no valid index", ErrUnknownDelayKey, key)
		}
		target := p.target
		target.Index = index
		return target, nil
	}
	return DelayTarget{}, fmt.Errorf("%w: %q", ErrUnknownDelayKey, key)
}
