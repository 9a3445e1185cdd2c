package timeline

import (
	"bytes"
	"fmt"

	"mrisync/internal/models"
)

// FrameTimeline is a timeline of image buffers sharing a single geometry
type FrameTimeline struct {
	*Timeline[[]byte]
	format models.FrameFormat
}

// NewFrameTimeline creates a frame timeline. Frame timelines usually carry a
// single element per buffer.
func NewFrameTimeline(format models.FrameFormat, maxElements, capacity int) *FrameTimeline {
	return &FrameTimeline{
		Timeline: New[[]byte](maxElements, capacity),
		format:   format,
	}
}

// Format returns the frame geometry
func (ft *FrameTimeline) Format() models.FrameFormat {
	return ft.format
}

// PushFrame pushes a single-element frame buffer
func (ft *FrameTimeline) PushFrame(timestamp int64, data []byte) error {
	return ft.PushElements(timestamp, map[int][]byte{0: data})
}

// PushElements pushes a frame buffer from element values. Every element must
// match the timeline format. The data is copied: producers may reuse their
// buffers once the call returns.
func (ft *FrameTimeline) PushElements(timestamp int64, values map[int][]byte) error {
	owned := make(map[int][]byte, len(values))
	for idx, data := range values {
		if len(data) != ft.format.Size() {
			return fmt.Errorf("%w: element %d has %d bytes, timeline format needs %d",
				models.ErrFrameSize, idx, len(data), ft.format.Size())
		}
		owned[idx] = bytes.Clone(data)
	}
	return ft.Timeline.PushElements(timestamp, owned)
}

// MatrixTimeline is a timeline of 4x4 transform sets
type MatrixTimeline struct {
	*Timeline[models.Matrix4]
}

// NewMatrixTimeline creates a matrix timeline holding maxElements matrices per buffer
func NewMatrixTimeline(maxElements, capacity int) *MatrixTimeline {
	return &MatrixTimeline{Timeline: New[models.Matrix4](maxElements, capacity)}
}
