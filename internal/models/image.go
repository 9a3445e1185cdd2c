package models

import "fmt"

// Timestamp is a sample time in milliseconds since the Unix epoch.
// Timelines may be cleared and replayed, so timestamps are not guaranteed
// to increase over the lifetime of a session.
type Timestamp = int64

// PixelFormat describes the memory layout of a frame buffer
type PixelFormat int

const (
	Undefined PixelFormat = iota
	GrayScale
	RGB
	BGR
	RGBA
	BGRA
)

// NumComponents returns the number of bytes per pixel for the format
func (p PixelFormat) NumComponents() int {
	switch p {
	case GrayScale:
		return 1
	case RGB, BGR:
		return 3
	case RGBA, BGRA:
		return 4
	default:
		return 0
	}
}

// String returns the lowercase name of the pixel format
func (p PixelFormat) String() string {
	switch p {
	case GrayScale:
		return "gray"
	case RGB:
		return "rgb"
	case BGR:
		return "bgr"
	case RGBA:
		return "rgba"
	case BGRA:
		return "bgra"
	default:
		return "undefined"
	}
}

// FrameFormat describes the geometry shared by every frame of a frame timeline
type FrameFormat struct {
	// Width is the frame width in pixels
	Width int

	// Height is the frame height in pixels
	Height int

	// PixelFormat is the layout of a single pixel
	PixelFormat PixelFormat
}

// Size returns the number of bytes of one frame element
func (f FrameFormat) Size() int {
	return f.Width * f.Height * f.PixelFormat.NumComponents()
}

// Image is a frame output. Its identity never changes during a session:
// synchronization only mutates its contents.
type Image struct {
	// Format is the current geometry of the buffer
	Format FrameFormat

	// Data holds the pixel buffer in row-major order
	Data []byte

	// Origin and Spacing are reset whenever the geometry changes
	Origin  [3]float64
	Spacing [3]float64

	// WindowCenter and WindowWidth are reset whenever the geometry changes
	WindowCenter float64
	WindowWidth  float64

	// Modified counts how many times the buffer has been written
	Modified uint64
}

// NewImage creates an empty image output
func NewImage() *Image {
	return &Image{
		Spacing:     [3]float64{1, 1, 1},
		WindowWidth: 1,
	}
}

// WriteFrame copies a frame element into the image, resizing the buffer
// first when the timeline geometry differs from the current one.
func (img *Image) WriteFrame(format FrameFormat, data []byte) error {
	if format.PixelFormat == Undefined {
		return ErrUndefinedPixelFormat
	}
	if len(data) != format.Size() {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(data), format.Size())
	}

	if format != img.Format || len(img.Data) != format.Size() {
		img.Format = format
		img.Data = make([]byte, format.Size())
		img.Origin = [3]float64{0, 0, 0}
		img.Spacing = [3]float64{1, 1, 1}
		img.WindowWidth = 1
		img.WindowCenter = 0
	}

	copy(img.Data, data)
	img.Modified++
	return nil
}
