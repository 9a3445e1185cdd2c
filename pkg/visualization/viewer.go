package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"

	"mrisync/internal/models"
	"mrisync/pkg/synchronizer"
)

// Viewer renders synchronized frame outputs to image files
type Viewer struct {
	// frame is the output being rendered; it is read in place
	frame *models.Image

	// name prefixes the snapshot files
	name string
}

// NewViewer creates a viewer over a frame output
func NewViewer(frame *models.Image, name string) *Viewer {
	return &Viewer{
		frame: frame,
		name:  name,
	}
}

// ToImage converts the current frame content into an image.Image
func (v *Viewer) ToImage() (image.Image, error) {
	format := v.frame.Format
	if format.Size() == 0 || len(v.frame.Data) < format.Size() {
		return nil, fmt.Errorf("frame %s holds no data", v.name)
	}

	rect := image.Rect(0, 0, format.Width, format.Height)
	data := v.frame.Data

	switch format.PixelFormat {
	case models.GrayScale:
		img := image.NewGray(rect)
		copy(img.Pix, data[:format.Size()])
		return img, nil

	case models.RGB, models.BGR, models.RGBA, models.BGRA:
		img := image.NewRGBA(rect)
		n := format.PixelFormat.NumComponents()
		for y := 0; y < format.Height; y++ {
			for x := 0; x < format.Width; x++ {
				idx := (y*format.Width + x) * n
				c := color.RGBA{R: data[idx], G: data[idx+1], B: data[idx+2], A: 255}
				if format.PixelFormat == models.BGR || format.PixelFormat == models.BGRA {
					c.R, c.B = c.B, c.R
				}
				if n == 4 {
					c.A = data[idx+3]
				}
				img.SetRGBA(x, y, c)
			}
		}
		return img, nil

	default:
		return nil, fmt.Errorf("unsupported pixel format: %s", format.PixelFormat)
	}
}

// SaveSlice saves an image as a JPEG file
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSnapshot renders the current frame into outputDir, naming the file
// after the viewer and the synchronization timestamp
func (v *Viewer) SaveSnapshot(outputDir string, timestamp int64) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}

	img, err := v.ToImage()
	if err != nil {
		return "", err
	}

	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%d.jpg", v.name, timestamp))
	if err := v.SaveSlice(img, filename); err != nil {
		return "", err
	}
	return filename, nil
}

// Recorder saves a snapshot of every viewer after each successful
// synchronization. It implements synchronizer.Listener.
type Recorder struct {
	viewers   []*Viewer
	outputDir string
	logger    *slog.Logger

	// Saved counts the files written so far
	Saved int
}

// NewRecorder creates a recorder writing into outputDir
func NewRecorder(outputDir string, logger *slog.Logger, viewers ...*Viewer) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		viewers:   viewers,
		outputDir: outputDir,
		logger:    logger.With("component", "recorder"),
	}
}

// OnEvent saves snapshots on synchronization_done
func (r *Recorder) OnEvent(ev synchronizer.Event) {
	if ev.Type != synchronizer.EventSynchronizationDone {
		return
	}
	for _, v := range r.viewers {
		filename, err := v.SaveSnapshot(r.outputDir, ev.Timestamp)
		if err != nil {
			// Outputs never written yet have no data
			r.logger.Debug("snapshot skipped", "frame", v.name, "error", err)
			continue
		}
		r.Saved++
		r.logger.Debug("snapshot saved", "file", filename)
	}
}
