package dicom

import (
	"fmt"
	"time"

	"github.com/suyashkumar/dicom"

	"mrisync/internal/models"
)

// ImageSeries is a frame output carrying DICOM attributes. The synchronizer
// writes pixels through the embedded image and stamps the acquisition time of
// each written frame through SetFrameAcquisitionTimePoint.
type ImageSeries struct {
	*models.Image
	store Store
}

// NewImageSeries creates an image series over an empty dataset
func NewImageSeries() *ImageSeries {
	return NewImageSeriesWithStore(NewDatasetStore(&dicom.Dataset{}))
}

// NewImageSeriesWithStore creates an image series over an existing store
func NewImageSeriesWithStore(store Store) *ImageSeries {
	return &ImageSeries{Image: models.NewImage(), store: store}
}

// Store returns the attribute store of the series
func (s *ImageSeries) Store() Store {
	return s.store
}

// FrameAcquisitionDateTime returns the DT value of a frame, if set
func (s *ImageSeries) FrameAcquisitionDateTime(frame int) (string, bool) {
	groups, err := s.store.Items(PerFrameFunctionalGroupsSequence)
	if err != nil || frame < 0 || frame >= len(groups) {
		return "", false
	}
	contents, err := groups[frame].Items(FrameContentSequence)
	if err != nil || len(contents) == 0 {
		return "", false
	}
	return contents[0].Get(FrameAcquisitionDateTime)
}

// SetFrameAcquisitionDateTime sets the DT value of a frame, creating the
// functional group items as needed. A nil value removes the attribute.
func (s *ImageSeries) SetFrameAcquisitionDateTime(frame int, value *string) error {
	group, err := s.store.Item(PerFrameFunctionalGroupsSequence, frame)
	if err != nil {
		return fmt.Errorf("frame %d functional group: %w", frame, err)
	}
	content, err := group.Item(FrameContentSequence, 0)
	if err != nil {
		return fmt.Errorf("frame %d content: %w", frame, err)
	}
	return content.Set(FrameAcquisitionDateTime, value)
}

// FrameAcquisitionTime parses the DT value of a frame
func (s *ImageSeries) FrameAcquisitionTime(frame int) (time.Time, bool) {
	dt, ok := s.FrameAcquisitionDateTime(frame)
	if !ok {
		return time.Time{}, false
	}
	t, err := DateTimeToTime(dt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FrameAcquisitionTimePoint returns the acquisition time of a frame as a
// millisecond timestamp
func (s *ImageSeries) FrameAcquisitionTimePoint(frame int) (int64, bool) {
	t, ok := s.FrameAcquisitionTime(frame)
	if !ok {
		return 0, false
	}
	return t.UnixMilli(), true
}

// SetFrameAcquisitionTimePoint stores a millisecond timestamp as the full
// DT value of a frame
func (s *ImageSeries) SetFrameAcquisitionTimePoint(frame int, timestamp int64) error {
	dt := TimestampToDateTime(timestamp)
	return s.SetFrameAcquisitionDateTime(frame, &dt)
}
