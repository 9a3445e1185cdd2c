package dicom

import (
	"testing"

	"mrisync/internal/models"
)

func TestFrameAcquisitionDateTime(t *testing.T) {
	values := []string{
		"20221026150703.000000",
		"20221026150703.000001",
		"20221026150703.000002",
	}

	series := NewImageSeries()
	for i := range values {
		if err := series.SetFrameAcquisitionDateTime(i, &values[i]); err != nil {
			t.Fatalf("Set frame %d failed: %v", i, err)
		}
	}

	for i, want := range values {
		got, ok := series.FrameAcquisitionDateTime(i)
		if !ok || got != want {
			t.Errorf("Frame %d: expected %s, got %q (%v)", i, want, got, ok)
		}
	}

	if _, ok := series.FrameAcquisitionDateTime(3); ok {
		t.Error("Expected frame 3 to be unset")
	}

	if err := series.SetFrameAcquisitionDateTime(1, nil); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := series.FrameAcquisitionDateTime(1); ok {
		t.Error("Expected frame 1 to be cleared")
	}
	if got, _ := series.FrameAcquisitionDateTime(2); got != values[2] {
		t.Errorf("Expected frame 2 untouched, got %q", got)
	}
}

func TestFrameAcquisitionTimePoint(t *testing.T) {
	series := NewImageSeries()
	partial := []string{"2023", "20221026150703.1", "20221026150703"}
	for i := range partial {
		if err := series.SetFrameAcquisitionDateTime(i, &partial[i]); err != nil {
			t.Fatalf("Set frame %d failed: %v", i, err)
		}
	}

	want := []string{"20230101000000.000000", "20221026150703.100000", "20221026150703.000000"}
	for i := range partial {
		ts, ok := series.FrameAcquisitionTimePoint(i)
		if !ok {
			t.Fatalf("Frame %d: expected a time point", i)
		}
		if got := TimestampToDateTime(ts); got != want[i] {
			t.Errorf("Frame %d: expected %s, got %s", i, want[i], got)
		}
	}

	// Overwrite through the time point API
	ts, _ := series.FrameAcquisitionTimePoint(1)
	if err := series.SetFrameAcquisitionTimePoint(0, ts); err != nil {
		t.Fatalf("SetFrameAcquisitionTimePoint failed: %v", err)
	}
	if got, _ := series.FrameAcquisitionDateTime(0); got != "20221026150703.100000" {
		t.Errorf("Expected overwritten value, got %s", got)
	}
}

func TestImageSeriesIsFrameOutput(t *testing.T) {
	series := NewImageSeries()
	format := models.FrameFormat{Width: 2, Height: 1, PixelFormat: models.GrayScale}
	if err := series.WriteFrame(format, []byte{7, 9}); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if series.Format != format || series.Data[1] != 9 {
		t.Errorf("Expected frame written into the series, got %+v %v", series.Format, series.Data)
	}
	if err := series.SetFrameAcquisitionTimePoint(0, 1666796823000); err != nil {
		t.Fatalf("SetFrameAcquisitionTimePoint failed: %v", err)
	}
	if got, _ := series.FrameAcquisitionDateTime(0); got != "20221026150703.000000" {
		t.Errorf("Expected 20221026150703.000000, got %s", got)
	}
}
