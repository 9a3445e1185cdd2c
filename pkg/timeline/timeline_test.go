package timeline

import (
	"errors"
	"sync"
	"testing"

	"mrisync/internal/models"
)

// TestClosest verifies nearest-sample lookup including ties and bounds
func TestClosest(t *testing.T) {
	tl := New[int](1, 0)
	for _, ts := range []int64{1, 2, 6, 8, 12} {
		if err := tl.PushElements(ts, map[int]int{0: int(ts)}); err != nil {
			t.Fatalf("push %d: %v", ts, err)
		}
	}

	tests := []struct {
		query int64
		want  int64
	}{
		{query: -5, want: 1},
		{query: 1, want: 1},
		{query: 4, want: 2}, // tie between 2 and 6 resolves to the older buffer
		{query: 5, want: 6},
		{query: 7, want: 6},
		{query: 10, want: 8},
		{query: 11, want: 12},
		{query: 100, want: 12},
	}

	for _, tc := range tests {
		buf, ok := tl.Closest(tc.query)
		if !ok {
			t.Fatalf("Expected a buffer for query %d", tc.query)
		}
		if buf.Timestamp() != tc.want {
			t.Errorf("Closest(%d): expected %d, got %d", tc.query, tc.want, buf.Timestamp())
		}
	}
}

// TestEmptyTimeline verifies that an empty timeline reports no data
func TestEmptyTimeline(t *testing.T) {
	tl := New[int](1, 4)
	if _, ok := tl.Newest(); ok {
		t.Error("Expected no newest timestamp on an empty timeline")
	}
	if _, ok := tl.Closest(3); ok {
		t.Error("Expected no closest buffer on an empty timeline")
	}
}

// TestPushOrderingAndCapacity verifies ordered insertion, replacement and eviction
func TestPushOrderingAndCapacity(t *testing.T) {
	tl := New[int](1, 3)
	for _, ts := range []int64{5, 1, 3} {
		if err := tl.PushElements(ts, map[int]int{0: int(ts)}); err != nil {
			t.Fatalf("push %d: %v", ts, err)
		}
	}
	if oldest, _ := tl.Oldest(); oldest != 1 {
		t.Errorf("Expected oldest 1, got %d", oldest)
	}
	if newest, _ := tl.Newest(); newest != 5 {
		t.Errorf("Expected newest 5, got %d", newest)
	}

	// Same timestamp replaces the existing buffer
	if err := tl.PushElements(3, map[int]int{0: 33}); err != nil {
		t.Fatalf("push replacement: %v", err)
	}
	if tl.Len() != 3 {
		t.Errorf("Expected 3 buffers after replacement, got %d", tl.Len())
	}
	buf, _ := tl.Closest(3)
	if v, _ := buf.Element(0); v != 33 {
		t.Errorf("Expected replaced value 33, got %d", v)
	}

	// Exceeding the capacity drops the oldest buffer
	if err := tl.PushElements(7, map[int]int{0: 7}); err != nil {
		t.Fatalf("push 7: %v", err)
	}
	if oldest, _ := tl.Oldest(); oldest != 3 {
		t.Errorf("Expected oldest 3 after eviction, got %d", oldest)
	}
}

// TestBufferElements verifies element presence and bounds
func TestBufferElements(t *testing.T) {
	buf := NewBuffer[models.Matrix4](6, 3)
	if err := buf.SetElement(1, models.Identity4()); err != nil {
		t.Fatalf("SetElement: %v", err)
	}
	if _, ok := buf.Element(0); ok {
		t.Error("Expected element 0 to be absent")
	}
	if _, ok := buf.Element(1); !ok {
		t.Error("Expected element 1 to be present")
	}
	if err := buf.SetElement(3, models.Matrix4{}); err != ErrElementOutOfRange {
		t.Errorf("Expected ErrElementOutOfRange, got %v", err)
	}
}

// TestListeners verifies push and clear notifications
func TestListeners(t *testing.T) {
	tl := NewMatrixTimeline(2, 8)
	var pushed []int64
	cleared := 0
	tl.OnPush(func(ts int64) { pushed = append(pushed, ts) })
	tl.OnClear(func() { cleared++ })

	_ = tl.PushElements(1, map[int]models.Matrix4{0: models.Identity4()})
	_ = tl.PushElements(2, map[int]models.Matrix4{1: models.Identity4()})
	tl.Clear()

	if len(pushed) != 2 || pushed[0] != 1 || pushed[1] != 2 {
		t.Errorf("Expected pushes [1 2], got %v", pushed)
	}
	if cleared != 1 {
		t.Errorf("Expected 1 clear notification, got %d", cleared)
	}
	if tl.Len() != 0 {
		t.Errorf("Expected empty timeline after clear, got %d buffers", tl.Len())
	}
}

// TestFrameTimelineSize verifies frame size validation
func TestFrameTimelineSize(t *testing.T) {
	ft := NewFrameTimeline(models.FrameFormat{Width: 2, Height: 2, PixelFormat: models.GrayScale}, 1, 4)
	if err := ft.PushFrame(1, make([]byte, 3)); err == nil {
		t.Error("Expected error for mis-sized frame")
	}
	if err := ft.PushFrame(1, make([]byte, 4)); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	// Element pushes go through the same check
	err := ft.PushElements(2, map[int][]byte{0: make([]byte, 2)})
	if !errors.Is(err, models.ErrFrameSize) {
		t.Errorf("Expected ErrFrameSize, got %v", err)
	}
	if newest, _ := ft.Newest(); newest != 1 {
		t.Errorf("Expected rejected push to leave newest at 1, got %d", newest)
	}
}

// TestFrameTimelineOwnsData verifies that producers may reuse their buffers
func TestFrameTimelineOwnsData(t *testing.T) {
	ft := NewFrameTimeline(models.FrameFormat{Width: 1, Height: 1, PixelFormat: models.GrayScale}, 2, 4)

	capture := []byte{7}
	if err := ft.PushFrame(1, capture); err != nil {
		t.Fatalf("push frame: %v", err)
	}
	capture[0] = 99

	other := []byte{8}
	if err := ft.PushElements(2, map[int][]byte{1: other}); err != nil {
		t.Fatalf("push elements: %v", err)
	}
	other[0] = 99

	buf, _ := ft.Closest(1)
	if v, _ := buf.Element(0); v[0] != 7 {
		t.Errorf("Expected stored frame 7, got %d", v[0])
	}
	buf, _ = ft.Closest(2)
	if v, _ := buf.Element(1); v[0] != 8 {
		t.Errorf("Expected stored element 8, got %d", v[0])
	}
}

// TestConcurrentPushAndQuery exercises concurrent producers and readers
func TestConcurrentPushAndQuery(t *testing.T) {
	tl := New[int](1, 128)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = tl.PushElements(int64(i*4+offset), map[int]int{0: i})
			}
		}(p)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			tl.Newest()
			tl.Closest(int64(i))
		}
	}()
	wg.Wait()

	if tl.Len() != 128 {
		t.Errorf("Expected 128 retained buffers, got %d", tl.Len())
	}
}
