package snapshot

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"
)

// instantTimer satisfies backoff.Timer and fires immediately, recording the
// requested waits. Its channel is closed, so it is safe to share between
// concurrent fetches.
type instantTimer struct {
	mu    sync.Mutex
	c     chan time.Time
	waits []time.Duration
}

func newInstantTimer() *instantTimer {
	c := make(chan time.Time)
	close(c)
	return &instantTimer{c: c}
}

func (t *instantTimer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waits = append(t.waits, d)
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

// solidJPEG encodes a w×h image of one color.
func solidJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

// stubFetcher returns canned results and counts calls.
type stubFetcher struct {
	results [SlotCount]FetchResult
	calls   int
}

func (f *stubFetcher) FetchAll(ctx context.Context, sources Sources) [SlotCount]FetchResult {
	f.calls++
	return f.results
}

// liveResults builds fetch results where the first n slots are live red
// images and the rest failed.
func liveResults(t *testing.T, n int) [SlotCount]FetchResult {
	t.Helper()
	red := solidJPEG(t, 40, 30, color.RGBA{R: 0xFF, A: 0xFF})
	var out [SlotCount]FetchResult
	for slot := range SlotCount {
		if slot < n {
			out[slot] = FetchResult{Slot: slot, Data: red, Attempts: 1}
			continue
		}
		out[slot] = FetchResult{Slot: slot, Attempts: 3, Err: newError(KindSourceUnavailable, slot, "gave up after 3 attempt(s)", nil)}
	}
	return out
}

func testSources() Sources {
	return NewSources(
		[2]string{"http://cam.invalid/0.jpg", "North Gate"},
		[2]string{"http://cam.invalid/1.jpg", "Loading Dock"},
		[2]string{"http://cam.invalid/2.jpg", "Lobby"},
		[2]string{"http://cam.invalid/3.jpg", "Roof"},
	)
}
