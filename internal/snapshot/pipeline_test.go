package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"camgrid/internal/platform/logger"
	"camgrid/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeMirror struct {
	got []Snapshot
	err error
}

func (m *fakeMirror) Mirror(ctx context.Context, snap Snapshot) error {
	m.got = append(m.got, snap)
	return m.err
}

type pipelineFixture struct {
	pipeline *Pipeline
	writer   *Writer
	status   *InMemoryStatus
	metrics  *metrics.Metrics
	mirror   *fakeMirror
}

func newPipelineFixture(t *testing.T, dir string, live int) *pipelineFixture {
	t.Helper()
	geom := Geometry{Size: 128, Border: 4}
	fx := &pipelineFixture{
		writer:  NewWriter(WriterOptions{Dir: dir}),
		status:  NewInMemoryStatus(),
		metrics: metrics.New(),
		mirror:  &fakeMirror{},
	}
	fx.pipeline = NewPipeline(PipelineDeps{
		Compositor: NewCompositor(geom, testSources(), &stubFetcher{results: liveResults(t, live)}),
		Post:       NewPostProcessor(geom.Size, DefaultTint, 0.1, "LIVE GRID"),
		Writer:     fx.writer,
		Mirror:     fx.mirror,
		Status:     fx.status,
		Metrics:    fx.metrics,
		Log:        logger.Discard(),
		Now:        func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	return fx
}

func TestPipeline_Run_publishes(t *testing.T) {
	fx := newPipelineFixture(t, t.TempDir(), 3)

	res, err := fx.pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Published || res.Snapshot == nil {
		t.Fatalf("run not published: %+v", res)
	}
	if res.RunID == "" || len(res.Slots) != SlotCount {
		t.Errorf("run id %q with %d slots", res.RunID, len(res.Slots))
	}
	if res.LiveTiles() != 3 {
		t.Errorf("LiveTiles = %d, want 3", res.LiveTiles())
	}
	if _, err := os.Stat(fx.writer.Path()); err != nil {
		t.Errorf("published file missing: %v", err)
	}
	if len(fx.mirror.got) != 1 || fx.mirror.got[0].Digest != res.Snapshot.Digest {
		t.Errorf("mirror received %d snapshots", len(fx.mirror.got))
	}
	if last, ok := fx.status.LastRun(); !ok || last.RunID != res.RunID {
		t.Errorf("status LastRun = %q ok=%v", last.RunID, ok)
	}
	if n, err := testutil.GatherAndCount(fx.metrics.Registry(), "camgrid_slot_results_total"); err != nil || n != SlotCount {
		t.Errorf("camgrid_slot_results_total series = %d (err %v), want %d", n, err, SlotCount)
	}
}

func TestPipeline_Run_all_sources_down_still_publishes(t *testing.T) {
	fx := newPipelineFixture(t, t.TempDir(), 0)

	res, err := fx.pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Published || res.LiveTiles() != 0 {
		t.Errorf("published=%v live=%d, want a published all-placeholder grid", res.Published, res.LiveTiles())
	}
	for _, s := range res.Slots {
		if s.Status != SlotPlaceholder || s.Kind != KindSourceUnavailable {
			t.Errorf("slot %d = %s/%s", s.Slot, s.Status, s.Kind)
		}
	}
}

func TestPipeline_Run_mirror_failure_is_not_fatal(t *testing.T) {
	fx := newPipelineFixture(t, t.TempDir(), 4)
	fx.mirror.err = errors.New("bucket unreachable")

	res, err := fx.pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Published || res.MirrorErr == "" {
		t.Errorf("published=%v mirror_error=%q", res.Published, res.MirrorErr)
	}
}

func TestPipeline_Run_write_failure(t *testing.T) {
	dir := t.TempDir()
	fx := newPipelineFixture(t, dir, 2)
	if err := os.MkdirAll(filepath.Join(fx.writer.Path(), "keep"), 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := fx.pipeline.Run(context.Background())
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("err = %v, want write failure", err)
	}
	if res.Published || res.Error == "" {
		t.Errorf("published=%v error=%q", res.Published, res.Error)
	}
	if len(fx.mirror.got) != 0 {
		t.Error("mirror should not run after a failed publish")
	}
	if _, ok := fx.status.LastPublished(); ok {
		t.Error("LastPublished should be empty after a failed publish")
	}
}

func TestPipeline_Run_canceled_does_not_publish(t *testing.T) {
	fx := newPipelineFixture(t, t.TempDir(), 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := fx.pipeline.Run(ctx)
	if !errors.Is(err, ErrRunCanceled) {
		t.Fatalf("err = %v, want ErrRunCanceled", err)
	}
	if res.Published {
		t.Error("canceled run should not publish")
	}
	if _, err := os.Stat(fx.writer.Path()); !os.IsNotExist(err) {
		t.Errorf("published file exists after canceled run: %v", err)
	}
}

func TestPipeline_Run_deadline_still_publishes(t *testing.T) {
	fx := newPipelineFixture(t, t.TempDir(), 3)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	res, err := fx.pipeline.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Published || res.LiveTiles() != 3 {
		t.Errorf("published=%v live=%d, want a published grid with 3 live tiles", res.Published, res.LiveTiles())
	}
	if _, err := os.Stat(fx.writer.Path()); err != nil {
		t.Errorf("published file missing: %v", err)
	}
}
