package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"camgrid/internal/platform/metrics"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"
)

// PipelineDeps wires a Pipeline. Mirror, Status and Metrics may be nil.
type PipelineDeps struct {
	Compositor *Compositor
	Post       *PostProcessor
	Writer     *Writer
	Mirror     Mirror
	Status     StatusRepository
	Metrics    *metrics.Metrics
	Log        *slog.Logger

	// Now stamps the snapshot; defaults to time.Now.
	Now func() time.Time
}

// Pipeline runs one cycle: fetch and composite, post-process, publish.
type Pipeline struct {
	compositor *Compositor
	post       *PostProcessor
	writer     *Writer
	mirror     Mirror
	status     StatusRepository
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time
}

// ErrRunCanceled is returned when the run's context was canceled before
// publishing, as on shutdown. Nothing is written in that case. A run that only
// hit its deadline still publishes, with placeholders for the slots it cut off.
var ErrRunCanceled = errors.New("run canceled before publish")

// NewPipeline returns a Pipeline from deps.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{
		compositor: deps.Compositor,
		post:       deps.Post,
		writer:     deps.Writer,
		mirror:     deps.Mirror,
		status:     deps.Status,
		metrics:    deps.Metrics,
		log:        deps.Log,
		now:        deps.Now,
	}
}

// Run executes one cycle. Slot-level failures, including fetches cut short by
// ctx's deadline, become placeholder tiles and never surface here; the
// returned error is a WriteFailure or ErrRunCanceled.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	began := time.Now()
	res := RunResult{RunID: ulid.Make().String(), StartedAt: p.now().UTC()}
	log := p.log.With(slog.String("run_id", res.RunID))
	log.Info("run started")

	canvas, slots := p.compositor.Compose(ctx)
	res.Slots = slots
	p.recordSlots(log, slots)

	switch err := ctx.Err(); {
	case errors.Is(err, context.Canceled):
		return p.finish(log, res, began, fmt.Errorf("%w: %v", ErrRunCanceled, err))
	case err != nil:
		log.Warn("run deadline reached during fetch, publishing with placeholders")
	}

	p.post.Apply(canvas)

	snap, err := p.writer.Publish(canvas, res.StartedAt)
	if err != nil {
		return p.finish(log, res, began, err)
	}
	res.Published = true
	res.Snapshot = &snap
	log.Info("snapshot published",
		slog.String("path", snap.Path),
		slog.String("size", humanize.Bytes(uint64(snap.Size))),
		slog.String("digest", snap.Digest))

	if p.mirror != nil {
		if err := p.mirror.Mirror(ctx, snap); err != nil {
			res.MirrorErr = err.Error()
			log.Warn("snapshot mirror failed", slog.String("error", err.Error()))
			if p.metrics != nil {
				p.metrics.IncMirrorFailures()
			}
		}
	}

	return p.finish(log, res, began, nil)
}

func (p *Pipeline) recordSlots(log *slog.Logger, slots []SlotResult) {
	for _, s := range slots {
		attrs := []any{
			slog.Int("slot", s.Slot),
			slog.String("location", s.Location),
			slog.String("status", string(s.Status)),
			slog.Int("attempts", s.Attempts),
		}
		if s.Status == SlotOK {
			log.Info("slot rendered", append(attrs, slog.String("size", humanize.Bytes(uint64(s.Bytes))))...)
		} else {
			log.Warn("slot placeholder", append(attrs,
				slog.String("kind", string(s.Kind)),
				slog.String("reason", s.Reason))...)
		}
		if p.metrics != nil {
			p.metrics.IncSlotResult(s.Slot, string(s.Status), string(s.Kind))
			p.metrics.AddFetchAttempts(s.Slot, s.Attempts)
		}
	}
}

func (p *Pipeline) finish(log *slog.Logger, res RunResult, began time.Time, err error) (RunResult, error) {
	res.Duration = time.Since(began)
	outcome := "ok"
	if err != nil {
		res.Error = err.Error()
		outcome = "error"
		if errors.Is(err, ErrWriteFailure) {
			outcome = string(KindWriteFailure)
		}
		log.Error("run failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", res.Duration))
	} else {
		log.Info("run finished",
			slog.Int("live_tiles", res.LiveTiles()),
			slog.Duration("duration", res.Duration))
	}

	if p.metrics != nil {
		p.metrics.ObserveRun(outcome, res.Duration)
		if res.Published {
			p.metrics.SetLastSuccess(res.StartedAt)
		}
	}
	if p.status != nil {
		p.status.RecordRun(res)
	}
	return res, err
}
