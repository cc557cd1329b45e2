package snapshot

import (
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// ProbeResult is the reachability of one source.
type ProbeResult struct {
	Slot       int       `json:"slot"`
	Location   string    `json:"location"`
	Reachable  bool      `json:"reachable"`
	StatusCode int       `json:"status_code,omitempty"`
	LatencyMS  int64     `json:"latency_ms"`
	Kind       ErrorKind `json:"kind,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Prober checks each source once with a short timeout. It is a diagnostic
// side channel and shares nothing with the pipeline.
type Prober struct {
	client  *http.Client
	sources Sources
	timeout time.Duration
	now     func() time.Time
}

// NewProber returns a Prober. client may be nil.
func NewProber(client *http.Client, sources Sources, timeout time.Duration) *Prober {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{client: client, sources: sources, timeout: timeout, now: time.Now}
}

// Probe checks all slots concurrently and returns results in slot order.
func (p *Prober) Probe(ctx context.Context) []ProbeResult {
	out := make([]ProbeResult, SlotCount)
	var g errgroup.Group
	for slot := range SlotCount {
		src := p.sources[slot]
		if !src.Configured() {
			out[slot] = ProbeResult{Slot: slot, Location: locationOf(src), Kind: KindConfigurationGap, Error: "no camera configured"}
			continue
		}
		g.Go(func() error {
			out[slot] = p.probe(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Prober) probe(ctx context.Context, src *CameraSource) ProbeResult {
	res := ProbeResult{Slot: src.Slot, Location: src.Location}

	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(pctx, http.MethodGet, ResolveURL(src.URLTemplate, p.now()), nil)
	if err != nil {
		res.Kind = KindSourceUnavailable
		res.Error = err.Error()
		return res
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.client.Do(req)
	res.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		res.Kind = KindSourceUnavailable
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	res.StatusCode = resp.StatusCode
	res.Reachable = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !res.Reachable {
		res.Kind = KindSourceUnavailable
		res.Error = resp.Status
	}
	return res
}

// AnyReachable reports whether at least one probe succeeded.
func AnyReachable(results []ProbeResult) bool {
	for _, r := range results {
		if r.Reachable {
			return true
		}
	}
	return false
}

func locationOf(src *CameraSource) string {
	if src == nil {
		return ""
	}
	return src.Location
}
