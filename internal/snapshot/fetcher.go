package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// FreshnessToken in a URL template is replaced by the request time in Unix
// milliseconds so upstream caches never serve a stale frame.
const FreshnessToken = "{timestamp}"

const (
	DefaultFetchTimeout  = 10 * time.Second
	DefaultMinImageBytes = 1024
	DefaultMaxImageBytes = 20 << 20
	defaultUserAgent     = "camgrid/1.0"
)

var (
	sigJPEG  = []byte{0xFF, 0xD8, 0xFF}
	sigPNG   = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
	sigGIF87 = []byte("GIF87a")
	sigGIF89 = []byte("GIF89a")
)

// SourceFetcher retrieves the current image bytes for every slot.
type SourceFetcher interface {
	FetchAll(ctx context.Context, sources Sources) [SlotCount]FetchResult
}

// FetcherOptions configures a Fetcher. Zero values take the defaults above.
type FetcherOptions struct {
	Timeout   time.Duration
	Retry     RetryPolicy
	MinBytes  int
	MaxBytes  int
	UserAgent string

	// Now supplies the freshness token value; defaults to time.Now.
	Now func() time.Time
}

// Fetcher fetches still images over HTTP with a per-attempt timeout and a
// bounded retry policy.
type Fetcher struct {
	client *http.Client
	opts   FetcherOptions
	log    *slog.Logger
}

// NewFetcher returns a Fetcher. client may be nil to use a dedicated default
// client; per-attempt deadlines come from contexts, not client.Timeout.
func NewFetcher(client *http.Client, opts FetcherOptions, log *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if opts.MinBytes <= 0 {
		opts.MinBytes = DefaultMinImageBytes
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxImageBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Fetcher{client: client, opts: opts, log: log}
}

// WorstCase is the longest a single slot can take.
func (f *Fetcher) WorstCase() time.Duration {
	return f.opts.Retry.WorstCase(f.opts.Timeout)
}

// ResolveURL substitutes the freshness token in template.
func ResolveURL(template string, now time.Time) string {
	return strings.ReplaceAll(template, FreshnessToken, strconv.FormatInt(now.UnixMilli(), 10))
}

// SniffFormat returns "jpeg", "png" or "gif" from the leading magic bytes, or
// "" when none match.
func SniffFormat(b []byte) string {
	switch {
	case bytes.HasPrefix(b, sigJPEG):
		return "jpeg"
	case bytes.HasPrefix(b, sigPNG):
		return "png"
	case bytes.HasPrefix(b, sigGIF87), bytes.HasPrefix(b, sigGIF89):
		return "gif"
	}
	return ""
}

// FetchAll fetches every slot concurrently, at most SlotCount in flight. Each
// slot's result lands at its own index, so completion order does not matter.
// Missing sources produce a ConfigurationGap result without any I/O.
func (f *Fetcher) FetchAll(ctx context.Context, sources Sources) [SlotCount]FetchResult {
	var out [SlotCount]FetchResult
	var g errgroup.Group
	g.SetLimit(SlotCount)
	for slot := range SlotCount {
		src := sources[slot]
		if !src.Configured() {
			out[slot] = FetchResult{Slot: slot, Err: newError(KindConfigurationGap, slot, "no camera configured", nil)}
			continue
		}
		g.Go(func() error {
			out[slot] = f.Fetch(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Fetch runs the retry policy for one source and returns validated bytes or a
// typed failure.
func (f *Fetcher) Fetch(ctx context.Context, src *CameraSource) FetchResult {
	start := time.Now()
	log := f.log.With(slog.Int("slot", src.Slot), slog.String("location", src.Location))

	var (
		data []byte
		last *Error
	)
	attempts, err := f.opts.Retry.Do(ctx, func(attempt int) error {
		body, aerr := f.attempt(ctx, src)
		if aerr != nil {
			last = aerr
			if errors.Is(aerr, errBadTemplate) {
				return backoff.Permanent(aerr)
			}
			return aerr
		}
		data = body
		return nil
	}, func(err error, wait time.Duration) {
		log.Debug("fetch attempt failed, retrying",
			slog.String("error", err.Error()),
			slog.Duration("wait", wait))
	})

	res := FetchResult{Slot: src.Slot, Attempts: attempts, Elapsed: time.Since(start)}
	if err != nil {
		if last == nil {
			last = newError(KindSourceUnavailable, src.Slot, "fetch aborted", err)
		}
		res.Err = &Error{
			Kind:    last.Kind,
			Slot:    src.Slot,
			Message: fmt.Sprintf("gave up after %d attempt(s)", attempts),
			Err:     last.Err,
		}
		return res
	}

	log.Debug("fetched source image",
		slog.String("size", humanize.Bytes(uint64(len(data)))),
		slog.Int("attempts", attempts),
		slog.Duration("elapsed", res.Elapsed))
	res.Data = data
	return res
}

var errBadTemplate = errors.New("invalid source url")

// attempt performs one bounded request. The timeout cancels only this
// attempt's request.
func (f *Fetcher) attempt(ctx context.Context, src *CameraSource) ([]byte, *Error) {
	actx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, ResolveURL(src.URLTemplate, f.opts.Now()), nil)
	if err != nil {
		return nil, newError(KindSourceUnavailable, src.Slot, "request", fmt.Errorf("%w: %v", errBadTemplate, err))
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			return nil, newError(KindSourceUnavailable, src.Slot, "request", fmt.Errorf("timed out after %s", f.opts.Timeout))
		}
		return nil, newError(KindSourceUnavailable, src.Slot, "request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, newError(KindSourceUnavailable, src.Slot, "request", fmt.Errorf("status %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(f.opts.MaxBytes)+1))
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			return nil, newError(KindSourceUnavailable, src.Slot, "read body", fmt.Errorf("timed out after %s", f.opts.Timeout))
		}
		return nil, newError(KindSourceUnavailable, src.Slot, "read body", err)
	}
	if err := f.validate(body); err != nil {
		return nil, newError(KindInvalidImage, src.Slot, "validate", err)
	}
	return body, nil
}

func (f *Fetcher) validate(body []byte) error {
	switch {
	case len(body) > f.opts.MaxBytes:
		return fmt.Errorf("body exceeds %s", humanize.Bytes(uint64(f.opts.MaxBytes)))
	case len(body) < f.opts.MinBytes:
		return fmt.Errorf("body too small (%d bytes)", len(body))
	case SniffFormat(body) == "":
		return errors.New("unrecognized image signature")
	}
	return nil
}
