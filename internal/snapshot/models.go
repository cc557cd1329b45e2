package snapshot

import "time"

// SlotCount is the number of cells in the 2x2 grid. Every run renders exactly
// this many tiles.
const SlotCount = 4

// CameraSource is one configured still-image source bound to a grid slot.
// URLTemplate may contain FreshnessToken, which is replaced with the current
// Unix time in milliseconds on every request.
type CameraSource struct {
	URLTemplate string
	Location    string
	Slot        int
}

// Sources maps the configured cameras onto the four slots. A nil entry is a
// configuration gap.
type Sources [SlotCount]*CameraSource

// NewSources builds Sources from (url, location) pairs in slot order. Pairs
// beyond SlotCount are ignored. A pair with an empty URL is a gap; its
// location is kept for the tile label.
func NewSources(entries ...[2]string) Sources {
	var s Sources
	for i, e := range entries {
		if i >= SlotCount {
			break
		}
		if e[0] == "" && e[1] == "" {
			continue
		}
		s[i] = &CameraSource{URLTemplate: e[0], Location: e[1], Slot: i}
	}
	return s
}

// Configured reports whether the source can be fetched.
func (c *CameraSource) Configured() bool {
	return c != nil && c.URLTemplate != ""
}

// SlotStatus is the outcome of one slot in one run.
type SlotStatus string

const (
	SlotOK          SlotStatus = "ok"
	SlotPlaceholder SlotStatus = "placeholder"
)

// FetchResult is what the fetcher produced for one slot: either image bytes
// or a typed failure.
type FetchResult struct {
	Slot     int
	Data     []byte
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// SlotResult is the per-slot part of a RunResult.
type SlotResult struct {
	Slot     int        `json:"slot"`
	Location string     `json:"location"`
	Status   SlotStatus `json:"status"`
	Kind     ErrorKind  `json:"kind,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	Attempts int        `json:"attempts"`
	Bytes    int        `json:"bytes,omitempty"`
}

// Snapshot describes a published artifact.
type Snapshot struct {
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	Digest      string    `json:"digest"`
	GeneratedAt time.Time `json:"generated_at"`

	// Data is the encoded image; kept in memory only for the mirror upload.
	Data []byte `json:"-"`
}

// RunResult records the outcome of one cycle. It is used for logging and the
// status endpoint only and is never persisted.
type RunResult struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Slots     []SlotResult  `json:"slots"`
	Published bool          `json:"published"`
	Snapshot  *Snapshot     `json:"snapshot,omitempty"`
	Error     string        `json:"error,omitempty"`
	MirrorErr string        `json:"mirror_error,omitempty"`
}

// LiveTiles counts slots that rendered live content.
func (r RunResult) LiveTiles() int {
	n := 0
	for _, s := range r.Slots {
		if s.Status == SlotOK {
			n++
		}
	}
	return n
}
