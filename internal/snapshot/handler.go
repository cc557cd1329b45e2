package snapshot

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	noStore             = "no-store, no-cache, must-revalidate, max-age=0"
	metadataContentType = "application/json"
)

// Handler exposes the published snapshot and the diagnostic endpoints using
// go-chi. It only reads the published path; it never writes it.
type Handler struct {
	snapshotPath string
	contentType  string
	metadataPath string
	prober       *Prober
	status       StatusRepository
	log          *slog.Logger
}

// HandlerOptions configures NewHandler. Prober and Status may be nil to
// disable /health and /status.
type HandlerOptions struct {
	SnapshotPath string
	ContentType  string
	MetadataPath string
	Prober       *Prober
	Status       StatusRepository
}

// NewHandler returns a Handler.
func NewHandler(opts HandlerOptions, log *slog.Logger) *Handler {
	return &Handler{
		snapshotPath: opts.SnapshotPath,
		contentType:  opts.ContentType,
		metadataPath: opts.MetadataPath,
		prober:       opts.Prober,
		status:       opts.Status,
		log:          log,
	}
}

// Mount registers the routes on r. snapshotRoute is the URL path of the
// published image, e.g. "/snapshot.jpg".
func (h *Handler) Mount(r chi.Router, snapshotRoute string) {
	r.Get(snapshotRoute, h.GetSnapshot)
	r.Get("/metadata.json", h.GetMetadata)
	r.Get("/health", h.GetHealth)
	r.Get("/status", h.GetStatus)
}

// GetSnapshot streams the bytes currently at the published path. The open
// file handle keeps a consistent view even if a publish renames over the path
// mid-response.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, h.snapshotPath, h.contentType, noStore)
}

// GetMetadata serves the static metadata document verbatim.
func (h *Handler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, h.metadataPath, metadataContentType, "")
}

func (h *Handler) serveFile(w http.ResponseWriter, path, contentType, cacheControl string) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("open file failed", slog.String("path", path), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.log.Error("stat file failed", slog.String("path", path), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	if cacheControl != "" {
		w.Header().Set("Cache-Control", cacheControl)
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
	}
	w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.log.Debug("response copy interrupted", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// HealthReport is the body of GET /health.
type HealthReport struct {
	Healthy   bool          `json:"healthy"`
	CheckedAt time.Time     `json:"checked_at"`
	Sources   []ProbeResult `json:"sources"`
}

// GetHealth re-probes every source. 200 when at least one is reachable,
// otherwise 503.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	if h.prober == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	results := h.prober.Probe(r.Context())
	report := HealthReport{
		Healthy:   AnyReachable(results),
		CheckedAt: time.Now().UTC(),
		Sources:   results,
	}
	code := http.StatusOK
	if !report.Healthy {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, report)
}

// GetStatus returns the last RunResult.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	res, ok := h.status.LastRun()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", noStore)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("encode response failed", slog.String("error", err.Error()))
	}
}
