package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/xxh3"
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// WriterOptions configures where and how the snapshot is published.
type WriterOptions struct {
	Dir         string
	Filename    string
	Format      string
	JPEGQuality int
}

// Writer encodes the canvas and publishes it atomically: the bytes go to a
// temporary file in the output directory, which is then renamed over the
// published path. The previous file stays in place until the rename.
type Writer struct {
	opts WriterOptions
}

// NewWriter returns a Writer. An empty Format means JPEG; a zero quality
// means 85; an empty Filename means "snapshot" with the format's extension.
func NewWriter(opts WriterOptions) *Writer {
	if opts.Format == "" {
		opts.Format = FormatJPEG
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 85
	}
	if opts.Filename == "" {
		opts.Filename = "snapshot" + ExtensionFor(opts.Format)
	}
	return &Writer{opts: opts}
}

// Path is the canonical published path.
func (w *Writer) Path() string {
	return filepath.Join(w.opts.Dir, w.opts.Filename)
}

// ContentType matches the encoded format.
func (w *Writer) ContentType() string {
	return ContentTypeFor(w.opts.Format)
}

// ContentTypeFor maps an output format to its MIME type.
func ContentTypeFor(format string) string {
	if format == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// ExtensionFor maps an output format to its file extension.
func ExtensionFor(format string) string {
	if format == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

// Encode serializes img in the configured format.
func (w *Writer) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch w.opts.Format {
	case FormatPNG:
		err = png.Encode(&buf, img)
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: w.opts.JPEGQuality})
	default:
		err = fmt.Errorf("unsupported format %q", w.opts.Format)
	}
	if err != nil {
		return nil, newError(KindWriteFailure, -1, "encode", err)
	}
	return buf.Bytes(), nil
}

// Publish encodes img and atomically replaces the published file.
func (w *Writer) Publish(img image.Image, generatedAt time.Time) (Snapshot, error) {
	data, err := w.Encode(img)
	if err != nil {
		return Snapshot{}, err
	}
	return w.PublishBytes(data, generatedAt)
}

// PublishBytes atomically replaces the published file with data. On failure
// the temporary file is removed and the published file is left untouched.
func (w *Writer) PublishBytes(data []byte, generatedAt time.Time) (Snapshot, error) {
	dest := w.Path()
	if err := os.MkdirAll(w.opts.Dir, 0o755); err != nil {
		return Snapshot{}, newError(KindWriteFailure, -1, "create output directory", err)
	}

	tmp, err := os.CreateTemp(w.opts.Dir, "."+w.opts.Filename+".*.tmp")
	if err != nil {
		return Snapshot{}, newError(KindWriteFailure, -1, "create temp file", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return Snapshot{}, newError(KindWriteFailure, -1, "write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		return Snapshot{}, newError(KindWriteFailure, -1, "sync temp file", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return Snapshot{}, newError(KindWriteFailure, -1, "chmod temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return Snapshot{}, newError(KindWriteFailure, -1, "close temp file", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return Snapshot{}, newError(KindWriteFailure, -1, "replace published file", err)
	}
	committed = true

	return Snapshot{
		Path:        dest,
		ContentType: w.ContentType(),
		Size:        len(data),
		Digest:      Digest(data),
		GeneratedAt: generatedAt.UTC(),
		Data:        data,
	}, nil
}

// Digest is the hex xxh3 hash of data.
func Digest(data []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}
