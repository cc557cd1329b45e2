package snapshot

import (
	"bytes"
	"errors"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestWriter_Publish_jpeg(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	w := NewWriter(WriterOptions{Dir: dir})
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	snap, err := w.Publish(filledCanvas(64, color.RGBA{R: 80, G: 80, B: 80, A: 255}), at)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if snap.Path != filepath.Join(dir, "snapshot.jpg") || snap.ContentType != "image/jpeg" {
		t.Errorf("snapshot = %+v", snap)
	}
	if !snap.GeneratedAt.Equal(at) {
		t.Errorf("GeneratedAt = %v, want %v", snap.GeneratedAt, at)
	}
	data, err := os.ReadFile(snap.Path)
	if err != nil {
		t.Fatalf("read published file: %v", err)
	}
	if len(data) != snap.Size || Digest(data) != snap.Digest {
		t.Errorf("published file does not match snapshot: size %d/%d digest %s/%s", len(data), snap.Size, Digest(data), snap.Digest)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("published file is not a jpeg: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 64 {
		t.Errorf("published %dx%d, want 64x64", cfg.Width, cfg.Height)
	}
	info, _ := os.Stat(snap.Path)
	if info.Mode().Perm() != 0o644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}
	assertNoTempFiles(t, dir)
}

func TestWriter_Publish_png(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(WriterOptions{Dir: dir, Filename: "grid.png", Format: FormatPNG})

	snap, err := w.Publish(filledCanvas(32, color.White), time.Now())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if snap.ContentType != "image/png" || w.ContentType() != "image/png" {
		t.Errorf("content type = %q", snap.ContentType)
	}
	f, err := os.Open(snap.Path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Errorf("published file is not a png: %v", err)
	}
}

func TestNewWriter_default_filename_follows_format(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		format string
		want   string
		ctype  string
	}{
		{"", "snapshot.jpg", "image/jpeg"},
		{FormatJPEG, "snapshot.jpg", "image/jpeg"},
		{FormatPNG, "snapshot.png", "image/png"},
	}
	for _, tt := range tests {
		t.Run("format_"+tt.format, func(t *testing.T) {
			w := NewWriter(WriterOptions{Dir: dir, Format: tt.format})
			if w.Path() != filepath.Join(dir, tt.want) || w.ContentType() != tt.ctype {
				t.Errorf("path=%q content-type=%q, want %s as %s", w.Path(), w.ContentType(), tt.want, tt.ctype)
			}
		})
	}
}

func TestWriter_Publish_failure_keeps_previous(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(WriterOptions{Dir: dir})
	first, err := w.Publish(filledCanvas(16, color.White), time.Now())
	if err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	before, _ := os.ReadFile(first.Path)

	t.Run("encode_failure", func(t *testing.T) {
		bad := NewWriter(WriterOptions{Dir: dir, Format: "bmp"})
		_, err := bad.Publish(filledCanvas(16, color.Black), time.Now())
		if !errors.Is(err, ErrWriteFailure) {
			t.Fatalf("err = %v, want write failure", err)
		}
		after, _ := os.ReadFile(first.Path)
		if !bytes.Equal(before, after) {
			t.Error("published file changed after failed encode")
		}
	})

	t.Run("rename_failure", func(t *testing.T) {
		// A non-empty directory at the destination makes the final rename fail.
		blocked := filepath.Join(dir, "blocked.jpg")
		if err := os.MkdirAll(filepath.Join(blocked, "keep"), 0o755); err != nil {
			t.Fatal(err)
		}
		bw := NewWriter(WriterOptions{Dir: dir, Filename: "blocked.jpg"})
		_, err := bw.Publish(filledCanvas(16, color.Black), time.Now())
		if !errors.Is(err, ErrWriteFailure) {
			t.Fatalf("err = %v, want write failure", err)
		}
		after, _ := os.ReadFile(first.Path)
		if !bytes.Equal(before, after) {
			t.Error("published file changed after failed rename")
		}
		assertNoTempFiles(t, dir)
	})
}

func TestWriter_readers_never_see_partial_files(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(WriterOptions{Dir: dir})

	a, err := w.Encode(filledCanvas(128, color.White))
	if err != nil {
		t.Fatal(err)
	}
	b, err := w.Encode(filledCanvas(96, color.Black))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.PublishBytes(a, time.Now()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := range 50 {
			data := a
			if i%2 == 0 {
				data = b
			}
			if _, err := w.PublishBytes(data, time.Now()); err != nil {
				t.Errorf("PublishBytes: %v", err)
				return
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				got, err := os.ReadFile(w.Path())
				if err != nil {
					t.Errorf("ReadFile: %v", err)
					return
				}
				if !bytes.Equal(got, a) && !bytes.Equal(got, b) {
					t.Errorf("reader saw a torn file of %d bytes", len(got))
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestDigest(t *testing.T) {
	d := Digest([]byte("frame"))
	if len(d) != 16 {
		t.Errorf("digest %q should be 16 hex chars", d)
	}
	if d != Digest([]byte("frame")) || d == Digest([]byte("frame2")) {
		t.Error("digest is not a stable content hash")
	}
}
