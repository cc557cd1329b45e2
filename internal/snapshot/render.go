package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
)

// maxSourcePixels rejects images whose header claims an absurd size before
// any pixel data is decoded.
const maxSourcePixels = 64 << 20

const (
	offlineText     = "OFFLINE"
	maxReasonRunes  = 48
	labelOpacity    = 153 // 60%
	placeholderGray = 0x2B
)

var (
	placeholderColor = color.RGBA{R: placeholderGray, G: placeholderGray, B: placeholderGray, A: 0xFF}
	labelBackground  = color.NRGBA{A: labelOpacity}
	labelForeground  = color.White
	statusForeground = color.RGBA{R: 0xE0, G: 0xE0, B: 0xE0, A: 0xFF}
)

// TileRenderer turns one slot's fetch result into pixels inside that slot's
// inner region: a center-cropped live image, or a placeholder. Every tile
// also gets its location label.
type TileRenderer struct {
	labelFace  font.Face
	statusFace font.Face
	reasonFace font.Face
	labelPad   int
}

// NewTileRenderer sizes its fonts for cells of cellSize pixels.
func NewTileRenderer(cellSize int) *TileRenderer {
	return &TileRenderer{
		labelFace:  newFace(true, float64(max(cellSize/28, 10))),
		statusFace: newFace(true, float64(max(cellSize/9, 12))),
		reasonFace: newFace(false, float64(max(cellSize/32, 9))),
		labelPad:   max(cellSize/96, 2),
	}
}

// Render draws res into inner on dst and reports the slot outcome. src may be
// nil for an unconfigured slot. Only pixels inside inner are written.
func (r *TileRenderer) Render(dst *image.RGBA, inner image.Rectangle, slot int, src *CameraSource, res FetchResult) SlotResult {
	out := SlotResult{Slot: slot, Attempts: res.Attempts, Bytes: len(res.Data)}
	out.Location = locationOf(src)

	region := dst.SubImage(inner).(*image.RGBA)

	err := res.Err
	if err == nil && !src.Configured() {
		err = newError(KindConfigurationGap, slot, "no camera configured", nil)
	}
	if err == nil {
		err = r.drawLive(region, inner, slot, res.Data)
	}
	if err != nil {
		out.Status = SlotPlaceholder
		out.Kind = KindOf(err)
		out.Reason = Reason(err)
		r.drawPlaceholder(region, inner, out.Reason)
	} else {
		out.Status = SlotOK
	}

	r.drawLabel(region, inner, labelFor(slot, src))
	return out
}

func labelFor(slot int, src *CameraSource) string {
	if src != nil && src.Location != "" {
		return src.Location
	}
	return fmt.Sprintf("CAM %d", slot+1)
}

// drawLive decodes data, center-crops the largest square and scales it to
// fill inner exactly.
func (r *TileRenderer) drawLive(dst *image.RGBA, inner image.Rectangle, slot int, data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return newError(KindInvalidImage, slot, "decode header", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxSourcePixels {
		return newError(KindInvalidImage, slot, fmt.Sprintf("unsupported dimensions %dx%d", cfg.Width, cfg.Height), nil)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return newError(KindInvalidImage, slot, "decode", err)
	}

	// Transparent source pixels composite onto black so the canvas stays opaque.
	draw.Draw(dst, inner, image.Black, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, inner, img, CenterSquare(img.Bounds()), draw.Over, nil)
	return nil
}

// CenterSquare returns the largest centered square inside b:
// side = min(w, h), sx = (w-side)/2, sy = (h-side)/2.
func CenterSquare(b image.Rectangle) image.Rectangle {
	side := min(b.Dx(), b.Dy())
	sx := b.Min.X + (b.Dx()-side)/2
	sy := b.Min.Y + (b.Dy()-side)/2
	return image.Rect(sx, sy, sx+side, sy+side)
}

// drawPlaceholder fills inner with the placeholder color and centers the
// status headline with the reason underneath.
func (r *TileRenderer) drawPlaceholder(dst *image.RGBA, inner image.Rectangle, reason string) {
	draw.Draw(dst, inner, image.NewUniform(placeholderColor), image.Point{}, draw.Src)

	width := inner.Dx() - 2*r.labelPad
	reason = fitText(r.reasonFace, truncate(reason, maxReasonRunes), width)

	head := measure(r.statusFace, offlineText)
	gap := head.descent
	total := head.height()
	var sub textExtent
	if reason != "" {
		sub = measure(r.reasonFace, reason)
		total += gap + sub.height()
	}

	top := inner.Min.Y + (inner.Dy()-total)/2
	headAt := CenteredOrigin(image.Rect(inner.Min.X, top, inner.Max.X, top+head.height()), head.advance, head.ascent, head.descent)
	drawString(dst, r.statusFace, statusForeground, headAt, offlineText)

	if reason != "" {
		y := top + head.height() + gap
		subAt := CenteredOrigin(image.Rect(inner.Min.X, y, inner.Max.X, y+sub.height()), sub.advance, sub.ascent, sub.descent)
		drawString(dst, r.reasonFace, statusForeground, subAt, reason)
	}
}

// drawLabel paints the location over a translucent box in the top-left
// corner of inner.
func (r *TileRenderer) drawLabel(dst *image.RGBA, inner image.Rectangle, label string) {
	label = fitText(r.labelFace, label, inner.Dx()-4*r.labelPad)
	if label == "" {
		return
	}
	ext := measure(r.labelFace, label)
	box, at := LabelBox(inner, ext.advance, ext.ascent, ext.descent, r.labelPad)
	draw.Draw(dst, box, image.NewUniform(labelBackground), image.Point{}, draw.Over)
	drawString(dst, r.labelFace, labelForeground, at, label)
}
