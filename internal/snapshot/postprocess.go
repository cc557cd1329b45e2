package snapshot

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
)

// DefaultTint is the overlay hue composited over the grayscale canvas.
var DefaultTint = color.RGBA{G: 0xFF, A: 0xFF}

var watermarkColor = color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xD0}

// PostProcessor applies the whole-canvas transforms in a fixed order:
// grayscale, tint, watermark.
type PostProcessor struct {
	tint      color.RGBA
	opacity   float64
	watermark string
	face      font.Face
}

// NewPostProcessor sizes the watermark for a canvas of canvasSize pixels.
// opacity is the tint alpha in [0,1].
func NewPostProcessor(canvasSize int, tint color.RGBA, opacity float64, watermark string) *PostProcessor {
	return &PostProcessor{
		tint:      tint,
		opacity:   min(max(opacity, 0), 1),
		watermark: watermark,
		face:      newFace(true, float64(max(canvasSize/16, 12))),
	}
}

// Apply runs every transform on img in place.
func (p *PostProcessor) Apply(img *image.RGBA) {
	Grayscale(img)
	Tint(img, p.tint, p.opacity)
	p.Watermark(img)
}

// Grayscale replaces every pixel's color with its luma
// L = 0.299r + 0.587g + 0.114b, rounded; alpha is untouched.
func Grayscale(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i+3 < len(row); i += 4 {
			l := uint8((299*uint32(row[i]) + 587*uint32(row[i+1]) + 114*uint32(row[i+2]) + 500) / 1000)
			row[i], row[i+1], row[i+2] = l, l, l
		}
	}
}

// Tint blends c over img at the given alpha: out = c*alpha + dst*(1-alpha).
// The canvas is opaque, so alpha stays fully opaque.
func Tint(img *image.RGBA, c color.RGBA, alpha float64) {
	if alpha <= 0 {
		return
	}
	var lut [3][256]uint8
	for ch, v := range [3]uint8{c.R, c.G, c.B} {
		for d := range 256 {
			lut[ch][d] = uint8(float64(v)*alpha + float64(d)*(1-alpha) + 0.5)
		}
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i+3 < len(row); i += 4 {
			row[i] = lut[0][row[i]]
			row[i+1] = lut[1][row[i+1]]
			row[i+2] = lut[2][row[i+2]]
		}
	}
}

// Watermark draws the caption centered on the canvas.
func (p *PostProcessor) Watermark(img *image.RGBA) {
	if p.watermark == "" {
		return
	}
	text := fitText(p.face, p.watermark, img.Bounds().Dx())
	ext := measure(p.face, text)
	at := CenteredOrigin(img.Bounds(), ext.advance, ext.ascent, ext.descent)
	drawString(img, p.face, watermarkColor, at, text)
}
