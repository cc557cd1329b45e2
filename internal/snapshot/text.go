package snapshot

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const ellipsis = "..."

var (
	fontsOnce   sync.Once
	regularFont *opentype.Font
	boldFont    *opentype.Font
)

// newFace returns a Go font face at size points (72 DPI, so points are
// pixels). Faces hold scratch buffers and must not be shared between
// goroutines.
func newFace(bold bool, size float64) font.Face {
	fontsOnce.Do(func() {
		regularFont = mustParseFont("goregular", goregular.TTF)
		boldFont = mustParseFont("gobold", gobold.TTF)
	})
	f := regularFont
	if bold {
		f = boldFont
	}
	if size <= 0 {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// mustParseFont parses an embedded font. The gofont TTFs ship with x/image,
// so a failure is a broken build.
func mustParseFont(name string, ttf []byte) *opentype.Font {
	f, err := opentype.Parse(ttf)
	if err != nil {
		panic(fmt.Sprintf("parse embedded font %s: %v", name, err))
	}
	return f
}

type textExtent struct {
	advance int
	ascent  int
	descent int
}

func (e textExtent) height() int { return e.ascent + e.descent }

func measure(face font.Face, s string) textExtent {
	m := face.Metrics()
	return textExtent{
		advance: font.MeasureString(face, s).Ceil(),
		ascent:  m.Ascent.Ceil(),
		descent: m.Descent.Ceil(),
	}
}

func drawString(dst draw.Image, face font.Face, c color.Color, at image.Point, s string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(at.X, at.Y),
	}
	d.DrawString(s)
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= len(ellipsis) {
		return string(r[:n])
	}
	return string(r[:n-len(ellipsis)]) + ellipsis
}

// fitText shortens s until it renders within width pixels.
func fitText(face font.Face, s string, width int) string {
	if font.MeasureString(face, s).Ceil() <= width {
		return s
	}
	r := []rune(s)
	for n := len(r) - 1; n > 0; n-- {
		t := string(r[:n]) + ellipsis
		if font.MeasureString(face, t).Ceil() <= width {
			return t
		}
	}
	return ""
}
