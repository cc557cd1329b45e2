package snapshot

import "image"

// Geometry is the fixed layout of the S×S canvas: a 2x2 grid of S/2 cells,
// each with an inner drawable region inset by Border on all sides.
type Geometry struct {
	Size   int
	Border int
}

// Bounds is the full canvas rectangle.
func (g Geometry) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.Size, g.Size)
}

// CellSize is the side length of one grid cell.
func (g Geometry) CellSize() int {
	return g.Size / 2
}

// Cell returns the outer rectangle of slot: col = slot mod 2, row = slot div 2.
func (g Geometry) Cell(slot int) image.Rectangle {
	half := g.CellSize()
	x := (slot % 2) * half
	y := (slot / 2) * half
	return image.Rect(x, y, x+half, y+half)
}

// Inner returns the drawable region of slot.
func (g Geometry) Inner(slot int) image.Rectangle {
	return g.Cell(slot).Inset(g.Border)
}

// CenteredOrigin returns the text baseline origin that centers a run of the
// given advance width and vertical extent (ascent above, descent below the
// baseline) inside bounds, horizontally and vertically. It is the single
// centering rule used for every centered caption.
func CenteredOrigin(bounds image.Rectangle, advance, ascent, descent int) image.Point {
	return image.Point{
		X: bounds.Min.X + (bounds.Dx()-advance)/2,
		Y: bounds.Min.Y + (bounds.Dy()+ascent-descent)/2,
	}
}

// LabelBox places a label of the given text extent in the top-left corner of
// inner, padded by pad on every side. It returns the background box and the
// text baseline origin. The box never extends past inner.
func LabelBox(inner image.Rectangle, advance, ascent, descent, pad int) (box image.Rectangle, origin image.Point) {
	minX := inner.Min.X + pad
	minY := inner.Min.Y + pad
	box = image.Rect(minX, minY, minX+advance+2*pad, minY+ascent+descent+2*pad).Intersect(inner)
	origin = image.Point{X: minX + pad, Y: minY + pad + ascent}
	return box, origin
}
