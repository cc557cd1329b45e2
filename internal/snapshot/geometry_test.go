package snapshot

import (
	"image"
	"testing"
)

func TestGeometry_cells(t *testing.T) {
	g := Geometry{Size: 2048, Border: 16}

	tests := []struct {
		slot      int
		wantCell  image.Rectangle
		wantInner image.Rectangle
	}{
		{0, image.Rect(0, 0, 1024, 1024), image.Rect(16, 16, 1008, 1008)},
		{1, image.Rect(1024, 0, 2048, 1024), image.Rect(1040, 16, 2032, 1008)},
		{2, image.Rect(0, 1024, 1024, 2048), image.Rect(16, 1040, 1008, 2032)},
		{3, image.Rect(1024, 1024, 2048, 2048), image.Rect(1040, 1040, 2032, 2032)},
	}
	for _, tt := range tests {
		if got := g.Cell(tt.slot); got != tt.wantCell {
			t.Errorf("Cell(%d) = %v, want %v", tt.slot, got, tt.wantCell)
		}
		if got := g.Inner(tt.slot); got != tt.wantInner {
			t.Errorf("Inner(%d) = %v, want %v", tt.slot, got, tt.wantInner)
		}
	}
	if g.CellSize() != 1024 {
		t.Errorf("CellSize = %d, want 1024", g.CellSize())
	}
	if g.Bounds() != image.Rect(0, 0, 2048, 2048) {
		t.Errorf("Bounds = %v", g.Bounds())
	}
}

func TestGeometry_cells_do_not_overlap(t *testing.T) {
	g := Geometry{Size: 256, Border: 8}
	for a := range SlotCount {
		for b := a + 1; b < SlotCount; b++ {
			if g.Inner(a).Overlaps(g.Inner(b)) {
				t.Errorf("inner regions %d and %d overlap", a, b)
			}
		}
	}
}

func TestCenteredOrigin(t *testing.T) {
	tests := []struct {
		name                 string
		bounds               image.Rectangle
		adv, ascent, descent int
		want                 image.Point
	}{
		{"origin_box", image.Rect(0, 0, 100, 50), 40, 10, 4, image.Pt(30, 28)},
		{"offset_box", image.Rect(200, 100, 300, 150), 40, 10, 4, image.Pt(230, 128)},
		{"text_wider_than_box", image.Rect(0, 0, 10, 10), 30, 6, 2, image.Pt(-10, 7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CenteredOrigin(tt.bounds, tt.adv, tt.ascent, tt.descent); got != tt.want {
				t.Errorf("CenteredOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLabelBox(t *testing.T) {
	inner := image.Rect(16, 16, 1008, 1008)
	box, origin := LabelBox(inner, 100, 20, 5, 4)

	if want := image.Rect(20, 20, 128, 53); box != want {
		t.Errorf("box = %v, want %v", box, want)
	}
	if want := image.Pt(24, 44); origin != want {
		t.Errorf("origin = %v, want %v", origin, want)
	}

	box, _ = LabelBox(image.Rect(0, 0, 50, 50), 500, 20, 5, 4)
	if !box.In(image.Rect(0, 0, 50, 50)) {
		t.Errorf("box %v escapes inner", box)
	}
}
