package snapshot

import (
	"context"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Compositor owns the canvas and the slot geometry. It fetches all sources
// and paints exactly one tile per slot.
type Compositor struct {
	geom     Geometry
	sources  Sources
	fetcher  SourceFetcher
	renderer *TileRenderer
}

// NewCompositor returns a Compositor for the given layout and sources.
func NewCompositor(geom Geometry, sources Sources, fetcher SourceFetcher) *Compositor {
	return &Compositor{
		geom:     geom,
		sources:  sources,
		fetcher:  fetcher,
		renderer: NewTileRenderer(geom.CellSize()),
	}
}

// Geometry returns the layout in use.
func (c *Compositor) Geometry() Geometry {
	return c.geom
}

// Compose fetches every slot and paints the full canvas.
func (c *Compositor) Compose(ctx context.Context) (*image.RGBA, []SlotResult) {
	results := c.fetcher.FetchAll(ctx, c.sources)
	return c.Paint(results)
}

// Paint renders already-fetched results onto a fresh black canvas. Slots are
// painted in index order; each writes only inside its own inner region, so
// the order has no effect on the pixels.
func (c *Compositor) Paint(results [SlotCount]FetchResult) (*image.RGBA, []SlotResult) {
	canvas := image.NewRGBA(c.geom.Bounds())
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	slots := make([]SlotResult, 0, SlotCount)
	for slot := range SlotCount {
		slots = append(slots, c.renderer.Render(canvas, c.geom.Inner(slot), slot, c.sources[slot], results[slot]))
	}
	return canvas, slots
}
