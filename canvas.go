package placebot

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Palette maps color indices (as used by the mutation endpoint) to colors.
type Palette []color.Color

// PlacePalette is the 32-color palette of the canvas service, in index order.
var PlacePalette = MustParsePalette(
	"#6D001A", "#BE0039", "#FF4500", "#FFA800", "#FFD635", "#FFF8B8", "#00A368", "#00CC78",
	"#7EED56", "#00756F", "#009EAA", "#00CCC0", "#2450A4", "#3690EA", "#51E9F4", "#493AC1",
	"#6A5CFF", "#94B3FF", "#811E9F", "#B44AC0", "#E4ABFF", "#DE107F", "#FF3881", "#FF99AA",
	"#6D482F", "#9C6926", "#FFB470", "#000000", "#515252", "#898D90", "#D4D7D9", "#FFFFFF",
)

// ParsePalette builds a palette from "#RRGGBB" strings.
func ParsePalette(hexes ...string) (Palette, error) {
	p := make(Palette, 0, len(hexes))
	for _, h := range hexes {
		h = strings.TrimSpace(h)
		if !strings.HasPrefix(h, "#") {
			h = "#" + h
		}
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, fmt.Errorf("placebot: palette entry %q: %w", h, err)
		}
		r, g, b := c.RGB255()
		p = append(p, color.RGBA{R: r, G: g, B: b, A: 0xff})
	}
	return p, nil
}

// MustParsePalette is like ParsePalette but panics on malformed input.
func MustParsePalette(hexes ...string) Palette {
	p, err := ParsePalette(hexes...)
	if err != nil {
		panic(err)
	}
	return p
}

// Nearest returns the index of the palette entry closest to c in CIE Lab space.
func (p Palette) Nearest(c color.Color) int {
	want, _ := colorful.MakeColor(opaque(c))
	best, bestDist := 0, -1.0
	for i, pc := range p {
		have, _ := colorful.MakeColor(opaque(pc))
		d := want.DistanceLab(have)
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// opaque drops alpha; MakeColor refuses fully transparent colors.
func opaque(c color.Color) color.Color {
	r, g, b, _ := c.RGBA()
	return color.RGBA64{R: uint16(r), G: uint16(g), B: uint16(b), A: 0xffff}
}

// CanvasGrid is a decoded canvas snapshot: one palette index per pixel.
// A new grid is built on every fetch.
type CanvasGrid struct {
	Width, Height int
	pix           []uint8
}

// NewCanvasGrid returns a grid of the given size filled with index 0.
func NewCanvasGrid(width, height int) *CanvasGrid {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &CanvasGrid{Width: width, Height: height, pix: make([]uint8, width*height)}
}

// At returns the color index at (x, y). ok is false outside the grid.
func (g *CanvasGrid) At(x, y int) (idx int, ok bool) {
	if g == nil || x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return 0, false
	}
	return int(g.pix[y*g.Width+x]), true
}

// Set stores idx at (x, y). Coordinates outside the grid and indices outside
// 0..255 are ignored.
func (g *CanvasGrid) Set(x, y, idx int) {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height || idx < 0 || idx > 0xff {
		return
	}
	g.pix[y*g.Width+x] = uint8(idx)
}

// Empty reports whether the grid holds no pixels.
func (g *CanvasGrid) Empty() bool {
	return g == nil || len(g.pix) == 0
}

// DecodeCanvas decodes a snapshot bitmap into indices of pal. Paletted images are
// remapped once per file palette entry; their raw indices are kept only when pal is
// empty or equal to the file palette. Other images are mapped pixel by pixel to the
// nearest entry of pal.
func DecodeCanvas(r io.Reader, pal Palette) (*CanvasGrid, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("placebot: decode canvas: %w", err)
	}
	b := img.Bounds()
	g := NewCanvasGrid(b.Dx(), b.Dy())

	if pimg, ok := img.(*image.Paletted); ok {
		remap := paletteRemap(pimg.Palette, pal)
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				idx := pimg.ColorIndexAt(b.Min.X+x, b.Min.Y+y)
				if int(idx) < len(remap) {
					idx = remap[idx]
				}
				g.pix[y*g.Width+x] = idx
			}
		}
		return g, nil
	}

	if len(pal) == 0 {
		return nil, fmt.Errorf("placebot: decode canvas: true-color snapshot needs a palette")
	}
	// Snapshots use few distinct colors; cache lookups per RGBA value.
	cache := make(map[color.RGBA]uint8, len(pal))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			idx, hit := cache[c]
			if !hit {
				idx = uint8(pal.Nearest(c))
				cache[c] = idx
			}
			g.pix[y*g.Width+x] = idx
		}
	}
	return g, nil
}

// paletteRemap translates indices of a file palette into indices of pal.
// It returns nil when no translation is needed.
func paletteRemap(file color.Palette, pal Palette) []uint8 {
	if len(pal) == 0 || samePalette(file, pal) {
		return nil
	}
	remap := make([]uint8, len(file))
	for i, c := range file {
		remap[i] = uint8(pal.Nearest(c))
	}
	return remap
}

func samePalette(file color.Palette, pal Palette) bool {
	if len(file) != len(pal) {
		return false
	}
	for i := range file {
		r1, g1, b1, a1 := file[i].RGBA()
		r2, g2, b2, a2 := pal[i].RGBA()
		if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
			return false
		}
	}
	return true
}
