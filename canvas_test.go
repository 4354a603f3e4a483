package placebot

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func TestCanvasGrid_At(t *testing.T) {
	g := NewCanvasGrid(3, 2)
	g.Set(2, 1, 7)
	g.Set(5, 5, 9) // ignored
	g.Set(0, 0, 256)
	g.Set(1, 0, -1)
	if idx, ok := g.At(2, 1); !ok || idx != 7 {
		t.Fatalf("At(2,1)=%d,%v", idx, ok)
	}
	for _, p := range []Point{{-1, 0}, {3, 0}, {0, 2}, {0, -1}} {
		if _, ok := g.At(p.X, p.Y); ok {
			t.Errorf("At%v should be out of bounds", p)
		}
	}
	if idx, _ := g.At(0, 0); idx != 0 {
		t.Fatalf("index 256 must be ignored, At(0,0)=%d", idx)
	}
	if idx, _ := g.At(1, 0); idx != 0 {
		t.Fatalf("index -1 must be ignored, At(1,0)=%d", idx)
	}
	if g.Empty() {
		t.Fatal("3x2 grid is not empty")
	}
	var nilGrid *CanvasGrid
	if !nilGrid.Empty() || !NewCanvasGrid(0, 4).Empty() {
		t.Fatal("nil and zero-width grids are empty")
	}
	if _, ok := nilGrid.At(0, 0); ok {
		t.Fatal("nil grid has no pixels")
	}
}

func TestDecodeCanvas_PalettedKeepsIndices(t *testing.T) {
	img := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette(PlacePalette))
	img.SetColorIndex(1, 2, 13)
	img.SetColorIndex(3, 3, 31)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	g, err := DecodeCanvas(&buf, nil)
	if err != nil {
		t.Fatalf("DecodeCanvas: %v", err)
	}
	if g.Width != 4 || g.Height != 4 {
		t.Fatalf("size=%dx%d", g.Width, g.Height)
	}
	if idx, _ := g.At(1, 2); idx != 13 {
		t.Fatalf("At(1,2)=%d", idx)
	}
	if idx, _ := g.At(3, 3); idx != 31 {
		t.Fatalf("At(3,3)=%d", idx)
	}
	if idx, _ := g.At(0, 0); idx != 0 {
		t.Fatalf("At(0,0)=%d", idx)
	}
}

func TestDecodeCanvas_PalettedRemapsToServicePalette(t *testing.T) {
	// The file palette has its own order: index 1 is the fill blue, not index 12.
	filePal := color.Palette{PlacePalette[31], PlacePalette[DefaultColorIndex]}
	img := image.NewPaletted(image.Rect(0, 0, 2, 1), filePal)
	img.SetColorIndex(0, 0, 1)
	img.SetColorIndex(1, 0, 0)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	g, err := DecodeCanvas(&buf, PlacePalette)
	if err != nil {
		t.Fatalf("DecodeCanvas: %v", err)
	}
	if idx, _ := g.At(0, 0); idx != DefaultColorIndex {
		t.Fatalf("At(0,0)=%d, want %d", idx, DefaultColorIndex)
	}
	if idx, _ := g.At(1, 0); idx != 31 {
		t.Fatalf("At(1,0)=%d, want 31", idx)
	}

	p, err := FirstDifference([]Point{{0, 0}, {1, 0}}, g, DefaultColorIndex)
	if err != nil {
		t.Fatalf("FirstDifference: %v", err)
	}
	if p != (Point{X: 1, Y: 0}) {
		t.Fatalf("already-blue pixel selected again: %v", p)
	}
}

func TestDecodeCanvas_TrueColorNearestPalette(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 0x25, G: 0x51, B: 0xa2, A: 0xff}) // near #2450A4
	img.Set(1, 0, color.RGBA{R: 0xfe, G: 0xfe, B: 0xfd, A: 0xff}) // near white
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	g, err := DecodeCanvas(&buf, PlacePalette)
	if err != nil {
		t.Fatalf("DecodeCanvas: %v", err)
	}
	if idx, _ := g.At(0, 0); idx != 12 {
		t.Fatalf("At(0,0)=%d, want 12", idx)
	}
	if idx, _ := g.At(1, 0); idx != 31 {
		t.Fatalf("At(1,0)=%d, want 31", idx)
	}
}

func TestDecodeCanvas_Errors(t *testing.T) {
	if _, err := DecodeCanvas(strings.NewReader("nope"), PlacePalette); err == nil {
		t.Fatal("garbage should fail")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeCanvas(&buf, nil); err == nil {
		t.Fatal("true-color snapshot without palette should fail")
	}
}

func TestParsePalette(t *testing.T) {
	p, err := ParsePalette("#FF4500", "00a368")
	if err != nil {
		t.Fatal(err)
	}
	if got := p[0].(color.RGBA); got != (color.RGBA{R: 0xff, G: 0x45, A: 0xff}) {
		t.Fatalf("p[0]=%v", got)
	}
	if got := p[1].(color.RGBA); got != (color.RGBA{G: 0xa3, B: 0x68, A: 0xff}) {
		t.Fatalf("p[1]=%v", got)
	}
	if _, err := ParsePalette("#GGGGGG"); err == nil {
		t.Fatal("bad hex should fail")
	}
	if len(PlacePalette) != 32 {
		t.Fatalf("PlacePalette has %d entries", len(PlacePalette))
	}
	if PlacePalette.Nearest(color.Black) != 27 {
		t.Fatalf("black should map to index 27")
	}
}
