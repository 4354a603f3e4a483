package placebot

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Point is a canvas coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string { return fmt.Sprintf("(%d, %d)", p.X, p.Y) }

// Target is the ordered list of pixels to paint. Order is the scan order of the
// source image and decides which pixel is fixed first.
type Target struct {
	Points []Point
}

// Background is the color transparent areas are composited onto; pixels of exactly
// this color are not part of the target.
var Background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// LoadTarget decodes the image at path into a Target.
func LoadTarget(path string) (*Target, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageLoad, err)
	}
	defer func() { _ = f.Close() }()
	return DecodeTarget(f)
}

// DecodeTarget decodes an image and collects every pixel that differs from
// Background after compositing onto it. Columns are scanned outermost: all of
// x=0 top to bottom, then x=1, and so on.
func DecodeTarget(r io.Reader) (*Target, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageLoad, err)
	}
	b := src.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(flat, flat.Bounds(), image.NewUniform(Background), image.Point{}, xdraw.Src)
	xdraw.Draw(flat, flat.Bounds(), src, b.Min, xdraw.Over)

	t := &Target{}
	for x := 0; x < b.Dx(); x++ {
		for y := 0; y < b.Dy(); y++ {
			if flat.RGBAAt(x, y) == Background {
				continue
			}
			t.Points = append(t.Points, Point{X: x, Y: y})
		}
	}
	Logger().Debug("decoded target", "format", format, "width", b.Dx(), "height", b.Dy(), "pixels", len(t.Points))
	return t, nil
}

// Len returns the number of target pixels.
func (t *Target) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Points)
}

// Bounds returns the smallest rectangle containing every target pixel.
func (t *Target) Bounds() image.Rectangle {
	var r image.Rectangle
	for i, p := range t.Points {
		pr := image.Rect(p.X, p.Y, p.X+1, p.Y+1)
		if i == 0 {
			r = pr
			continue
		}
		r = r.Union(pr)
	}
	return r
}

// Translate returns a copy of t shifted by (dx, dy), keeping the order.
func (t *Target) Translate(dx, dy int) *Target {
	out := &Target{Points: make([]Point, len(t.Points))}
	for i, p := range t.Points {
		out.Points[i] = Point{X: p.X + dx, Y: p.Y + dy}
	}
	return out
}
