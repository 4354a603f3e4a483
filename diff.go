package placebot

// FirstDifference returns the first target point, in order, whose canvas color is not
// fill. Points outside the grid are skipped. It returns ErrNoDifference when every
// point already carries the fill color.
func FirstDifference(target []Point, grid *CanvasGrid, fill int) (Point, error) {
	for _, p := range target {
		idx, ok := grid.At(p.X, p.Y)
		if !ok || idx == fill {
			continue
		}
		return p, nil
	}
	return Point{}, ErrNoDifference
}

// CountDifferences returns how many in-bounds target points do not carry fill.
func CountDifferences(target []Point, grid *CanvasGrid, fill int) int {
	n := 0
	for _, p := range target {
		if idx, ok := grid.At(p.X, p.Y); ok && idx != fill {
			n++
		}
	}
	return n
}
