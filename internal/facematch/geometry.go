package facematch

import "image"

// BoxFromSlice converts a detector bbox [x1, y1, x2, y2] into a BoundingBox.
// Returns false if the slice does not hold exactly four values.
func BoxFromSlice(bbox []float64) (BoundingBox, bool) {
	if len(bbox) != 4 {
		return BoundingBox{}, false
	}
	return BoundingBox{X1: bbox[0], Y1: bbox[1], X2: bbox[2], Y2: bbox[3]}, true
}

// Width returns the box width, zero for inverted boxes.
func (b BoundingBox) Width() float64 {
	return max(0, b.X2-b.X1)
}

// Height returns the box height, zero for inverted boxes.
func (b BoundingBox) Height() float64 {
	return max(0, b.Y2-b.Y1)
}

// Scale multiplies every coordinate by factor.
// Used to map boxes found on a downscaled frame back to the full frame.
func (b BoundingBox) Scale(factor float64) BoundingBox {
	return BoundingBox{
		X1: b.X1 * factor,
		Y1: b.Y1 * factor,
		X2: b.X2 * factor,
		Y2: b.Y2 * factor,
	}
}

// PaddedRect grows the box by padding pixels on every side and clamps it to bounds.
// Returns an empty rectangle if the box lies outside bounds.
func (b BoundingBox) PaddedRect(padding int, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(
		int(b.X1)-padding,
		int(b.Y1)-padding,
		int(b.X2)+padding,
		int(b.Y2)+padding,
	)
	return r.Intersect(bounds)
}
