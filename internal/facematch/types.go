// Package facematch provides the face types shared by the encoder, the gallery,
// the matcher and the recognition pipeline.
package facematch

// Embedding is a fixed-length face descriptor produced by the encoder.
// Stored embeddings are never modified.
type Embedding []float64

// Float32 converts the embedding for float32 vector indexes.
func (e Embedding) Float32() []float32 {
	out := make([]float32, len(e))
	for i, v := range e {
		out[i] = float32(v)
	}
	return out
}

// Clone returns a copy that does not share the backing array.
func (e Embedding) Clone() Embedding {
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// BoundingBox is a face rectangle in pixel coordinates, [X1,Y1] top-left and [X2,Y2] bottom-right.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Detection is one face found in an image. Box and Embedding are index-aligned
// with the detector output and only meaningful for the frame they came from.
type Detection struct {
	Box       BoundingBox `json:"box"`
	Embedding Embedding   `json:"-"`
	Score     float64     `json:"score"`
}
