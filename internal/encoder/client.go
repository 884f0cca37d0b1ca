// Package encoder talks to the face embedding service and prepares the images it is fed.
package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/facematch"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	faceEndpoint        = "/embed/face"
)

// Encoder detects faces in an encoded image and returns one embedding per face,
// in the order the detector reports them.
type Encoder interface {
	DetectAndEncode(ctx context.Context, image []byte) ([]facematch.Detection, error)
}

// Client computes face embeddings using the embedding server
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new embedding client
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// faceDetection represents a single detected face
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float64 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// DetectAndEncode detects faces and computes their embeddings.
// Entries without an embedding or with a malformed bbox are dropped.
func (c *Client) DetectAndEncode(ctx context.Context, imageData []byte) ([]facematch.Detection, error) {
	body, err := c.postMultipartImage(ctx, faceEndpoint, imageData)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	detections := make([]facematch.Detection, 0, len(faceResp.Faces))
	for _, f := range faceResp.Faces {
		box, ok := facematch.BoxFromSlice(f.BBox)
		if !ok || len(f.Embedding) == 0 {
			log.Printf("WARNING: skipping malformed face %d from embedding server", f.FaceIndex)
			continue
		}
		detections = append(detections, facematch.Detection{
			Box:       box,
			Embedding: facematch.Embedding(f.Embedding),
			Score:     f.DetScore,
		})
	}

	return detections, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}
	return "application/octet-stream"
}
