package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/kozaktomas/face-attendance/internal/facematch"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

var errEmptyCrop = errors.New("face region lies outside the image")

// ErrInvalidImage is returned for data that is not a decodable JPEG, PNG or BMP image.
var ErrInvalidImage = errors.New("invalid image")

func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return img, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// Downscale shrinks a frame by factor (0 < factor < 1) before detection.
// It returns the JPEG-encoded frame and the multiplier that maps boxes found
// on it back to the original frame. Factors outside (0, 1) leave the frame as is.
func Downscale(data []byte, factor float64) ([]byte, float64, error) {
	if factor <= 0 || factor >= 1 {
		return data, 1, nil
	}

	img, err := decode(data)
	if err != nil {
		return nil, 0, err
	}

	bounds := img.Bounds()
	newWidth := int(float64(bounds.Dx()) * factor)
	newHeight := int(float64(bounds.Dy()) * factor)
	if newWidth < 1 || newHeight < 1 {
		return data, 1, nil
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.ApproxBiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	out, err := encodeJPEG(resized, 85)
	if err != nil {
		return nil, 0, err
	}
	return out, float64(bounds.Dx()) / float64(newWidth), nil
}

// CropFace cuts the face region, grown by padding pixels, out of an encoded image
// and returns it as JPEG.
func CropFace(data []byte, box facematch.BoundingBox, padding, quality int) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}

	rect := box.PaddedRect(padding, img.Bounds())
	if rect.Empty() {
		return nil, errEmptyCrop
	}

	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Copy(crop, image.Point{}, img, rect, draw.Src, nil)

	return encodeJPEG(crop, quality)
}
