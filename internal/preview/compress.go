// Package preview prepares form images for the model and for display.
//
// Compress is a pure transform: decoded JPEG/PNG/GIF/WebP input larger than
// the configured bound is downscaled with golang.org/x/image/draw and
// re-encoded as JPEG. Anything it cannot decode is passed through untouched,
// so a HEIC upload still reaches the model in its original encoding.
package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxDimension is the longest edge sent to the model. Handwritten
// figures stay legible at this size while the payload drops well below the
// inline request limit.
const DefaultMaxDimension = 2048

// jpegQuality keeps handwriting crisp; lower settings blur thin pen strokes.
const jpegQuality = 85

// Transform rewrites image bytes before extraction.
type Transform func(data []byte, mimeType string) ([]byte, string, error)

// Compressor returns a Transform bound to maxDimension. A non-positive bound
// disables resizing and returns the input unchanged.
func Compressor(maxDimension int) Transform {
	return func(data []byte, mimeType string) ([]byte, string, error) {
		return Compress(data, mimeType, maxDimension)
	}
}

// Compress downscales data so neither edge exceeds maxDimension.
func Compress(data []byte, mimeType string, maxDimension int) ([]byte, string, error) {
	if maxDimension <= 0 || len(data) == 0 {
		return data, mimeType, nil
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		log.Debug().
			Err(err).
			Str("mime_type", mimeType).
			Int("bytes", len(data)).
			Msg("Image format not decodable, sending original bytes")
		return data, mimeType, nil
	}

	if cfg.Width <= maxDimension && cfg.Height <= maxDimension {
		return data, mimeType, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s image: %w", format, err)
	}

	newWidth, newHeight := scaledDimensions(cfg.Width, cfg.Height, maxDimension)
	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	// JPEG has no alpha; paint white first so transparent PNG regions do not turn black.
	draw.Draw(resized, resized.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(resized, resized.Bounds(), img, img.Bounds(), xdraw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("failed to encode compressed image: %w", err)
	}

	log.Debug().
		Str("format", format).
		Int("orig_width", cfg.Width).
		Int("orig_height", cfg.Height).
		Int("new_width", newWidth).
		Int("new_height", newHeight).
		Int("orig_bytes", len(data)).
		Int("new_bytes", buf.Len()).
		Msg("Image compressed for extraction")

	return buf.Bytes(), "image/jpeg", nil
}

// scaledDimensions keeps the aspect ratio with the longest edge at maxDimension.
func scaledDimensions(width, height, maxDimension int) (int, int) {
	if width <= maxDimension && height <= maxDimension {
		return width, height
	}
	if width > height {
		h := int(float64(height) * float64(maxDimension) / float64(width))
		return maxDimension, max(h, 1)
	}
	w := int(float64(width) * float64(maxDimension) / float64(height))
	return max(w, 1), maxDimension
}
