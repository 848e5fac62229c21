// Package filehandler finds and loads scanned form images from disk.
package filehandler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// SupportedImageExtensions maps accepted file extensions to MIME types.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
}

// ImageFile is a form image found on disk. Data is not held in memory until Read.
type ImageFile struct {
	Path     string
	MIMEType string
	Size     int64

	// Capture details from EXIF, when present.
	CapturedAt  *time.Time
	CameraMake  string
	CameraModel string
}

// Name returns the base file name.
func (f *ImageFile) Name() string { return filepath.Base(f.Path) }

// Read loads the file contents.
func (f *ImageFile) Read() ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name(), err)
	}
	return data, nil
}

// IsImage returns true if the file extension corresponds to a supported image.
func IsImage(ext string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(ext)]
	return ok
}

// GetMIMEType returns the MIME type for a given file extension.
func GetMIMEType(ext string) (string, error) {
	if mimeType, ok := SupportedImageExtensions[strings.ToLower(ext)]; ok {
		return mimeType, nil
	}
	return "", fmt.Errorf("unsupported file extension: %s", ext)
}

// DetectMIMEType resolves the MIME type of an uploaded image, preferring the
// file extension and falling back to content sniffing. It returns an error
// when the data is not an image.
func DetectMIMEType(name string, data []byte) (string, error) {
	if mimeType, err := GetMIMEType(filepath.Ext(name)); err == nil {
		return mimeType, nil
	}
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed, nil
	}
	return "", fmt.Errorf("%s is not a supported image (detected %s)", name, sniffed)
}

// LoadImageFile stats an image and reads its EXIF capture details.
func LoadImageFile(filePath string) (*ImageFile, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	mimeType, err := GetMIMEType(filepath.Ext(filePath))
	if err != nil {
		return nil, err
	}

	f := &ImageFile{Path: filePath, MIMEType: mimeType, Size: info.Size()}

	if meta, err := ReadCaptureInfo(filePath); err != nil {
		log.Debug().Err(err).Str("path", filePath).Msg("No EXIF capture details, continuing without them")
	} else {
		f.CapturedAt = meta.CapturedAt
		f.CameraMake = meta.CameraMake
		f.CameraModel = meta.CameraModel
	}

	log.Debug().
		Str("path", filePath).
		Str("mime_type", mimeType).
		Int64("size_bytes", f.Size).
		Bool("has_capture_time", f.CapturedAt != nil).
		Msg("Image file loaded")
	return f, nil
}
