package filehandler

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
)

// CaptureInfo is the subset of EXIF metadata kept with a form image: when the
// photo of the form was taken and with which device.
type CaptureInfo struct {
	CapturedAt  *time.Time
	CameraMake  string
	CameraModel string
}

// ReadCaptureInfo decodes EXIF metadata from a file on disk.
func ReadCaptureInfo(filePath string) (*CaptureInfo, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	return decodeCaptureInfo(file)
}

// CaptureInfoFromBytes decodes EXIF metadata from an uploaded image.
func CaptureInfoFromBytes(data []byte) (*CaptureInfo, error) {
	return decodeCaptureInfo(bytes.NewReader(data))
}

func decodeCaptureInfo(r io.ReadSeeker) (*CaptureInfo, error) {
	exifData, err := imagemeta.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	info := &CaptureInfo{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}
	for _, t := range []time.Time{exifData.DateTimeOriginal(), exifData.CreateDate(), exifData.ModifyDate()} {
		if !t.IsZero() {
			info.CapturedAt = &t
			break
		}
	}
	return info, nil
}
