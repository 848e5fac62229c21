package preview

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fpang/ec8a-extractor/internal/store"
)

// ErrReleased is returned by Open after Release.
var ErrReleased = errors.New("preview released")

// Memory keeps the image bytes in process memory.
type Memory struct {
	mu       sync.Mutex
	data     []byte
	mimeType string
}

var _ store.Preview = (*Memory)(nil)

// NewMemory wraps data. The slice is retained, not copied.
func NewMemory(data []byte, mimeType string) *Memory {
	return &Memory{data: data, mimeType: mimeType}
}

func (m *Memory) Open() (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, ErrReleased
	}
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

func (m *Memory) MIMEType() string { return m.mimeType }

func (m *Memory) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

// File keeps the image bytes in a temporary file that is deleted on Release.
type File struct {
	mu       sync.Mutex
	path     string
	mimeType string
	released bool
}

var _ store.Preview = (*File)(nil)

// NewFile writes data into a new file under dir (os.TempDir when empty).
func NewFile(dir string, data []byte, mimeType string) (*File, error) {
	f, err := os.CreateTemp(dir, "ec8a-preview-*"+extensionFor(mimeType))
	if err != nil {
		return nil, fmt.Errorf("create preview file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write preview file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close preview file: %w", err)
	}
	return &File{path: f.Name(), mimeType: mimeType}, nil
}

func (p *File) Open() (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil, ErrReleased
	}
	return os.Open(p.path)
}

func (p *File) MIMEType() string { return p.mimeType }

// Path returns the file location.
func (p *File) Path() string { return p.path }

func (p *File) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil
	}
	p.released = true
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove preview %s: %w", filepath.Base(p.path), err)
	}
	return nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	case "image/heif":
		return ".heif"
	}
	return ""
}
