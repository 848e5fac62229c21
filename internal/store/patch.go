package store

import (
	"io"
	"time"

	"github.com/fpang/ec8a-extractor/internal/form"
)

// Preview is displayable image data owned by exactly one record.
type Preview interface {
	// Open returns a reader over the image bytes.
	Open() (io.ReadCloser, error)
	// MIMEType of the bytes returned by Open.
	MIMEType() string
	// Release frees the underlying resource. It is safe to call more than once.
	Release() error
}

// Patch mutates a record in place while the store lock is held. It returns
// false when it made no change, in which case no Change is emitted.
type Patch func(r *Record) bool

var now = time.Now

// MarkProcessing moves a pending record into processing.
func MarkProcessing() Patch {
	return func(r *Record) bool {
		if r.Status != StatusPending {
			return false
		}
		t := now()
		r.Status = StatusProcessing
		r.StartedAt = &t
		return true
	}
}

// MarkSuccess stores the extraction result. A terminal record is left untouched.
func MarkSuccess(fields *form.Fields) Patch {
	return func(r *Record) bool {
		if r.Status.Terminal() {
			return false
		}
		t := now()
		r.Status = StatusSuccess
		r.Result = fields
		r.Error = ""
		r.CompletedAt = &t
		return true
	}
}

// MarkError stores a failure message. A terminal record is left untouched.
func MarkError(msg string) Patch {
	return func(r *Record) bool {
		if r.Status.Terminal() {
			return false
		}
		if msg == "" {
			msg = "Extraction failed"
		}
		t := now()
		r.Status = StatusError
		r.Result = nil
		r.Error = msg
		r.CompletedAt = &t
		return true
	}
}
