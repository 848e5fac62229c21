package batch

import "errors"

// ErrClosed is wrapped by SubmissionError after Close has been called.
var ErrClosed = errors.New("scheduler closed")

// SubmissionError rejects a whole batch before any record is created, e.g.
// when no API key is configured.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
