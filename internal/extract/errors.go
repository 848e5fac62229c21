package extract

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Kind categorizes extraction failures.
type Kind int

const (
	// MissingCredential indicates no usable API key.
	MissingCredential Kind = iota
	// TransportFailure indicates the request did not complete (network, timeout, server error).
	TransportFailure
	// MalformedResponse indicates the model answered with something that is not a form.
	MalformedResponse
	// QuotaExceeded indicates the API rate limit or quota was hit.
	QuotaExceeded
)

func (k Kind) String() string {
	switch k {
	case MissingCredential:
		return "missing_credential"
	case TransportFailure:
		return "transport_failure"
	case MalformedResponse:
		return "malformed_response"
	case QuotaExceeded:
		return "quota_exceeded"
	}
	return "unknown"
}

// Error is returned by every Extractor call that fails.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or TransportFailure for errors that were
// never classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return TransportFailure
}

// Classify maps an error from the Gemini client onto an *Error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: TransportFailure, Message: "Extraction timed out", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: TransportFailure, Message: "Extraction cancelled", Err: err}
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(&apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return classifyAPIError(apiErrPtr)
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "api key not valid") ||
		strings.Contains(errLower, "invalid api key") ||
		strings.Contains(errLower, "api_key_invalid") ||
		strings.Contains(errLower, "permission denied"):
		return &Error{Kind: MissingCredential, Message: "API key is invalid or has been revoked", Err: err}

	case strings.Contains(errLower, "quota") ||
		strings.Contains(errLower, "resource exhausted") ||
		strings.Contains(errLower, "rate limit"):
		return &Error{Kind: QuotaExceeded, Message: "API quota exceeded or rate limited", Err: err}

	case strings.Contains(errLower, "connection") ||
		strings.Contains(errLower, "network") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "dial") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "unreachable"):
		return &Error{Kind: TransportFailure, Message: "Network error - check your internet connection", Err: err}
	}

	return &Error{Kind: TransportFailure, Message: "Extraction request failed", Err: err}
}

func classifyAPIError(err *genai.APIError) *Error {
	switch {
	case err.Code == 400 && strings.Contains(strings.ToLower(err.Message), "api key"):
		log.Debug().Int("code", err.Code).Msg("Bad request - API key rejected")
		return &Error{Kind: MissingCredential, Message: "API key is malformed", Err: err}

	case err.Code == 400:
		return &Error{Kind: TransportFailure, Message: "Request rejected by Gemini", Err: err}

	case err.Code == 401 || err.Code == 403:
		return &Error{Kind: MissingCredential, Message: "API key is invalid, expired, or lacks permissions", Err: err}

	case err.Code == 429:
		return &Error{Kind: QuotaExceeded, Message: "API rate limit exceeded - try again later", Err: err}

	case err.Code >= 500:
		return &Error{Kind: TransportFailure, Message: "Gemini API server error - try again later", Err: err}
	}

	log.Debug().Int("code", err.Code).Str("message", err.Message).Msg("Unclassified Gemini API error")
	return &Error{Kind: TransportFailure, Message: "Gemini API error", Err: err}
}
