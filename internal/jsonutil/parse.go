// Package jsonutil pulls a JSON value out of model output that may be wrapped
// in markdown code fences or surrounded by prose.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when the text holds no object or array.
var ErrNoJSON = errors.New("no JSON content found")

// previewLen bounds the response excerpt carried in parse errors.
const previewLen = 200

// StripMarkdownFences removes a ```json ... ``` or ``` ... ``` wrapper.
// Text without an opening fence is returned trimmed.
func StripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	// Drop the opening fence line, including any language tag.
	nl := strings.IndexByte(text, '\n')
	if nl == -1 {
		return text
	}
	body := text[nl+1:]
	if end := strings.LastIndex(body, "```"); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// ExtractJSON returns the first complete object or array in text. Brackets
// inside string literals are ignored, so prose after the value, even prose
// containing braces, is dropped.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return "", ErrNoJSON
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON value starting at offset %d", start)
}

// ParseJSON strips fences, extracts the first JSON value and unmarshals it
// into T.
func ParseJSON[T any](raw string) (T, error) {
	var zero T

	jsonStr, err := ExtractJSON(StripMarkdownFences(raw))
	if err != nil {
		return zero, fmt.Errorf("%w (raw length: %d)", err, len(raw))
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		preview := jsonStr
		if len(preview) > previewLen {
			preview = preview[:previewLen] + "..."
		}
		return zero, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview)
	}
	return result, nil
}
