package batch

import (
	"fmt"

	"github.com/google/uuid"
)

// newID returns a random UUID, optionally prefixed (e.g. "batch-").
func newID(prefix string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return prefix + id.String(), nil
}
