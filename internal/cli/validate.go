package cli

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/fpang/ec8a-extractor/internal/extract"
	"github.com/rs/zerolog/log"
)

// ValidateAndResolveDirectory checks that the path exists and is a directory,
// then returns the absolute path. Exits fatally on failure.
func ValidateAndResolveDirectory(dirPath string) string {
	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Fatal().Str("path", dirPath).Msg("Directory not found")
		}
		log.Fatal().Err(err).Str("path", dirPath).Msg("Failed to access directory")
	}
	if !info.IsDir() {
		log.Fatal().Str("path", dirPath).Msg("Path is not a directory")
	}

	absPath, err := filepath.Abs(dirPath)
	if err == nil {
		dirPath = absPath
	}

	return dirPath
}

// HandleExtractError exits with a message matching the kind of an extraction
// error returned while validating the API key.
func HandleExtractError(err error) {
	var extractErr *extract.Error
	if errors.As(err, &extractErr) {
		switch extractErr.Kind {
		case extract.MissingCredential:
			log.Fatal().Err(err).Msg("Invalid or missing API key. Set GEMINI_API_KEY and try again")
		case extract.QuotaExceeded:
			log.Fatal().Err(err).Msg("API quota exceeded. Please try again later or check your usage limits")
		case extract.TransportFailure:
			log.Fatal().Err(err).Msg("Network error. Please check your internet connection")
		default:
			log.Fatal().Err(err).Msg("API key validation failed")
		}
	} else {
		log.Fatal().Err(err).Msg("unexpected error during API key validation")
	}
	os.Exit(1)
}
