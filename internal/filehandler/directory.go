package filehandler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// ScanOptions configures directory scanning behavior.
type ScanOptions struct {
	// MaxDepth limits recursion depth. 0 = unlimited, 1 = top-level only.
	MaxDepth int

	// Limit caps the number of images returned. 0 = unlimited.
	Limit int
}

// ScanDirectory finds supported images under dirPath, sorted by path.
// Symlinks to files are followed; symlinks to directories are skipped to
// prevent loops. Unreadable entries are logged and skipped.
func ScanDirectory(dirPath string, opts ScanOptions) ([]*ImageFile, error) {
	log.Info().
		Str("path", dirPath).
		Int("max_depth", opts.MaxDepth).
		Int("limit", opts.Limit).
		Msg("Scanning directory for form images")

	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s", dirPath)
		}
		return nil, fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dirPath)
	}

	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	baseDepth := strings.Count(absPath, string(os.PathSeparator))

	var paths []string
	err = filepath.WalkDir(absPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Error accessing path, skipping")
			return nil
		}

		if d.IsDir() {
			if opts.MaxDepth > 0 && path != absPath {
				if strings.Count(path, string(os.PathSeparator))-baseDepth >= opts.MaxDepth {
					return fs.SkipDir
				}
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Failed to resolve symlink, skipping")
				return nil
			}
			if target.IsDir() {
				log.Debug().Str("path", path).Msg("Skipping symlink to directory")
				return nil
			}
		}

		if IsImage(filepath.Ext(d.Name())) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	// Sort before applying the limit so the same files are picked on every run.
	sort.Strings(paths)
	limitReached := false
	if opts.Limit > 0 && len(paths) > opts.Limit {
		paths = paths[:opts.Limit]
		limitReached = true
	}

	files := make([]*ImageFile, 0, len(paths))
	for _, p := range paths {
		f, err := LoadImageFile(p)
		if err != nil {
			log.Warn().Err(err).Str("file", filepath.Base(p)).Msg("Failed to load image, skipping")
			continue
		}
		files = append(files, f)
	}

	evt := log.Info().
		Int("total_images", len(files)).
		Str("directory", dirPath)
	if limitReached {
		evt = evt.Bool("limit_reached", true)
	}
	evt.Msg("Directory scan complete")

	return files, nil
}
