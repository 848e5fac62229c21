package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fpang/ec8a-extractor/internal/batch"
	"github.com/fpang/ec8a-extractor/internal/filehandler"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

var imagePatterns = []string{"*.jpg", "*.jpeg", "*.png", "*.gif", "*.webp", "*.heic", "*.heif"}

// nativePicker opens an OS file or directory dialog.
func nativePicker(mode string) ([]string, error) {
	switch mode {
	case "files":
		return zenity.SelectFileMultiple(
			zenity.Title("Select EC 8A form images"),
			zenity.FileFilters{{Name: "Images", Patterns: imagePatterns}},
		)
	case "directory":
		dir, err := zenity.SelectFile(zenity.Directory(), zenity.Title("Select folder of form images"))
		if err != nil {
			return nil, err
		}
		return []string{dir}, nil
	}
	return nil, errBadMode
}

var errBadMode = errors.New("mode must be 'files' or 'directory'")

// POST /api/pick
// Opens a native picker and submits the chosen images as one batch.
func (s *server) handlePick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"` // "files" or "directory"
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	paths, err := s.picker(req.Mode)
	if err != nil {
		switch {
		case errors.Is(err, errBadMode):
			httpError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, zenity.ErrCanceled):
			respondJSON(w, http.StatusOK, map[string]any{"ids": []string{}, "canceled": true})
		default:
			log.Error().Err(err).Str("mode", req.Mode).Msg("Native picker failed")
			httpError(w, http.StatusInternalServerError, "picker failed")
		}
		return
	}

	files, err := loadPicked(req.Mode, paths)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	images := make([]batch.Image, 0, len(files))
	for _, f := range files {
		data, err := f.Read()
		if err != nil {
			log.Warn().Err(err).Str("file", f.Name()).Msg("Skipping unreadable image")
			continue
		}
		images = append(images, batch.Image{Name: f.Name(), Data: data, MIMEType: f.MIMEType, CapturedAt: f.CapturedAt})
	}

	log.Info().Str("mode", req.Mode).Int("count", len(images)).Msg("Images picked via native dialog")
	s.submit(w, images)
}

func loadPicked(mode string, paths []string) ([]*filehandler.ImageFile, error) {
	if mode == "directory" {
		if len(paths) == 0 {
			return nil, nil
		}
		return filehandler.ScanDirectory(paths[0], filehandler.ScanOptions{})
	}
	files := make([]*filehandler.ImageFile, 0, len(paths))
	for _, p := range paths {
		f, err := filehandler.LoadImageFile(p)
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("Skipping picked file")
			continue
		}
		files = append(files, f)
	}
	return files, nil
}
