package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fpang/ec8a-extractor/internal/batch"
	"github.com/fpang/ec8a-extractor/internal/export"
	"github.com/fpang/ec8a-extractor/internal/filehandler"
	"github.com/fpang/ec8a-extractor/internal/store"
	"github.com/rs/zerolog/log"
)

type submitResponse struct {
	BatchID string   `json:"batchId"`
	IDs     []string `json:"ids"`
}

// POST /api/batches (multipart, field "images")
func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	var images []batch.Image
	for _, fh := range r.MultipartForm.File["images"] {
		f, err := fh.Open()
		if err != nil {
			httpError(w, http.StatusBadRequest, "cannot read "+fh.Filename)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			httpError(w, http.StatusBadRequest, "cannot read "+fh.Filename)
			return
		}

		mimeType, err := filehandler.DetectMIMEType(fh.Filename, data)
		if err != nil {
			httpError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		img := batch.Image{Name: fh.Filename, Data: data, MIMEType: mimeType}
		if info, err := filehandler.CaptureInfoFromBytes(data); err == nil {
			img.CapturedAt = info.CapturedAt
		}
		images = append(images, img)
	}

	s.submit(w, images)
}

func (s *server) submit(w http.ResponseWriter, images []batch.Image) {
	if len(images) == 0 {
		httpError(w, http.StatusBadRequest, "no images supplied")
		return
	}

	ids, err := s.scheduler.Submit(images)
	if err != nil {
		var subErr *batch.SubmissionError
		if errors.As(err, &subErr) {
			log.Warn().Err(err).Int("images", len(images)).Msg("Batch rejected")
			httpError(w, http.StatusServiceUnavailable, subErr.Message)
			return
		}
		log.Error().Err(err).Msg("Batch submission failed")
		httpError(w, http.StatusInternalServerError, "submission failed")
		return
	}

	resp := submitResponse{IDs: ids}
	if len(ids) > 0 {
		if rec, ok := s.store.Get(ids[0]); ok {
			resp.BatchID = rec.BatchID
		}
	}
	log.Info().Str("batch_id", resp.BatchID).Int("images", len(ids)).Msg("Batch accepted")
	respondJSON(w, http.StatusAccepted, resp)
}

type recordsResponse struct {
	Records []store.Record `json:"records"`
	Stats   export.Stats   `json:"stats"`
	Busy    bool           `json:"busy"`
}

// GET /api/records
func (s *server) handleRecords(w http.ResponseWriter, r *http.Request) {
	records := s.store.Snapshot()
	respondJSON(w, http.StatusOK, recordsResponse{
		Records: records,
		Stats:   export.Summarize(records, s.layout),
		Busy:    s.scheduler.Busy(),
	})
}

// DELETE /api/records/{id}
func (s *server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.store.Remove(id) {
		httpError(w, http.StatusNotFound, "record not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/records
func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	if s.scheduler.Busy() {
		httpError(w, http.StatusConflict, "batch still processing")
		return
	}
	n := s.store.Clear()
	respondJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// GET /api/records/{id}/preview
func (s *server) handlePreview(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.store.Get(r.PathValue("id"))
	if !ok || rec.Preview == nil {
		httpError(w, http.StatusNotFound, "record not found")
		return
	}
	rc, err := rec.Preview.Open()
	if err != nil {
		// The record was removed between Get and Open.
		httpError(w, http.StatusNotFound, "preview released")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", rec.Preview.MIMEType())
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		log.Debug().Err(err).Str("id", rec.ID).Msg("Preview copy interrupted")
	}
}

// GET /api/stats
func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.live.Stats())
}

// GET /api/export.csv
func (s *server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(export.FileName(time.Now(), "csv")))
	w.Write(s.live.CSV())
}

// GET /api/export.xlsx
func (s *server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", attachment(export.FileName(time.Now(), "xlsx")))
	if err := export.WriteXLSX(w, s.store.Snapshot(), s.layout); err != nil {
		log.Error().Err(err).Msg("Failed to write XLSX export")
	}
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}
