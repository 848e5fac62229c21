package main

import (
	"net/http"
	"os"

	"github.com/fpang/ec8a-extractor/internal/batch"
	"github.com/fpang/ec8a-extractor/internal/export"
	"github.com/fpang/ec8a-extractor/internal/form"
	"github.com/fpang/ec8a-extractor/internal/preview"
	"github.com/fpang/ec8a-extractor/internal/store"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// maxUploadBytes caps one multipart batch upload.
const maxUploadBytes = 256 << 20

// server wires the record store, scheduler and live export to HTTP.
type server struct {
	store     *store.Store
	scheduler *batch.Scheduler
	live      *export.Live
	layout    form.Layout
	registry  *prometheus.Registry

	// picker opens the native dialog; replaced in tests.
	picker func(mode string) ([]string, error)
}

// previewDirPreviewer stores each record's image in dir so that large batches
// do not stay in memory.
func previewDirPreviewer(dir string) batch.Previewer {
	return func(img batch.Image) (store.Preview, error) {
		return preview.NewFile(dir, img.Data, img.MIMEType)
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/batches", s.handleSubmit)
	mux.HandleFunc("POST /api/pick", s.handlePick)
	mux.HandleFunc("GET /api/records", s.handleRecords)
	mux.HandleFunc("DELETE /api/records/{id}", s.handleDeleteRecord)
	mux.HandleFunc("GET /api/records/{id}/preview", s.handlePreview)
	mux.HandleFunc("DELETE /api/records", s.handleClear)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/export.csv", s.handleExportCSV)
	mux.HandleFunc("GET /api/export.xlsx", s.handleExportXLSX)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.Handle("/", frontendHandler())

	return withLogging(withCORS(gzhttp.GzipHandler(mux)))
}

func (s *server) shutdown(previewDir string) {
	s.live.Close()
	n := s.store.Clear()
	if previewDir != "" {
		if err := os.RemoveAll(previewDir); err != nil {
			log.Warn().Err(err).Str("dir", previewDir).Msg("Failed to remove preview directory")
		}
	}
	log.Info().Int("records", n).Msg("Records released")
}
