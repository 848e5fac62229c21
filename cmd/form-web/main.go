package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fpang/ec8a-extractor/internal/batch"
	"github.com/fpang/ec8a-extractor/internal/cli"
	"github.com/fpang/ec8a-extractor/internal/config"
	"github.com/fpang/ec8a-extractor/internal/export"
	"github.com/fpang/ec8a-extractor/internal/extract"
	"github.com/fpang/ec8a-extractor/internal/logging"
	"github.com/fpang/ec8a-extractor/internal/metrics"
	"github.com/fpang/ec8a-extractor/internal/preview"
	"github.com/fpang/ec8a-extractor/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

//go:embed all:frontend_dist
var frontendFS embed.FS

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// CLI flags
var (
	portFlag        int
	modelFlag       string
	concurrencyFlag int
	partiesFlag     string
)

var rootCmd = &cobra.Command{
	Use:   "form-web",
	Short: "Local web UI for EC 8A form extraction",
	Long: `Form Web starts a local web server for uploading EC 8A result sheets,
watching each one move through extraction, reviewing failures and
downloading the results as CSV or XLSX.

The server starts without an API key; uploads are then rejected until one
is configured.

Examples:
  form-web
  form-web --port 9090 -k 5
  form-web --parties APC,PDP,LP`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", extract.DefaultModel, "Gemini model to use")
	rootCmd.Flags().IntVarP(&concurrencyFlag, "concurrency", "k", config.DefaultConcurrency, "Maximum extraction calls in flight")
	rootCmd.Flags().StringVar(&partiesFlag, "parties", "", "Comma-separated party columns, replacing the default set")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	start := time.Now()
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cmd.Flags().Changed("model") || cfg.Model == "" {
		cfg.Model = modelFlag
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Concurrency = concurrencyFlag
	}
	if cmd.Flags().Changed("parties") {
		cfg.Parties = config.SplitList(partiesFlag)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	ctx := context.Background()
	extractor := cli.InitExtractor(ctx, cfg, m, false)
	layout := cli.Layout(cfg)

	previewDir, err := os.MkdirTemp("", "ec8a-previews-")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create preview directory")
	}

	st := store.New()
	opts := []batch.Option{
		batch.WithConcurrency(cfg.Concurrency),
		batch.WithTimeout(cfg.Timeout),
		batch.WithMetrics(m),
		batch.WithPreviewer(previewDirPreviewer(previewDir)),
	}
	if cfg.MaxDimension > 0 {
		opts = append(opts, batch.WithTransform(preview.Compressor(cfg.MaxDimension)))
	}
	srv := &server{
		store:     st,
		scheduler: batch.New(st, extractor, opts...),
		live:      export.NewLive(st, layout),
		layout:    layout,
		registry:  registry,
		picker:    nativePicker,
	}

	logging.NewStartupLogger("form-web").
		Version(version).
		Config("port", fmt.Sprint(portFlag)).
		Config("model", extractor.Model()).
		Config("concurrency", fmt.Sprint(cfg.Concurrency)).
		Config("parties", strings.Join(layout.Categories, ",")).
		Feature("apiKey", extractor.Ready() == nil).
		Feature("rateLimit", cfg.RPM > 0).
		Feature("compression", cfg.MaxDimension > 0).
		InitDuration(time.Since(start)).
		Log()

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", portFlag),
		Handler:      srv.routes(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout+10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown incomplete")
		}
		if err := srv.scheduler.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Scheduler did not drain before shutdown deadline")
		}
		srv.shutdown(previewDir)
	}()

	log.Info().Int("port", portFlag).Msg("Starting web server")
	fmt.Printf("\n  EC 8A Extractor: http://localhost:%d\n\n", portFlag)

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	<-done
}
