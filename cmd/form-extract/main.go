package main

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/fpang/ec8a-extractor/internal/filehandler"
	"github.com/fpang/ec8a-extractor/internal/form"
	"github.com/fpang/ec8a-extractor/internal/logging"
	"github.com/fpang/ec8a-extractor/internal/metrics"
	"github.com/fpang/ec8a-extractor/internal/preview"
	"github.com/fpang/ec8a-extractor/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// CLI flags
var (
	directoryFlag   string
	maxDepthFlag    int
	limitFlag       int
	modelFlag       string
	concurrencyFlag int
	outputFlag      string
	xlsxFlag        string
	partiesFlag     string
	rpmFlag         int
)

// rootCmd is the main Cobra command for the form-extract CLI.
var rootCmd = &cobra.Command{
	Use:   "form-extract",
	Short: "Extract EC 8A election result sheets into CSV",
	Long: `Form Extract scans a directory of photographed or scanned EC 8A polling unit
result sheets and uses Gemini to read each one into structured fields.

Images are processed with at most K extraction calls in flight. A failed image
is reported in the results and never stops the rest of the batch. Successful
results are written to CSV (and optionally XLSX) when the batch settles.

On Ctrl-C no new images are read, but every image already queued is still
extracted (bounded by the per-call timeout) so the export stays complete.

Examples:
  form-extract --directory ./ward-04
  form-extract -d ./forms -k 5 -o results.csv --xlsx results.xlsx
  form-extract -d ./forms --parties APC,PDP,LP,NNPP
  form-extract  # Interactive mode - prompts for directory`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&directoryFlag, "directory", "d", "", "Directory containing form images")
	rootCmd.Flags().IntVar(&maxDepthFlag, "max-depth", 0, "Maximum recursion depth (0 = unlimited)")
	rootCmd.Flags().IntVar(&limitFlag, "limit", 0, "Maximum images to process (0 = unlimited)")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", extract.DefaultModel, "Gemini model to use")
	rootCmd.Flags().IntVarP(&concurrencyFlag, "concurrency", "k", config.DefaultConcurrency, "Maximum extraction calls in flight")
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "CSV output path (default election_data_export_<date>.csv)")
	rootCmd.Flags().StringVar(&xlsxFlag, "xlsx", "", "Also write an XLSX workbook to this path")
	rootCmd.Flags().StringVar(&partiesFlag, "parties", "", "Comma-separated party columns, replacing the default set")
	rootCmd.Flags().IntVar(&rpmFlag, "rpm", 0, "Maximum Gemini requests per minute (0 = unlimited)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	start := time.Now()
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	dirPath := directoryFlag
	if dirPath == "" {
		dirPath = cli.PromptForDirectory()
	}
	dirPath = cli.ValidateAndResolveDirectory(dirPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.NewRegistry())
	extractor := cli.InitExtractor(ctx, cfg, m, true)
	layout := cli.Layout(cfg)

	logging.NewStartupLogger("form-extract").
		Version(version).
		Config("model", extractor.Model()).
		Config("concurrency", fmt.Sprint(cfg.Concurrency)).
		Config("timeout", cfg.Timeout.String()).
		Config("parties", strings.Join(layout.Categories, ",")).
		Feature("rateLimit", cfg.RPM > 0).
		Feature("compression", cfg.MaxDimension > 0).
		Feature("xlsx", xlsxFlag != "").
		InitDuration(time.Since(start)).
		Log()

	code := run(ctx, cfg, extractor, m, dirPath)
	stop()
	os.Exit(code)
}

// applyFlags overrides environment settings with flags the user set explicitly.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("model") || cfg.Model == "" {
		cfg.Model = modelFlag
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = concurrencyFlag
	}
	if flags.Changed("rpm") {
		cfg.RPM = rpmFlag
	}
	if flags.Changed("parties") {
		cfg.Parties = config.SplitList(partiesFlag)
	}
}

// run scans dirPath, extracts every image and writes the exports. It returns
// the process exit code.
func run(ctx context.Context, cfg config.Config, extractor batch.Extractor, m *metrics.Metrics, dirPath string) int {
	layout := cli.Layout(cfg)

	files, err := filehandler.ScanDirectory(dirPath, filehandler.ScanOptions{
		MaxDepth: maxDepthFlag,
		Limit:    limitFlag,
	})
	if err != nil {
		log.Error().Err(err).Str("path", dirPath).Msg("failed to scan directory")
		return 1
	}
	if len(files) == 0 {
		log.Error().Str("path", dirPath).Msg("no supported images found in directory")
		return 1
	}

	images := make([]batch.Image, 0, len(files))
	for _, f := range files {
		data, err := f.Read()
		if err != nil {
			log.Warn().Err(err).Str("file", f.Name()).Msg("Skipping unreadable image")
			continue
		}
		images = append(images, batch.Image{
			Name:       f.Name(),
			Data:       data,
			MIMEType:   f.MIMEType,
			CapturedAt: f.CapturedAt,
		})
	}

	fmt.Println()
	fmt.Println("============================================")
	fmt.Println("EC 8A Form Extraction")
	fmt.Println("============================================")
	fmt.Printf("Directory: %s\n", dirPath)
	fmt.Printf("Images found: %d\n", len(images))
	if limitFlag > 0 && len(files) == limitFlag {
		fmt.Printf("(limited to %d)\n", limitFlag)
	}
	fmt.Printf("Model: %s\n", cfg.Model)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Println("--------------------------------------------")

	st := store.New(store.WithObserver(progressObserver(len(images))))
	opts := []batch.Option{
		batch.WithConcurrency(cfg.Concurrency),
		batch.WithTimeout(cfg.Timeout),
		batch.WithMetrics(m),
	}
	if cfg.MaxDimension > 0 {
		opts = append(opts, batch.WithTransform(preview.Compressor(cfg.MaxDimension)))
	}
	sched := batch.New(st, extractor, opts...)

	start := time.Now()
	if _, err := sched.Submit(images); err != nil {
		var subErr *batch.SubmissionError
		if errors.As(err, &subErr) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", subErr.Message)
		}
		log.Error().Err(err).Msg("Batch submission rejected")
		return 1
	}

	if err := sched.Wait(ctx); err != nil {
		log.Warn().Err(err).Int("pending", sched.Pending()).Int("in_flight", sched.InFlight()).Msg("Interrupted, finishing queued and in-flight extractions")
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout+5*time.Second)
		defer cancel()
		if err := sched.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("Scheduler did not drain")
		}
	} else if err := sched.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("Scheduler close failed")
	}

	records := st.Snapshot()
	stats := export.Summarize(records, layout)
	elapsed := time.Since(start)

	renderResults(os.Stdout, records, layout)
	printStats(os.Stdout, stats, layout, elapsed)

	if err := writeExports(records, layout, time.Now()); err != nil {
		log.Error().Err(err).Msg("Failed to write export")
		return 1
	}

	log.Info().
		Int("total", stats.Total).
		Int("succeeded", stats.Succeeded).
		Int("failed", stats.Failed).
		Dur("duration", elapsed).
		Msg("Extraction complete")
	return 0
}

// progressObserver logs each record as it settles.
func progressObserver(total int) store.Observer {
	var done int
	return func(c store.Change) {
		if c.Kind != store.ChangeUpdated || !c.Record.Status.Terminal() || c.Previous.Status.Terminal() {
			return
		}
		done++
		evt := log.Info()
		if c.Record.Status == store.StatusError {
			evt = log.Warn().Str("error", c.Record.Error)
		}
		evt.Str("file", c.Record.SourceName).
			Str("status", string(c.Record.Status)).
			Str("progress", fmt.Sprintf("%d/%d", done, total)).
			Msg("Form processed")
	}
}

// writeExports writes the CSV and, when requested, the XLSX workbook.
func writeExports(records []store.Record, layout form.Layout, now time.Time) error {
	csvPath := outputFlag
	if csvPath == "" {
		csvPath = export.FileName(now, "csv")
	}
	if err := writeFile(csvPath, func(f *os.File) error { return export.WriteCSV(f, records, layout) }); err != nil {
		return err
	}
	fmt.Printf("CSV written to %s\n", csvPath)

	if xlsxFlag != "" {
		if err := writeFile(xlsxFlag, func(f *os.File) error { return export.WriteXLSX(f, records, layout) }); err != nil {
			return err
		}
		fmt.Printf("XLSX written to %s\n", xlsxFlag)
	}
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
