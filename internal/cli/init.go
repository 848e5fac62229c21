package cli

import (
	"context"
	"errors"

	"github.com/fpang/ec8a-extractor/internal/auth"
	"github.com/fpang/ec8a-extractor/internal/config"
	"github.com/fpang/ec8a-extractor/internal/extract"
	"github.com/fpang/ec8a-extractor/internal/form"
	"github.com/fpang/ec8a-extractor/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Layout returns the EC 8A layout, with the party columns replaced when
// cfg.Parties is set.
func Layout(cfg config.Config) form.Layout {
	if len(cfg.Parties) > 0 {
		return form.EC8A.WithCategories(cfg.Parties)
	}
	return form.EC8A
}

// InitExtractor creates the Gemini extractor and validates the API key with
// a minimal request. A missing key is fatal when requireKey is set; otherwise
// the extractor is returned unready and submissions will be rejected.
func InitExtractor(ctx context.Context, cfg config.Config, m *metrics.Metrics, requireKey bool) *extract.Gemini {
	apiKey, err := auth.GetAPIKey()
	if err != nil {
		if requireKey || !errors.Is(err, auth.ErrNoAPIKey) {
			log.Fatal().Err(err).Msg("failed to retrieve API key")
		}
		log.Warn().Err(err).Msg("Starting without an API key")
	}

	g, err := extract.NewGemini(ctx, apiKey,
		extract.WithModel(cfg.Model),
		extract.WithLayout(Layout(cfg)),
		extract.WithRateLimit(cfg.RPM),
		extract.WithMetrics(m),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Gemini extractor")
	}
	if apiKey == "" {
		return g
	}

	log.Info().Str("model", g.Model()).Msg("connection successful - Gemini client initialized")

	if err := g.Ping(ctx); err != nil {
		HandleExtractError(err)
	}

	log.Info().Msg("API key validation complete - ready for extraction")
	return g
}
