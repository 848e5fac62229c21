// Package extract implements the extraction port on top of the Gemini API.
//
// One image is sent per request together with the layout-derived prompt and
// a structured-output schema. The answer is decoded leniently, validated
// against the layout and returned as form.Fields. Every failure is an *Error
// carrying one of the four kinds the pipeline distinguishes.
package extract

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fpang/ec8a-extractor/internal/assets"
	"github.com/fpang/ec8a-extractor/internal/form"
	"github.com/fpang/ec8a-extractor/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// temperature is kept low so repeated runs over the same scan agree.
const temperature float32 = 0.1

// Option configures a Gemini extractor.
type Option func(*Gemini)

// WithModel selects the Gemini model. Empty keeps DefaultModel.
func WithModel(name string) Option {
	return func(g *Gemini) {
		if name != "" {
			g.model = name
		}
	}
}

// WithLayout replaces the EC 8A layout.
func WithLayout(l form.Layout) Option {
	return func(g *Gemini) { g.layout = l }
}

// WithRateLimit caps requests per minute across all concurrent calls. Zero disables it.
func WithRateLimit(perMinute int) Option {
	return func(g *Gemini) {
		if perMinute > 0 {
			g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
		}
	}
}

// WithMetrics records token usage.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gemini) { g.metrics = m }
}

// WithBaseURL points the client at a different endpoint, e.g. a test server.
func WithBaseURL(url string) Option {
	return func(g *Gemini) { g.baseURL = url }
}

// WithHTTPClient sets the HTTP client used by the Gemini SDK.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gemini) { g.httpClient = c }
}

// Gemini extracts form fields with a Gemini vision model. It is safe for
// concurrent use.
type Gemini struct {
	client     *genai.Client
	model      string
	layout     form.Layout
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	baseURL    string
	httpClient *http.Client

	prompt    string
	schema    *genai.Schema
	validator *jsonschema.Schema
}

// NewGemini builds an extractor. An empty apiKey is not an error: the
// extractor is returned unready so that submissions are rejected up front
// with a MissingCredential error.
func NewGemini(ctx context.Context, apiKey string, opts ...Option) (*Gemini, error) {
	g := &Gemini{model: DefaultModel, layout: form.EC8A}
	for _, o := range opts {
		o(g)
	}

	if err := g.layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	validator, err := compileValidator(g.layout)
	if err != nil {
		return nil, fmt.Errorf("failed to build response validator: %w", err)
	}
	g.validator = validator
	g.schema = responseSchema(g.layout)
	g.prompt = assets.RenderExtractionPrompt(promptData(g.layout))

	if apiKey == "" {
		log.Warn().Msg("No Gemini API key configured, extraction disabled")
		return g, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g.client = client

	log.Debug().
		Str("model", g.model).
		Str("layout", g.layout.Name).
		Int("categories", len(g.layout.Categories)).
		Bool("rate_limited", g.limiter != nil).
		Msg("Gemini extractor ready")
	return g, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// Ready reports a MissingCredential error when no API key was configured.
func (g *Gemini) Ready() error {
	if g.client == nil {
		return &Error{Kind: MissingCredential, Message: "API key is missing - set GEMINI_API_KEY"}
	}
	return nil
}

// Ping makes a minimal request to confirm the key is accepted.
func (g *Gemini) Ping(ctx context.Context) error {
	if err := g.Ready(); err != nil {
		return err
	}
	start := time.Now()
	_, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text("hi"), nil)
	if err != nil {
		classified := Classify(err)
		log.Error().Err(err).Str("kind", classified.Kind.String()).Dur("duration", time.Since(start)).Msg("API key check failed")
		return classified
	}
	log.Info().Str("model", g.model).Dur("duration", time.Since(start)).Msg("API key validated successfully")
	return nil
}

// Extract sends one image to the model and decodes the answer.
func (g *Gemini) Extract(ctx context.Context, data []byte, mimeType string) (*form.Fields, error) {
	if err := g.Ready(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &Error{Kind: MalformedResponse, Message: "Image is empty"}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, Classify(err)
		}
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
			{Text: g.prompt},
		},
	}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: assets.ExtractionSystemPrompt}},
		},
		Temperature:      genai.Ptr(temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   g.schema,
	}

	log.Debug().
		Str("model", g.model).
		Str("mime_type", mimeType).
		Int("bytes", len(data)).
		Msg("Starting Gemini API call for form extraction")

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	elapsed := time.Since(start)

	if resp != nil && resp.UsageMetadata != nil {
		g.metrics.Tokens(resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount)
	}
	if err != nil {
		classified := Classify(err)
		log.Error().
			Err(err).
			Str("kind", classified.Kind.String()).
			Dur("duration", elapsed).
			Msg("Failed to extract form from Gemini")
		return nil, classified
	}

	text := ""
	if resp != nil {
		text = resp.Text()
	}
	if text == "" {
		log.Warn().Dur("duration", elapsed).Msg("Received empty response from Gemini")
		return nil, &Error{Kind: MalformedResponse, Message: "No data returned from AI"}
	}

	fields, err := decodeFields(text, g.layout, g.validator)
	if err != nil {
		log.Warn().Err(err).Int("response_length", len(text)).Msg("Failed to decode extraction response")
		return nil, err
	}

	log.Debug().
		Int("response_length", len(text)).
		Int("votes", len(fields.Votes)).
		Dur("duration", elapsed).
		Msg("Gemini API response decoded")
	return fields, nil
}

func promptData(l form.Layout) assets.ExtractionPromptData {
	d := assets.ExtractionPromptData{Parties: l.Categories}
	for _, f := range l.AdminFields {
		d.Admin = append(d.Admin, assets.PromptField{Key: f.Key, Description: f.Description})
	}
	for _, f := range l.CountFields {
		d.Counts = append(d.Counts, assets.PromptField{Key: f.Key, Description: f.Description})
	}
	return d
}
