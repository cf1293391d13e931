package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"signalflow/models"
)

// FallbackReasoning marks fields produced by the deterministic extractor
const FallbackReasoning = "fallback"

// Options configures the extractor's supported enumerations and keywords
type Options struct {
	Assets     []string
	Timeframes []string
	Brokers    []string
	Keywords   []string
}

// Extractor turns raw message text into structured signal fields. The
// primary path asks the language model; on any model or parse failure it
// falls back to deterministic keyword extraction. Extract never fails.
type Extractor struct {
	client     models.CompletionClient
	assets     []string
	timeframes []string
	brokers    []string
	keywords   []string
	tfSeconds  map[int]string // expiration seconds -> timeframe label
	logger     zerolog.Logger
}

// New creates an extractor. A nil client disables the model path entirely.
func New(client models.CompletionClient, opts Options) *Extractor {
	return &Extractor{
		client:     client,
		assets:     opts.Assets,
		timeframes: opts.Timeframes,
		brokers:    opts.Brokers,
		keywords:   opts.Keywords,
		tfSeconds:  timeframeSeconds(opts.Timeframes),
		logger:     log.With().Str("component", "extractor").Logger(),
	}
}

// Extract analyzes one message and returns structured signal fields.
// The channel record, when available, supplies the broker affinity hint.
func (e *Extractor) Extract(ctx context.Context, text string, channel *models.ChannelRecord) models.SignalFields {
	original, working := Preprocess(text)

	if e.client != nil {
		fields, err := e.extractWithModel(ctx, original)
		if err == nil {
			return e.validate(fields, channel)
		}
		e.logger.Warn().Err(err).Msg("Model extraction failed, using fallback")
	}

	return e.validate(e.extractFallback(working), channel)
}

// modelResponse mirrors the JSON schema the prompt asks for. Pointers
// distinguish a missing key from a zero value.
type modelResponse struct {
	IsSignal          *bool          `json:"is_signal"`
	Action            *string        `json:"action"`
	Asset             *string        `json:"asset"`
	Timeframe         *string        `json:"timeframe"`
	ExpirationSeconds *int           `json:"expiration_seconds"`
	Broker            *string        `json:"broker"`
	Constraints       map[string]any `json:"constraints"`
	Confidence        *float64       `json:"confidence"`
	Reasoning         *string        `json:"reasoning"`
}

func (e *Extractor) extractWithModel(ctx context.Context, text string) (models.SignalFields, error) {
	var fields models.SignalFields

	content, err := e.client.Complete(ctx, e.buildPrompt(text))
	if err != nil {
		return fields, err
	}

	var resp modelResponse
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &resp); err != nil {
		return fields, fmt.Errorf("parsing model JSON: %w", err)
	}
	if resp.IsSignal == nil || resp.Confidence == nil {
		return fields, fmt.Errorf("model response missing required keys")
	}

	fields.IsSignal = *resp.IsSignal
	if resp.Action != nil {
		fields.Action = models.Action(strings.ToUpper(strings.TrimSpace(*resp.Action)))
	}
	if resp.Asset != nil {
		fields.Asset = strings.ToUpper(strings.TrimSpace(*resp.Asset))
	}
	if resp.Timeframe != nil {
		fields.Timeframe = strings.TrimSpace(*resp.Timeframe)
	}
	if resp.ExpirationSeconds != nil {
		fields.ExpirationSeconds = *resp.ExpirationSeconds
	}
	if resp.Broker != nil {
		fields.Broker = strings.ToLower(strings.TrimSpace(*resp.Broker))
	}
	fields.Constraints = resp.Constraints
	fields.Confidence = int(*resp.Confidence + 0.5)
	if resp.Reasoning != nil {
		fields.Reasoning = *resp.Reasoning
	}
	return fields, nil
}

func (e *Extractor) buildPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("You are a trading signal parser for binary options. Analyze the message below and respond with a single JSON object, no other text.\n\n")
	sb.WriteString("Schema:\n")
	sb.WriteString(`{"is_signal": bool, "action": "CALL"|"PUT"|null, "asset": string|null, "timeframe": string|null, "expiration_seconds": int|null, "broker": string|null, "constraints": object, "confidence": 0-100, "reasoning": string}`)
	sb.WriteString("\n\nSupported assets: ")
	sb.WriteString(strings.Join(e.assets, ", "))
	sb.WriteString("\nSupported timeframes: ")
	sb.WriteString(strings.Join(e.timeframes, ", "))
	sb.WriteString("\nSupported brokers: ")
	sb.WriteString(strings.Join(e.brokers, ", "))
	sb.WriteString("\n\nMessage:\n")
	sb.WriteString(text)
	return sb.String()
}

// validate clamps model output against the supported enumerations. When the
// message is not a signal, every dependent field is cleared so partial
// signals never leak downstream.
func (e *Extractor) validate(fields models.SignalFields, channel *models.ChannelRecord) models.SignalFields {
	if fields.Action != models.ActionCall && fields.Action != models.ActionPut {
		fields.Action = models.ActionNone
	}
	if !containsFold(e.assets, fields.Asset) {
		fields.Asset = ""
	}
	if !containsFold(e.timeframes, fields.Timeframe) {
		fields.Timeframe = ""
	}
	if fields.Broker == "" && channel != nil {
		fields.Broker = channel.Broker
	}
	if !containsFold(e.brokers, fields.Broker) {
		fields.Broker = ""
	}
	if fields.Confidence < 0 {
		fields.Confidence = 0
	}
	if fields.Confidence > 100 {
		fields.Confidence = 100
	}
	if fields.ExpirationSeconds < 0 {
		fields.ExpirationSeconds = 0
	}
	if !fields.IsSignal {
		fields.Action = models.ActionNone
		fields.Asset = ""
		fields.Timeframe = ""
		fields.ExpirationSeconds = 0
		fields.Broker = ""
		fields.Constraints = nil
		fields.Confidence = 0
	}
	return fields
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func containsFold(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}
