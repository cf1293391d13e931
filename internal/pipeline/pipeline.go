package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"signalflow/config"
	"signalflow/internal/cache"
	"signalflow/internal/confidence"
	"signalflow/internal/extractor"
	"signalflow/internal/metrics"
	"signalflow/internal/risk"
	"signalflow/models"
)

// Rejection reasons produced by the pipeline itself; the risk gate adds its
// own on top.
const (
	ReasonNotASignal    = "not a signal"
	ReasonLowConfidence = "low confidence"
)

// defaultExpirationSeconds is used when neither the message nor its
// timeframe names an expiration.
const defaultExpirationSeconds = 300

// Pipeline wires extraction, scoring and risk gating into the
// message-to-order flow. Messages from the same channel are always processed
// in arrival order; different channels may run on different workers.
type Pipeline struct {
	extractor *extractor.Extractor
	model     *confidence.Model
	gate      *risk.Gate
	cache     *cache.DecisionCache
	sink      models.BrokerSink
	metrics   *metrics.Recorder
	cfg       *config.Config

	queues    []chan models.Message
	decisions chan *models.Decision
	logger    zerolog.Logger
}

// New creates a pipeline. The metrics recorder may be nil.
func New(cfg *config.Config, ext *extractor.Extractor, model *confidence.Model, gate *risk.Gate, sink models.BrokerSink, rec *metrics.Recorder) *Pipeline {
	queues := make([]chan models.Message, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan models.Message, cfg.QueueSize)
	}
	return &Pipeline{
		extractor: ext,
		model:     model,
		gate:      gate,
		cache:     cache.New(cfg.CacheTTL, cfg.CacheSize),
		sink:      sink,
		metrics:   rec,
		cfg:       cfg,
		queues:    queues,
		decisions: make(chan *models.Decision, cfg.QueueSize),
		logger:    log.With().Str("component", "pipeline").Logger(),
	}
}

// Process runs one message through the full signal-to-decision flow. A
// Rejected decision is the normal business outcome for anything that should
// not trade; an error means the pipeline itself failed and should alert.
func (p *Pipeline) Process(ctx context.Context, msg models.Message) (*models.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	start := time.Now()
	if p.metrics != nil {
		p.metrics.RecordMessage(msg.ChannelID)
	}

	key := cacheKey(msg)
	if dec, ok := p.cache.Get(key); ok {
		if p.metrics != nil {
			p.metrics.RecordCacheHit()
		}
		return dec, nil
	}

	// Extract with whatever channel state already exists; a record is only
	// created once the message turns out to be a signal, so chatter-only
	// channels never register.
	var hint *models.ChannelRecord
	if known, ok := p.model.Lookup(msg.ChannelID); ok {
		hint = &known
	}
	fields := p.extractor.Extract(ctx, msg.Text, hint)

	analysis := &models.SignalAnalysis{
		Fields:     fields,
		AnalyzedAt: time.Now().UTC(),
	}

	if !fields.IsSignal {
		return p.finish(key, rejectDecision(ReasonNotASignal, analysis)), nil
	}

	channel := p.model.Channel(msg.ChannelID)
	finalConfidence := p.model.Score(msg.ChannelID, fields, msg.Text)
	analysis.Confidence = finalConfidence
	p.model.RecordOutcome(msg.ChannelID, finalConfidence, finalConfidence >= p.cfg.Risk.ConfidenceThreshold)

	if finalConfidence < channel.MinConfidence {
		return p.finish(key, rejectDecision(ReasonLowConfidence, analysis)), nil
	}

	params := p.buildParams(fields, &channel, finalConfidence)
	analysis.Params = params

	assessment := p.gate.Assess(params, msg.ChannelID, channel.MartingaleEnabled)
	if !assessment.Approved {
		return p.finish(key, rejectDecision(assessment.Reason, analysis)), nil
	}
	params.Amount = assessment.FinalAmount

	order := &models.TradeOrder{
		ID:        fmt.Sprintf("%s-%s-%d", msg.ChannelID, msg.MessageID, time.Now().UnixNano()),
		ChannelID: msg.ChannelID,
		Params:    *params,
		CreatedAt: time.Now().UTC(),
	}

	if p.metrics != nil {
		p.metrics.RecordOrder(params.Asset, string(params.Action))
		p.metrics.RecordLatency("process", time.Since(start).Seconds())
	}
	p.logger.Info().
		Str("order_id", order.ID).
		Str("asset", params.Asset).
		Str("action", string(params.Action)).
		Float64("amount", params.Amount).
		Int("confidence", finalConfidence).
		Msg("Order approved")

	return p.finish(key, &models.Decision{Order: order, Analysis: analysis}), nil
}

// buildParams turns validated fields into a candidate order: the stake from
// the confidence bracket table, the broker from the message or the default,
// the expiration from the message, the timeframe, or a 5 minute default.
func (p *Pipeline) buildParams(fields models.SignalFields, channel *models.ChannelRecord, finalConfidence int) *models.TradeParameters {
	broker := fields.Broker
	if broker == "" {
		broker = p.cfg.DefaultBroker
	}

	expiration := fields.ExpirationSeconds
	if expiration == 0 && fields.Timeframe != "" {
		expiration = extractor.DurationSeconds(fields.Timeframe)
	}
	if expiration == 0 {
		expiration = defaultExpirationSeconds
	}

	return &models.TradeParameters{
		Action:            fields.Action,
		Asset:             fields.Asset,
		Amount:            risk.BaseAmountForConfidence(finalConfidence),
		ExpirationSeconds: expiration,
		Timeframe:         fields.Timeframe,
		Broker:            broker,
		Confidence:        finalConfidence,
		RiskLevel:         riskLevel(finalConfidence),
	}
}

// Submit hands an approved order to the broker sink and folds the outcome
// back into account and martingale state. A sink error is logged and
// surfaced without retry: the trade may have been placed, so the order
// stays reserved.
func (p *Pipeline) Submit(ctx context.Context, order *models.TradeOrder) (*models.TradeOutcome, error) {
	if p.sink == nil {
		return nil, fmt.Errorf("no broker sink configured")
	}
	p.gate.Reserve(order)

	outcome, err := p.sink.PlaceOrder(ctx, order)
	if err != nil {
		p.logger.Error().Err(err).Str("order_id", order.ID).Msg("Broker sink failed; order may still be live")
		return nil, fmt.Errorf("placing order %s: %w", order.ID, err)
	}

	p.gate.RecordOutcome(order.ID, outcome)
	if p.metrics != nil {
		switch {
		case outcome.Profit > 0:
			p.metrics.RecordOutcome("win")
		case outcome.Profit < 0:
			p.metrics.RecordOutcome("loss")
		default:
			p.metrics.RecordOutcome("breakeven")
		}
	}
	return outcome, nil
}

func (p *Pipeline) finish(key string, dec *models.Decision) *models.Decision {
	if dec.Rejected != nil {
		if p.metrics != nil {
			p.metrics.RecordRejection(dec.Rejected.Reason)
		}
		p.logger.Debug().Str("reason", dec.Rejected.Reason).Msg("Signal rejected")
	}
	p.cache.Set(key, dec)
	return dec
}

func rejectDecision(reason string, analysis *models.SignalAnalysis) *models.Decision {
	return &models.Decision{
		Rejected: &models.Rejected{Reason: reason},
		Analysis: analysis,
	}
}

func riskLevel(confidence int) string {
	switch {
	case confidence >= 85:
		return "LOW"
	case confidence >= 70:
		return "MEDIUM"
	default:
		return "HIGH"
	}
}

func cacheKey(msg models.Message) string {
	h := fnv.New64a()
	h.Write([]byte(msg.Text))
	return fmt.Sprintf("%s|%d|%x", msg.ChannelID, msg.Timestamp, h.Sum64())
}
