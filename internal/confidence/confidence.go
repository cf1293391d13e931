package confidence

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"signalflow/models"
)

// Model maintains per-channel historical performance and blends a final
// confidence score for each candidate signal. It is the sole owner of
// ChannelRecord state; records are created on first signal and never deleted.
type Model struct {
	mu                   sync.RWMutex
	channels             map[string]*models.ChannelRecord
	minHistoricalSignals int
	threshold            int // confidence level counting as a "successful" signal
	defaultMinConfidence int
	martingaleDefault    bool
	logger               zerolog.Logger
}

// New creates a confidence model
func New(minHistoricalSignals, threshold int, martingaleDefault bool) *Model {
	return &Model{
		channels:             make(map[string]*models.ChannelRecord),
		minHistoricalSignals: minHistoricalSignals,
		threshold:            threshold,
		defaultMinConfidence: threshold,
		martingaleDefault:    martingaleDefault,
		logger:               log.With().Str("component", "confidence_model").Logger(),
	}
}

// Channel returns a copy of the channel's record, creating it if needed
func (m *Model) Channel(id string) models.ChannelRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.channel(id)
}

// Lookup returns a copy of the channel's record without creating one, so
// chatter-only channels never accumulate state.
func (m *Model) Lookup(id string) (models.ChannelRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.channels[id]
	if !ok {
		return models.ChannelRecord{}, false
	}
	return *rec, true
}

func (m *Model) channel(id string) *models.ChannelRecord {
	rec, ok := m.channels[id]
	if !ok {
		rec = &models.ChannelRecord{
			ID:                id,
			MinConfidence:     m.defaultMinConfidence,
			MartingaleEnabled: m.martingaleDefault,
			FirstSeen:         time.Now().UTC(),
		}
		m.channels[id] = rec
		m.logger.Info().Str("channel_id", id).Msg("New channel registered")
	}
	return rec
}

// Score blends the extractor confidence with parameter completeness, channel
// history and message clarity into a final 0-100 score. The extractor always
// supplies a confidence (the fallback fixes it at 50), so the value is taken
// as-is: an explicit zero stays zero.
func (m *Model) Score(channelID string, fields models.SignalFields, rawText string) int {
	base := clamp(float64(fields.Confidence), 0, 100)

	score := base + completenessBonus(fields) + m.historicalBonus(channelID) + clarityAdjustment(rawText)
	return int(math.Round(clamp(score, 0, 100)))
}

// completenessBonus rewards filled-in signal fields: up to 60% of a 20-point
// bonus for the required pair (action, asset), up to 40% for the optional
// trio (timeframe, expiration, broker).
func completenessBonus(fields models.SignalFields) float64 {
	var required float64
	if fields.Action != models.ActionNone {
		required++
	}
	if fields.Asset != "" {
		required++
	}

	var optional float64
	if fields.Timeframe != "" {
		optional++
	}
	if fields.ExpirationSeconds > 0 {
		optional++
	}
	if fields.Broker != "" {
		optional++
	}

	return 20 * (0.6*required/2 + 0.4*optional/3)
}

// historicalBonus maps the channel's win rate into [-10,+10]. Channels with
// fewer than minHistoricalSignals recorded signals contribute nothing.
func (m *Model) historicalBonus(channelID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.channels[channelID]
	if !ok || rec.Performance.TotalSignals < m.minHistoricalSignals {
		return 0
	}
	return (rec.Performance.WinRate/100 - 0.5) * 20
}

// clarityAdjustment scores message length: short unambiguous signal messages
// historically carry cleaner structure than long narrative ones.
func clarityAdjustment(rawText string) float64 {
	words := len(strings.Fields(rawText))
	switch {
	case words < 10:
		return 10
	case words < 20:
		return 5
	case words < 30:
		return 0
	default:
		return -5
	}
}

// RecordOutcome folds one processed signal into the channel's history.
// metThreshold counts the signal as "successful"; this is the analysis
// confidence proxy, not a realized trade win.
func (m *Model) RecordOutcome(channelID string, finalConfidence int, metThreshold bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.channel(channelID)
	perf := &rec.Performance

	perf.TotalSignals++
	if metThreshold {
		perf.SuccessfulSignals++
	}
	perf.WinRate = float64(perf.SuccessfulSignals) / float64(perf.TotalSignals) * 100

	n := float64(perf.TotalSignals)
	perf.AvgConfidence = (perf.AvgConfidence*(n-1) + float64(finalConfidence)) / n

	rec.LastSignal = time.Now().UTC()
}

// MinConfidence returns the channel's minimum-confidence setting
func (m *Model) MinConfidence(channelID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel(channelID).MinConfidence
}

// SetChannelSettings updates the per-channel tuning knobs
func (m *Model) SetChannelSettings(channelID, name, broker string, minConfidence int, martingale bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.channel(channelID)
	if name != "" {
		rec.Name = name
	}
	if broker != "" {
		rec.Broker = broker
	}
	if minConfidence > 0 {
		rec.MinConfidence = minConfidence
	}
	rec.MartingaleEnabled = martingale
}

// Export returns a snapshot of every channel record, for persistence
func (m *Model) Export() []models.ChannelRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ChannelRecord, 0, len(m.channels))
	for _, rec := range m.channels {
		out = append(out, *rec)
	}
	return out
}

// Restore loads previously persisted channel records
func (m *Model) Restore(records []models.ChannelRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		r := rec
		m.channels[r.ID] = &r
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
