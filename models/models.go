package models

import (
	"time"
)

// Action is the direction of a binary option trade
type Action string

const (
	ActionCall Action = "CALL"
	ActionPut  Action = "PUT"
	ActionNone Action = ""
)

// Message is a single inbound text message from a channel
type Message struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// SignalFields is the structured output of signal extraction
type SignalFields struct {
	IsSignal          bool           `json:"is_signal"`
	Action            Action         `json:"action,omitempty"`
	Asset             string         `json:"asset,omitempty"`
	Timeframe         string         `json:"timeframe,omitempty"`
	ExpirationSeconds int            `json:"expiration_seconds,omitempty"`
	Broker            string         `json:"broker,omitempty"`
	Constraints       map[string]any `json:"constraints,omitempty"`
	Confidence        int            `json:"confidence"` // extractor confidence, 0-100
	Reasoning         string         `json:"reasoning,omitempty"`
}

// SignalAnalysis is the pipeline's full verdict for one message
type SignalAnalysis struct {
	Fields     SignalFields     `json:"fields"`
	Confidence int              `json:"confidence"` // blended final confidence, 0-100
	Params     *TradeParameters `json:"params,omitempty"`
	AnalyzedAt time.Time        `json:"analyzed_at"`
}

// TradeParameters holds the trade-ready fields derived from an analysis
type TradeParameters struct {
	Action            Action  `json:"action"`
	Asset             string  `json:"asset"`
	Amount            float64 `json:"amount"`
	ExpirationSeconds int     `json:"expiration_seconds"`
	Timeframe         string  `json:"timeframe,omitempty"`
	Broker            string  `json:"broker"`
	Confidence        int     `json:"confidence"`
	RiskLevel         string  `json:"risk_level,omitempty"` // LOW, MEDIUM, HIGH
}

// TradeOrder is an approved, sized order ready for the broker sink.
// Immutable once handed off.
type TradeOrder struct {
	ID        string          `json:"id"`
	ChannelID string          `json:"channel_id"`
	Params    TradeParameters `json:"params"`
	CreatedAt time.Time       `json:"created_at"`
}

// TradeOutcome is the broker's report for a closed trade
type TradeOutcome struct {
	Success    bool    `json:"success"`
	TradeID    string  `json:"trade_id"`
	Profit     float64 `json:"profit"`
	DurationMs int64   `json:"duration_ms"`
}

// ChannelPerformance tracks historical signal quality for one channel.
// SuccessfulSignals counts signals whose blended confidence met the
// configured threshold, not realized trade wins.
type ChannelPerformance struct {
	TotalSignals      int     `json:"total_signals"`
	SuccessfulSignals int     `json:"successful_signals"`
	AvgConfidence     float64 `json:"avg_confidence"`
	WinRate           float64 `json:"win_rate"` // percent, recomputed on every update
}

// ChannelRecord is the per-channel state owned by the confidence model
type ChannelRecord struct {
	ID                string             `json:"id"`
	Name              string             `json:"name,omitempty"`
	Broker            string             `json:"broker,omitempty"`
	MinConfidence     int                `json:"min_confidence"`
	MartingaleEnabled bool               `json:"martingale_enabled"`
	Performance       ChannelPerformance `json:"performance"`
	FirstSeen         time.Time          `json:"first_seen"`
	LastSignal        time.Time          `json:"last_signal,omitempty"`
}

// MartingaleState is one active recovery sequence, keyed by channel+asset
type MartingaleState struct {
	BaseAmount float64 `json:"base_amount"`
	Step       int     `json:"step"`
	LastAmount float64 `json:"last_amount"`
	LastProfit float64 `json:"last_profit"`
}

// AccountRiskState is the running account-level risk picture.
// DailyPnL and DailyTrades reset on UTC-day rollover; the high-water mark
// and the open-trade set persist across rollover. RealizedWins/RealizedLosses
// track actual trade outcomes and are kept separate from the
// confidence-threshold proxy in ChannelPerformance.
type AccountRiskState struct {
	Balance         float64             `json:"balance"`
	DailyPnL        float64             `json:"daily_pnl"`
	DailyTrades     int                 `json:"daily_trades"`
	MaxDailyBalance float64             `json:"max_daily_balance"` // high-water mark
	OpenTrades      map[string]struct{} `json:"-"`
	Day             string              `json:"day"` // UTC date, YYYY-MM-DD
	RealizedWins    int                 `json:"realized_wins"`
	RealizedLosses  int                 `json:"realized_losses"`
}

// BrokerLimits declares a broker's accepted stake and expiration ranges
type BrokerLimits struct {
	MinAmount     float64 `json:"min_amount"`
	MaxAmount     float64 `json:"max_amount"`
	MinExpiration int     `json:"min_expiration"` // seconds
	MaxExpiration int     `json:"max_expiration"` // seconds
}

// Rejected is a business outcome, not an error: the pipeline declined to
// produce an order and says why.
type Rejected struct {
	Reason string `json:"reason"`
}

// Decision is what the pipeline returns for one processed message: either
// an approved order or a rejection, plus the analysis that produced it.
type Decision struct {
	Order    *TradeOrder     `json:"order,omitempty"`
	Rejected *Rejected       `json:"rejected,omitempty"`
	Analysis *SignalAnalysis `json:"analysis,omitempty"`
}

// Approved reports whether the decision carries an order
func (d *Decision) Approved() bool {
	return d != nil && d.Order != nil
}

// UTCDay formats a point in time as the UTC day key used for daily resets
func UTCDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
