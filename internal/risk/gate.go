package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"signalflow/config"
	"signalflow/models"
)

// Rejection reasons returned by Assess. First failing check wins.
const (
	ReasonInvalidParams  = "invalid parameters"
	ReasonNoBalance      = "insufficient balance"
	ReasonLowConfidence  = "confidence below threshold"
	ReasonDailyLossLimit = "daily loss limit reached"
	ReasonMaxConcurrent  = "max concurrent trades"
	ReasonSizedTooLarge  = "sized amount exceeds limits"
)

// Assessment is the gate's verdict for one candidate order
type Assessment struct {
	Approved    bool
	Reason      string
	FinalAmount float64
}

// Gate composes position sizing, martingale sequencing and account-level
// risk checks into a single admit/reject decision. It owns the
// AccountRiskState and is its only writer.
type Gate struct {
	mu         sync.Mutex
	cfg        config.Risk
	limits     map[string]models.BrokerLimits
	account    models.AccountRiskState
	sequencer  *MartingaleSequencer
	openAmount map[string]openTrade // order id -> channel/asset/amount
	logger     zerolog.Logger
}

type openTrade struct {
	channelID string
	asset     string
	amount    float64
}

// NewGate creates a risk gate with a fresh account state
func NewGate(cfg config.Risk, limits map[string]models.BrokerLimits, initialBalance float64) *Gate {
	return &Gate{
		cfg:    cfg,
		limits: limits,
		account: models.AccountRiskState{
			Balance:         initialBalance,
			MaxDailyBalance: initialBalance,
			OpenTrades:      make(map[string]struct{}),
			Day:             models.UTCDay(time.Now()),
		},
		sequencer:  NewMartingaleSequencer(cfg.Martingale.Multipliers, cfg.Martingale.MaxLevels),
		openAmount: make(map[string]openTrade),
		logger:     log.With().Str("component", "risk_gate").Logger(),
	}
}

// Sequencer exposes the gate's martingale sequencer
func (g *Gate) Sequencer() *MartingaleSequencer {
	return g.sequencer
}

// Assess runs the linear risk checklist for a candidate order. It is a pure
// decision: a rejected candidate is not queued for retry. The martingale
// flag says whether the candidate's channel has recovery staking enabled.
func (g *Gate) Assess(params *models.TradeParameters, channelID string, martingale bool) Assessment {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(time.Now())

	limits, haveLimits := g.limits[params.Broker]

	// 1. parameter validity
	if params.Action != models.ActionCall && params.Action != models.ActionPut {
		return reject(ReasonInvalidParams)
	}
	if params.Asset == "" || params.Amount <= 0 {
		return reject(ReasonInvalidParams)
	}
	if haveLimits && (params.ExpirationSeconds < limits.MinExpiration || params.ExpirationSeconds > limits.MaxExpiration) {
		return reject(ReasonInvalidParams)
	}

	// 2. balance
	if g.account.Balance <= 0 {
		return reject(ReasonNoBalance)
	}

	// 3. confidence threshold
	if params.Confidence < g.cfg.ConfidenceThreshold {
		return reject(ReasonLowConfidence)
	}

	// 4. daily loss limit against the high-water mark
	if g.account.DailyPnL < -(g.cfg.MaxDailyLossPct / 100 * g.account.MaxDailyBalance) {
		return reject(ReasonDailyLossLimit)
	}

	// 5. concurrency
	if len(g.account.OpenTrades) >= g.cfg.MaxConcurrentTrades {
		return reject(ReasonMaxConcurrent)
	}

	// 6. sizing, continuing an active recovery sequence when enabled
	base := params.Amount
	if g.cfg.Martingale.Enabled && martingale && g.sequencer.Active(channelID, params.Asset) {
		base = g.sequencer.StakeFor(channelID, params.Asset, base, g.account.Balance)
	}
	finalAmount := Size(base, params.Confidence, g.account.Balance, g.cfg)

	// 7. post-sizing re-check; the tightest cap wins
	if finalAmount <= 0 || finalAmount > g.account.Balance || finalAmount > g.cfg.MaxTradeAmount {
		return reject(ReasonSizedTooLarge)
	}
	if haveLimits && (finalAmount < limits.MinAmount || finalAmount > limits.MaxAmount) {
		return reject(ReasonSizedTooLarge)
	}

	return Assessment{Approved: true, FinalAmount: finalAmount}
}

func reject(reason string) Assessment {
	return Assessment{Reason: reason}
}

// Reserve marks an approved order as open. Call after the broker accepted it.
func (g *Gate) Reserve(order *models.TradeOrder) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.account.OpenTrades[order.ID] = struct{}{}
	g.openAmount[order.ID] = openTrade{
		channelID: order.ChannelID,
		asset:     order.Params.Asset,
		amount:    order.Params.Amount,
	}
}

// RecordOutcome folds a closed trade back into account and martingale state
func (g *Gate) RecordOutcome(orderID string, outcome *models.TradeOutcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(time.Now())

	open, known := g.openAmount[orderID]
	delete(g.account.OpenTrades, orderID)
	delete(g.openAmount, orderID)

	g.account.Balance += outcome.Profit
	g.account.DailyPnL += outcome.Profit
	g.account.DailyTrades++
	if g.account.Balance > g.account.MaxDailyBalance {
		g.account.MaxDailyBalance = g.account.Balance
	}
	if outcome.Profit > 0 {
		g.account.RealizedWins++
	} else if outcome.Profit < 0 {
		g.account.RealizedLosses++
	}

	if known {
		g.sequencer.RecordOutcome(open.channelID, open.asset, open.amount, outcome.Profit)
	}

	g.logger.Info().
		Str("order_id", orderID).
		Float64("profit", outcome.Profit).
		Float64("balance", g.account.Balance).
		Float64("daily_pnl", g.account.DailyPnL).
		Msg("Trade outcome recorded")
}

// rollover resets the daily counters on UTC-day change. The high-water mark
// and the open-trade set survive the rollover. Caller holds the lock.
func (g *Gate) rollover(now time.Time) {
	day := models.UTCDay(now)
	if day == g.account.Day {
		return
	}
	g.account.Day = day
	g.account.DailyPnL = 0
	g.account.DailyTrades = 0
}

// Account returns a copy of the current account risk state
func (g *Gate) Account() models.AccountRiskState {
	g.mu.Lock()
	defer g.mu.Unlock()

	state := g.account
	state.OpenTrades = make(map[string]struct{}, len(g.account.OpenTrades))
	for id := range g.account.OpenTrades {
		state.OpenTrades[id] = struct{}{}
	}
	return state
}

// SetBalance replaces the tracked balance, e.g. after a broker sync
func (g *Gate) SetBalance(balance float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.account.Balance = balance
	if balance > g.account.MaxDailyBalance {
		g.account.MaxDailyBalance = balance
	}
}

// RestoreAccount loads a previously persisted account state
func (g *Gate) RestoreAccount(state models.AccountRiskState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if state.OpenTrades == nil {
		state.OpenTrades = make(map[string]struct{})
	}
	g.account = state
}

// UpdateConfig swaps the risk configuration at runtime
func (g *Gate) UpdateConfig(cfg config.Risk) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
}
