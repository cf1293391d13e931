package risk

import (
	"testing"
	"time"

	"signalflow/models"
)

func validParams() *models.TradeParameters {
	return &models.TradeParameters{
		Action:            models.ActionCall,
		Asset:             "EUR/USD",
		Amount:            15,
		ExpirationSeconds: 300,
		Broker:            "quotex",
		Confidence:        85,
	}
}

func openOrder(id string, amount float64) *models.TradeOrder {
	params := validParams()
	params.Amount = amount
	return &models.TradeOrder{
		ID:        id,
		ChannelID: "c1",
		Params:    *params,
		CreatedAt: time.Now().UTC(),
	}
}

func TestAssessChecklistOrder(t *testing.T) {
	// Zero balance AND invalid action: the earlier check must win.
	g := NewGate(testRiskConfig(), nil, 0)

	params := validParams()
	params.Action = models.ActionNone
	if a := g.Assess(params, "c1", false); a.Approved || a.Reason != ReasonInvalidParams {
		t.Errorf("Assess = %+v, want rejection %q", a, ReasonInvalidParams)
	}

	// With the params fixed the balance check is next in line.
	if a := g.Assess(validParams(), "c1", false); a.Approved || a.Reason != ReasonNoBalance {
		t.Errorf("Assess = %+v, want rejection %q", a, ReasonNoBalance)
	}
}

func TestAssessInvalidParams(t *testing.T) {
	limits := map[string]models.BrokerLimits{
		"quotex": {MinAmount: 1, MaxAmount: 1000, MinExpiration: 60, MaxExpiration: 3600},
	}
	g := NewGate(testRiskConfig(), limits, 1000)

	tests := []struct {
		name   string
		mutate func(*models.TradeParameters)
	}{
		{"no action", func(p *models.TradeParameters) { p.Action = models.ActionNone }},
		{"no asset", func(p *models.TradeParameters) { p.Asset = "" }},
		{"zero amount", func(p *models.TradeParameters) { p.Amount = 0 }},
		{"expiration below broker minimum", func(p *models.TradeParameters) { p.ExpirationSeconds = 30 }},
		{"expiration above broker maximum", func(p *models.TradeParameters) { p.ExpirationSeconds = 7200 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validParams()
			tt.mutate(params)
			if a := g.Assess(params, "c1", false); a.Approved || a.Reason != ReasonInvalidParams {
				t.Errorf("Assess = %+v, want rejection %q", a, ReasonInvalidParams)
			}
		})
	}
}

func TestAssessLowConfidence(t *testing.T) {
	g := NewGate(testRiskConfig(), nil, 1000)

	params := validParams()
	params.Confidence = 69
	if a := g.Assess(params, "c1", false); a.Approved || a.Reason != ReasonLowConfidence {
		t.Errorf("Assess = %+v, want rejection %q", a, ReasonLowConfidence)
	}
}

func TestAssessDailyLossLimit(t *testing.T) {
	g := NewGate(testRiskConfig(), nil, 1000)

	// Lose 60% of the high-water mark in one day.
	g.Reserve(openOrder("o1", 15))
	g.RecordOutcome("o1", &models.TradeOutcome{TradeID: "o1", Profit: -600})

	if a := g.Assess(validParams(), "c1", false); a.Approved || a.Reason != ReasonDailyLossLimit {
		t.Errorf("Assess = %+v, want rejection %q", a, ReasonDailyLossLimit)
	}

	state := g.Account()
	if state.Balance != 400 || state.DailyPnL != -600 {
		t.Errorf("account = %+v, want balance 400 and daily PnL -600", state)
	}
	if state.RealizedLosses != 1 || state.RealizedWins != 0 {
		t.Errorf("realized counters = %d wins / %d losses, want 0/1", state.RealizedWins, state.RealizedLosses)
	}
}

func TestDailyRollover(t *testing.T) {
	g := NewGate(testRiskConfig(), nil, 1000)
	g.RestoreAccount(models.AccountRiskState{
		Balance:         1000,
		MaxDailyBalance: 1000,
		DailyPnL:        -900,
		DailyTrades:     12,
		Day:             "2020-01-01",
	})

	// Yesterday's drawdown must not block today's first trade.
	if a := g.Assess(validParams(), "c1", false); !a.Approved {
		t.Fatalf("Assess after rollover rejected: %+v", a)
	}
	state := g.Account()
	if state.DailyPnL != 0 || state.DailyTrades != 0 {
		t.Errorf("daily counters not reset: %+v", state)
	}
	if state.MaxDailyBalance != 1000 {
		t.Errorf("high-water mark = %.0f, should survive rollover", state.MaxDailyBalance)
	}
}

func TestAssessMaxConcurrent(t *testing.T) {
	g := NewGate(testRiskConfig(), nil, 1000)

	for _, id := range []string{"o1", "o2", "o3"} {
		g.Reserve(openOrder(id, 15))
	}
	if a := g.Assess(validParams(), "c1", false); a.Approved || a.Reason != ReasonMaxConcurrent {
		t.Errorf("Assess = %+v, want rejection %q", a, ReasonMaxConcurrent)
	}

	// Closing one trade frees a slot.
	g.RecordOutcome("o1", &models.TradeOutcome{TradeID: "o1", Profit: 12})
	if a := g.Assess(validParams(), "c1", false); !a.Approved {
		t.Errorf("Assess after close rejected: %+v", a)
	}
}

func TestAssessBrokerCapTightest(t *testing.T) {
	// Sizing lands under the broker's minimum stake, so the broker cap rejects.
	limits := map[string]models.BrokerLimits{
		"quotex": {MinAmount: 50, MaxAmount: 500, MinExpiration: 60, MaxExpiration: 3600},
	}
	g := NewGate(testRiskConfig(), limits, 1000)

	// 15 * 0.85 = 12.75, well below the broker minimum of 50.
	if a := g.Assess(validParams(), "c1", false); a.Approved || a.Reason != ReasonSizedTooLarge {
		t.Errorf("Assess = %+v, want rejection %q", a, ReasonSizedTooLarge)
	}
}

func TestAssessApproves(t *testing.T) {
	g := NewGate(testRiskConfig(), nil, 1000)

	a := g.Assess(validParams(), "c1", false)
	if !a.Approved {
		t.Fatalf("Assess rejected: %+v", a)
	}
	// 15 * 0.85 = 12.75, under the 2% per-trade cap of 20.
	if a.FinalAmount != 12.75 {
		t.Errorf("FinalAmount = %.2f, want 12.75", a.FinalAmount)
	}
}

func TestAssessMartingaleContinuation(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxRiskPerTrade = 10
	g := NewGate(cfg, nil, 1000)

	// One losing trade of 10 opens a recovery sequence for c1/EUR-USD.
	g.Reserve(openOrder("o1", 10))
	g.RecordOutcome("o1", &models.TradeOutcome{TradeID: "o1", Profit: -10})

	params := validParams()
	params.Amount = 10
	params.Confidence = 100

	a := g.Assess(params, "c1", true)
	if !a.Approved {
		t.Fatalf("Assess rejected: %+v", a)
	}
	if a.FinalAmount != 20 {
		t.Errorf("FinalAmount = %.2f, want escalated stake 20", a.FinalAmount)
	}

	// The same candidate without the martingale flag stays at base sizing.
	b := g.Assess(params, "c1", false)
	if !b.Approved || b.FinalAmount != 10 {
		t.Errorf("non-martingale FinalAmount = %.2f, want 10", b.FinalAmount)
	}
}
