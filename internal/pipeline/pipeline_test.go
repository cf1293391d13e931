package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"signalflow/config"
	"signalflow/internal/confidence"
	"signalflow/internal/extractor"
	"signalflow/internal/risk"
	"signalflow/models"
)

type countingClient struct {
	calls    int32
	response string
	err      error
}

func (c *countingClient) Complete(ctx context.Context, prompt string) (string, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.response, c.err
}

type fakeSink struct {
	orders  []*models.TradeOrder
	outcome *models.TradeOutcome
	err     error
}

func (s *fakeSink) PlaceOrder(ctx context.Context, order *models.TradeOrder) (*models.TradeOutcome, error) {
	s.orders = append(s.orders, order)
	if s.err != nil {
		return nil, s.err
	}
	return s.outcome, nil
}

func testConfig() *config.Config {
	return &config.Config{
		SupportedAssets:      []string{"EUR/USD", "GBP/USD"},
		SupportedTimeframes:  []string{"30s", "1min", "5min", "15min"},
		SupportedBrokers:     []string{"quotex", "pocketoption"},
		DefaultBroker:        "quotex",
		SignalKeywords:       []string{"call", "put", "buy", "sell", "entry"},
		MinHistoricalSignals: 10,
		CacheTTL:             time.Minute,
		CacheSize:            100,
		Workers:              2,
		QueueSize:            16,
		InitialBalance:       1000,
		Risk: config.Risk{
			ConfidenceThreshold: 70,
			MaxTradeAmount:      100,
			MaxRiskPerTrade:     5,
			AccountRiskLimit:    10,
			MaxDailyLossPct:     50,
			MaxConcurrentTrades: 3,
			Martingale: config.Martingale{
				Enabled:     true,
				MaxLevels:   9,
				Multipliers: []float64{2, 2, 2, 2, 2, 2, 2, 2, 2},
			},
		},
	}
}

func newTestPipeline(cfg *config.Config, client models.CompletionClient, sink models.BrokerSink) *Pipeline {
	ext := extractor.New(client, extractor.Options{
		Assets:     cfg.SupportedAssets,
		Timeframes: cfg.SupportedTimeframes,
		Brokers:    cfg.SupportedBrokers,
		Keywords:   cfg.SignalKeywords,
	})
	model := confidence.New(cfg.MinHistoricalSignals, cfg.Risk.ConfidenceThreshold, cfg.Risk.Martingale.Enabled)
	gate := risk.NewGate(cfg.Risk, cfg.BrokerLimits, cfg.InitialBalance)
	return New(cfg, ext, model, gate, sink, nil)
}

func msg(id, text string) models.Message {
	return models.Message{
		ChannelID: "c1",
		MessageID: id,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
}

func TestProcessApprovesCleanSignal(t *testing.T) {
	client := &countingClient{
		response: `{"is_signal": true, "action": "CALL", "asset": "EUR/USD", "timeframe": "5min", "expiration_seconds": 300, "confidence": 85, "reasoning": "clear"}`,
	}
	p := newTestPipeline(testConfig(), client, nil)

	dec, err := p.Process(context.Background(), msg("m1", "EUR/USD CALL 5min"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !dec.Approved() {
		t.Fatalf("decision rejected: %+v", dec.Rejected)
	}

	order := dec.Order
	if order.ChannelID != "c1" {
		t.Errorf("ChannelID = %q, want c1", order.ChannelID)
	}
	if order.Params.Action != models.ActionCall || order.Params.Asset != "EUR/USD" {
		t.Errorf("params = %+v", order.Params)
	}
	if order.Params.Broker != "quotex" {
		t.Errorf("Broker = %q, want default quotex", order.Params.Broker)
	}
	if order.Params.ExpirationSeconds != 300 {
		t.Errorf("ExpirationSeconds = %d, want 300", order.Params.ExpirationSeconds)
	}
	if order.Params.Amount <= 0 {
		t.Errorf("Amount = %.2f, want positive sized stake", order.Params.Amount)
	}
	if dec.Analysis == nil || dec.Analysis.Confidence < 70 {
		t.Errorf("analysis = %+v, want blended confidence at or above threshold", dec.Analysis)
	}
}

func TestProcessRejectsNonSignal(t *testing.T) {
	client := &countingClient{
		response: `{"is_signal": false, "confidence": 0, "reasoning": "chatter"}`,
	}
	p := newTestPipeline(testConfig(), client, nil)

	dec, err := p.Process(context.Background(), msg("m1", "good morning traders"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if dec.Approved() {
		t.Fatal("chatter produced an order")
	}
	if dec.Rejected.Reason != ReasonNotASignal {
		t.Errorf("Reason = %q, want %q", dec.Rejected.Reason, ReasonNotASignal)
	}
	// Non-signals never register the channel or touch account state.
	if n := len(p.model.Export()); n != 0 {
		t.Errorf("chatter registered %d channel records, want 0", n)
	}
}

func TestProcessRejectsLowConfidence(t *testing.T) {
	client := &countingClient{
		response: `{"is_signal": true, "action": "PUT", "confidence": 20, "reasoning": "weak"}`,
	}
	p := newTestPipeline(testConfig(), client, nil)

	// A long narrative keeps completeness and clarity from rescuing the score.
	text := "possible put setup forming maybe worth watching over the next several sessions depending on how the london open treats the pair and whether momentum holds through the news window later today"
	dec, err := p.Process(context.Background(), msg("m1", text))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if dec.Approved() {
		t.Fatal("weak signal produced an order")
	}
	if dec.Rejected.Reason != ReasonLowConfidence {
		t.Errorf("Reason = %q, want %q", dec.Rejected.Reason, ReasonLowConfidence)
	}
	// The signal still counts toward channel history.
	if rec := p.model.Channel("c1"); rec.Performance.TotalSignals != 1 {
		t.Errorf("TotalSignals = %d, want 1", rec.Performance.TotalSignals)
	}
}

func TestProcessCachesDecision(t *testing.T) {
	client := &countingClient{
		response: `{"is_signal": true, "action": "CALL", "asset": "EUR/USD", "timeframe": "5min", "confidence": 85, "reasoning": "clear"}`,
	}
	p := newTestPipeline(testConfig(), client, nil)

	m := msg("m1", "EUR/USD CALL 5min")
	first, err := p.Process(context.Background(), m)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// The identical message is answered from the cache: same decision,
	// no second model call, no duplicate history entry.
	second, err := p.Process(context.Background(), m)
	if err != nil {
		t.Fatalf("Process (cached): %v", err)
	}
	if second != first {
		t.Error("cached call returned a different decision")
	}
	if n := atomic.LoadInt32(&client.calls); n != 1 {
		t.Errorf("model calls = %d, want 1", n)
	}
	if rec := p.model.Channel("c1"); rec.Performance.TotalSignals != 1 {
		t.Errorf("TotalSignals = %d, duplicate must not re-count", rec.Performance.TotalSignals)
	}

	// A different message misses the cache.
	if _, err := p.Process(context.Background(), msg("m2", "GBP/USD PUT 1min")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n := atomic.LoadInt32(&client.calls); n != 2 {
		t.Errorf("model calls = %d, want 2", n)
	}
}

func TestProcessCancelledContext(t *testing.T) {
	p := newTestPipeline(testConfig(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Process(ctx, msg("m1", "CALL EUR/USD")); err == nil {
		t.Fatal("cancelled context should be a pipeline error, not a rejection")
	}
}

func TestSubmitFeedsOutcomeBack(t *testing.T) {
	sink := &fakeSink{outcome: &models.TradeOutcome{Success: true, TradeID: "t1", Profit: 17}}
	p := newTestPipeline(testConfig(), nil, sink)

	order := &models.TradeOrder{
		ID:        "c1-m1-1",
		ChannelID: "c1",
		Params:    models.TradeParameters{Action: models.ActionCall, Asset: "EUR/USD", Amount: 20, Confidence: 85},
		CreatedAt: time.Now().UTC(),
	}
	outcome, err := p.Submit(context.Background(), order)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if outcome.Profit != 17 {
		t.Errorf("Profit = %.2f, want 17", outcome.Profit)
	}
	if len(sink.orders) != 1 || sink.orders[0].ID != "c1-m1-1" {
		t.Errorf("sink orders = %+v", sink.orders)
	}

	state := p.gate.Account()
	if state.Balance != 1017 {
		t.Errorf("Balance = %.2f, want 1017", state.Balance)
	}
	if len(state.OpenTrades) != 0 {
		t.Errorf("OpenTrades = %d, want closed", len(state.OpenTrades))
	}
	if state.RealizedWins != 1 {
		t.Errorf("RealizedWins = %d, want 1", state.RealizedWins)
	}
}

func TestSubmitSinkErrorKeepsReservation(t *testing.T) {
	sink := &fakeSink{err: errors.New("connection reset")}
	p := newTestPipeline(testConfig(), nil, sink)

	order := &models.TradeOrder{
		ID:        "c1-m1-2",
		ChannelID: "c1",
		Params:    models.TradeParameters{Action: models.ActionCall, Asset: "EUR/USD", Amount: 20, Confidence: 85},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := p.Submit(context.Background(), order); err == nil {
		t.Fatal("sink failure should surface as an error")
	}

	// The trade may still be live at the broker, so it stays reserved.
	state := p.gate.Account()
	if _, open := state.OpenTrades["c1-m1-2"]; !open {
		t.Error("failed submit should leave the order reserved")
	}
	if state.Balance != 1000 {
		t.Errorf("Balance = %.2f, want untouched 1000", state.Balance)
	}
}

func TestSubmitWithoutSink(t *testing.T) {
	p := newTestPipeline(testConfig(), nil, nil)
	order := &models.TradeOrder{ID: "c1-m1-3", ChannelID: "c1"}
	if _, err := p.Submit(context.Background(), order); err == nil {
		t.Fatal("dry-run pipeline must refuse to submit")
	}
}

func TestWorkerOrderingPerChannel(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 4
	p := newTestPipeline(cfg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	// Ten distinct messages from one channel, relying on the fallback
	// extractor. All land on the same worker, so decisions for the channel
	// come back in arrival order.
	const n = 10
	for i := 0; i < n; i++ {
		m := models.Message{
			ChannelID: "ordered",
			MessageID: string(rune('a' + i)),
			Text:      "call EUR/USD 5min entry",
			Timestamp: int64(i),
		}
		if err := p.Enqueue(ctx, m); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	for i := 0; i < n; i++ {
		select {
		case dec := <-p.Decisions():
			if dec == nil {
				t.Fatal("decision stream closed early")
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for decision %d", i)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
