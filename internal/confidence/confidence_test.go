package confidence

import (
	"strings"
	"testing"

	"signalflow/models"
)

func fullFields() models.SignalFields {
	return models.SignalFields{
		IsSignal:          true,
		Action:            models.ActionCall,
		Asset:             "EUR/USD",
		Timeframe:         "5min",
		ExpirationSeconds: 300,
		Broker:            "quotex",
		Confidence:        85,
	}
}

func TestScoreBounds(t *testing.T) {
	m := New(10, 70, false)

	tests := []struct {
		name   string
		fields models.SignalFields
		text   string
	}{
		{"everything maxed", fullFields(), "CALL EUR/USD 5min"},
		{"everything empty", models.SignalFields{IsSignal: true}, strings.Repeat("word ", 40)},
		{"zero extractor confidence", models.SignalFields{IsSignal: true, Confidence: 0}, "short"},
		{"max extractor confidence", func() models.SignalFields {
			f := fullFields()
			f.Confidence = 100
			return f
		}(), "CALL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Score("c1", tt.fields, tt.text)
			if got < 0 || got > 100 {
				t.Errorf("Score = %d, out of [0,100]", got)
			}
		})
	}
}

func TestScoreBlend(t *testing.T) {
	m := New(10, 70, false)

	// 85 base + 20 full completeness + 0 history + 10 clarity = 115, clamped
	if got := m.Score("fresh", fullFields(), "CALL EUR/USD 5min quotex"); got != 100 {
		t.Errorf("Score = %d, want 100", got)
	}

	// An explicit zero confidence is honored, not replaced with a default.
	bare := models.SignalFields{IsSignal: true, Action: models.ActionCall, Asset: "EUR/USD", Confidence: 0}
	// 0 + 20*0.6 + 0 + 10 = 22
	if got := m.Score("fresh", bare, "CALL EUR/USD"); got != 22 {
		t.Errorf("Score = %d, want 22", got)
	}
}

func TestCompletenessMonotonic(t *testing.T) {
	fields := models.SignalFields{IsSignal: true}
	prev := completenessBonus(fields)

	steps := []func(*models.SignalFields){
		func(f *models.SignalFields) { f.Action = models.ActionCall },
		func(f *models.SignalFields) { f.Asset = "EUR/USD" },
		func(f *models.SignalFields) { f.Timeframe = "5min" },
		func(f *models.SignalFields) { f.ExpirationSeconds = 300 },
		func(f *models.SignalFields) { f.Broker = "quotex" },
	}
	for i, step := range steps {
		step(&fields)
		bonus := completenessBonus(fields)
		if bonus <= prev {
			t.Fatalf("step %d: bonus %.2f did not grow from %.2f", i, bonus, prev)
		}
		prev = bonus
	}
	if prev != 20 {
		t.Errorf("full completeness bonus = %.2f, want 20", prev)
	}
}

func TestHistoricalBonusGating(t *testing.T) {
	m := New(10, 70, false)

	// Nine recorded signals stay below the minimum, history contributes nothing.
	for i := 0; i < 9; i++ {
		m.RecordOutcome("c1", 90, true)
	}
	if got := m.historicalBonus("c1"); got != 0 {
		t.Errorf("bonus below minimum history = %.2f, want 0", got)
	}

	// The tenth signal unlocks history. All successful, win rate 100 -> +10.
	m.RecordOutcome("c1", 90, true)
	if got := m.historicalBonus("c1"); got != 10 {
		t.Errorf("bonus at 100%% win rate = %.2f, want 10", got)
	}
}

func TestHistoricalBonusMidRange(t *testing.T) {
	m := New(10, 70, false)

	// 15 of 20 successful: win rate 75 -> (0.75-0.5)*20 = +5
	for i := 0; i < 20; i++ {
		m.RecordOutcome("c2", 80, i < 15)
	}
	if got := m.historicalBonus("c2"); got != 5 {
		t.Errorf("bonus at 75%% win rate = %.2f, want 5", got)
	}

	// 75 base + 20 completeness + 5 history + 10 clarity = 110, clamped to 100.
	f := fullFields()
	f.Confidence = 75
	if got := m.Score("c2", f, "CALL EUR/USD 5min"); got != 100 {
		t.Errorf("Score = %d, want 100", got)
	}
	// With a sparse message the blend stays inside the range: 75 + 12 + 5 - 5 = 87.
	sparse := models.SignalFields{IsSignal: true, Action: models.ActionCall, Asset: "EUR/USD", Confidence: 75}
	if got := m.Score("c2", sparse, strings.Repeat("word ", 35)); got != 87 {
		t.Errorf("Score = %d, want 87", got)
	}
}

func TestClarityAdjustment(t *testing.T) {
	tests := []struct {
		words int
		want  float64
	}{
		{3, 10},
		{9, 10},
		{10, 5},
		{19, 5},
		{20, 0},
		{29, 0},
		{30, -5},
		{80, -5},
	}
	for _, tt := range tests {
		text := strings.TrimSpace(strings.Repeat("word ", tt.words))
		if got := clarityAdjustment(text); got != tt.want {
			t.Errorf("clarityAdjustment(%d words) = %.0f, want %.0f", tt.words, got, tt.want)
		}
	}
}

func TestRecordOutcomeAverages(t *testing.T) {
	m := New(10, 70, false)

	m.RecordOutcome("c3", 80, true)
	m.RecordOutcome("c3", 60, false)
	m.RecordOutcome("c3", 70, true)

	rec := m.Channel("c3")
	perf := rec.Performance
	if perf.TotalSignals != 3 || perf.SuccessfulSignals != 2 {
		t.Fatalf("counts = %d/%d, want 3/2", perf.TotalSignals, perf.SuccessfulSignals)
	}
	wantRate := 2.0 / 3.0 * 100
	if diff := perf.WinRate - wantRate; diff > 0.001 || diff < -0.001 {
		t.Errorf("WinRate = %.4f, want %.4f", perf.WinRate, wantRate)
	}
	if perf.AvgConfidence != 70 {
		t.Errorf("AvgConfidence = %.2f, want 70", perf.AvgConfidence)
	}
	if rec.LastSignal.IsZero() {
		t.Error("LastSignal not set")
	}
}

func TestLookupDoesNotCreate(t *testing.T) {
	m := New(10, 70, false)

	if _, ok := m.Lookup("never-signalled"); ok {
		t.Fatal("Lookup reported a record for an unknown channel")
	}
	if n := len(m.Export()); n != 0 {
		t.Fatalf("Lookup created a record: %d channels exported", n)
	}

	m.RecordOutcome("never-signalled", 80, true)
	rec, ok := m.Lookup("never-signalled")
	if !ok || rec.Performance.TotalSignals != 1 {
		t.Errorf("Lookup after RecordOutcome = (%+v, %v), want existing record", rec, ok)
	}
}

func TestChannelDefaults(t *testing.T) {
	m := New(10, 65, true)

	rec := m.Channel("brand-new")
	if rec.MinConfidence != 65 {
		t.Errorf("MinConfidence = %d, want threshold default 65", rec.MinConfidence)
	}
	if !rec.MartingaleEnabled {
		t.Error("MartingaleEnabled should follow the model default")
	}
	if rec.FirstSeen.IsZero() {
		t.Error("FirstSeen not set")
	}
}

func TestExportRestore(t *testing.T) {
	m := New(10, 70, false)
	m.SetChannelSettings("c4", "VIP Signals", "quotex", 80, true)
	m.RecordOutcome("c4", 85, true)

	restored := New(10, 70, false)
	restored.Restore(m.Export())

	rec := restored.Channel("c4")
	if rec.Name != "VIP Signals" || rec.Broker != "quotex" || rec.MinConfidence != 80 || !rec.MartingaleEnabled {
		t.Errorf("restored record mismatch: %+v", rec)
	}
	if rec.Performance.TotalSignals != 1 {
		t.Errorf("TotalSignals = %d, want 1", rec.Performance.TotalSignals)
	}
}
