package strategy

import (
	"fmt"

	"signalflow/models"
)

// RSI is the Relative Strength Index reversal technique: an oversold reading
// suggests a CALL, an overbought one a PUT.
type RSI struct {
	period     int
	oversold   float64
	overbought float64
}

// NewRSI creates the canonical RSI evaluator
func NewRSI(period int, oversold, overbought float64) *RSI {
	return &RSI{period: period, oversold: oversold, overbought: overbought}
}

func (r *RSI) Name() string { return "rsi" }

func (r *RSI) Evaluate(window []Candle) Evaluation {
	if len(window) < r.period+1 {
		return Evaluation{Reasoning: "insufficient data"}
	}

	var gains, losses float64
	for i := 1; i <= r.period; i++ {
		change := window[i].Close - window[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(r.period)
	avgLoss := losses / float64(r.period)

	// Wilder smoothing over the remainder of the window
	for i := r.period + 1; i < len(window); i++ {
		change := window[i].Close - window[i-1].Close
		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(r.period-1) + gain) / float64(r.period)
		avgLoss = (avgLoss*float64(r.period-1) + loss) / float64(r.period)
	}

	rsi := 100.0
	if avgLoss > 0 {
		rs := avgGain / avgLoss
		rsi = 100.0 - 100.0/(1.0+rs)
	}

	switch {
	case rsi <= r.oversold:
		return Evaluation{
			Signal:     models.ActionCall,
			Confidence: bandConfidence(r.oversold - rsi),
			Reasoning:  fmt.Sprintf("RSI %.1f oversold", rsi),
		}
	case rsi >= r.overbought:
		return Evaluation{
			Signal:     models.ActionPut,
			Confidence: bandConfidence(rsi - r.overbought),
			Reasoning:  fmt.Sprintf("RSI %.1f overbought", rsi),
		}
	default:
		return Evaluation{Reasoning: fmt.Sprintf("RSI %.1f neutral", rsi)}
	}
}

// bandConfidence scales with how deep the reading sits inside the band,
// saturating 20 points past the boundary.
func bandConfidence(depth float64) int {
	conf := 60 + depth/20*40
	if conf > 100 {
		conf = 100
	}
	return int(conf)
}
