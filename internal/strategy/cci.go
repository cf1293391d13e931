package strategy

import (
	"fmt"
	"math"

	"signalflow/models"
)

// CCI is the Commodity Channel Index reversal technique: deep oversold
// readings suggest a CALL, deep overbought readings a PUT.
type CCI struct {
	period    int
	threshold float64
}

// NewCCI creates the canonical CCI evaluator
func NewCCI(period int, threshold float64) *CCI {
	return &CCI{period: period, threshold: threshold}
}

func (c *CCI) Name() string { return "cci" }

func (c *CCI) Evaluate(window []Candle) Evaluation {
	if len(window) < c.period {
		return Evaluation{Reasoning: "insufficient data"}
	}

	recent := window[len(window)-c.period:]

	typical := make([]float64, len(recent))
	var sum float64
	for i, candle := range recent {
		typical[i] = (candle.High + candle.Low + candle.Close) / 3
		sum += typical[i]
	}
	sma := sum / float64(len(typical))

	var meanDev float64
	for _, tp := range typical {
		meanDev += math.Abs(tp - sma)
	}
	meanDev /= float64(len(typical))
	if meanDev == 0 {
		return Evaluation{Reasoning: "flat market"}
	}

	cci := (typical[len(typical)-1] - sma) / (0.015 * meanDev)

	switch {
	case cci <= -c.threshold:
		return Evaluation{
			Signal:     models.ActionCall,
			Confidence: reversalConfidence(cci, c.threshold),
			Reasoning:  fmt.Sprintf("CCI %.1f oversold", cci),
		}
	case cci >= c.threshold:
		return Evaluation{
			Signal:     models.ActionPut,
			Confidence: reversalConfidence(cci, c.threshold),
			Reasoning:  fmt.Sprintf("CCI %.1f overbought", cci),
		}
	default:
		return Evaluation{Reasoning: fmt.Sprintf("CCI %.1f neutral", cci)}
	}
}

// reversalConfidence scales with how far past the threshold the reading is,
// saturating at twice the threshold.
func reversalConfidence(cci, threshold float64) int {
	excess := math.Abs(cci) - threshold
	conf := 60 + excess/threshold*40
	if conf > 100 {
		conf = 100
	}
	return int(conf)
}
