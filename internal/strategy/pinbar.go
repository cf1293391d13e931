package strategy

import (
	"math"

	"signalflow/models"
)

// PinBar detects hammer and shooting-star rejection candles on the most
// recent bar: a long lower wick rejects lower prices (CALL), a long upper
// wick rejects higher ones (PUT).
type PinBar struct{}

// NewPinBar creates the canonical pin-bar evaluator
func NewPinBar() *PinBar {
	return &PinBar{}
}

func (p *PinBar) Name() string { return "pinbar" }

func (p *PinBar) Evaluate(window []Candle) Evaluation {
	if len(window) == 0 {
		return Evaluation{Reasoning: "insufficient data"}
	}

	c := window[len(window)-1]
	body := math.Abs(c.Close - c.Open)
	upperWick := c.High - math.Max(c.Open, c.Close)
	lowerWick := math.Min(c.Open, c.Close) - c.Low

	if body == 0 {
		body = (c.High - c.Low) * 0.01 // doji guard
	}
	if body <= 0 {
		return Evaluation{Reasoning: "degenerate candle"}
	}

	if lowerWick > body*2 && upperWick < body*0.5 {
		return Evaluation{
			Signal:     models.ActionCall,
			Confidence: wickConfidence(lowerWick, body),
			Reasoning:  "hammer rejection",
		}
	}
	if upperWick > body*2 && lowerWick < body*0.5 {
		return Evaluation{
			Signal:     models.ActionPut,
			Confidence: wickConfidence(upperWick, body),
			Reasoning:  "shooting star rejection",
		}
	}
	return Evaluation{Reasoning: "no rejection wick"}
}

// wickConfidence grows with the wick-to-body ratio, saturating at a 5x wick
func wickConfidence(wick, body float64) int {
	ratio := wick / body
	conf := 50 + (ratio-2)/3*40
	if conf > 90 {
		conf = 90
	}
	if conf < 50 {
		conf = 50
	}
	return int(conf)
}
