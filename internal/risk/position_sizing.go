package risk

import (
	"math"

	"signalflow/config"
)

// BaseAmountForConfidence is the stake table used when a caller supplies no
// explicit base amount.
func BaseAmountForConfidence(confidence int) float64 {
	switch {
	case confidence >= 90:
		return 25
	case confidence >= 80:
		return 20
	case confidence >= 70:
		return 15
	case confidence >= 60:
		return 10
	default:
		return 5
	}
}

// Size converts a base amount and confidence score into a concrete stake,
// applying confidence scaling and the per-trade, account-level and absolute
// ceilings. A non-positive balance always yields zero: the gate treats that
// as an outright rejection, never a zero-stake order.
func Size(baseAmount float64, confidence int, accountBalance float64, cfg config.Risk) float64 {
	if accountBalance <= 0 {
		return 0
	}
	if baseAmount <= 0 {
		baseAmount = BaseAmountForConfidence(confidence)
	}

	multiplier := float64(confidence) / 100
	if multiplier < 0.5 {
		multiplier = 0.5
	}
	if multiplier > 1.5 {
		multiplier = 1.5
	}

	amount := baseAmount * multiplier
	amount = math.Min(amount, cfg.MaxRiskPerTrade/100*accountBalance)
	amount = math.Min(amount, cfg.AccountRiskLimit/100*accountBalance)
	amount = math.Min(amount, cfg.MaxTradeAmount)

	amount = round2(amount)
	if amount < 1 {
		amount = 1
	}
	return amount
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
