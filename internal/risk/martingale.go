package risk

import (
	"math"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"signalflow/models"
)

// NextStake computes the stake for the given recovery step by walking the
// per-step multiplier table cumulatively from the base amount. A step past
// the end of the table returns 2x the base amount; that mirrors the legacy
// behavior and silently diverges from the configured table shape.
// The result never exceeds 10x the base amount nor half the balance.
func NextStake(baseAmount float64, step int, multipliers []float64, balance float64) float64 {
	var stake float64
	if step > len(multipliers) {
		stake = 2 * baseAmount
	} else {
		stake = baseAmount
		for i := 0; i < step; i++ {
			stake *= multipliers[i]
		}
	}

	return capStake(stake, baseAmount, balance)
}

// capStake enforces the sequence ceiling: never more than 10x the base
// amount, never more than half the current balance.
func capStake(stake, baseAmount, balance float64) float64 {
	ceiling := math.Min(10*baseAmount, 0.5*balance)
	if stake > ceiling {
		stake = ceiling
	}
	return round2(stake)
}

// MartingaleSequencer tracks active recovery sequences, one per
// channel+asset pair. A loss escalates the step, a breakeven repeats the
// same stake, a win (or running past maxLevels) clears the sequence.
type MartingaleSequencer struct {
	mu          sync.Mutex
	sequences   map[string]*models.MartingaleState
	multipliers []float64
	maxLevels   int
	logger      zerolog.Logger
}

// NewMartingaleSequencer creates a sequencer
func NewMartingaleSequencer(multipliers []float64, maxLevels int) *MartingaleSequencer {
	return &MartingaleSequencer{
		sequences:   make(map[string]*models.MartingaleState),
		multipliers: multipliers,
		maxLevels:   maxLevels,
		logger:      log.With().Str("component", "martingale").Logger(),
	}
}

func sequenceKey(channelID, asset string) string {
	return channelID + "|" + asset
}

// StakeFor returns the stake for the next trade in this channel+asset
// sequence. Without an active sequence the base amount is returned as-is.
func (s *MartingaleSequencer) StakeFor(channelID, asset string, baseAmount, balance float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sequences[sequenceKey(channelID, asset)]
	if !ok {
		return baseAmount
	}
	if state.LastProfit == 0 && state.LastAmount > 0 {
		// breakeven: repeat the just-closed stake, do not escalate. The
		// ceiling still applies in case the balance has dropped since the
		// repeated stake was sized.
		return capStake(state.LastAmount, state.BaseAmount, balance)
	}
	return NextStake(state.BaseAmount, state.Step, s.multipliers, balance)
}

// Active reports whether a recovery sequence is running for the pair
func (s *MartingaleSequencer) Active(channelID, asset string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sequences[sequenceKey(channelID, asset)]
	return ok
}

// StepFor returns the current step of the pair's sequence, 0 when idle
func (s *MartingaleSequencer) StepFor(channelID, asset string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.sequences[sequenceKey(channelID, asset)]; ok {
		return state.Step
	}
	return 0
}

// RecordOutcome advances the pair's sequence from a closed trade
func (s *MartingaleSequencer) RecordOutcome(channelID, asset string, amount, profit float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sequenceKey(channelID, asset)
	state, ok := s.sequences[key]

	if profit > 0 {
		if ok {
			delete(s.sequences, key)
			s.logger.Debug().Str("key", key).Msg("Recovery sequence closed on win")
		}
		return
	}

	if !ok {
		state = &models.MartingaleState{BaseAmount: amount}
		s.sequences[key] = state
	}

	state.LastAmount = amount
	state.LastProfit = profit
	if profit < 0 {
		state.Step++
	}

	if state.Step >= s.maxLevels {
		delete(s.sequences, key)
		s.logger.Warn().Str("key", key).Int("max_levels", s.maxLevels).Msg("Recovery sequence exhausted")
	}
}

// Reset clears every active sequence
func (s *MartingaleSequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences = make(map[string]*models.MartingaleState)
}
