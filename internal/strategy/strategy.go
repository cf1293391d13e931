package strategy

import (
	"fmt"
	"sort"
	"sync"

	"signalflow/models"
)

// Candle is one bar of the market window a technique evaluates
type Candle struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume,omitempty"`
}

// Evaluation is a technique's verdict for a market window
type Evaluation struct {
	Signal     models.Action `json:"signal"`
	Confidence int           `json:"confidence"` // 0-100
	Reasoning  string        `json:"reasoning"`
}

// Evaluator is a single trading technique. Each technique has exactly one
// canonical implementation, selected by name through the registry.
type Evaluator interface {
	Name() string
	Evaluate(window []Candle) Evaluation
}

// Registry holds the canonical evaluator per technique name
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[string]Evaluator)}
}

// Register adds an evaluator; duplicate names are a configuration error
func (r *Registry) Register(e Evaluator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.evaluators[e.Name()]; exists {
		return fmt.Errorf("strategy %q already registered", e.Name())
	}
	r.evaluators[e.Name()] = e
	return nil
}

// Get returns the evaluator for a technique name
func (r *Registry) Get(name string) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[name]
	return e, ok
}

// Names lists the registered techniques, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.evaluators))
	for name := range r.evaluators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns a registry with every built-in technique registered. A
// duplicate built-in name is a programming error, so registration failures
// panic here instead of being ignored.
func Default() *Registry {
	r := NewRegistry()
	for _, ev := range []Evaluator{
		NewCCI(14, 100),
		NewRSI(14, 30, 70),
		NewPinBar(),
	} {
		if err := r.Register(ev); err != nil {
			panic(fmt.Sprintf("strategy: %v", err))
		}
	}
	return r
}
