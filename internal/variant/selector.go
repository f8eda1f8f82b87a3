// Package variant implements weighted A/B variant assignment for
// campaign content.
package variant

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// Selector assigns recipients to A/B variants by weighted random draw.
// Safe for concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a selector seeded from the given source. Pass a
// fixed seed in tests for reproducible draws.
func NewSelector(seed int64) *Selector {
	return &Selector{rng: rand.New(rand.NewSource(seed))}
}

// Select returns the variant for one recipient draw.
//
// The draw is uniform in [0,100); variants are walked in order,
// accumulating their percentage weights, and the first variant whose
// cumulative weight exceeds the draw wins. If rounding leaves the draw
// uncovered, the first variant is the defined fallback. A declared
// winning variant short-circuits the draw entirely.
func (s *Selector) Select(cfg domain.ABTestConfig) (*domain.Variant, error) {
	if len(cfg.Variants) == 0 {
		return nil, fmt.Errorf("no variants configured")
	}

	if cfg.WinningVariant != "" {
		for i := range cfg.Variants {
			if cfg.Variants[i].Name == cfg.WinningVariant {
				return &cfg.Variants[i], nil
			}
		}
	}

	s.mu.Lock()
	draw := s.rng.Float64() * 100
	s.mu.Unlock()

	cumulative := 0.0
	for i := range cfg.Variants {
		cumulative += cfg.Variants[i].Percentage
		if draw < cumulative {
			return &cfg.Variants[i], nil
		}
	}

	// Rounding shortfall: weights summed below the draw.
	return &cfg.Variants[0], nil
}

// Validate checks that variant percentages sum to at most 100.
func Validate(cfg domain.ABTestConfig) error {
	if !cfg.Enabled {
		return nil
	}
	total := 0.0
	for _, v := range cfg.Variants {
		if v.Percentage < 0 {
			return fmt.Errorf("variant %q has negative percentage", v.Name)
		}
		total += v.Percentage
	}
	if total > 100 {
		return fmt.Errorf("variant percentages sum to %.1f, must not exceed 100", total)
	}
	return nil
}
