package strategy

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"quantlab/services/indicator"
)

// Generator supplies candidate strategies to the backtest orchestrator. The
// orchestrator does not care how candidates are produced; an external
// strategy-writing service satisfies this interface just as well as the
// built-in template generator.
type Generator interface {
	// Generate returns the candidate for the given 1-based attempt number.
	Generate(ctx context.Context, attempt int) (*Spec, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, attempt int) (*Spec, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, attempt int) (*Spec, error) {
	return f(ctx, attempt)
}

// Fixed returns a generator that yields the same spec on every attempt.
func Fixed(spec *Spec) Generator {
	return GeneratorFunc(func(context.Context, int) (*Spec, error) {
		return spec, nil
	})
}

// TemplateGenerator produces candidates by cycling through a set of rule
// templates with seeded parameter jitter, so a campaign explores different
// strategy families deterministically. It stands in for the external
// strategy writer when the pipeline runs self-contained.
type TemplateGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewTemplateGenerator seeds the parameter jitter. Equal seeds and call
// sequences produce equal candidates.
func NewTemplateGenerator(seed int64) *TemplateGenerator {
	return &TemplateGenerator{rng: rand.New(rand.NewSource(seed))}
}

type template func(rng *rand.Rand) (name, ruleText string, indicators []indicator.Spec)

var templates = []template{
	// Moving average crossover: long while the fast average is above the
	// slow one.
	func(rng *rand.Rand) (string, string, []indicator.Spec) {
		fast := pick(rng, 5, 10, 20)
		slow := pick(rng, 50, 200)
		return fmt.Sprintf("sma-cross-%d-%d", fast, slow),
			fmt.Sprintf("sma_%d > sma_%d", fast, slow),
			[]indicator.Spec{indicator.SMA(fast), indicator.SMA(slow)}
	},
	// RSI momentum with a trend filter.
	func(rng *rand.Rand) (string, string, []indicator.Spec) {
		threshold := pick(rng, 50, 55, 60, 65)
		return fmt.Sprintf("rsi-momentum-%d", threshold),
			fmt.Sprintf("rsi_14 > %d and close > sma_20", threshold),
			[]indicator.Spec{indicator.RSI(14), indicator.SMA(20)}
	},
	// MACD trend following above the long average.
	func(*rand.Rand) (string, string, []indicator.Spec) {
		return "macd-trend",
			"close > sma_200 and macd > macd_signal",
			[]indicator.Spec{indicator.SMA(200), indicator.MACD(12, 26, 9)}
	},
	// Bollinger breakout: long while the close rides outside the upper band.
	func(*rand.Rand) (string, string, []indicator.Spec) {
		return "bb-breakout-20",
			"close > bb_upper_20",
			[]indicator.Spec{indicator.Bollinger(20, 2)}
	},
	// Donchian channel position gated by trend strength.
	func(rng *rand.Rand) (string, string, []indicator.Spec) {
		strength := pick(rng, 20, 25, 30)
		return fmt.Sprintf("donchian-adx-%d", strength),
			fmt.Sprintf("close > donchian_middle_20 and adx_14 > %d", strength),
			[]indicator.Spec{indicator.Donchian(20), indicator.ADX(14)}
	},
}

// Generate builds the attempt's candidate. Attempts cycle through the
// templates in order, so a campaign with budget >= len(templates) tries
// every family at least once.
func (g *TemplateGenerator) Generate(_ context.Context, attempt int) (*Spec, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	name, ruleText, indicators := templates[idx%len(templates)](g.rng)
	spec, err := New(name, ruleText, indicators)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", name, err)
	}
	return spec, nil
}

func pick(rng *rand.Rand, choices ...int) int {
	return choices[rng.Intn(len(choices))]
}
