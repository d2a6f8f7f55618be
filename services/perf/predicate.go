package perf

// Predicate decides whether a report satisfies a campaign. MinSharpe and
// MaxDrawdown are disabled at zero; MinTotalReturn always applies, so the
// zero value still demands a non-negative return.
type Predicate struct {
	MinSharpe      float64 `json:"min_sharpe" yaml:"min_sharpe"`
	MaxDrawdown    float64 `json:"max_drawdown" yaml:"max_drawdown"`
	MinTotalReturn float64 `json:"min_total_return" yaml:"min_total_return"`
}

// DefaultPredicate is the research pipeline's bar: Sharpe at least 1,
// drawdown within 20%, non-negative total return.
func DefaultPredicate() Predicate {
	return Predicate{MinSharpe: 1.0, MaxDrawdown: 0.20}
}

// Satisfied reports whether r clears every enabled threshold. An undefined
// Sharpe never clears a Sharpe floor.
func (p Predicate) Satisfied(r *Report) bool {
	if r == nil {
		return false
	}
	if p.MinSharpe > 0 && (r.Sharpe == nil || *r.Sharpe < p.MinSharpe) {
		return false
	}
	if p.MaxDrawdown > 0 && r.MaxDrawdown > p.MaxDrawdown {
		return false
	}
	return r.TotalReturn >= p.MinTotalReturn
}
