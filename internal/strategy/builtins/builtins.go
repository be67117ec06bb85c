// Package builtins provides the reference-price resolvers that ship with
// daytrade.
package builtins

import (
	"daytrade/internal/domain"
	"daytrade/internal/strategy"
)

// Register adds every built-in strategy to r, including the selectable but
// unimplemented pre-market average and weighted variants.
func Register(r *strategy.Registry) {
	r.Register(PreMarketClose{})
	r.Register(IntradayOpen{})
	r.Register(strategy.NewUnimplemented(domain.StrategyPreMarketAvg))
	r.Register(strategy.NewUnimplemented(domain.StrategyPreMarketWeighted))
}

// NewRegistry returns a registry with all built-in strategies.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
