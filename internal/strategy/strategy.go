// Package strategy defines reference-price resolvers, a Registry for looking
// them up by name, and the Backtester that drives them across a date range.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"daytrade/internal/domain"
)

var (
	// ErrUnknownStrategy is returned for a strategy name with no registered
	// resolver.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrNotImplemented is returned for strategies that are selectable but
	// have no defined reference computation.
	ErrNotImplemented = errors.New("strategy not implemented")
)

// Source is the bar access a Resolver needs.
type Source interface {
	// Bars returns ticker's bars on date restricted to sessions, ascending.
	// It returns query.ErrNoData when the date has no bars.
	Bars(ctx context.Context, ticker string, date time.Time, sessions ...domain.Session) ([]domain.Bar, error)

	// PreviousSessionClose returns the 16:00:00 bar of the trading date
	// before date, if any.
	PreviousSessionClose(ctx context.Context, ticker string, date time.Time) (domain.Bar, bool, error)
}

// Resolver derives the daily reference price for one strategy.
type Resolver interface {
	// Name returns the strategy this resolver implements.
	Name() domain.StrategyName

	// Resolve computes the reference for ticker on date. It returns an error
	// wrapping query.ErrNoData when the date lacks the bars it needs.
	Resolve(ctx context.Context, src Source, ticker string, date time.Time) (domain.Reference, error)
}

// unimplemented is a selectable strategy without a reference computation.
type unimplemented struct {
	name domain.StrategyName
}

// NewUnimplemented returns a Resolver for name whose Resolve always fails
// with ErrNotImplemented. Registry.Lookup rejects it up front.
func NewUnimplemented(name domain.StrategyName) Resolver {
	return unimplemented{name: name}
}

func (u unimplemented) Name() domain.StrategyName { return u.name }

func (u unimplemented) Resolve(context.Context, Source, string, time.Time) (domain.Reference, error) {
	return domain.Reference{}, fmt.Errorf("%w: %s", ErrNotImplemented, u.name)
}

// Registry holds a named collection of resolvers for lookup and enumeration.
type Registry struct {
	resolvers map[domain.StrategyName]Resolver
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		resolvers: make(map[domain.StrategyName]Resolver),
	}
}

// Register adds a resolver to the registry, keyed by its Name().
func (r *Registry) Register(res Resolver) {
	r.resolvers[res.Name()] = res
}

// Get retrieves a resolver by name. The second return value indicates
// whether the strategy was found.
func (r *Registry) Get(name domain.StrategyName) (Resolver, bool) {
	res, ok := r.resolvers[name]
	return res, ok
}

// Lookup returns the resolver for name, failing with ErrUnknownStrategy or
// ErrNotImplemented when it cannot be run.
func (r *Registry) Lookup(name domain.StrategyName) (Resolver, error) {
	res, ok := r.resolvers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	if _, ok := res.(unimplemented); ok {
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, name)
	}
	return res, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []domain.StrategyName {
	names := make([]domain.StrategyName, 0, len(r.resolvers))
	for name := range r.resolvers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
