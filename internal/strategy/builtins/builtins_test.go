package builtins

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"daytrade/internal/domain"
	"daytrade/internal/query"
	"daytrade/internal/session"
	"daytrade/internal/strategy"
)

type stubSource struct {
	bars    []domain.Bar
	prev    domain.Bar
	hasPrev bool
	prevErr error
}

func (s *stubSource) Bars(_ context.Context, _ string, _ time.Time, sessions ...domain.Session) ([]domain.Bar, error) {
	if len(s.bars) == 0 {
		return nil, query.ErrNoData
	}
	return session.Filter(s.bars, sessions...), nil
}

func (s *stubSource) PreviousSessionClose(context.Context, string, time.Time) (domain.Bar, bool, error) {
	return s.prev, s.hasPrev, s.prevErr
}

func at(hour, min int) time.Time {
	return time.Date(2024, 3, 6, hour, min, 0, 0, domain.Exchange)
}

func classified(ts time.Time, o, c float64) domain.Bar {
	return domain.Bar{Timestamp: ts, Open: o, High: math.Max(o, c), Low: math.Min(o, c), Close: c, Session: session.Classify(ts)}
}

func TestPreMarketCloseAgainstPreviousClose(t *testing.T) {
	src := &stubSource{
		bars: []domain.Bar{
			classified(at(4, 0), 50, 50.5),
			classified(at(9, 29), 50.5, 52),
			classified(at(9, 30), 52, 60),
		},
		prev:    domain.Bar{Close: 40},
		hasPrev: true,
	}
	ref, err := PreMarketClose{}.Resolve(context.Background(), src, "QQQ", at(0, 0))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.Price != 52 || !ref.HasRatio || math.Abs(ref.Ratio-30) > 1e-9 {
		t.Errorf("got %+v, want price 52 ratio 30", ref)
	}
}

func TestPreMarketCloseFallsBackToOpen(t *testing.T) {
	src := &stubSource{bars: []domain.Bar{
		classified(at(4, 0), 50, 50.5),
		classified(at(9, 0), 50.5, 55),
	}}
	ref, err := PreMarketClose{}.Resolve(context.Background(), src, "QQQ", at(0, 0))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.Price != 55 || math.Abs(ref.Ratio-10) > 1e-9 {
		t.Errorf("got %+v, want price 55 ratio 10", ref)
	}
}

func TestPreMarketCloseZeroBaseline(t *testing.T) {
	src := &stubSource{
		bars:    []domain.Bar{classified(at(5, 0), 1, 1)},
		prev:    domain.Bar{Close: 0},
		hasPrev: true,
	}
	ref, err := PreMarketClose{}.Resolve(context.Background(), src, "QQQ", at(0, 0))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.Ratio != 0 {
		t.Errorf("ratio = %v, want 0", ref.Ratio)
	}
}

func TestPreMarketCloseNoPreMarketBars(t *testing.T) {
	src := &stubSource{bars: []domain.Bar{classified(at(10, 0), 1, 1)}}
	_, err := PreMarketClose{}.Resolve(context.Background(), src, "QQQ", at(0, 0))
	if !errors.Is(err, query.ErrNoData) {
		t.Errorf("error = %v, want ErrNoData", err)
	}
}

func TestPreMarketClosePropagatesLookupError(t *testing.T) {
	boom := errors.New("boom")
	src := &stubSource{bars: []domain.Bar{classified(at(5, 0), 1, 1)}, prevErr: boom}
	_, err := PreMarketClose{}.Resolve(context.Background(), src, "QQQ", at(0, 0))
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestIntradayOpen(t *testing.T) {
	src := &stubSource{bars: []domain.Bar{
		classified(at(9, 0), 10, 11),
		classified(at(9, 30), 12, 13),
		classified(at(9, 31), 13, 14),
	}}
	ref, err := IntradayOpen{}.Resolve(context.Background(), src, "QQQ", at(0, 0))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.Price != 12 || ref.HasRatio {
		t.Errorf("got %+v, want price 12 with no ratio", ref)
	}
}

func TestResolversNoData(t *testing.T) {
	for _, res := range []strategy.Resolver{PreMarketClose{}, IntradayOpen{}} {
		_, err := res.Resolve(context.Background(), &stubSource{}, "QQQ", at(0, 0))
		if !errors.Is(err, query.ErrNoData) {
			t.Errorf("%s: error = %v, want ErrNoData", res.Name(), err)
		}
	}
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	names := r.List()
	want := []domain.StrategyName{
		domain.StrategyIntradayOpen,
		domain.StrategyPreMarketAvg,
		domain.StrategyPreMarketClose,
		domain.StrategyPreMarketWeighted,
	}
	if len(names) != len(want) {
		t.Fatalf("List() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}
