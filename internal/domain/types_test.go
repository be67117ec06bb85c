package domain

import (
	"testing"
	"time"
)

func TestParseSession(t *testing.T) {
	tests := []struct {
		in   string
		want Session
	}{
		{"pre-market", SessionPreMarket},
		{"intraday", SessionIntraday},
		{"post-market", SessionPostMarket},
		{"unknown", SessionUnknown},
		{"", SessionUnknown},
		{"INTRADAY", SessionUnknown},
	}
	for _, tt := range tests {
		if got := ParseSession(tt.in); got != tt.want {
			t.Errorf("ParseSession(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBarDate(t *testing.T) {
	// 01:30 UTC on the 5th is still the 4th in New York.
	ts := time.Date(2024, 3, 5, 1, 30, 0, 0, time.UTC).In(Exchange)
	if got := (Bar{Timestamp: ts}).Date(); got != "2024-03-04" {
		t.Errorf("Date() = %q, want 2024-03-04", got)
	}
}

func TestTradeOutcome(t *testing.T) {
	tests := []struct {
		name      string
		o         TradeOutcome
		triggered bool
		result    string
	}{
		{"take profit", TradeOutcome{ProfitLossPct: 2, Trigger: TriggerTakeProfit}, true, ResultPositive},
		{"stop loss", TradeOutcome{ProfitLossPct: -2, Trigger: TriggerStopLoss}, true, ResultNegative},
		{"none", TradeOutcome{Trigger: TriggerNone}, false, ResultNeutral},
		{"zero value", TradeOutcome{}, false, ResultNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.o.Triggered(); got != tt.triggered {
				t.Errorf("Triggered() = %v, want %v", got, tt.triggered)
			}
			if got := tt.o.ResultType(); got != tt.result {
				t.Errorf("ResultType() = %q, want %q", got, tt.result)
			}
		})
	}
}

func TestDailyAggregateSession(t *testing.T) {
	d := DailyAggregate{Sessions: map[Session]OHLCV{SessionIntraday: {Open: 1, Close: 2}}}
	if v, ok := d.Session(SessionIntraday); !ok || v.Close != 2 {
		t.Errorf("Session(intraday) = %+v, %v", v, ok)
	}
	if _, ok := d.Session(SessionPreMarket); ok {
		t.Error("Session(pre-market) should be absent")
	}
}

func TestReportTotalProfitLoss(t *testing.T) {
	r := &Report{Rows: []BacktestRow{{ProfitLoss: 30}, {ProfitLoss: -12.5}, {ProfitLoss: 0}}}
	if got := r.TotalProfitLoss(); got != 17.5 {
		t.Errorf("TotalProfitLoss() = %v, want 17.5", got)
	}
	if got := (&Report{}).TotalProfitLoss(); got != 0 {
		t.Errorf("empty TotalProfitLoss() = %v, want 0", got)
	}
}

func TestDayBounds(t *testing.T) {
	d, err := DateIn("2024-03-10", Exchange)
	if err != nil {
		t.Fatalf("DateIn: %v", err)
	}
	noon := d.Add(12 * time.Hour)
	if got := StartOfDay(noon); !got.Equal(d) {
		t.Errorf("StartOfDay = %v, want %v", got, d)
	}
	end := EndOfDay(noon)
	if end.Format(DateLayout) != "2024-03-10" || end.Add(time.Nanosecond).Format(DateLayout) != "2024-03-11" {
		t.Errorf("EndOfDay = %v", end)
	}
	if _, err := DateIn("03/10/2024", Exchange); err == nil {
		t.Error("expected error for malformed date")
	}
}
