// Package report serialises backtest reports as CSV and JSON with monetary
// and percentage fields rounded to two decimals.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"daytrade/internal/domain"
	"daytrade/internal/util"
)

// Header is the CSV column order.
var Header = []string{
	"date", "ticker", "reference_price", "reference_ratio", "buy_price",
	"trigger", "trigger_time", "sell_price", "profit_loss_pct", "profit_loss",
}

// Row is the serialised form of one backtest row.
type Row struct {
	Date           string   `json:"date"`
	Ticker         string   `json:"ticker"`
	ReferencePrice float64  `json:"reference_price"`
	ReferenceRatio *float64 `json:"reference_ratio"`
	BuyPrice       float64  `json:"buy_price"`
	Trigger        string   `json:"trigger"`
	TriggerTime    *string  `json:"trigger_time"`
	SellPrice      float64  `json:"sell_price"`
	ProfitLossPct  float64  `json:"profit_loss_pct"`
	ProfitLoss     float64  `json:"profit_loss"`
}

// Params is the serialised form of the backtest parameters.
type Params struct {
	PrimaryTicker   string  `json:"primary_ticker"`
	BuyTickerUp     string  `json:"buy_ticker_up"`
	BuyTickerDown   string  `json:"buy_ticker_down"`
	Strategy        string  `json:"strategy"`
	Start           string  `json:"start"`
	End             string  `json:"end"`
	BuyPriceUpRatio float64 `json:"buy_price_up_ratio"`
	Quantity        int64   `json:"quantity"`
	TakeProfitPct   float64 `json:"take_profit_pct"`
	StopLossPct     float64 `json:"stop_loss_pct"`
}

// Document is the JSON envelope of a report.
type Document struct {
	ID              string  `json:"id"`
	CreatedAt       string  `json:"created_at"`
	Params          Params  `json:"params"`
	Rows            []Row   `json:"rows"`
	TotalProfitLoss float64 `json:"total_profit_loss"`
}

// FromRow converts a backtest row to its serialised form.
func FromRow(r domain.BacktestRow) Row {
	out := Row{
		Date:           r.Date,
		Ticker:         r.Ticker,
		ReferencePrice: util.Round2(r.Reference.Price),
		BuyPrice:       util.Round2(r.BuyPrice),
		Trigger:        string(r.Outcome.Trigger),
		SellPrice:      util.Round2(r.Outcome.SellPrice),
		ProfitLossPct:  util.Round2(r.Outcome.ProfitLossPct),
		ProfitLoss:     util.Round2(r.ProfitLoss),
	}
	if r.Reference.HasRatio {
		v := util.Round2(r.Reference.Ratio)
		out.ReferenceRatio = &v
	}
	if r.Outcome.Triggered() && !r.Outcome.TriggerTime.IsZero() {
		s := r.Outcome.TriggerTime.Format(time.RFC3339)
		out.TriggerTime = &s
	}
	return out
}

// FromParams converts backtest parameters to their serialised form.
func FromParams(p domain.BacktestParams) Params {
	return Params{
		PrimaryTicker:   p.PrimaryTicker,
		BuyTickerUp:     p.BuyTickerUp,
		BuyTickerDown:   p.BuyTickerDown,
		Strategy:        string(p.Strategy),
		Start:           p.Start.Format(domain.DateLayout),
		End:             p.End.Format(domain.DateLayout),
		BuyPriceUpRatio: p.BuyPriceUpRatio,
		Quantity:        p.Quantity,
		TakeProfitPct:   p.TakeProfitPct,
		StopLossPct:     p.StopLossPct,
	}
}

// Domain parses the serialised parameters, reading dates in loc.
func (p Params) Domain(loc *time.Location) (domain.BacktestParams, error) {
	start, err := domain.DateIn(p.Start, loc)
	if err != nil {
		return domain.BacktestParams{}, fmt.Errorf("parsing start date %q: %w", p.Start, err)
	}
	end, err := domain.DateIn(p.End, loc)
	if err != nil {
		return domain.BacktestParams{}, fmt.Errorf("parsing end date %q: %w", p.End, err)
	}
	return domain.BacktestParams{
		PrimaryTicker:   p.PrimaryTicker,
		BuyTickerUp:     p.BuyTickerUp,
		BuyTickerDown:   p.BuyTickerDown,
		Strategy:        domain.StrategyName(p.Strategy),
		Start:           start,
		End:             end,
		BuyPriceUpRatio: p.BuyPriceUpRatio,
		Quantity:        p.Quantity,
		TakeProfitPct:   p.TakeProfitPct,
		StopLossPct:     p.StopLossPct,
	}, nil
}

// FromReport converts a report to its JSON envelope.
func FromReport(rep *domain.Report) Document {
	doc := Document{
		ID:              rep.ID,
		Params:          FromParams(rep.Params),
		Rows:            make([]Row, 0, len(rep.Rows)),
		TotalProfitLoss: util.Round2(rep.TotalProfitLoss()),
	}
	if !rep.CreatedAt.IsZero() {
		doc.CreatedAt = rep.CreatedAt.UTC().Format(time.RFC3339)
	}
	for _, r := range rep.Rows {
		doc.Rows = append(doc.Rows, FromRow(r))
	}
	return doc
}

// WriteJSON writes rep as an indented JSON document.
func WriteJSON(w io.Writer, rep *domain.Report) error {
	return WriteDocumentJSON(w, FromReport(rep))
}

// WriteDocumentJSON writes an already converted document as indented JSON.
func WriteDocumentJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteCSV writes a header line followed by one line per row. An absent
// ratio or trigger time is written as an empty field.
func WriteCSV(w io.Writer, rep *domain.Report) error {
	return WriteDocumentCSV(w, FromReport(rep))
}

// WriteDocumentCSV writes the rows of an already converted document as CSV.
func WriteDocumentCSV(w io.Writer, doc Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, row := range doc.Rows {
		ratio, trigTime := "", ""
		if row.ReferenceRatio != nil {
			ratio = formatFloat(*row.ReferenceRatio)
		}
		if row.TriggerTime != nil {
			trigTime = *row.TriggerTime
		}
		if err := cw.Write([]string{
			row.Date,
			row.Ticker,
			formatFloat(row.ReferencePrice),
			ratio,
			formatFloat(row.BuyPrice),
			row.Trigger,
			trigTime,
			formatFloat(row.SellPrice),
			formatFloat(row.ProfitLossPct),
			formatFloat(row.ProfitLoss),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
