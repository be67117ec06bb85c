package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"daytrade/internal/api"
	"daytrade/internal/domain"
	"daytrade/internal/report"
)

// Styles.
var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	gainStyle   = cellStyle.Foreground(lipgloss.Color("10"))
	lossStyle   = cellStyle.Foreground(lipgloss.Color("9"))
	dimStyle    = cellStyle.Foreground(lipgloss.Color("245"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	totalStyle  = lipgloss.NewStyle().Bold(true)
)

// signedCols marks the columns whose cell is coloured by sign.
type signedCols map[int]bool

func newTable(headers []string, rows [][]string, signed signedCols) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row < 0 || row >= len(rows) || col >= len(rows[row]) {
				return cellStyle
			}
			cell := rows[row][col]
			if cell == "-" {
				return dimStyle
			}
			if signed[col] {
				return signStyle(cell)
			}
			return cellStyle
		})
}

func signStyle(cell string) lipgloss.Style {
	switch {
	case strings.TrimPrefix(strings.TrimSuffix(cell, "%"), "-") == "0.00":
		return cellStyle
	case strings.HasPrefix(cell, "-"):
		return lossStyle
	default:
		return gainStyle
	}
}

func money(v float64) string { return fmt.Sprintf("%.2f", v) }

// pct formats a percentage with an explicit sign for gains.
func pct(v float64) string {
	if v > 0 {
		return fmt.Sprintf("+%.2f%%", v)
	}
	return fmt.Sprintf("%.2f%%", v)
}

func optMoney(v *float64) string {
	if v == nil {
		return "-"
	}
	return money(*v)
}

func optString(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func stocksTable(stocks []api.Stock) string {
	rows := make([][]string, 0, len(stocks))
	for _, s := range stocks {
		rows = append(rows, []string{s.Ticker, s.FirstDate, s.LastDate, fmt.Sprint(s.Days)})
	}
	return newTable([]string{"Ticker", "First", "Last", "Days"}, rows, nil).String()
}

func strategiesTable(strategies []api.Strategy) string {
	rows := make([][]string, 0, len(strategies))
	for _, s := range strategies {
		state := "-"
		if s.Implemented {
			state = "yes"
		}
		rows = append(rows, []string{s.Name, state})
	}
	return newTable([]string{"Strategy", "Implemented"}, rows, nil).String()
}

func dayInfoTable(d *api.DayInfoResponse) string {
	rows := [][]string{
		{string(domain.SessionPreMarket), optMoney(d.PreMarketOpen), optMoney(d.PreMarketClose), pct(d.PreMarketChangePct)},
		{string(domain.SessionIntraday), optMoney(d.IntradayOpen), optMoney(d.IntradayClose), pct(d.IntradayChangePct)},
	}
	title := totalStyle.Render(fmt.Sprintf("%s %s", d.Ticker, d.Date))
	return title + "\n" + newTable([]string{"Session", "Open", "Close", "Change"}, rows, signedCols{3: true}).String()
}

func dailyTable(days []api.DailyRow) string {
	var rows [][]string
	for _, d := range days {
		for _, s := range domain.Sessions {
			v, ok := d.Sessions[string(s)]
			if !ok {
				continue
			}
			rows = append(rows, []string{d.Date, string(s), money(v.Open), money(v.High), money(v.Low), money(v.Close), humanize.Comma(v.Volume)})
		}
	}
	return newTable([]string{"Date", "Session", "Open", "High", "Low", "Close", "Volume"}, rows, nil).String()
}

func barsTable(bars []api.Bar) string {
	rows := make([][]string, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, []string{b.Timestamp, b.Session, money(b.Open), money(b.High), money(b.Low), money(b.Close), humanize.Comma(b.Volume)})
	}
	return newTable([]string{"Time", "Session", "Open", "High", "Low", "Close", "Volume"}, rows, nil).String()
}

func simulateTable(results []api.SimulateResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		value := optMoney(r.Value)
		if r.Error != "" {
			value = r.Error
		}
		rows = append(rows, []string{r.Date, r.ResultType, r.Trigger, optString(r.TriggerTime), money(r.BuyPrice), money(r.SellPrice), value})
	}
	return newTable([]string{"Date", "Result", "Trigger", "Time", "Buy", "Sell", "Value"}, rows, signedCols{6: true}).String()
}

func documentTable(doc *report.Document) string {
	rows := make([][]string, 0, len(doc.Rows))
	for _, r := range doc.Rows {
		ratio := "-"
		if r.ReferenceRatio != nil {
			ratio = fmt.Sprintf("%.4f", *r.ReferenceRatio)
		}
		rows = append(rows, []string{
			r.Date, r.Ticker, money(r.ReferencePrice), ratio, money(r.BuyPrice),
			r.Trigger, optString(r.TriggerTime), money(r.SellPrice), pct(r.ProfitLossPct), money(r.ProfitLoss),
		})
	}
	t := newTable([]string{"Date", "Ticker", "Reference", "Ratio", "Buy", "Trigger", "Time", "Sell", "P/L %", "P/L"},
		rows, signedCols{8: true, 9: true})

	p := doc.Params
	title := fmt.Sprintf("%s %s..%s %s qty=%d tp=%.2f%% sl=%.2f%%", p.PrimaryTicker, p.Start, p.End, p.Strategy, p.Quantity, p.TakeProfitPct, p.StopLossPct)
	if doc.ID != "" {
		title += "  run " + doc.ID
	}
	total := "Total P/L: " + signStyle(money(doc.TotalProfitLoss)).UnsetPadding().Render(money(doc.TotalProfitLoss))
	return totalStyle.Render(title) + "\n" + t.String() + "\n" + totalStyle.Render(total)
}

func runsTable(runs []api.RunSummary) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{r.ID, r.CreatedAt, r.PrimaryTicker, r.Strategy, r.Start, r.End, fmt.Sprint(r.Rows), money(r.TotalProfitLoss)})
	}
	return newTable([]string{"ID", "Created", "Ticker", "Strategy", "Start", "End", "Rows", "P/L"}, rows, signedCols{7: true}).String()
}
