package us

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"daytrade/internal/domain"
)

// LatestFinishedTradingDay returns the most recent trading day whose market
// session has ended (i.e. after 20:05 ET to account for extended hours data
// settling). It uses the Alpaca trading calendar API.
func LatestFinishedTradingDay(apiKey, apiSecret, baseURL string) (time.Time, error) {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})

	now := time.Now().In(domain.Exchange)
	calendar, err := client.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}

	dates := make([]string, 0, len(calendar))
	for _, day := range calendar {
		dates = append(dates, day.Date)
	}
	return latestFinished(dates, now)
}

// latestFinished picks the last date in ascending trading dates that has
// finished as of now. Today only counts after the 20:05 cutoff.
func latestFinished(dates []string, now time.Time) (time.Time, error) {
	if len(dates) == 0 {
		return time.Time{}, fmt.Errorf("no trading days returned from calendar")
	}

	now = now.In(domain.Exchange)
	today := now.Format(domain.DateLayout)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, domain.Exchange)

	for i := len(dates) - 1; i >= 0; i-- {
		d, err := domain.DateIn(dates[i], domain.Exchange)
		if err != nil {
			continue
		}
		if dates[i] == today {
			if now.After(cutoff) {
				return d, nil
			}
			continue
		}
		if d.Before(now) {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}
