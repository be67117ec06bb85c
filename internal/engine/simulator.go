// Package engine simulates single long trades against minute bars with
// stop-loss and take-profit exits.
package engine

import (
	"daytrade/internal/domain"
	"daytrade/internal/util"
)

// Simulate walks bars in order and checks each bar's Open, Low, High and Close
// against buyPrice. The first price whose loss exceeds stopLossPct or whose
// gain exceeds takeProfitPct closes the trade.
//
// A stop-loss reports the configured -stopLossPct, not the realised loss; the
// fill is modelled at buyPrice*(1-stopLossPct/100). A take-profit reports the
// realised gain. SellPrice is the observed triggering price in both cases.
//
// When nothing triggers (including empty bars or a non-positive buyPrice) the
// outcome is neutral with BuyPrice and SellPrice zeroed.
func Simulate(buyPrice, stopLossPct, takeProfitPct float64, bars []domain.Bar) domain.TradeOutcome {
	if buyPrice <= 0 {
		return neutral()
	}

	for _, bar := range bars {
		for _, price := range [4]float64{bar.Open, bar.Low, bar.High, bar.Close} {
			switch {
			case price < buyPrice:
				lossPct := (buyPrice - price) / buyPrice * 100
				if lossPct > stopLossPct {
					return domain.TradeOutcome{
						ProfitLossPct: util.Round2(-stopLossPct),
						Trigger:       domain.TriggerStopLoss,
						TriggerTime:   bar.Timestamp,
						BuyPrice:      buyPrice,
						SellPrice:     price,
					}
				}
			case price > buyPrice:
				profitPct := (price - buyPrice) / buyPrice * 100
				if profitPct > takeProfitPct {
					return domain.TradeOutcome{
						ProfitLossPct: util.Round2(profitPct),
						Trigger:       domain.TriggerTakeProfit,
						TriggerTime:   bar.Timestamp,
						BuyPrice:      buyPrice,
						SellPrice:     price,
					}
				}
			}
		}
	}
	return neutral()
}

// StopPrice is the modelled fill price of a stop-loss exit.
func StopPrice(buyPrice, stopLossPct float64) float64 {
	return util.Round2(buyPrice * (1 - stopLossPct/100))
}

func neutral() domain.TradeOutcome {
	return domain.TradeOutcome{Trigger: domain.TriggerNone}
}
