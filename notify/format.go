package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/riskdesk/risk"
)

func price(x float64) string {
	return decimal.NewFromFloat(x).Round(8).String()
}

func signed(x float64) string {
	d := decimal.NewFromFloat(x).Round(2)
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

// FormatEvent renders ev as a one-line, human-readable message.
func FormatEvent(ev risk.Event) string {
	p := ev.Position
	side := strings.ToUpper(string(p.Side))
	switch ev.Kind {
	case risk.EventOpened:
		return fmt.Sprintf("OPEN %s %s qty %s @ %s | SL %s | TP %s",
			p.Symbol, side, price(p.Quantity), price(p.EntryPrice), price(p.StopLoss), price(p.TakeProfit))
	case risk.EventClosed:
		return fmt.Sprintf("CLOSE %s %s @ %s | PnL %s (%s%%) | %s | %s",
			p.Symbol, side, price(p.ExitPrice), signed(p.PnL), signed(p.PnLPercent),
			ev.Reason, p.Duration(p.ExitTime).Round(time.Second))
	default:
		return fmt.Sprintf("%s %s", ev.Kind, p.Symbol)
	}
}
