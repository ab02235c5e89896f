package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func money(x float64) string {
	return decimal.NewFromFloat(x).StringFixed(2)
}

// FormatTradeOrg renders a TradeRecord as an Org-mode block. Structured
// facts live in the PROPERTIES drawer; Thesis/Execution/Review are left as
// narrative placeholders.
func FormatTradeOrg(t TradeRecord) string {
	heading := fmt.Sprintf("** Trade: %s %s (%s)", t.Symbol, strings.ToUpper(t.Side), shortID(t.TradeID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TRADE_ID: %s\n", t.TradeID)
	fmt.Fprintf(&b, ":ID: %s\n", t.TradeID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", t.Symbol)
	fmt.Fprintf(&b, ":SIDE: %s\n", t.Side)
	fmt.Fprintf(&b, ":QUANTITY: %s\n", decimal.NewFromFloat(t.Quantity).String())
	fmt.Fprintf(&b, ":ENTRY_PRICE: %.5f\n", t.EntryPrice)
	fmt.Fprintf(&b, ":STOP_LOSS: %.5f\n", t.StopLoss)
	fmt.Fprintf(&b, ":TAKE_PROFIT: %.5f\n", t.TakeProfit)
	fmt.Fprintf(&b, ":OPEN_TIME: %s\n", t.OpenTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":STATUS: %s\n", t.Status)
	if !t.IsOpen() {
		fmt.Fprintf(&b, ":EXIT_PRICE: %.5f\n", t.ExitPrice)
		fmt.Fprintf(&b, ":CLOSE_TIME: %s\n", t.CloseTime.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, ":PNL: %s\n", money(t.PnL))
		fmt.Fprintf(&b, ":PNL_PCT: %s\n", money(t.PnLPercent))
		fmt.Fprintf(&b, ":DURATION_MIN: %.1f\n", t.DurationMinutes)
		fmt.Fprintf(&b, ":REASON: %s\n", t.Reason)
	}
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Thesis\n- \n\n")
	b.WriteString("*** Execution\n- \n\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// FormatSummaryOrg renders a Summary as an Org table.
func FormatSummaryOrg(title string, s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "* %s\n", title)
	b.WriteString("| Metric        | Value |\n")
	b.WriteString("|---------------+-------|\n")
	fmt.Fprintf(&b, "| Trades        | %d |\n", s.Trades)
	fmt.Fprintf(&b, "| Wins          | %d |\n", s.Wins)
	fmt.Fprintf(&b, "| Losses        | %d |\n", s.Losses)
	fmt.Fprintf(&b, "| Win rate %%    | %.2f |\n", s.WinRate)
	fmt.Fprintf(&b, "| Net PnL       | %s |\n", s.NetPnL.StringFixed(2))
	fmt.Fprintf(&b, "| Gross profit  | %s |\n", s.GrossProfit.StringFixed(2))
	fmt.Fprintf(&b, "| Gross loss    | %s |\n", s.GrossLoss.StringFixed(2))
	fmt.Fprintf(&b, "| Profit factor | %.2f |\n", s.ProfitFactor)
	fmt.Fprintf(&b, "| Avg minutes   | %.1f |\n", s.AvgDurationMinutes)
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
