package journal

import (
	"fmt"
	"strings"
)

// FormatTradeOrg renders a Trade as an Org-mode block suitable for pasting into a journal.
// Structured facts go in a PROPERTIES drawer; trims are listed as a table.
func FormatTradeOrg(t Trade) string {
	heading := fmt.Sprintf("** Trade: %s (%s)", t.Ticker, shortID(t.ID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":TRADE_ID: %s\n", t.ID))
	b.WriteString(fmt.Sprintf(":TICKER: %s\n", t.Ticker))
	b.WriteString(fmt.Sprintf(":ASSET_TYPE: %s\n", t.AssetType))
	b.WriteString(fmt.Sprintf(":STATUS: %s\n", t.Status))
	b.WriteString(fmt.Sprintf(":SHARES: %g\n", t.Shares))
	b.WriteString(fmt.Sprintf(":ENTRY_PRICE: %.2f\n", t.Entry))
	b.WriteString(fmt.Sprintf(":STOP_PRICE: %.2f\n", t.Stop))
	b.WriteString(fmt.Sprintf(":ENTRY_DATE: %s\n", t.EntryDate.Format("2006-01-02")))
	if !t.ExitDate.IsZero() {
		b.WriteString(fmt.Sprintf(":EXIT_DATE: %s\n", t.ExitDate.Format("2006-01-02")))
	}
	if t.HasRealized() {
		b.WriteString(fmt.Sprintf(":REALIZED_PL: %.2f\n", t.RealizedPnL()))
	}
	b.WriteString(":END:\n")

	if len(t.TrimHistory) > 0 {
		b.WriteString("\n*** Trims\n")
		b.WriteString("| Date | Shares |\n")
		b.WriteString("|------+--------|\n")
		for _, tr := range t.TrimHistory {
			b.WriteString(fmt.Sprintf("| %s | %g |\n", tr.Date.Format("2006-01-02"), tr.SharesSold))
		}
	}

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []Trade) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
