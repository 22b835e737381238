package curve

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rustyeddy/equity/calendar"
)

var csvHeader = []string{
	"date", "balance", "realized_balance", "unrealized_pnl", "cash_flow",
	"day_pnl", "source", "complete", "missing_tickers", "synthetic",
}

// WriteCSV writes one row per point, oldest first.
func WriteCSV(w io.Writer, c Curve) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range c.Points {
		err := cw.Write([]string{
			calendar.Key(p.Date),
			f(p.Balance),
			f(p.RealizedBalance),
			f(p.UnrealizedPnL),
			f(p.CashFlow),
			f(p.DayPnL),
			string(p.Source),
			strconv.FormatBool(p.Complete),
			strings.Join(p.MissingTickers, ";"),
			strconv.FormatBool(p.Synthetic),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
