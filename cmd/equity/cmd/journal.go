package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/equity/calendar"
	"github.com/rustyeddy/equity/curve"
	"github.com/rustyeddy/equity/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Record and query the trade journal",
	Long: `Record trades and cash flows, and display journal records.

Subcommands:
  trade  - Get details of a specific trade by ID
  list   - List every trade
  day    - List trades closed on a specific day
  add    - Record or replace (--id) a trade and recompute the curve from
           the first day it touches, before or after the edit
  delete - Remove a trade and recompute the curve from its first day
  cash   - Record a deposit or withdrawal and recompute from its day

Examples:
  equity journal trade <trade-id>
  equity journal day 2024-01-15
  equity journal add --ticker AAPL --shares 10 --entry 150 --date 2024-01-02
  equity journal cash --type deposit --amount 1000 --date 2024-01-10`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every trade",
	Args:  cobra.NoArgs,
	RunE:  runJournalList,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a trade",
	Args:  cobra.NoArgs,
	RunE:  runJournalAdd,
}

var journalDeleteCmd = &cobra.Command{
	Use:   "delete <trade-id>",
	Short: "Remove a trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDelete,
}

var journalCashCmd = &cobra.Command{
	Use:   "cash",
	Short: "Record a deposit or withdrawal",
	Args:  cobra.NoArgs,
	RunE:  runJournalCash,
}

var (
	addID       string
	addTicker   string
	addShares   float64
	addEntry    float64
	addStop     float64
	addDate     string
	addExitDate string
	addPnL      float64
	addStatus   string
	addOptions  bool

	cashType   string
	cashAmount float64
	cashDate   string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd, journalListCmd, journalDayCmd, journalAddCmd, journalDeleteCmd, journalCashCmd)

	f := journalAddCmd.Flags()
	f.StringVar(&addID, "id", "", "trade id to replace (new ULID when empty)")
	f.StringVar(&addTicker, "ticker", "", "ticker symbol (required)")
	f.Float64Var(&addShares, "shares", 0, "shares or contracts (required)")
	f.Float64Var(&addEntry, "entry", 0, "entry price (required)")
	f.Float64Var(&addStop, "stop", 0, "stop price")
	f.StringVar(&addDate, "date", "", "entry date YYYY-MM-DD (required)")
	f.StringVar(&addExitDate, "exit-date", "", "exit date YYYY-MM-DD for a closed trade")
	f.Float64Var(&addPnL, "pnl", 0, "realized P&L of a closed trade")
	f.StringVar(&addStatus, "status", string(journal.StatusOpen), "open, trimmed or closed")
	f.BoolVar(&addOptions, "options", false, "trade is an options position (x100)")
	journalAddCmd.MarkFlagRequired("ticker")
	journalAddCmd.MarkFlagRequired("shares")
	journalAddCmd.MarkFlagRequired("entry")
	journalAddCmd.MarkFlagRequired("date")

	c := journalCashCmd.Flags()
	c.StringVar(&cashType, "type", string(journal.Deposit), "deposit or withdrawal")
	c.Float64Var(&cashAmount, "amount", 0, "amount, always positive (required)")
	c.StringVar(&cashDate, "date", "", "date YYYY-MM-DD (default today)")
	journalCashCmd.MarkFlagRequired("amount")
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	return withEnv(func(ctx context.Context, e *env) error {
		rec, err := e.journal.GetTrade(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get trade: %w", err)
		}
		fmt.Println(journal.FormatTradeOrg(rec))
		return nil
	})
}

func runJournalList(cmd *cobra.Command, args []string) error {
	return withEnv(func(ctx context.Context, e *env) error {
		recs, err := e.journal.Trades(ctx)
		if err != nil {
			return fmt.Errorf("query trades: %w", err)
		}
		fmt.Println(journal.FormatTradesOrg(recs))
		return nil
	})
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	start, err := calendar.ParseKey(args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	end := start.AddDate(0, 0, 1)

	return withEnv(func(ctx context.Context, e *env) error {
		recs, err := e.journal.ListTradesClosedBetween(ctx, start, end)
		if err != nil {
			return fmt.Errorf("query trades: %w", err)
		}
		fmt.Println(journal.FormatTradesOrg(recs))
		return nil
	})
}

func runJournalAdd(cmd *cobra.Command, args []string) error {
	t, err := tradeFromFlags()
	if err != nil {
		return err
	}

	return withEnv(func(ctx context.Context, e *env) error {
		var prior *journal.Trade
		if t.ID != "" {
			old, err := e.journal.GetTrade(ctx, t.ID)
			switch {
			case err == nil:
				prior = &old
			case !errors.Is(err, journal.ErrNotFound):
				return fmt.Errorf("get trade: %w", err)
			}
		}

		saved, err := e.journal.SaveTrade(ctx, t)
		if err != nil {
			return fmt.Errorf("save trade: %w", err)
		}

		var c curve.Curve
		if prior != nil {
			fmt.Printf("✓ Updated %s %s\n", saved.Ticker, saved.ID)
			c, err = e.builder.InvalidateForEdit(ctx, *prior, saved)
		} else {
			fmt.Printf("✓ Recorded %s %s\n", saved.Ticker, saved.ID)
			c, err = e.builder.InvalidateForTrade(ctx, saved)
		}
		if err != nil {
			return fmt.Errorf("rebuild curve: %w", err)
		}
		printLastPoint(c)
		return nil
	})
}

func runJournalDelete(cmd *cobra.Command, args []string) error {
	return withEnv(func(ctx context.Context, e *env) error {
		removed, err := e.journal.DeleteTrade(ctx, args[0])
		if err != nil {
			return fmt.Errorf("delete trade: %w", err)
		}
		fmt.Printf("✓ Removed %s %s\n", removed.Ticker, removed.ID)

		c, err := e.builder.InvalidateForTrade(ctx, removed)
		if err != nil {
			return fmt.Errorf("rebuild curve: %w", err)
		}
		printLastPoint(c)
		return nil
	})
}

func runJournalCash(cmd *cobra.Command, args []string) error {
	ts := time.Now().UTC()
	if cashDate != "" {
		d, err := calendar.ParseKey(cashDate)
		if err != nil {
			return fmt.Errorf("date: %w", err)
		}
		ts = d
	}
	typ := journal.CashFlowType(cashType)
	if typ != journal.Deposit && typ != journal.Withdrawal {
		return fmt.Errorf("type must be %q or %q", journal.Deposit, journal.Withdrawal)
	}
	if cashAmount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	return withEnv(func(ctx context.Context, e *env) error {
		saved, err := e.journal.SaveCashFlow(ctx, journal.CashFlow{Type: typ, Amount: cashAmount, Timestamp: ts})
		if err != nil {
			return fmt.Errorf("save cash flow: %w", err)
		}
		fmt.Printf("✓ Recorded %s of $%.2f\n", saved.Type, saved.Amount)

		c, err := e.builder.InvalidateFromDate(ctx, calendar.Truncate(saved.Timestamp))
		if err != nil {
			return fmt.Errorf("rebuild curve: %w", err)
		}
		printLastPoint(c)
		return nil
	})
}

func tradeFromFlags() (journal.Trade, error) {
	entry, err := calendar.ParseKey(addDate)
	if err != nil {
		return journal.Trade{}, fmt.Errorf("date: %w", err)
	}
	t := journal.Trade{
		ID:        addID,
		Ticker:    addTicker,
		EntryDate: entry,
		Status:    journal.Status(addStatus),
		Shares:    addShares,
		Entry:     addEntry,
		Stop:      addStop,
		AssetType: journal.AssetStock,
	}
	if addOptions {
		t.AssetType = journal.AssetOptions
	}

	switch t.Status {
	case journal.StatusOpen, journal.StatusTrimmed:
	case journal.StatusClosed:
		if addExitDate == "" {
			return journal.Trade{}, fmt.Errorf("a closed trade needs --exit-date")
		}
		exit, err := calendar.ParseKey(addExitDate)
		if err != nil {
			return journal.Trade{}, fmt.Errorf("exit-date: %w", err)
		}
		t.ExitDate = exit
		pnl := addPnL
		t.TotalRealizedPnL = &pnl
	default:
		return journal.Trade{}, fmt.Errorf("unknown status %q", addStatus)
	}
	return t, nil
}
