package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/equity/calendar"
	"github.com/rustyeddy/equity/chart"
	"github.com/rustyeddy/equity/curve"
)

var curveCmd = &cobra.Command{
	Use:   "curve",
	Short: "Build and export the daily balance curve",
	Long: `Build the end-of-day balance curve from the journal.

Subcommands:
  build    - Fill missing days and print the curve
  balance  - Print the balance on a given day
  reset    - Drop every cached snapshot

Examples:
  equity curve build
  equity curve build --start 2024-01-01 --csv curve.csv --png curve.png
  equity curve balance 2024-02-01`,
}

var curveBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Fill missing days and print the curve",
	Args:  cobra.NoArgs,
	RunE:  runCurveBuild,
}

var curveBalanceCmd = &cobra.Command{
	Use:   "balance <YYYY-MM-DD>",
	Short: "Print the balance on a given day",
	Args:  cobra.ExactArgs(1),
	RunE:  runCurveBalance,
}

var curveResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every cached snapshot",
	Args:  cobra.NoArgs,
	RunE:  runCurveReset,
}

var (
	curveStart string
	curveEnd   string
	curveCSV   string
	curvePNG   string
)

func init() {
	rootCmd.AddCommand(curveCmd)
	curveCmd.AddCommand(curveBuildCmd, curveBalanceCmd, curveResetCmd)

	curveBuildCmd.Flags().StringVar(&curveStart, "start", "", "first day to show YYYY-MM-DD")
	curveBuildCmd.Flags().StringVar(&curveEnd, "end", "", "last day to show YYYY-MM-DD")
	curveBuildCmd.Flags().StringVar(&curveCSV, "csv", "", "write the curve as CSV to this path (- for stdout)")
	curveBuildCmd.Flags().StringVar(&curvePNG, "png", "", "write a PNG chart to this path")
}

func runCurveBuild(cmd *cobra.Command, args []string) error {
	r, err := parseRange(curveStart, curveEnd)
	if err != nil {
		return err
	}

	return withEnv(func(ctx context.Context, e *env) error {
		c, err := e.builder.Build(ctx, r)
		if err != nil {
			return fmt.Errorf("build curve: %w", err)
		}

		switch curveCSV {
		case "":
			printCurve(os.Stdout, c)
		case "-":
			if err := curve.WriteCSV(os.Stdout, c); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
		default:
			if err := writeFile(curveCSV, func(w io.Writer) error { return curve.WriteCSV(w, c) }); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
			fmt.Printf("✓ Wrote %d points to %s\n", c.Len(), curveCSV)
		}

		if curvePNG != "" {
			img, err := chart.RenderPNG(c, e.cfg.Account.ID+" • equity")
			if err != nil {
				return err
			}
			if err := os.WriteFile(curvePNG, img, 0644); err != nil {
				return fmt.Errorf("write png: %w", err)
			}
			fmt.Printf("✓ Wrote chart to %s\n", curvePNG)
		}
		return nil
	})
}

func runCurveBalance(cmd *cobra.Command, args []string) error {
	d, err := calendar.ParseKey(args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	return withEnv(func(ctx context.Context, e *env) error {
		if _, err := e.builder.Build(ctx, curve.Range{}); err != nil {
			return fmt.Errorf("build curve: %w", err)
		}
		bal, ok := e.builder.BalanceOnDate(d)
		if !ok {
			return fmt.Errorf("no balance on or before %s", args[0])
		}
		fmt.Printf("%s  $%.2f\n", args[0], bal)
		return nil
	})
}

func runCurveReset(cmd *cobra.Command, args []string) error {
	return withEnv(func(ctx context.Context, e *env) error {
		if err := e.builder.Reset(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		fmt.Println("✓ Snapshot cache cleared")
		return nil
	})
}

func parseRange(start, end string) (curve.Range, error) {
	var r curve.Range
	var err error
	if start != "" {
		if r.Start, err = calendar.ParseKey(start); err != nil {
			return r, fmt.Errorf("start: %w", err)
		}
	}
	if end != "" {
		if r.End, err = calendar.ParseKey(end); err != nil {
			return r, fmt.Errorf("end: %w", err)
		}
	}
	return r, nil
}

func printCurve(w io.Writer, c curve.Curve) {
	if c.Empty() {
		fmt.Fprintln(w, "no trades yet")
		return
	}
	fmt.Fprintf(w, "%-10s  %12s  %10s  %10s  %s\n", "DATE", "BALANCE", "UNREAL", "DAY P&L", "NOTE")
	for _, p := range c.Points {
		fmt.Fprintf(w, "%-10s  %12.2f  %10.2f  %10.2f  %s\n",
			calendar.Key(p.Date), p.Balance, p.UnrealizedPnL, p.DayPnL, note(p))
	}
}

func printLastPoint(c curve.Curve) {
	if p, ok := c.Last(); ok {
		fmt.Printf("  Balance %s: $%.2f\n", calendar.Key(p.Date), p.Balance)
	}
}

func note(p curve.Point) string {
	switch {
	case p.Synthetic:
		return "start"
	case !p.Complete:
		return "missing " + strings.Join(p.MissingTickers, ",")
	}
	return string(p.Source)
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
