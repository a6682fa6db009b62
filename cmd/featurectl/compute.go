package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"market-features/config"
	"market-features/internal/indicator"
	"market-features/internal/logger"
	"market-features/internal/model"
	"market-features/internal/profile"
	"market-features/internal/series"
	sqlitestore "market-features/internal/store/sqlite"
	"market-features/internal/validation"
)

func addComputeCommands(root *cobra.Command, app *App) {
	root.AddCommand(newComputeCmd(app))
	root.AddCommand(newListCmd(app))
	root.AddCommand(newValidateCmd(app))
}

// loadSeries reads and normalizes one symbol from the bar store.
func loadSeries(ctx context.Context, app *App, symbol string, from, to time.Time, minBars int) (*series.Series, series.Report, error) {
	reader, err := sqlitestore.NewReader(app.Config.SQLitePath)
	if err != nil {
		return nil, series.Report{}, err
	}
	defer reader.Close()

	raw, err := reader.ReadBars(ctx, symbol, from, to)
	if err != nil {
		return nil, series.Report{}, err
	}
	s, rep, err := series.Normalize(raw, series.Options{Symbol: symbol, MinBars: minBars})
	if err != nil {
		return nil, rep, err
	}
	app.Log.Info("loaded bars",
		zap.String("symbol", symbol),
		zap.Int("input", rep.Input),
		zap.Int("kept", rep.Kept),
		zap.Int("dropped", rep.DroppedTotal()))
	return s, rep, nil
}

func parseBound(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	ts, ok := series.ParseTimestamp(v)
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognized time %q", v)
	}
	return ts, nil
}

func newComputeCmd(app *App) *cobra.Command {
	var (
		indicators []string
		fromStr    string
		toStr      string
		tail       int
		format     string
		source     string
		write      bool
	)
	cmd := &cobra.Command{
		Use:   "compute <symbol>",
		Short: "Compute feature rows for a symbol from the bar store",
		Example: `  featurectl compute AAPL
  featurectl compute AAPL --indicators rsi,bollinger --tail 10 --format csv
  featurectl compute MSFT --profile live --write`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger.WithRunID(cmd.Context(), logger.NewRunID())
			symbol := strings.ToUpper(args[0])
			if ind := config.NormalizeIndicators(indicators); len(ind) > 0 {
				app.Config.Indicators = ind
			}
			c, err := app.ActiveProfile(cmd)
			if err != nil {
				return err
			}
			from, err := parseBound(fromStr)
			if err != nil {
				return err
			}
			to, err := parseBound(toStr)
			if err != nil {
				return err
			}

			s, rep, err := loadSeries(ctx, app, symbol, from, to, c.MinBars)
			if err != nil {
				return err
			}
			if rep.Insufficient {
				return fmt.Errorf("%s: %d usable bars, profile %q needs %d", symbol, rep.Kept, c.Name, c.MinBars)
			}

			frame, err := c.Engine.Compute(s, c.Columns)
			if err != nil {
				return err
			}
			for _, d := range frame.Diagnostics() {
				app.Log.Warn("degraded indicator", zap.String("spec", d.Spec), zap.String("reason", d.Reason))
			}
			if source == "" {
				source = c.Source
			}
			rows, err := indicator.Assemble(frame, c.Columns, indicator.RowMeta{
				Source:     source,
				RunID:      logger.RunID(ctx),
				ComputedAt: time.Now().UTC(),
			})
			if err != nil {
				return err
			}

			if write {
				w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: app.Config.SQLitePath})
				if err != nil {
					return err
				}
				defer w.Close()
				if err := w.WriteRows(ctx, rows); err != nil {
					return err
				}
			}

			if tail > 0 && tail < len(rows) {
				rows = rows[len(rows)-tail:]
			}
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				return writeJSONLines(out, rows)
			case "csv":
				return writeCSV(out, rows, c.Columns)
			default:
				return fmt.Errorf("unknown format %q (json or csv)", format)
			}
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&indicators, "indicators", nil, "indicator or column names (default: the profile's list)")
	f.StringVar(&fromStr, "from", "", "first bar time (inclusive)")
	f.StringVar(&toStr, "to", "", "last bar time (inclusive)")
	f.IntVar(&tail, "tail", 0, "print only the last N rows")
	f.StringVar(&format, "format", "json", "json or csv")
	f.StringVar(&source, "source", "", "data source label (default: the profile's)")
	f.BoolVar(&write, "write", false, "also upsert the rows into the SQLite feature table")
	f.Bool("causal-only", false, "refuse columns that look at later bars")
	f.Int("min-bars", 0, "minimum usable bars (default: the longest lookback)")
	return cmd
}

func writeJSONLines(w io.Writer, rows []model.FeatureRow) error {
	enc := json.NewEncoder(w)
	for i := range rows {
		if err := enc.Encode(&rows[i]); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(w io.Writer, rows []model.FeatureRow, columns []string) error {
	cw := csv.NewWriter(w)
	header := append([]string{"symbol", "datetime", "open", "high", "low", "close", "volume"}, columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for i := range rows {
		r := &rows[i]
		record = record[:0]
		record = append(record, r.Symbol, r.TS.Format(time.RFC3339),
			formatFloat(r.Open), formatFloat(r.High), formatFloat(r.Low), formatFloat(r.Close), formatPtr(r.Volume))
		for _, col := range columns {
			if v, ok := r.Value(col); ok {
				record = append(record, formatFloat(v))
			} else {
				record = append(record, "")
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func formatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func newListCmd(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the indicator catalog with lookback, inputs and causality",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := app.ActiveProfile(cmd)
			if err != nil {
				return err
			}
			entries := catalogEntries(c)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SPEC\tLOOKBACK\tCAUSAL\tOUTPUTS\tINPUTS")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%t\t%s\t%s\n", e.Name, e.Lookback, e.Causal,
					strings.Join(e.Outputs, ","), strings.Join(e.Inputs, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

type catalogEntry struct {
	Name     string   `json:"name"`
	Outputs  []string `json:"outputs"`
	Inputs   []string `json:"inputs"`
	Lookback int      `json:"lookback"`
	Causal   bool     `json:"causal"`
}

func catalogEntries(c *profile.Compiled) []catalogEntry {
	cat := c.Engine.Catalog()
	specs := cat.Specs()
	out := make([]catalogEntry, 0, len(specs))
	for _, s := range specs {
		out = append(out, catalogEntry{
			Name:     s.Name,
			Outputs:  s.Outputs,
			Inputs:   s.Inputs,
			Lookback: cat.Lookback(s),
			Causal:   cat.Causal(s),
		})
	}
	return out
}

func newValidateCmd(app *App) *cobra.Command {
	var (
		tail int
		tol  float64
	)
	cmd := &cobra.Command{
		Use:   "validate <symbol>...",
		Short: "Cross-check engine values against TA-Lib on the most recent bars",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.ActiveProfile(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var failed []string
			for _, arg := range args {
				symbol := strings.ToUpper(arg)
				s, _, err := loadSeries(cmd.Context(), app, symbol, time.Time{}, time.Time{}, 0)
				if err != nil {
					return err
				}
				rep, err := validation.Compare(c.Engine, s, tail, tol)
				if err != nil {
					return fmt.Errorf("%s: %w", symbol, err)
				}
				printReport(out, &rep)
				if !rep.Passed() {
					failed = append(failed, symbol)
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("validation failed for %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&tail, "tail", 100, "number of most recent bars to compare")
	cmd.Flags().Float64Var(&tol, "tol", 1e-6, "relative tolerance")
	return cmd
}

func printReport(w io.Writer, rep *validation.Report) {
	fmt.Fprintf(w, "%s: %d bars, last %d compared, tolerance %g\n", rep.Symbol, rep.Bars, rep.Tail, rep.Tolerance)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  COLUMN\tCOMPARED\tMAX DIFF\tWORST AT\tRESULT")
	for _, r := range rep.Results {
		result := "ok"
		if !r.Pass {
			result = "FAIL"
		}
		worst := "-"
		if !r.WorstAt.IsZero() {
			worst = r.WorstAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "  %s\t%d\t%.3g\t%s\t%s\n", r.Column, r.Compared, r.MaxAbsDiff, worst, result)
	}
	tw.Flush()
}
