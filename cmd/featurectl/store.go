package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"market-features/internal/model"
	"market-features/internal/store/redis"
	sqlitestore "market-features/internal/store/sqlite"
)

func addStoreCommands(root *cobra.Command, app *App) {
	root.AddCommand(newIngestCmd(app))
	root.AddCommand(newRunsCmd(app))
	root.AddCommand(newLatestCmd(app))
}

// decodeBars reads a JSON array of vendor rows. Numbers stay json.Number so
// the normalizer sees them as the vendor sent them.
func decodeBars(r io.Reader, symbol string) ([]model.RawBar, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var bars []model.RawBar
	if err := dec.Decode(&bars); err != nil {
		return nil, fmt.Errorf("decode bars: %w", err)
	}
	if symbol != "" {
		for i := range bars {
			if bars[i].Symbol == "" {
				bars[i].Symbol = symbol
			}
		}
	}
	return bars, nil
}

func newIngestCmd(app *App) *cobra.Command {
	var symbol string
	cmd := &cobra.Command{
		Use:   "ingest <file.json|->",
		Short: "Load vendor bars (JSON array) into the bar store as-is",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			bars, err := decodeBars(in, strings.ToUpper(symbol))
			if err != nil {
				return err
			}
			for _, b := range bars {
				if b.Symbol == "" {
					return fmt.Errorf("row without symbol; pass --symbol")
				}
			}

			w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: app.Config.SQLitePath})
			if err != nil {
				return err
			}
			defer w.Close()
			if err := w.WriteBars(cmd.Context(), bars); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d rows into %s\n", len(bars), app.Config.SQLitePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol for rows that carry none")
	return cmd
}

func newRunsCmd(app *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the most recent batches from the run ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := sqlitestore.NewReader(app.Config.SQLitePath)
			if err != nil {
				return err
			}
			defer r.Close()
			runs, err := r.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tPROFILE\tSTARTED\tTOOK\tSTATUS\tOK\tSHORT\tFAILED\tROWS")
			for _, run := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					run.RunID, run.Profile, run.StartedAt.Format(time.RFC3339),
					run.Duration().Round(time.Millisecond), run.Status,
					run.Succeeded, run.Insufficient, run.Failed, run.Rows)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs")
	return cmd
}

func newLatestCmd(app *App) *cobra.Command {
	var (
		source string
		tail   int64
	)
	cmd := &cobra.Command{
		Use:   "latest <symbol>",
		Short: "Print the cached latest row (or the stream tail) from Redis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !app.Config.RedisEnabled() {
				return fmt.Errorf("redis is not configured (FEATURES_REDIS_ADDR)")
			}
			if source == "" {
				c, err := app.ActiveProfile(cmd)
				if err != nil {
					return err
				}
				source = c.Source
			}
			r, err := redis.NewReader(redis.ReaderConfig{
				Addr:     app.Config.RedisAddr,
				Password: app.Config.RedisPassword,
				DB:       app.Config.RedisDB,
			})
			if err != nil {
				return err
			}
			defer r.Close()

			symbol := strings.ToUpper(args[0])
			out := cmd.OutOrStdout()
			if tail > 0 {
				msgs, err := r.Tail(cmd.Context(), source, symbol, tail)
				if err != nil {
					return err
				}
				for _, m := range msgs {
					fmt.Fprintln(out, string(m))
				}
				return nil
			}
			data, err := r.Latest(cmd.Context(), source, symbol)
			if err != nil {
				return err
			}
			if data == nil {
				return fmt.Errorf("no cached row for %s:%s", source, symbol)
			}
			fmt.Fprintln(out, string(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "data source label (default: the profile's)")
	cmd.Flags().Int64Var(&tail, "tail", 0, "print the last N stream entries instead")
	return cmd
}
