// cmd/featurectl is the operator CLI for the feature store: ingest vendor
// bars, compute and inspect indicator columns, cross-check them against
// TA-Lib and read back the run ledger and the Redis cache.
//
// Usage:
//
//	featurectl ingest bars.json
//	featurectl compute AAPL --indicators rsi,macd --tail 5
//	featurectl validate AAPL MSFT --tail 100
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"market-features/config"
	"market-features/internal/logger"
	"market-features/internal/profile"
)

// App carries configuration shared by every command.
type App struct {
	Config *config.Config
	Log    *zap.Logger
}

// ActiveProfile loads the configured profile, applying --indicators and
// --causal-only overrides.
func (a *App) ActiveProfile(cmd *cobra.Command) (*profile.Compiled, error) {
	set, err := profile.Load(a.Config.ProfileFile)
	if err != nil {
		return nil, err
	}
	p, err := set.Get(a.Config.Profile)
	if err != nil {
		return nil, err
	}
	if len(a.Config.Indicators) > 0 {
		p.Indicators = a.Config.Indicators
	}
	if f := cmd.Flags().Lookup("causal-only"); f != nil && f.Changed {
		p.CausalOnly, _ = cmd.Flags().GetBool("causal-only")
	}
	if f := cmd.Flags().Lookup("min-bars"); f != nil && f.Changed {
		p.MinBars, _ = cmd.Flags().GetInt("min-bars")
	}
	return profile.Compile(p)
}

func newRootCmd(app *App) *cobra.Command {
	var (
		dbPath      string
		profileFile string
		profileName string
		logLevel    string
	)
	root := &cobra.Command{
		Use:           "featurectl",
		Short:         "Inspect and compute technical-indicator features",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("db") {
				cfg.SQLitePath = dbPath
			}
			if flags.Changed("profile-file") {
				cfg.ProfileFile = profileFile
			}
			if flags.Changed("profile") {
				cfg.Profile = profileName
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := logger.Init("featurectl", cfg.LogLevel)
			if err != nil {
				return err
			}
			app.Config = cfg
			app.Log = log
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&dbPath, "db", "data/market.db", "SQLite database path (FEATURES_SQLITE_PATH)")
	pf.StringVar(&profileFile, "profile-file", "config/profiles.yaml", "indicator profile file (FEATURES_PROFILE_FILE)")
	pf.StringVar(&profileName, "profile", "daily", "profile name (FEATURES_PROFILE)")
	pf.StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error (FEATURES_LOG_LEVEL)")

	addComputeCommands(root, app)
	addStoreCommands(root, app)
	return root
}

func main() {
	app := &App{}
	root := newRootCmd(app)
	err := root.Execute()
	if app.Log != nil {
		_ = app.Log.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "featurectl:", err)
		os.Exit(1)
	}
}
