package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/xab-mack/contractscan/internal/cache"
	"github.com/xab-mack/contractscan/internal/config"
	"github.com/xab-mack/contractscan/internal/engine"
	"github.com/xab-mack/contractscan/internal/logging"
	"github.com/xab-mack/contractscan/internal/model"
	"github.com/xab-mack/contractscan/internal/report"
	"github.com/xab-mack/contractscan/internal/tui"
)

func AddCommands(root *cobra.Command) {
	root.AddCommand(newScanCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newRulesCmd())
	root.AddCommand(newCfgCmd())
}

type scanFlags struct {
	configPath    string
	format        string
	out           string
	rules         []string
	minSeverity   string
	failOn        string
	workers       int
	budgetMs      int
	deltaOnly     bool
	baseline      string
	writeBaseline string
	noCache       bool
	useTUI        bool
	logLevel      string
}

func newScanCmd() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Scan Solidity files or directories for vulnerabilities",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				paths = []string{"."}
			}
			format, err := report.ParseFormat(f.format)
			if err != nil {
				return err
			}
			cfg, cfgPath, err := loadConfig(f.configPath, paths[0])
			if err != nil {
				return err
			}
			f.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := logging.New("contractscan", cfg.LogLevel, cmd.ErrOrStderr())
			if cfgPath != "" {
				log.Debug("loaded config", "path", cfgPath)
			}
			opts := []engine.Option{engine.WithLogger(log)}
			if cfg.Cache && !f.noCache {
				if c, err := openCache(); err != nil {
					log.Warn("cache disabled", "error", err)
				} else {
					opts = append(opts, engine.WithCache(c))
				}
			}
			if f.baseline != "" {
				b, err := engine.LoadBaseline(f.baseline)
				if err != nil {
					return err
				}
				opts = append(opts, engine.WithBaseline(b))
			}
			eng, err := engine.New(cfg, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			res, err := eng.Scan(ctx, model.ScanRequest{
				Paths:      paths,
				DeltaOnly:  f.deltaOnly,
				TimeBudget: time.Duration(cfg.TimeBudgetMs) * time.Millisecond,
				ConfigPath: cfgPath,
			})
			if err != nil {
				return err
			}

			if f.writeBaseline != "" {
				if err := engine.WriteBaseline(f.writeBaseline, res.Findings); err != nil {
					return err
				}
				log.Info("baseline written", "path", f.writeBaseline, "findings", len(res.Findings))
			}
			if err := emit(cmd, f, format, res, eng, log); err != nil {
				return err
			}

			if threshold := cfg.FailSeverity(); res.Failed(threshold) {
				return fmt.Errorf("scan failed: findings at or above %s, or files that could not be analyzed", threshold)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "Config file (default: search upwards for .scanner-config.{json,yaml})")
	fl.StringVarP(&f.format, "format", "f", "table", "Output format: table|json|sarif")
	fl.StringVarP(&f.out, "out", "o", "", "Write report to file instead of stdout")
	fl.StringSliceVar(&f.rules, "rules", nil, "Only run these rule ids (comma separated)")
	fl.StringVar(&f.minSeverity, "min-severity", "", "Drop findings below this severity (info|low|medium|high|critical)")
	fl.StringVar(&f.failOn, "fail-on", "", "Exit non-zero if a finding of this severity or higher is found")
	fl.IntVar(&f.workers, "workers", 0, "Files analyzed in parallel (default: number of CPUs)")
	fl.IntVar(&f.budgetMs, "budget-ms", 0, "Time budget for the scan in milliseconds")
	fl.BoolVar(&f.deltaOnly, "delta", false, "Analyze only files changed in the git worktree")
	fl.StringVar(&f.baseline, "baseline", "", "Hide findings recorded in this baseline file")
	fl.StringVar(&f.writeBaseline, "write-baseline", "", "Write a baseline file with finding fingerprints")
	fl.BoolVar(&f.noCache, "no-cache", false, "Do not read or write the result cache")
	fl.BoolVar(&f.useTUI, "tui", false, "Browse findings interactively")
	fl.StringVar(&f.logLevel, "log-level", "", "Log level (trace|debug|info|warn|error|off)")
	return cmd
}

// apply overrides config values with the flags given on the command line.
func (f scanFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("rules") {
		cfg.Rules = f.rules
	}
	if changed("min-severity") {
		cfg.SeverityThreshold = f.minSeverity
	}
	if changed("fail-on") {
		cfg.FailOn = f.failOn
	}
	if changed("workers") {
		cfg.Workers = f.workers
	}
	if changed("budget-ms") {
		cfg.TimeBudgetMs = f.budgetMs
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
}

func loadConfig(explicit, start string) (config.Config, string, error) {
	if explicit != "" {
		cfg, err := config.LoadFile(explicit)
		return cfg, explicit, err
	}
	return config.Load(start)
}

func openCache() (*cache.Cache, error) {
	dir, err := cache.DefaultDir()
	if err != nil {
		return nil, err
	}
	return cache.Open(dir)
}

func emit(cmd *cobra.Command, f scanFlags, format report.Format, res *model.ScanResult, eng *engine.Engine, log hclog.Logger) error {
	if f.useTUI {
		return tui.Run(res)
	}
	if f.out == "" {
		return report.Write(cmd.OutOrStdout(), format, res, eng.Rules())
	}
	if format == report.FormatTable {
		color.NoColor = true
	}
	if err := report.WriteFile(f.out, format, res, eng.Rules()); err != nil {
		return err
	}
	log.Info("report written", "path", f.out, "format", strings.ToLower(string(format)))
	return nil
}
