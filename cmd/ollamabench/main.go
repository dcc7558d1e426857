package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourorg/ollamabench/internal/bench"
	"github.com/yourorg/ollamabench/internal/config"
	"github.com/yourorg/ollamabench/internal/csvlog"
	"github.com/yourorg/ollamabench/internal/ollama"
	"github.com/yourorg/ollamabench/internal/prompts"
	"github.com/yourorg/ollamabench/internal/report"
	"github.com/yourorg/ollamabench/internal/server"
	"github.com/yourorg/ollamabench/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	cfgPath string
	debug   bool
}

func (g *globalFlags) load() (*config.Config, error) {
	return config.Load(g.cfgPath)
}

func (g *globalFlags) logger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	if g.debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "ollamabench",
		Short:         "Benchmark a local Ollama model with a fixed prompt battery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.cfgPath, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug output")

	root.AddCommand(newInitCmd(g))
	root.AddCommand(newRunCmd(g))
	root.AddCommand(newPromptsCmd())
	root.AddCommand(newHistoryCmd(g))
	root.AddCommand(newShowCmd(g))
	root.AddCommand(newDeleteCmd(g))
	root.AddCommand(newSummaryCmd(g))
	root.AddCommand(newServeCmd(g))

	return root
}

func newInitCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.ollamabench with a default config and history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := g.cfgPath
			if cfgFile == "" {
				p, err := config.DefaultPath()
				if err != nil {
					return err
				}
				cfgFile = p
			}
			if err := os.MkdirAll(filepath.Dir(cfgFile), 0o755); err != nil {
				return err
			}

			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				cfg := &config.Config{}
				cfg.SetDefaults()
				data, err := cfg.Marshal()
				if err != nil {
					return err
				}
				if err := os.WriteFile(cfgFile, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}

			cfg, err := g.load()
			if err != nil {
				return err
			}
			s, err := store.NewSQLiteStore(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "history ready", cfg.Store.Path)
			return nil
		},
	}
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var csvPath, model, url string
	var skipMalformed, noHistory bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send the prompt battery and append results to the CSV log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("csv") {
				cfg.Output.CSVPath = csvPath
			}
			if cmd.Flags().Changed("model") {
				cfg.Ollama.Model = model
			}
			if cmd.Flags().Changed("url") {
				cfg.Ollama.URL = url
			}
			if skipMalformed {
				cfg.Bench.SkipMalformed = true
			}
			if noHistory {
				cfg.Store.Disabled = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := g.logger(cfg, cmd.ErrOrStderr())

			log, err := csvlog.Open(cfg.Output.CSVPath)
			if err != nil {
				return err
			}
			defer log.Close()

			runner := &bench.Runner{
				Config: bench.FromConfig(cfg),
				Client: &ollama.Client{URL: cfg.Ollama.URL, Timeout: cfg.Timeout(), Logger: logger},
				Log:    log,
				Out:    cmd.OutOrStdout(),
				Logger: logger,
			}
			if !cfg.Store.Disabled {
				st, err := store.NewSQLiteStore(cfg.Store.Path)
				if err != nil {
					return fmt.Errorf("open history: %w", err)
				}
				defer st.Close()
				runner.Store = st
			}

			sum, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "done: %d/%d prompts logged to %s", sum.Succeeded, sum.Total, log.Path())
			if sum.RunID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (run %s)", sum.RunID)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV log path")
	cmd.Flags().StringVar(&model, "model", "", "model id")
	cmd.Flags().StringVar(&url, "url", "", "generate endpoint url")
	cmd.Flags().BoolVar(&skipMalformed, "skip-malformed", false, "skip prompts whose response cannot be parsed instead of aborting")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record the run in the history database")
	return cmd
}

func newPromptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "List the prompt battery",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tTEMP\tPROMPT")
			for i, p := range prompts.Default() {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, strconv.FormatFloat(p.Temperature, 'f', -1, 64), p.Text)
			}
			return tw.Flush()
		},
	}
}

func openStore(g *globalFlags) (*store.SQLiteStore, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(cfg.Store.Path)
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(g)
			if err != nil {
				return err
			}
			defer s.Close()
			runs, err := s.ListRuns()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tMODEL\tSTATUS\tOK\tFAILED\tSTARTED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", r.ID, r.Model, r.Status, r.Succeeded, r.Failed, humanize.Time(r.StartedAt))
			}
			return tw.Flush()
		},
	}
}

func newShowCmd(g *globalFlags) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a run report",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(g)
			if err != nil {
				return err
			}
			defer s.Close()
			run, err := s.GetRun(runID)
			if err != nil {
				return fmt.Errorf("run %s: %w", runID, err)
			}
			results, err := s.GetResults(runID)
			if err != nil {
				return err
			}
			return report.RenderRun(cmd.OutOrStdout(), run, results)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a run from the history",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(g)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.DeleteRun(runID); err != nil {
				return fmt.Errorf("run %s: %w", runID, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", runID)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func newSummaryCmd(g *globalFlags) *cobra.Command {
	var csvPath, format string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize throughput from the CSV log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if csvPath == "" {
				cfg, err := g.load()
				if err != nil {
					return err
				}
				csvPath = cfg.Output.CSVPath
			}
			rows, err := csvlog.ReadRows(csvPath)
			if err != nil {
				return err
			}
			sum := report.Summarize(rows)
			switch strings.ToLower(format) {
			case "markdown", "md":
				return report.RenderMarkdown(cmd.OutOrStdout(), sum)
			case "yaml", "yml":
				return report.RenderYAML(cmd.OutOrStdout(), sum)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV log path")
	cmd.Flags().StringVar(&format, "format", "markdown", "output format: markdown or yaml")
	return cmd
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run history over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			s, err := store.NewSQLiteStore(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer s.Close()
			srv, err := server.New(cfg, s, g.logger(cfg, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			addr := srv.Addr()
			if cmd.Flags().Changed("host") || cmd.Flags().Changed("port") {
				addr = net.JoinHostPort(host, strconv.Itoa(port))
			}
			return srv.ListenAndServe(addr)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "server host")
	cmd.Flags().IntVar(&port, "port", 3000, "server port")
	return cmd
}
