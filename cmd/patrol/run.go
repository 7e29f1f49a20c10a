package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/patrol/pkg/agent"
	"github.com/entrhq/patrol/pkg/browser"
	"github.com/entrhq/patrol/pkg/config"
	"github.com/entrhq/patrol/pkg/engine"
	"github.com/entrhq/patrol/pkg/logging"
	"github.com/entrhq/patrol/pkg/progress"
	"github.com/entrhq/patrol/pkg/report"
	"github.com/entrhq/patrol/pkg/suite"
	"github.com/entrhq/patrol/pkg/tui"
)

var (
	runParallel        bool
	runFailFast        bool
	runProvider        string
	runModel           string
	runAPIKey          string
	runBaseURL         string
	runHeaded          bool
	runFilter          string
	runTimeout         time.Duration
	runScenarioTimeout time.Duration
	runMaxSessions     int
	runBrowserType     string
	runOutput          string
	runFormat          string
	runPDF             bool
	runNoTUI           bool
)

var runCmd = &cobra.Command{
	Use:   "run <suite.yaml>",
	Short: "Execute a scenario suite and report the results",
	Long: `Run parses the suite, executes every scenario against the browser
session pool, and prints the final report. The command blocks until the
execution reaches a terminal state.

Scenarios run sequentially in suite order unless --parallel is given, in
which case they fan out up to the pool's session limit. A failing scenario
never stops its siblings unless --fail-fast is set.

On a TTY, progress renders as a live view; pass --no-tui (or redirect
output) for plain event lines instead.

Example usage:
  patrol run suite.yaml
  patrol run suite.yaml --parallel --max-sessions 3
  patrol run suite.yaml --fail-fast --output ./artifacts --format markdown
  patrol run suite.yaml --provider openrouter --model anthropic/claude-sonnet-4
  patrol run suite.yaml --headed --filter 'checkout-*'`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runParallel, "parallel", false, "run scenarios concurrently, bounded by --max-sessions")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "skip remaining scenarios after the first failure")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "LLM provider: openai, openrouter, or local")
	runCmd.Flags().StringVar(&runModel, "model", "", "model name passed to the provider")
	runCmd.Flags().StringVar(&runAPIKey, "api-key", "", "provider API key (overrides config and environment)")
	runCmd.Flags().StringVar(&runBaseURL, "base-url", "", "provider base URL for OpenAI-compatible endpoints")
	runCmd.Flags().BoolVar(&runHeaded, "headed", false, "run browsers with a visible window")
	runCmd.Flags().StringVar(&runFilter, "filter", "", "only run scenarios whose name matches this glob")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "global execution timeout (e.g. 15m)")
	runCmd.Flags().DurationVar(&runScenarioTimeout, "scenario-timeout", 0, "per-scenario timeout (e.g. 2m)")
	runCmd.Flags().IntVar(&runMaxSessions, "max-sessions", 0, "maximum concurrent browser sessions")
	runCmd.Flags().StringVar(&runBrowserType, "browser", "", "browser engine: chromium, firefox, or webkit")
	runCmd.Flags().StringVar(&runOutput, "output", "", "directory for report artifacts (default from config)")
	runCmd.Flags().StringVar(&runFormat, "format", "", "report format: text, json, or markdown")
	runCmd.Flags().BoolVar(&runPDF, "pdf", false, "bundle captured screenshots into screenshots.pdf")
	runCmd.Flags().BoolVar(&runNoTUI, "no-tui", false, "plain event lines instead of the live view")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return usageError(err)
	}

	st, err := suite.Load(args[0])
	if err != nil {
		return usageError(err)
	}
	if runFilter != "" {
		st, err = suite.Filter(st, runFilter)
		if err != nil {
			return usageError(err)
		}
	}

	format := firstNonEmpty(runFormat, cfg.Output.Format, config.FormatText)
	if !config.ValidFormat(format) {
		return usageError(fmt.Errorf("unknown format %q, supported formats: %s, %s, %s",
			format, config.FormatText, config.FormatJSON, config.FormatMarkdown))
	}

	provider, err := config.BuildProvider(cfg, config.Overrides{
		Provider: runProvider,
		Model:    runModel,
		APIKey:   runAPIKey,
		BaseURL:  runBaseURL,
	})
	if err != nil {
		return usageError(err)
	}

	log, _ := logging.New("patrol")
	defer log.Close()

	poolCfg := cfg.PoolConfig()
	if runMaxSessions > 0 {
		poolCfg.MaxSessions = runMaxSessions
	}
	if runBrowserType != "" {
		if !browser.ValidBrowserType(runBrowserType) {
			return usageError(fmt.Errorf("unknown browser %q", runBrowserType))
		}
		poolCfg.BrowserType = runBrowserType
	}
	if runHeaded {
		poolCfg.Headless = false
	}

	pool := browser.NewPool(poolCfg, browser.WithLogger(log.Component("pool")))
	if err := pool.Initialize(); err != nil {
		return failureError(fmt.Errorf("failed to initialize browser pool: %w", err))
	}
	defer pool.Close()

	engCfg := cfg.ExecutionConfig()
	if runParallel {
		engCfg.Mode = engine.ModeParallel
	}
	if cmd.Flags().Changed("fail-fast") {
		engCfg.FailFast = runFailFast
	}
	if runTimeout > 0 {
		engCfg.GlobalTimeout = runTimeout
	}
	if runScenarioTimeout > 0 {
		engCfg.ScenarioTimeout = runScenarioTimeout
	}

	runner := agent.New(provider, agent.WithLogger(log.Component("agent")))
	eng := engine.New(pool, runner, engCfg, engine.WithLogger(log.Component("engine")))
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, err := eng.Submit(ctx, st, engine.Options{})
	if err != nil {
		return failureError(fmt.Errorf("failed to submit suite: %w", err))
	}

	events, cancelSub, err := eng.Subscribe(id)
	if err != nil {
		return failureError(err)
	}
	defer cancelSub()

	if err := followExecution(ctx, id, st, events); err != nil {
		return err
	}

	rep, err := eng.Report(id)
	if err != nil {
		return failureError(err)
	}

	outDir := firstNonEmpty(runOutput, cfg.Output.Dir)
	if outDir != "" {
		w := report.NewArtifactWriter(outDir)
		if err := w.WriteAll(rep); err != nil {
			return failureError(err)
		}
		if runPDF {
			if err := w.WriteScreenshotsPDF(rep); err != nil {
				return failureError(err)
			}
		}
		fmt.Fprintf(os.Stderr, "artifacts written to %s\n", outDir)
	}

	rendered, err := renderReport(rep, format)
	if err != nil {
		return failureError(err)
	}
	fmt.Println(rendered)

	info, err := eng.Status(id)
	if err != nil {
		return failureError(err)
	}
	if rep.Failed > 0 || info.Status != engine.StatusCompleted {
		return &exitError{code: ExitCodeFailed,
			err: fmt.Errorf("execution %s: %d/%d scenarios passed", info.Status, rep.Passed, rep.Total)}
	}
	return nil
}

// followExecution consumes the event stream until the terminal event: the
// live view on a TTY, plain lines otherwise. Either way the channel is fully
// drained so the subscription never backs up.
func followExecution(ctx context.Context, id string, st *suite.Suite, events <-chan progress.Event) error {
	if isTTY(os.Stdout) && !runNoTUI {
		detached, err := tui.Run(ctx, tui.RunInfo{
			ExecutionID: id,
			SuiteName:   st.Name,
			Scenarios:   st.Names(),
		}, events)
		if err != nil {
			return failureError(err)
		}
		if detached {
			fmt.Fprintln(os.Stderr, "detached from live view, waiting for the execution to finish...")
		}
		for range events {
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			// Engine.Close cancels the execution on the way out.
			return failureError(fmt.Errorf("interrupted"))
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			fmt.Printf("%s %-5s %s\n", ev.Timestamp.Format("15:04:05"), ev.Level, ev.Message)
		}
	}
}

// renderReport picks the output form; every form derives from the same
// report value.
func renderReport(rep *report.Report, format string) (string, error) {
	switch format {
	case config.FormatJSON:
		data, err := report.RenderJSON(rep)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case config.FormatMarkdown:
		return report.RenderMarkdown(rep), nil
	default:
		return report.RenderText(rep), nil
	}
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
