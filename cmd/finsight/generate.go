package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finsight/internal/config"
	"finsight/internal/llm"
	"finsight/internal/logging"
	"finsight/internal/report"
	"finsight/internal/scheduler"
	"finsight/internal/usage"
)

var (
	outputDir  string
	reportType string
	premium    bool
	plainText  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [input.json...]",
	Short: "Generate investment reports from JSON input files",
	Long: `Reads one or more JSON files describing client investment data and
generates a report for each. Files are processed concurrently; the
engine's admission control bounds how many upstream calls run at once.

Input file format:
  {
    "goals": "retire at 60",
    "riskTolerance": "moderate",
    "timeHorizon": "20 years",
    "age": "42",
    "currentSavings": "120000"
  }`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&outputDir, "output", "o", "", "write reports to this directory instead of stdout")
	generateCmd.Flags().StringVarP(&reportType, "type", "t", "basic", "report type: basic, intermediate, advanced")
	generateCmd.Flags().BoolVar(&premium, "premium", false, "treat requests as premium (scheduling priority bonus)")
	generateCmd.Flags().BoolVar(&plainText, "plain", false, "print raw markdown without terminal rendering")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rt := report.ReportType(reportType)
	if !rt.Valid() {
		return fmt.Errorf("unknown report type %q (want basic, intermediate, or advanced)", reportType)
	}

	orch, sched, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// Watch the config file so max_concurrent and logging can be tuned while
	// a batch runs.
	watcher := config.NewWatcher(resolveConfigPath(), func(fresh *config.Config) {
		sched.SetMaxConcurrent(fresh.Scheduler.MaxConcurrent)
		if err := logging.ReloadConfig(); err != nil {
			logger.Debug("logging config reload failed", zap.Error(err))
		}
	})
	if err := watcher.Start(); err != nil {
		logger.Debug("config watcher unavailable", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	var mu sync.Mutex
	rendered := make(map[string]string, len(args))

	g, gctx := errgroup.WithContext(ctx)
	for _, path := range args {
		g.Go(func() error {
			res, err := generateOne(gctx, orch, path, rt)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			out, err := renderReport(res)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			mu.Lock()
			rendered[path] = out
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, path := range args {
		if outputDir != "" {
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".md"
			dest := filepath.Join(outputDir, name)
			if err := os.MkdirAll(outputDir, 0755); err != nil {
				return err
			}
			if err := os.WriteFile(dest, []byte(rendered[path]), 0644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", dest)
			continue
		}
		fmt.Println(rendered[path])
	}

	stats := orch.QueueStats()
	logger.Info("batch complete",
		zap.Int("reports", len(args)),
		zap.Uint64("processed", stats.TotalProcessed),
		zap.Float64("avg_wait_ms", stats.AverageWaitMs),
		zap.Int("max_queue_depth", stats.MaxQueueDepthSeen))
	return nil
}

func generateOne(ctx context.Context, orch *report.Orchestrator, path string, rt report.ReportType) (*report.ReportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var inv report.InvestmentData
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("invalid input JSON: %w", err)
	}

	req := &report.GenerationRequest{
		Data:        inv,
		Type:        rt,
		Preferences: report.Preferences{Premium: premium},
		SubmittedAt: time.Now(),
	}
	return orch.GenerateReport(ctx, req)
}

// buildEngine wires the provider client, retry executor, scheduler, usage
// tracker, and orchestrator from config. cleanup stops the scheduler and
// flushes usage data.
func buildEngine(ctx context.Context, cfg *config.Config) (*report.Orchestrator, *scheduler.Scheduler, func(), error) {
	client, err := llm.NewClientFromConfig(ctx, &llm.ProviderConfig{
		Provider: llm.Provider(cfg.LLM.Provider),
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.GetLLMTimeout(),
	})
	if err != nil {
		return nil, nil, nil, err
	}

	exec := llm.NewExecutor(client, llm.RetryOptions{
		Model:        cfg.LLM.Model,
		MaxTokens:    cfg.Retry.MaxTokens,
		Temperature:  cfg.Retry.Temperature,
		MaxRetries:   cfg.Retry.MaxRetries,
		BaseDelay:    cfg.GetBaseDelay(),
		MaxDelay:     cfg.GetMaxDelay(),
		JitterFactor: cfg.Retry.JitterFactor,
		Timeout:      cfg.GetLLMTimeout(),
	})

	sched := scheduler.New(scheduler.Config{
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		WaitTimeout:   cfg.GetWaitTimeout(),
		TickInterval:  cfg.GetTickInterval(),
	})
	sched.Start()

	var recorder report.UsageRecorder
	var tracker *usage.Tracker
	if cfg.Usage.Enabled {
		tracker, err = usage.NewTracker(cfg.Usage.Workspace)
		if err != nil {
			logger.Warn("usage tracking disabled", zap.Error(err))
		} else {
			recorder = tracker
		}
	}

	orch := report.NewOrchestrator(sched, exec, recorder, cfg.LLM.Provider, cfg.LLM.Model)

	cleanup := func() {
		sched.Stop()
		if tracker != nil {
			if err := tracker.Save(); err != nil {
				logger.Warn("failed to flush usage data", zap.Error(err))
			}
		}
	}
	return orch, sched, cleanup, nil
}

// renderReport turns a result into markdown, degraded reports carry a
// visible banner. Terminal rendering is skipped with --plain or when
// writing to files.
func renderReport(res *report.ReportResult) (string, error) {
	md := reportMarkdown(res)
	if plainText || outputDir != "" {
		return md, nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md, nil
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md, nil
	}
	return out, nil
}

var sectionTitles = map[string]string{
	report.SectionSummary:         "Executive Summary",
	report.SectionAnalysis:        "Analysis",
	report.SectionRiskAssessment:  "Risk Assessment",
	report.SectionRecommendations: "Recommendations",
	report.SectionImplementation:  "Implementation",
	report.SectionMonitoring:      "Monitoring",
}

func reportMarkdown(res *report.ReportResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", res.Title)

	if res.Degraded {
		fmt.Fprintf(&b, "> **Degraded report.** %s Generated locally without the analysis service; try again later for a full report.\n\n", res.DegradationReason)
	}

	for _, s := range res.Sections {
		title, ok := sectionTitles[s.Key]
		if !ok {
			title = s.Key
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", title, s.Text)
	}

	fmt.Fprintf(&b, "---\n*Generated %s · %dms · %d tokens · data completeness %.0f%%*\n",
		res.Metadata.GeneratedAt.Format(time.RFC3339),
		res.Metadata.ProcessingTimeMs,
		res.Metadata.TokenUsage.Total,
		res.Metadata.DataCompleteness)
	return b.String()
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(workspace, config.DefaultPath)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if cfg.Usage.Workspace == "." && workspace != "." {
		cfg.Usage.Workspace = workspace
	}
	return cfg, nil
}
