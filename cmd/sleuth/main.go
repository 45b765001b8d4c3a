package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sleuth/internal/bus"
	"sleuth/internal/classify"
	"sleuth/internal/config"
	"sleuth/internal/crawler"
	"sleuth/internal/embedding"
	"sleuth/internal/extraction"
	"sleuth/internal/llm"
	"sleuth/internal/logging"
	"sleuth/internal/orchestrator"
	"sleuth/internal/ratelimit"
	"sleuth/internal/registry"
	"sleuth/internal/sources"
	"sleuth/internal/store"
	"sleuth/internal/types"
	"sleuth/internal/verify"
)

const version = "0.3.0"

var (
	// Global flags
	verbose     bool
	configPath  string
	workspace   string
	snapshotDir string
	timeout     time.Duration

	// Investigate flags
	mockLLM    bool
	mockSearch bool

	// Operator logger. Investigation-level detail goes to the category
	// logs under the workspace; this one is for the console.
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sleuth",
	Short: "sleuth - multi-agent OSINT investigation engine",
	Long: `sleuth coordinates a cohort of crawler agents over a message bus,
extracts claims from what they bring back, scores each claim's
credibility and impact, flags the dubious ones, and verifies the flags
with targeted searches before synthesizing a report.

The planning orchestrator bounds the whole run: it decomposes the
objective into subtasks, measures coverage and signal after every
pass, and refines or explores until the evidence saturates.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// investigateCmd runs one investigation end to end
var investigateCmd = &cobra.Command{
	Use:   "investigate [objective]",
	Short: "Run a full investigation for an objective",
	Long: `Runs the complete pipeline for one objective:
  1. Plan: decompose the objective into prioritized subtasks
  2. Crawl: dispatch the crawler cohort over the message bus
  3. Extract: pull structured claims out of the new articles
  4. Classify: score credibility and impact, flag dubious facts
  5. Verify: resolve flags with targeted searches, arbitrate conflicts
  6. Synthesize: write the report (and a snapshot, if configured)

Example:
  sleuth investigate "troop movements near the Moldovan border"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInvestigate,
}

// reportCmd summarizes a previously written snapshot
var reportCmd = &cobra.Command{
	Use:   "report [snapshot.json]",
	Short: "Summarize an investigation snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

// versionCmd prints build and schema versions
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sleuth version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sleuth %s (schema %s)\n", version, types.SchemaVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "sleuth.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Investigation timeout")

	investigateCmd.Flags().StringVar(&snapshotDir, "snapshot-dir", "", "Directory for snapshots and the verification archive")
	investigateCmd.Flags().BoolVar(&mockLLM, "mock-llm", false, "Run without an LLM backend (keyword planning, no extraction)")
	investigateCmd.Flags().BoolVar(&mockSearch, "mock-search", false, "Run verification without a search backend")

	rootCmd.AddCommand(investigateCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runInvestigate wires the full stack and drives one investigation.
func runInvestigate(cmd *cobra.Command, args []string) error {
	objective := strings.TrimSpace(strings.Join(args, " "))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Graceful shutdown: first signal cancels the run, stores stay
	// intact long enough for the snapshot below.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("shutdown signal received, cancelling investigation")
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if workspace != "" {
		cfg.Workspace = workspace
	}
	if snapshotDir != "" {
		cfg.SnapshotDir = snapshotDir
	}
	if mockLLM {
		cfg.LLM.Mock = true
	}
	if mockSearch {
		cfg.Verification.MockSearch = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Initialize(cfg.Workspace); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer logging.CloseAll()

	// Long runs can have logging categories toggled mid-flight by editing
	// the config file; investigation-scoped settings stay fixed.
	if watcher, err := config.NewWatcher(configPath); err == nil {
		defer watcher.Close()
	} else {
		logger.Debug("config watcher unavailable", zap.Error(err))
	}

	investigationID := uuid.New().String()[:8]
	logger.Info("starting investigation",
		zap.String("id", investigationID),
		zap.String("objective", objective))

	// Shared infrastructure.
	hub := bus.New()
	defer hub.Close()
	reg := registry.New(90 * time.Second)
	defer reg.Stop()
	limiter := ratelimit.NewLLMLimiter(cfg.LLM.RPM, cfg.LLM.TPM)
	hosts := ratelimit.NewHostLimiter(cfg.Crawler.DefaultRatePerSecond, cfg.Crawler.RatePerSecond)

	urls := sources.NewURLManager()
	scorer := sources.NewAuthorityScorer(nil)
	coordinator := sources.NewContextCoordinator(hub)
	stores := store.NewStores()

	// Console progress: one line per orchestrator phase transition.
	progressSub := hub.Subscribe(bus.TopicProgress, func(msg bus.Message) {
		logger.Info("phase",
			zap.Any("phase", msg.Payload["phase"]),
			zap.Any("iteration", msg.Payload["iteration"]),
			zap.Any("findings", msg.Payload["findings"]),
			zap.Any("signal", msg.Payload["signal"]))
	})
	defer hub.Unsubscribe(progressSub)

	var archive *store.Archive
	if cfg.SnapshotDir != "" {
		if err := os.MkdirAll(cfg.SnapshotDir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
		archive, err = store.OpenArchive(filepath.Join(cfg.SnapshotDir, "verification.db"))
		if err != nil {
			return fmt.Errorf("open verification archive: %w", err)
		}
		defer archive.Close()
	}

	// Completion backend. Mock mode keeps the whole pipeline runnable
	// offline: keyword planning, no LLM extraction, hash-only dedup.
	var client llm.Client
	var embedder embedding.Engine
	if cfg.LLM.Mock {
		logger.Warn("mock LLM enabled; planning falls back to keywords and extraction is degraded")
		client = llm.NewMockClient()
	} else {
		gc := llm.DefaultGeminiConfig(cfg.GeminiAPIKey)
		gc.Model = cfg.LLM.Model
		if cfg.LLM.TimeoutSeconds > 0 {
			gc.Timeout = time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
		}
		client = llm.NewGeminiClient(gc, limiter)

		engine, err := embedding.NewGenAIEngine(ctx, cfg.GeminiAPIKey, "gemini-embedding-001")
		if err != nil {
			logger.Warn("embedding engine unavailable, semantic dedup disabled", zap.Error(err))
		} else {
			embedder = engine
		}
	}

	// Crawler cohort. All four crawlers register on the bus; the
	// orchestrator addresses them by capability, never directly.
	deps := crawler.NewDeps(hub, urls, scorer, coordinator, hosts, nil)
	browser := crawler.NewBrowserFetcher(30 * time.Second)
	defer browser.Close()

	cohort := crawler.NewCohort(hub, reg, stores.Articles,
		crawler.NewNewsCrawler(deps, crawler.NewsConfig{
			Feeds:        cfg.Crawler.Feeds,
			NewsAPIKey:   cfg.NewsAPIKey,
			QuotaPerHour: cfg.Crawler.NewsAPIQuotaPerHour,
		}),
		crawler.NewSocialCrawler(deps, crawler.SocialConfig{
			Subreddits: cfg.Crawler.Subreddits,
		}),
		crawler.NewDocumentCrawler(deps, crawler.DocumentConfig{
			MinContentChars: cfg.Crawler.MinDocumentChars,
		}),
		crawler.NewWebCrawler(deps, crawler.WebConfig{
			UserAgents: cfg.Crawler.UserAgents,
		}, browser),
	)
	defer cohort.Stop()

	// Sifting chain: extraction -> classification -> verification.
	agent := extraction.NewAgent(client, cfg.LLM.Model, cfg.Extraction.ChunkChars, cfg.Extraction.MinInputChars)
	consolidator := store.NewConsolidator(stores.Facts, embedder, cfg.Dedup.SemanticThreshold)
	pipeline := extraction.NewPipeline(agent, stores.Articles, stores.Facts, consolidator, cfg.Extraction.BatchSize)
	classifier := classify.NewEngine(scorer, stores.Facts, stores.Classifications, hub,
		cfg.Classify.EchoAlpha, cfg.Classify.ProximityDecay)

	var searcher verify.Searcher
	if cfg.SearchMocked() {
		logger.Warn("verification search mocked; flags will resolve as unverifiable")
	} else {
		searcher = verify.NewDuckDuckGoSearcher(hosts)
	}
	reclassifier := verify.NewReclassifier(stores.Facts, stores.Classifications, stores.Verifications,
		classify.NewImpactAssessor(objective), cfg.Verification.HumanReviewForCritical)
	batch := verify.NewBatch(verify.NewQueryGenerator(),
		verify.NewSearchExecutor(searcher, scorer, 8),
		reclassifier, stores.Facts, stores.Classifications, archive, hub,
		cfg.Verification.BatchSize, cfg.Verification.MaxQueryAttempts)

	// The executor hands each crawl pass's material to this closure. A
	// stage failure degrades the pass instead of killing the run, unless
	// the context itself is gone. Conflicts are reported once per pair.
	seenConflicts := make(map[string]bool)
	sift := func(ctx context.Context, invID string) (*orchestrator.SiftOutcome, error) {
		outcome := &orchestrator.SiftOutcome{}
		if _, err := pipeline.Run(ctx, invID); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			outcome.Errors = append(outcome.Errors, fmt.Errorf("extraction: %w", err))
		}
		if _, err := classifier.Run(ctx, invID, objective); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			outcome.Errors = append(outcome.Errors, fmt.Errorf("classification: %w", err))
		}
		if _, err := batch.Run(ctx, invID); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			outcome.Errors = append(outcome.Errors, fmt.Errorf("verification: %w", err))
		}
		for _, c := range stores.Classifications.List(invID) {
			for _, conflict := range c.Contradictions {
				key := conflict.FactID + "|" + conflict.OtherFactID
				if seenConflicts[key] {
					continue
				}
				seenConflicts[key] = true
				outcome.Conflicts = append(outcome.Conflicts, conflict)
			}
		}
		return outcome, nil
	}

	executor := orchestrator.NewBusExecutor(hub, stores.Articles, scorer, coordinator, sift, 2*time.Minute)
	planner := orchestrator.New(orchestrator.NewDecomposer(client), executor, reg, hub, cfg.Orchestrator)

	report, err := planner.Run(ctx, investigationID, objective)
	if err != nil {
		return fmt.Errorf("investigation failed: %w", err)
	}

	if cfg.SnapshotDir != "" {
		if err := stores.WriteSnapshot(cfg.SnapshotDir, investigationID); err != nil {
			logger.Error("snapshot write failed", zap.Error(err))
		} else {
			logger.Info("snapshot written", zap.String("dir", cfg.SnapshotDir))
		}
	}

	printReport(cmd.OutOrStdout(), report, stores)
	return nil
}

// printReport writes the human-readable investigation summary.
func printReport(w io.Writer, report *orchestrator.Report, stores *store.Stores) {
	invID := report.InvestigationID
	facts := stores.Facts.List(invID)
	classifications := stores.Classifications.List(invID)

	byStatus := make(map[types.VerificationStatus]int)
	flagged := 0
	for _, c := range classifications {
		byStatus[c.VerificationStatus]++
		if len(c.DubiousFlags) > 0 || len(c.OriginDubiousFlags) > 0 {
			flagged++
		}
	}

	fmt.Fprintf(w, "\nInvestigation %s\n", invID)
	fmt.Fprintf(w, "Objective:    %s\n", report.Objective)
	fmt.Fprintf(w, "Iterations:   %d (%d refinements)\n", report.Iterations, report.RefinementCount)
	fmt.Fprintf(w, "Findings:     %d from the final pass set\n", len(report.Findings))
	fmt.Fprintf(w, "Facts:        %d extracted, %d flagged dubious at some point\n", len(facts), flagged)
	fmt.Fprintf(w, "Signal:       %.2f\n", report.Signal)
	fmt.Fprintf(w, "Coverage:     sources %.2f  geographic %.2f  temporal %.2f  topic %.2f\n",
		report.Coverage.SourceDiversity, report.Coverage.Geographic,
		report.Coverage.Temporal, report.Coverage.Topic)

	if len(byStatus) > 0 {
		fmt.Fprintf(w, "Verification:")
		for _, status := range []types.VerificationStatus{
			types.StatusConfirmed, types.StatusRefuted, types.StatusSuperseded,
			types.StatusUnverifiable, types.StatusPending,
		} {
			if n := byStatus[status]; n > 0 {
				fmt.Fprintf(w, " %s=%d", status, n)
			}
		}
		fmt.Fprintln(w)
	}

	if len(report.Conflicts) > 0 {
		fmt.Fprintf(w, "Conflicts:    %d unresolved contradiction(s) ride into the report\n", len(report.Conflicts))
	}
	if review := stores.Classifications.GetPendingReview(invID); len(review) > 0 {
		fmt.Fprintf(w, "Human review: %d critical fact(s) awaiting sign-off\n", len(review))
		for _, c := range review {
			fmt.Fprintf(w, "  - %s (%s)\n", c.FactID, c.VerificationStatus)
		}
	}
}

// runReport loads a snapshot file and prints the same summary an
// investigation run ends with.
func runReport(cmd *cobra.Command, args []string) error {
	stores := store.NewStores()
	invID, err := stores.LoadSnapshot(args[0])
	if err != nil {
		return err
	}

	facts := stores.Facts.List(invID)
	classifications := stores.Classifications.List(invID)
	articles := stores.Articles.RetrieveByInvestigation(invID).Articles

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Investigation %s (snapshot)\n", invID)
	fmt.Fprintf(w, "Articles:        %d\n", len(articles))
	fmt.Fprintf(w, "Facts:           %d\n", len(facts))
	fmt.Fprintf(w, "Classifications: %d\n", len(classifications))

	byStatus := make(map[types.VerificationStatus]int)
	for _, c := range classifications {
		byStatus[c.VerificationStatus]++
	}
	for status, n := range byStatus {
		fmt.Fprintf(w, "  %-14s %d\n", status, n)
	}
	if review := stores.Classifications.GetPendingReview(invID); len(review) > 0 {
		fmt.Fprintf(w, "Pending human review: %d\n", len(review))
	}
	return nil
}
