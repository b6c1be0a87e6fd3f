package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	videoanalyst "video-insight/agents/video-analyst"
	"video-insight/shared/config"
	"video-insight/shared/frames"
	"video-insight/shared/monitoring"
	"video-insight/shared/pipeline"
	"video-insight/shared/scheduler"
)

var (
	runOnce    bool
	scoreAfter bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "video-analyst",
		Short:         "Analyze video frames and summarize what happens in them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Analyze the configured videos on the configured schedule",
		Args:  cobra.NoArgs,
		RunE:  runScheduler,
	}
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single pass and exit")

	analyzeCmd := &cobra.Command{
		Use:   "analyze <video>",
		Short: "Analyze one video file or URL and print the report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeVideo,
	}
	analyzeCmd.Flags().BoolVar(&scoreAfter, "score", false, "Score crowd and scene diversity from the summary")

	scoreCmd := &cobra.Command{
		Use:   "score [file|-]",
		Short: "Score diversity for an existing summary read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE:  scoreSummary,
	}

	rootCmd.AddCommand(runCmd, analyzeCmd, scoreCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		}),
	)
	slog.SetDefault(logger)

	return cfg, logger, nil
}

func runScheduler(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	// Create context that responds to signals
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics := monitoring.NewMetrics("video_insight")
	agent := videoanalyst.NewVideoAnalystAgent(cfg, metrics, logger)
	defer agent.Close()
	s := scheduler.New(cfg, agent, metrics, logger)

	if runOnce {
		logger.Info("running once")
		if err := agent.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize agent: %w", err)
		}
		return s.RunOnce(ctx)
	}

	logger.Info("starting scheduler")
	if err := s.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("scheduler failed: %w", err)
	}
	return nil
}

func analyzeVideo(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !cfg.NarrativeEnabled() {
		logger.Warn("no Gemini API key configured, summary will list raw insights")
	}

	runner := pipeline.NewRunner(cfg, frames.NewSource(&cfg.Frames, logger), nil, logger)
	report := videoanalyst.AnalyzeVideo(ctx, runner, args[0], scoreAfter)

	if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if !report.Success {
		return fmt.Errorf("analysis failed: %s", report.Error)
	}
	return nil
}

func scoreSummary(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open summary: %w", err)
		}
		defer file.Close()
		in = file
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read summary: %w", err)
	}
	summary := strings.TrimSpace(string(data))
	if summary == "" {
		return fmt.Errorf("summary is empty")
	}

	if !cfg.NarrativeEnabled() {
		logger.Warn("no Gemini API key configured, score will be all zeros")
	}

	runner := pipeline.NewRunner(cfg, nil, nil, logger)
	score := runner.ScoreDiversity(cmd.Context(), summary)
	return writeJSON(cmd.OutOrStdout(), score)
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
