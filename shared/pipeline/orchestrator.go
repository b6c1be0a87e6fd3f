// Package pipeline drives frame analysis for a video and assembles the final
// analysis report.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"video-insight/internal/models"
	"video-insight/shared/monitoring"
)

const (
	DefaultBatchSize   = 2
	DefaultBatchDelay  = 1000 * time.Millisecond
	DefaultMaxAttempts = 3
	DefaultBackoff     = 2000 * time.Millisecond
)

// FrameAnalyzer is the vision API boundary. An error means the attempt failed
// and may be retried.
type FrameAnalyzer interface {
	Analyze(ctx context.Context, image []byte) (map[string]any, error)
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// OrchestratorOptions tunes batching and retries. Zero values use the defaults.
type OrchestratorOptions struct {
	BatchSize   int
	BatchDelay  time.Duration
	MaxAttempts int
	Backoff     time.Duration
	Sleep       SleepFunc
	Metrics     *monitoring.Metrics
	Logger      *slog.Logger
}

// Orchestrator fans frames out to a FrameAnalyzer in sequential batches.
// Frames inside a batch run concurrently; a failing frame never affects the
// others.
type Orchestrator struct {
	analyzer    FrameAnalyzer
	batchSize   int
	batchDelay  time.Duration
	maxAttempts int
	backoff     time.Duration
	sleep       SleepFunc
	metrics     *monitoring.Metrics
	logger      *slog.Logger
}

func NewOrchestrator(analyzer FrameAnalyzer, opts OrchestratorOptions) *Orchestrator {
	o := &Orchestrator{
		analyzer:    analyzer,
		batchSize:   opts.BatchSize,
		batchDelay:  opts.BatchDelay,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		sleep:       opts.Sleep,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
	if o.batchSize <= 0 {
		o.batchSize = DefaultBatchSize
	}
	if o.batchDelay <= 0 {
		o.batchDelay = DefaultBatchDelay
	}
	if o.maxAttempts <= 0 {
		o.maxAttempts = DefaultMaxAttempts
	}
	if o.backoff <= 0 {
		o.backoff = DefaultBackoff
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Analyze returns exactly one result per frame, in input order
func (o *Orchestrator) Analyze(ctx context.Context, frames []models.FrameImage) []models.FrameAnalysisResult {
	results := make([]models.FrameAnalysisResult, len(frames))
	batches := (len(frames) + o.batchSize - 1) / o.batchSize

	for batch := 0; batch < batches; batch++ {
		start := batch * o.batchSize
		end := min(start+o.batchSize, len(frames))

		if batch > 0 {
			// Cancellation surfaces through the frame calls below
			_ = o.sleep(ctx, o.batchDelay)
		}

		o.logger.Debug("dispatching batch", "batch", batch+1, "of", batches, "frames", end-start)

		var g errgroup.Group
		g.SetLimit(o.batchSize)
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = o.analyzeFrame(ctx, frames[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	return results
}

func (o *Orchestrator) analyzeFrame(ctx context.Context, frame models.FrameImage) models.FrameAnalysisResult {
	result := models.FrameAnalysisResult{
		FrameIndex:       frame.Index,
		FrameTimeSeconds: frame.TimeSeconds(),
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		attempts = attempt
		payload, err := o.callAnalyzer(ctx, frame.Data)
		if err == nil {
			o.metrics.FrameAnalyzed()
			result.Payload = payload
			return result
		}
		lastErr = err

		if attempt == o.maxAttempts {
			break
		}

		delay := time.Duration(attempt) * o.backoff
		o.logger.Warn("frame analysis failed, retrying",
			"frame", frame.Index, "attempt", attempt, "retry_in", delay, "error", err)
		o.metrics.FrameRetried()

		if err := o.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	o.metrics.FrameFailed()
	o.logger.Error("frame analysis gave up", "frame", frame.Index, "attempts", attempts, "error", lastErr)
	result.Error = fmt.Sprintf("frame %d failed after %d attempts: %v", frame.Index, attempts, lastErr)
	return result
}

// callAnalyzer turns a panicking analyzer into a failed attempt
func (o *Orchestrator) callAnalyzer(ctx context.Context, image []byte) (payload map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analyzer panic: %v", r)
		}
	}()
	return o.analyzer.Analyze(ctx, image)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
