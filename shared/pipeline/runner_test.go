package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-insight/internal/models"
	"video-insight/shared/ai"
	"video-insight/shared/insights"
)

type stubSource struct {
	frames []models.FrameImage
	err    error
	panics bool
}

func (s *stubSource) Extract(ctx context.Context, videoRef string) ([]models.FrameImage, error) {
	if s.panics {
		panic("decoder exploded")
	}
	return s.frames, s.err
}

// sceneAnalyzer answers with a plain-text scene per frame
type sceneAnalyzer struct {
	mu         sync.Mutex
	failFrames map[int]bool
	closed     bool
}

func (a *sceneAnalyzer) Analyze(ctx context.Context, image []byte) (map[string]any, error) {
	frame, err := strconv.Atoi(string(image))
	if err != nil {
		return nil, err
	}
	if a.failFrames[frame] {
		return nil, fmt.Errorf("vision API returned status 503 for frame %d", frame)
	}
	return map[string]any{
		"outputs": []any{
			map[string]any{"scene": fmt.Sprintf("frame %d scene", frame)},
		},
	}, nil
}

func (a *sceneAnalyzer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}

type recordingCompleter struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
	closed   bool
}

func (c *recordingCompleter) Complete(ctx context.Context, prompt string, gen ai.GenerationConfig) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	return c.response, c.err
}

func (c *recordingCompleter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

type runnerFixture struct {
	source        *stubSource
	analyzer      *sceneAnalyzer
	completer     *recordingCompleter
	analyzerOpens int
	completerOpen int
	sleeper       *sleepRecorder
}

func newRunnerFixture(frames int) *runnerFixture {
	return &runnerFixture{
		source:    &stubSource{frames: makeFrames(frames)},
		analyzer:  &sceneAnalyzer{failFrames: map[int]bool{}},
		completer: &recordingCompleter{response: "A calm street scene."},
		sleeper:   &sleepRecorder{},
	}
}

// runner builds a Runner; withEngine false simulates a missing API key
func (f *runnerFixture) runner(withEngine bool) *Runner {
	return NewRunnerWithOptions(RunnerOptions{
		Source: f.source,
		OpenAnalyzer: func(ctx context.Context) (AnalyzerSession, error) {
			f.analyzerOpens++
			return f.analyzer, nil
		},
		OpenCompleter: func(ctx context.Context) (CompleterSession, error) {
			f.completerOpen++
			if !withEngine {
				return nil, nil
			}
			return f.completer, nil
		},
		Orchestration: OrchestratorOptions{Sleep: f.sleeper.Sleep},
	})
}

func TestRunAnalysisPartialFrameFailures(t *testing.T) {
	f := newRunnerFixture(5)
	f.analyzer.failFrames[1] = true
	f.analyzer.failFrames[2] = true

	report := f.runner(true).RunAnalysis(context.Background(), "clip.mp4")

	require.True(t, report.Success)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "clip.mp4", report.VideoURL)
	assert.Equal(t, 5, report.TotalFrames)
	require.Len(t, report.FrameAnalyses, 5)
	assert.Equal(t, 2, report.FailedFrames())

	for i, fa := range report.FrameAnalyses {
		assert.Equal(t, i, fa.FrameIndex)
		if i == 1 || i == 2 {
			assert.Contains(t, fa.Error, fmt.Sprintf("frame %d failed after 3 attempts", i))
			assert.Nil(t, fa.Payload)
		} else {
			assert.Empty(t, fa.Error)
			assert.NotNil(t, fa.Payload)
		}
	}

	require.Len(t, f.completer.prompts, 1)
	prompt := f.completer.prompts[0]
	for _, frame := range []int{0, 3, 4} {
		assert.Contains(t, prompt, fmt.Sprintf("frame %d scene", frame))
	}
	assert.NotContains(t, prompt, "frame 1 scene")
	assert.NotContains(t, prompt, "frame 2 scene")

	require.NotNil(t, report.SummaryReport)
	assert.Equal(t, "A calm street scene.", report.SummaryReport.Summary)

	assert.True(t, f.analyzer.closed)
	assert.True(t, f.completer.closed)
	assert.Equal(t, 1, f.analyzerOpens)
}

func TestRunAnalysisWithoutNarrativeEngine(t *testing.T) {
	f := newRunnerFixture(3)

	report := f.runner(false).RunAnalysis(context.Background(), "clip.mp4")

	require.True(t, report.Success)
	expected := insights.NewExtractor(nil).Extract(report.FrameAnalyses)
	require.Len(t, expected, 3)
	assert.Equal(t, strings.Join(expected, "\n"), report.SummaryReport.Summary)
	assert.Empty(t, f.completer.prompts)
}

func TestRunAnalysisNoFrames(t *testing.T) {
	f := newRunnerFixture(0)

	report := f.runner(true).RunAnalysis(context.Background(), "empty.mp4")

	require.True(t, report.Success)
	assert.Equal(t, 0, report.TotalFrames)
	assert.Empty(t, report.FrameAnalyses)
	assert.Equal(t, ai.NoFramesSummary, report.SummaryReport.Summary)
	assert.Zero(t, f.analyzerOpens)
	assert.Zero(t, f.completerOpen)
	assert.Empty(t, f.completer.prompts)
}

func TestRunAnalysisSourceFailure(t *testing.T) {
	f := newRunnerFixture(0)
	f.source.err = errors.New("download failed: 404")

	report := f.runner(true).RunAnalysis(context.Background(), "https://example.com/missing.mp4")

	assert.False(t, report.Success)
	assert.Contains(t, report.Error, "download failed: 404")
	assert.Equal(t, 0, report.TotalFrames)
	assert.Nil(t, report.SummaryReport)
	assert.Zero(t, f.analyzerOpens)
}

func TestRunAnalysisRecoversPanics(t *testing.T) {
	f := newRunnerFixture(0)
	f.source.panics = true

	report := f.runner(true).RunAnalysis(context.Background(), "clip.mp4")

	assert.False(t, report.Success)
	assert.Contains(t, report.Error, "decoder exploded")
	assert.Len(t, report.FrameAnalyses, report.TotalFrames)
}

func TestRunAnalysisAnalyzerUnavailable(t *testing.T) {
	f := newRunnerFixture(3)
	r := f.runner(true)
	r.openAnalyzer = func(ctx context.Context) (AnalyzerSession, error) {
		return nil, errors.New("no route to host")
	}

	report := r.RunAnalysis(context.Background(), "clip.mp4")

	require.Len(t, report.FrameAnalyses, 3)
	assert.Equal(t, 3, report.FailedFrames())
	assert.Equal(t, ai.NoFramesSummary, report.SummaryReport.Summary)
}

func TestRunAnalysisSummaryFailure(t *testing.T) {
	f := newRunnerFixture(2)
	f.completer.err = errors.New("status 500")

	report := f.runner(true).RunAnalysis(context.Background(), "clip.mp4")

	assert.True(t, report.Success)
	require.Len(t, report.FrameAnalyses, 2)
	assert.Empty(t, report.SummaryReport.Summary)
	assert.Contains(t, report.SummaryReport.Error, "status 500")
	assert.True(t, f.completer.closed)
}

func TestScoreDiversity(t *testing.T) {
	t.Run("No JSON in response", func(t *testing.T) {
		f := newRunnerFixture(0)
		f.completer.response = "I cannot rate this video."

		score := f.runner(true).ScoreDiversity(context.Background(), "A crowded market.")

		assert.Equal(t, models.DiversityScore{}, score)
		assert.True(t, f.completer.closed)
	})

	t.Run("Valid response", func(t *testing.T) {
		f := newRunnerFixture(0)
		f.completer.response = "Scores:\n" + `{
			"crowd_diversity": {"age_group_variation": 0.5, "gender_distribution": 0.6, "ethnic_diversity": 0.7},
			"behavioral_diversity": {"movement_variation": 0.2, "activity_mix": 0.3, "group_vs_individual_ratio": 0.4},
			"environmental_diversity": {"location_type_variation": 0.1, "lighting_conditions": 0.9},
			"overall_diversity_score": 0.55
		}`

		score := f.runner(true).ScoreDiversity(context.Background(), "A crowded market.")

		assert.Equal(t, 0.55, score.OverallDiversityScore)
		assert.Equal(t, 0.6, score.CrowdDiversity.GenderDistribution)
		require.Len(t, f.completer.prompts, 1)
		assert.Contains(t, f.completer.prompts[0], "A crowded market.")
	})

	t.Run("No engine configured", func(t *testing.T) {
		f := newRunnerFixture(0)

		score := f.runner(false).ScoreDiversity(context.Background(), "A crowded market.")

		assert.Equal(t, models.DiversityScore{}, score)
		assert.Empty(t, f.completer.prompts)
	})
}
