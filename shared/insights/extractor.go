package insights

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"video-insight/internal/models"
)

// Extractor flattens frame analyses into insight sentences
type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract walks results in order and never fails. Failed frames contribute
// nothing; a frame with a malformed payload is logged and skipped.
func (e *Extractor) Extract(results []models.FrameAnalysisResult) []string {
	insights := []string{}
	for _, result := range results {
		if result.Failed() {
			continue
		}

		lines, err := e.extractFrame(result)
		if err != nil {
			e.logger.Warn("skipping frame with malformed payload", "frame", result.FrameIndex, "error", err)
			continue
		}
		insights = append(insights, lines...)
	}
	return insights
}

func (e *Extractor) extractFrame(result models.FrameAnalysisResult) (lines []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			lines, err = nil, fmt.Errorf("extraction panic: %v", r)
		}
	}()

	frame, err := ParseFrame(result.Payload)
	if err != nil {
		return nil, err
	}

	for _, out := range frame.Outputs {
		if out.Kind == KindUnstructured {
			e.logger.Debug("using raw output text", "frame", result.FrameIndex, "output", out.Name)
		}
	}

	return FrameInsights(result.FrameTimeSeconds, frame), nil
}

// FrameInsights renders one classified frame. Order within a frame is fixed:
// description, place, notable features, people/behavior, movement, legacy
// insights, raw text, then detected classes.
func FrameInsights(seconds float64, frame Frame) []string {
	prefix := fmt.Sprintf("At %ss: ", strconv.FormatFloat(seconds, 'f', -1, 64))

	var lines []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			lines = append(lines, prefix+s)
		}
	}

	for _, out := range frame.Outputs {
		switch out.Kind {
		case KindStructured:
			add(out.Description)
			add(placeSentence(out))
			if len(out.NotableFeatures) > 0 {
				add("Notable features: " + strings.Join(out.NotableFeatures, ", "))
			}
			add(peopleSentence(out))
			add(movementSentence(out))
			for _, item := range out.Insights {
				add(item)
			}
		case KindLegacy:
			for _, item := range out.Insights {
				add(item)
			}
		default:
			add(out.Raw)
		}
	}

	if len(frame.DetectedClasses) > 0 {
		add("Detected objects: " + strings.Join(frame.DetectedClasses, ", "))
	}

	return lines
}

func placeSentence(out Output) string {
	if out.PlaceType == "" {
		return ""
	}
	if out.EnvironmentalContext == "" {
		return "Location: " + out.PlaceType
	}
	return fmt.Sprintf("Location: %s (%s)", out.PlaceType, out.EnvironmentalContext)
}

func peopleSentence(out Output) string {
	switch {
	case out.PeopleCount != "" && out.Activity != "":
		return fmt.Sprintf("People: %s, activity: %s", out.PeopleCount, out.Activity)
	case out.PeopleCount != "":
		return "People: " + out.PeopleCount
	case out.Activity != "":
		return "Activity: " + out.Activity
	default:
		return ""
	}
}

func movementSentence(out Output) string {
	if strings.EqualFold(out.MovementVelocity, "stationary") {
		return ""
	}
	switch {
	case out.MovementDirection != "" && out.MovementVelocity != "":
		return fmt.Sprintf("Movement: %s at %s speed", out.MovementDirection, out.MovementVelocity)
	case out.MovementVelocity != "":
		return fmt.Sprintf("Movement: %s speed", out.MovementVelocity)
	case out.MovementDirection != "":
		return "Movement: " + out.MovementDirection
	default:
		return ""
	}
}
