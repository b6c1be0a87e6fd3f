// Package insights turns raw vision payloads into time-tagged sentences.
package insights

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the shape a frame output was recognized as
type Kind int

const (
	// KindUnstructured is free text with no usable JSON block
	KindUnstructured Kind = iota
	// KindStructured carries the current scene/people/behavior/movement schema
	KindStructured
	// KindLegacy only carries a flat insights list
	KindLegacy
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindLegacy:
		return "legacy"
	default:
		return "unstructured"
	}
}

// Output is one named vision output after classification
type Output struct {
	Name string
	Kind Kind
	Raw  string

	Description          string
	PlaceType            string
	EnvironmentalContext string
	NotableFeatures      []string
	PeopleCount          string
	Activity             string
	MovementDirection    string
	MovementVelocity     string
	Insights             []string
}

// Frame is the classified content of one frame payload
type Frame struct {
	Outputs         []Output
	DetectedClasses []string
}

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// structuredKeys mark an object as the current schema
var structuredKeys = []string{"scene_analysis", "people_analysis", "behavior_analysis", "movement_analysis"}

// textFields are checked in order for an output's free-form text
var textFields = []string{"output", "raw_output", "text"}

// ParseFrame classifies a raw payload. It fails only when the payload's
// outer shape is unusable; individual outputs always degrade to text.
func ParseFrame(payload map[string]any) (Frame, error) {
	var frame Frame
	if payload == nil {
		return frame, nil
	}

	entries, err := outputEntries(payload["outputs"])
	if err != nil {
		return frame, err
	}

	for _, entry := range entries {
		names := make([]string, 0, len(entry))
		for name := range entry {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			text, ok := outputText(entry[name])
			if !ok {
				continue
			}
			out := Classify(text)
			out.Name = name
			frame.Outputs = append(frame.Outputs, out)
		}
	}

	frame.DetectedClasses = stringList(payload["detected_classes"])
	return frame, nil
}

func outputEntries(raw any) ([]map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		entries := make([]map[string]any, 0, len(v))
		for i, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("outputs[%d] is %T, want object", i, item)
			}
			entries = append(entries, entry)
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("outputs is %T, want list", raw)
	}
}

func outputText(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, strings.TrimSpace(v) != ""
	case map[string]any:
		for _, field := range textFields {
			if s, ok := v[field].(string); ok && strings.TrimSpace(s) != "" {
				return s, true
			}
		}
	}
	return "", false
}

// Classify finds the first ```json fenced block in text and maps it onto the
// known schemas. Anything unparseable stays unstructured with Raw set.
func Classify(text string) Output {
	out := Output{Kind: KindUnstructured, Raw: strings.TrimSpace(text)}

	match := fencedJSON.FindStringSubmatch(text)
	if match == nil {
		return out
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(match[1]), &doc); err != nil || doc == nil {
		return out
	}

	out.Insights = stringList(doc["insights"])

	structured := false
	for _, key := range structuredKeys {
		if _, ok := doc[key]; ok {
			structured = true
			break
		}
	}

	switch {
	case structured:
		out.Kind = KindStructured
	case out.Insights != nil:
		out.Kind = KindLegacy
		return out
	default:
		return out
	}

	if scene, ok := doc["scene_analysis"].(map[string]any); ok {
		out.Description = stringField(scene, "overall_description")
		out.PlaceType = stringField(scene, "place_type")
		out.EnvironmentalContext = stringField(scene, "environmental_context")
		out.NotableFeatures = stringList(scene["notable_features"])
	}

	if people := firstObject(doc["people_analysis"]); people != nil {
		out.PeopleCount = scalarField(people, "count")
	}
	if behavior := firstObject(doc["behavior_analysis"]); behavior != nil {
		out.Activity = stringField(behavior, "activity")
	}

	if movement, ok := doc["movement_analysis"].(map[string]any); ok {
		out.MovementDirection = stringField(movement, "direction")
		out.MovementVelocity = stringField(movement, "velocity")
	}

	return out
}

func firstObject(raw any) map[string]any {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	obj, _ := list[0].(map[string]any)
	return obj
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

// scalarField renders strings and numbers, e.g. a people count
func scalarField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// stringList keeps the non-empty string items of a JSON list. A non-list
// yields nil.
func stringList(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	items := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			items = append(items, strings.TrimSpace(s))
		}
	}
	return items
}
