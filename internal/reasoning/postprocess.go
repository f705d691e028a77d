package reasoning

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
)

// FallbackExplanation is reported when the model reply holds no JSON object.
const FallbackExplanation = "Model response not parseable as JSON; falling back to heuristics."

// Flag is one object the model considers implausible.
type Flag struct {
	ObjectID string `json:"object_id"`
	Reason   string `json:"reason"`
}

// Opinion is the structured form of a model reply. Score and Verdict are nil
// when the reply did not provide a usable value.
type Opinion struct {
	Score       *float64
	Verdict     *string
	Explanation string
	Flagged     []Flag
	Parsed      bool
}

// ParseModelOutput extracts an Opinion from free-form model text. It tries
// the whole text as a JSON object first, then the span from the first '{'
// to the last '}'. It never fails; unusable input yields the fallback opinion.
func ParseModelOutput(raw string) Opinion {
	obj := extractObject(raw)
	if len(obj) == 0 {
		return Opinion{Explanation: FallbackExplanation, Flagged: []Flag{}}
	}

	op := Opinion{
		Score:       coerceScore(obj["plausibility_score"]),
		Explanation: explanation(obj["explanation"]),
		Flagged:     parseFlags(obj["flagged_objects"]),
		Parsed:      true,
	}
	if v, ok := obj["verdict"]; ok && v != nil {
		s := stringify(v)
		op.Verdict = &s
	}
	return op
}

func extractObject(raw string) map[string]any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	if obj, err := decodeObject(trimmed); err == nil {
		return obj
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil
	}
	obj, err := decodeObject(trimmed[start : end+1])
	if err != nil {
		return nil
	}
	return obj
}

// decodeObject parses text that must hold exactly one JSON object. Numbers
// stay json.Number so an out-of-range value elsewhere in the reply does not
// reject the whole object.
func decodeObject(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON object")
	}
	return obj, nil
}

// coerceScore accepts numbers, numeric strings and booleans. Anything else,
// and any non-finite result, is treated as absent.
func coerceScore(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case bool:
		if t {
			f = 1
		}
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func explanation(v any) string {
	if !truthy(v) {
		return ""
	}
	return stringify(v)
}

func parseFlags(v any) []Flag {
	flags := []Flag{}
	entries, ok := v.([]any)
	if !ok {
		return flags
	}
	for _, e := range entries {
		rec, ok := e.(map[string]any)
		if !ok {
			continue
		}
		id := scalarString(rec["object_id"])
		if id == "" {
			continue
		}
		flags = append(flags, Flag{
			ObjectID: id,
			Reason:   scalarString(rec["reason"]),
		})
	}
	return flags
}

// scalarString returns a trimmed string for string and number values.
// Booleans, objects and arrays yield "".
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		return err != nil || f != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// stringify renders a decoded JSON value as text. Strings are returned as-is,
// composites as compact JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
