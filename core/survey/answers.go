package survey

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/trezcool/feeded/core"
)

// ValidateAnswers reports whether every question has an answer.
// An answer is missing when its key is absent, nil or the empty string.
func ValidateAnswers(questions []Question, answers Answers) bool {
	for _, q := range questions {
		v, ok := answers[q.ID]
		if !ok || v == nil {
			return false
		}
		if s, isStr := v.(string); isStr && s == "" {
			return false
		}
	}
	return true
}

// CheckAnswerValues checks answers against the question kinds: scales must be integers
// within [ScaleMin, ScaleMax], single choices one of the options and texts strings.
// Unknown question ids are rejected.
func CheckAnswerValues(questions []Question, answers Answers) error {
	byID := make(map[string]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	var fields []core.FieldError
	for _, q := range questions {
		v, ok := answers[q.ID]
		if !ok || v == nil {
			continue
		}
		if msg := checkValue(q, v); msg != "" {
			fields = append(fields, core.FieldError{Field: q.ID, Error: msg})
		}
	}
	for id := range answers {
		if _, ok := byID[id]; !ok {
			fields = append(fields, core.FieldError{Field: id, Error: "unknown question"})
		}
	}
	if len(fields) > 0 {
		sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
		return core.NewValidationError(nil, fields...)
	}
	return nil
}

func checkValue(q Question, v interface{}) string {
	switch q.Kind {
	case KindScale:
		n, ok := toNumber(v)
		if !ok || n != math.Trunc(n) || n < ScaleMin || n > ScaleMax {
			return fmt.Sprintf("must be a whole number between %d and %d", ScaleMin, ScaleMax)
		}
	case KindSingleChoice:
		s, ok := v.(string)
		if !ok || !q.hasOption(s) {
			return "must be one of " + strings.Join(q.Options, ", ")
		}
	default:
		if _, ok := v.(string); !ok {
			return "must be text"
		}
	}
	return ""
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// formatValue renders an answer as a CSV cell. Numbers never carry trailing zeros
// and CRLF line breaks become LF, as CSV readers do inside quoted fields.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ReplaceAll(val, "\r\n", "\n")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	}
	return fmt.Sprint(v)
}

