package agent

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/ashureev/gita-reflect/internal/shared"
)

// Bounds on the suggested replies a reply must carry.
const (
	MinOptions = 2
	MaxOptions = 3
)

var (
	jsonBlockPattern     = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	jsonObjectPattern    = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// rawReply mirrors the JSON the model is asked to produce. Pointer and
// RawMessage fields distinguish absent keys from zero values.
type rawReply struct {
	Message            *string         `json:"message"`
	Options            json.RawMessage `json:"options"`
	ProgressPercentage *float64        `json:"progressPercentage"`
	ShouldShowShloka   json.RawMessage `json:"shouldShowShloka"`
	ShlokaQuery        *string         `json:"shlokaQuery"`
}

// ParseReply extracts and validates a reply from raw model output.
// Any contract violation is reported as ProcessingFailed.
func ParseReply(content string) (*Reply, error) {
	raw := extractJSON(content)
	if raw == "" {
		return nil, shared.ProcessingFailed(fmt.Errorf("no JSON object in model output"))
	}

	var r rawReply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, shared.ProcessingFailed(fmt.Errorf("decode model output: %w", err))
	}

	if r.Message == nil || strings.TrimSpace(*r.Message) == "" {
		return nil, shared.ProcessingFailed(fmt.Errorf("model output missing message"))
	}

	var options []string
	if isNull(r.Options) || json.Unmarshal(r.Options, &options) != nil || options == nil {
		return nil, shared.ProcessingFailed(fmt.Errorf("model output options must be an array of strings"))
	}

	options = cleanOptions(options)
	if len(options) < MinOptions || len(options) > MaxOptions {
		return nil, shared.ProcessingFailed(fmt.Errorf("model output has %d options, want %d to %d", len(options), MinOptions, MaxOptions))
	}

	var show bool
	if isNull(r.ShouldShowShloka) || json.Unmarshal(r.ShouldShowShloka, &show) != nil {
		return nil, shared.ProcessingFailed(fmt.Errorf("model output shouldShowShloka must be a boolean"))
	}

	reply := &Reply{
		Message:         strings.TrimSpace(*r.Message),
		Options:         options,
		ShouldShowVerse: show,
	}
	if r.ProgressPercentage != nil {
		p := int(math.Round(*r.ProgressPercentage))
		reply.Progress = &p
	}
	if r.ShlokaQuery != nil {
		reply.VerseQuery = strings.TrimSpace(*r.ShlokaQuery)
	}
	return reply, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func cleanOptions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// extractJSON finds the JSON object in model output, tolerating markdown
// fences. Trailing commas are stripped only when the object does not
// already decode, so valid string values are never rewritten.
func extractJSON(content string) string {
	var raw string
	if m := jsonBlockPattern.FindStringSubmatch(content); len(m) > 1 {
		raw = m[1]
	} else {
		raw = jsonObjectPattern.FindString(content)
	}
	if raw == "" {
		return ""
	}
	if json.Valid([]byte(raw)) {
		return raw
	}
	return trailingCommaPattern.ReplaceAllString(raw, "$1")
}
