package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"prediction-engine/pkg/types"
)

const maxReasoningLines = 3

// rawDecision mirrors the JSON the models are asked to emit. Pointer fields
// distinguish absent from zero so defaults apply only to genuinely missing
// keys.
type rawDecision struct {
	Side       *string  `json:"side"`
	Confidence *float64 `json:"confidence"`
	Reasoning  []string `json:"reasoning"`
}

// ExtractDecision parses a model reply into a TradeDecision. Models wrap
// JSON in prose and code fences often enough that strict parsing is useless:
// the reply is scanned for the first balanced JSON object instead.
//
// Absent side defaults to NO, absent confidence to 0.5; confidence is
// clamped to [0,1] and reasoning truncated to 3 lines. A side present but
// not YES/NO fails the parse.
func ExtractDecision(reply string) (types.TradeDecision, error) {
	obj, err := firstJSONObject(stripCodeFences(reply))
	if err != nil {
		return types.TradeDecision{}, err
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return types.TradeDecision{}, fmt.Errorf("decode decision: %w", err)
	}

	side := types.SideNo
	if raw.Side != nil {
		switch strings.ToUpper(strings.TrimSpace(*raw.Side)) {
		case "YES":
			side = types.SideYes
		case "NO":
			side = types.SideNo
		default:
			return types.TradeDecision{}, fmt.Errorf("invalid side %q", *raw.Side)
		}
	}

	confidence := 0.5
	if raw.Confidence != nil {
		confidence = *raw.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
	}

	reasoning := raw.Reasoning
	if len(reasoning) > maxReasoningLines {
		reasoning = reasoning[:maxReasoningLines]
	}

	return types.TradeDecision{Side: side, Confidence: confidence, Reasoning: reasoning}, nil
}

// stripCodeFences removes markdown code fences, with or without a language
// tag, anywhere in the reply.
func stripCodeFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// firstJSONObject returns the first balanced {...} span, respecting strings
// and escapes so braces inside reasoning text do not end the object early.
func firstJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", errors.New("no JSON object in reply")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", errors.New("unbalanced JSON object in reply")
}
