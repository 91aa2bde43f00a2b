package scheduling

import (
	"errors"
	"strings"
)

// Stage names one step of turning a model reply into blocks. It is carried
// in SchedulingError so operators can tell where a reply went wrong.
type Stage string

const (
	StageRequest        Stage = "request"
	StageStripFences    Stage = "strip_fences"
	StageExtractArray   Stage = "extract_array"
	StageTrailingCommas Stage = "trailing_commas"
	StageRepairStrings  Stage = "repair_strings"
	StageDecode         Stage = "decode"
	StageValidate       Stage = "validate"
)

var (
	errEmptyReply = errors.New("reply is empty")
	errNoArray    = errors.New("reply contains no JSON array")
)

type normalizeStep struct {
	stage Stage
	apply func(string) (string, error)
}

// normalizeSteps runs in order; each step sees the previous step's output.
var normalizeSteps = []normalizeStep{
	{stage: StageStripFences, apply: stripFences},
	{stage: StageExtractArray, apply: extractArray},
	{stage: StageTrailingCommas, apply: dropTrailingCommas},
	{stage: StageRepairStrings, apply: repairStrings},
}

// Normalize cleans a raw model reply into text that should decode as a JSON
// array. It does not decode it.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &SchedulingError{Stage: StageStripFences, Raw: raw, Err: errEmptyReply}
	}
	for _, step := range normalizeSteps {
		out, err := step.apply(s)
		if err != nil {
			return "", &SchedulingError{Stage: step.stage, Raw: raw, Err: err}
		}
		s = out
	}
	return s, nil
}

// stripFences removes a markdown code fence and its language tag, plus a
// bare leading "json" word some models emit without a fence.
func stripFences(s string) (string, error) {
	if open := strings.Index(s, "```"); open >= 0 {
		rest := s[open+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "[{") {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = rest
	}
	s = strings.TrimSpace(s)
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = strings.TrimSpace(s[4:])
	}
	return s, nil
}

// extractArray keeps the text from the array's opening '[' to the last ']'.
func extractArray(s string) (string, error) {
	start := arrayStart(s)
	end := strings.LastIndexByte(s, ']')
	if start < 0 || end <= start {
		return "", errNoArray
	}
	return s[start : end+1], nil
}

// arrayStart finds the first '[' that opens an array of objects or an empty
// array, so bracketed prose like "plan [v2]:" ahead of it is skipped. With
// no such bracket it falls back to the first '['.
func arrayStart(s string) int {
	first := -1
	for i := 0; i < len(s); i++ {
		if s[i] != '[' {
			continue
		}
		if first < 0 {
			first = i
		}
		rest := strings.TrimLeft(s[i+1:], " \t\r\n")
		if rest != "" && (rest[0] == '{' || rest[0] == ']') {
			return i
		}
	}
	return first
}

// dropTrailingCommas removes commas that directly precede a closing
// bracket or brace. Commas inside string literals are untouched.
func dropTrailingCommas(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isJSONSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == ']' || s[j] == '}') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

// repairStrings fixes string literals: a backslash that does not start a
// valid JSON escape is doubled, and raw control characters are escaped.
func repairStrings(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s) + 8)

	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		switch c {
		case '"':
			inString = false
			b.WriteByte(c)
		case '\\':
			if n := validEscapeLen(s[i:]); n > 0 {
				b.WriteString(s[i : i+n])
				i += n - 1
			} else {
				b.WriteString(`\\`)
			}
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// validEscapeLen reports the byte length of the escape sequence at the
// start of s, or 0 if s does not begin with a valid one.
func validEscapeLen(s string) int {
	if len(s) < 2 || s[0] != '\\' {
		return 0
	}
	switch s[1] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		return 2
	case 'u':
		if len(s) < 6 {
			return 0
		}
		for j := 2; j < 6; j++ {
			if !isHex(s[j]) {
				return 0
			}
		}
		return 6
	}
	return 0
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
