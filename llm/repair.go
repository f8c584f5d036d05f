package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Tool-call argument payloads are usually valid JSON, but models still
// produce fenced blocks, trailing commas, and // comments often enough
// that every interpreter runs arguments through RepairJSON before
// unmarshalling.

var (
	fencedBlockPattern   = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	bareObjectPattern    = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// RepairJSON extracts and cleans a JSON object from a possibly damaged
// payload. Already-valid JSON is returned unchanged.
func RepairJSON(raw json.RawMessage) json.RawMessage {
	if json.Valid(raw) {
		return raw
	}

	content := string(raw)

	extracted := content
	if m := fencedBlockPattern.FindStringSubmatch(content); len(m) > 1 {
		extracted = m[1]
	} else if m := bareObjectPattern.FindString(content); m != "" {
		extracted = m
	}

	lines := strings.Split(extracted, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, stripLineComment(line))
	}
	result := strings.Join(cleaned, "\n")
	result = trailingCommaPattern.ReplaceAllString(result, "$1")

	return json.RawMessage(result)
}

// stripLineComment removes a // comment from a line, respecting string
// values so URLs survive.
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
