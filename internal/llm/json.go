package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFences removes a leading/trailing markdown code fence from a
// model response. Models wrap JSON in ```json blocks often enough that every
// structured-output consumer goes through this first.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line, language tag included.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		return strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractJSON finds the outermost JSON object or array in a response,
// tolerating prose before and after it.
func ExtractJSON(s string) string {
	s = StripCodeFences(s)
	start := -1
	for i, r := range s {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return s
	}
	open := s[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

// UnmarshalResponse decodes a model response into v, stripping fences and
// surrounding prose first.
func UnmarshalResponse(response string, v interface{}) error {
	payload := ExtractJSON(response)
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}
