package ai

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSONObject is returned when a response holds no JSON object at all.
var ErrNoJSONObject = errors.New("no JSON object in response")

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// ResponseCleaner recovers the JSON object from chatty or fenced model output.
// It never rewrites string contents.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

// CleanJSONResponse returns the first complete JSON object in response.
func (rc *ResponseCleaner) CleanJSONResponse(response string) (string, error) {
	s := rc.removeMarkdownBlocks(response)
	obj, ok := extractObject(s)
	if !ok {
		return "", ErrNoJSONObject
	}
	if json.Valid([]byte(obj)) {
		return obj, nil
	}
	fixed := trailingComma.ReplaceAllString(obj, "$1")
	if json.Valid([]byte(fixed)) {
		return fixed, nil
	}
	return "", &JSONValidationError{Original: response, Cleaned: obj, Message: "cleaned response is still not valid JSON"}
}

func (rc *ResponseCleaner) removeMarkdownBlocks(response string) string {
	s := strings.TrimSpace(response)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.Contains(s[:i], "{") {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// extractObject scans for the first balanced {...}, ignoring braces inside
// string literals.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
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
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// JSONValidationError carries the raw and cleaned text of an unusable response.
type JSONValidationError struct {
	Original string
	Cleaned  string
	Message  string
}

func (e *JSONValidationError) Error() string {
	return e.Message
}
