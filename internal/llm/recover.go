package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned by DecodeJSON when no JSON object could be recovered.
var ErrNoJSON = errors.New("no JSON object in completion")

var codeFence = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)\\n?```")

// StripFences removes a Markdown code fence and any stray leading or
// trailing backticks around a completion.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFence.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(strings.Trim(s, "`"))
}

// DecodeJSON recovers a JSON object from a completion and unmarshals it.
// Fences are stripped first; if that still fails, the outermost {...}
// span is tried, which handles prose before or after the object.
func DecodeJSON(completion string, out any) error {
	s := StripFences(completion)
	if s == "" {
		return ErrNoJSON
	}

	err := json.Unmarshal([]byte(s), out)
	if err == nil {
		return nil
	}

	open := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if open == -1 || end <= open {
		return errors.Join(ErrNoJSON, err)
	}
	if err2 := json.Unmarshal([]byte(s[open:end+1]), out); err2 != nil {
		return errors.Join(ErrNoJSON, err2)
	}
	return nil
}
