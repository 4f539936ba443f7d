package extract

import (
	"errors"
	"regexp"
	"strings"
)

type Policy int

const (
	// PolicyLenient passes unfenced text through unchanged.
	PolicyLenient Policy = iota
	// PolicyStrict rejects text that has no code fence.
	PolicyStrict
)

var ErrNoCodeFence = errors.New("model response contains no code fence")

const fence = "```"

var (
	importLine   = regexp.MustCompile(`(?m)^[ \t]*(?:import[ \t]+\S.*|from[ \t]+\S+[ \t]+import[ \t].*)$`)
	openingFence = regexp.MustCompile("(?m)^[ \t]*```[ \t]*(?:python3?|py)?[ \t]*$")
	fenceMarker  = regexp.MustCompile("```(?:python3?\\b|py\\b)?")
)

type Candidate struct {
	Code           string `json:"code"`
	Fenced         bool   `json:"fenced"`
	RemovedImports int    `json:"removed_imports"`
}

// Extract turns a raw model response into candidate code: the fenced block is
// unwrapped and whole-line import statements are removed.
func Extract(raw string, policy Policy) (Candidate, error) {
	code, fenced := unfence(raw)
	if !fenced && policy == PolicyStrict {
		return Candidate{}, ErrNoCodeFence
	}

	removed := len(importLine.FindAllStringIndex(code, -1))
	code = importLine.ReplaceAllString(code, "")

	return Candidate{
		Code:           strings.TrimSpace(code),
		Fenced:         fenced,
		RemovedImports: removed,
	}, nil
}

func unfence(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, fence) {
		return fenceMarker.ReplaceAllString(trimmed, ""), true
	}

	loc := openingFence.FindStringIndex(trimmed)
	if loc == nil {
		return trimmed, false
	}
	body := trimmed[loc[1]:]
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	return fenceMarker.ReplaceAllString(body, ""), true
}
