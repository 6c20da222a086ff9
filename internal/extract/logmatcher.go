// Package extract turns unstructured process output and agent-authored text
// into structured facts. Both extractors are forgiving-by-omission: input
// that matches no pattern yields an explicit no-match result, never an
// error. Pattern sets are data, so new log formats can be added without
// touching control flow.
package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// Tag classifies what a matched log line indicates.
type Tag string

const (
	// TagReady marks lines that indicate the service is up. The captured
	// value is the listen port.
	TagReady Tag = "ready"

	// TagError marks lines that indicate a fatal startup problem.
	TagError Tag = "error"
)

// Pattern is one tagged matcher in an ordered list.
type Pattern struct {
	Tag Tag
	Re  *regexp.Regexp
}

// Match is the result of a successful line classification.
type Match struct {
	Tag Tag

	// Value is the first capture group when the pattern has one,
	// otherwise the matched text.
	Value string
}

// LogMatcher scans log lines against an ordered pattern list. The first
// matching pattern wins; ties between patterns go to declaration order,
// not match length, so more specific patterns must be listed first.
type LogMatcher struct {
	patterns []Pattern
}

// Default patterns cover the common dev-server frameworks. Ready patterns
// capture the listen port.
var (
	defaultReadyPatterns = []string{
		`Server listening on.*:(\d+)`,
		`Ready on http://.*:(\d+)`,
		`Listening at.*:(\d+)`,
		`Started server on.*:(\d+)`,
		`Serving on http://.*:(\d+)`,
	}
	defaultErrorPatterns = []string{
		`^ERROR`,
		`EADDRINUSE`,
		`Fatal`,
		`uncaughtException`,
		`EACCES`,
	}
)

// NewLogMatcher builds a matcher from ordered tagged pattern lists.
// Ready patterns are consulted before error patterns, mirroring the
// declaration order callers pass in config.
func NewLogMatcher(readyExprs, errorExprs []string) (*LogMatcher, error) {
	if len(readyExprs) == 0 {
		readyExprs = defaultReadyPatterns
	}
	if len(errorExprs) == 0 {
		errorExprs = defaultErrorPatterns
	}

	var patterns []Pattern
	for _, expr := range readyExprs {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("ready pattern %q: %w", expr, err)
		}
		patterns = append(patterns, Pattern{Tag: TagReady, Re: re})
	}
	for _, expr := range errorExprs {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("error pattern %q: %w", expr, err)
		}
		patterns = append(patterns, Pattern{Tag: TagError, Re: re})
	}
	return &LogMatcher{patterns: patterns}, nil
}

// MustLogMatcher is NewLogMatcher for compiled-in defaults.
func MustLogMatcher() *LogMatcher {
	m, err := NewLogMatcher(nil, nil)
	if err != nil {
		panic(err)
	}
	return m
}

// MatchLine classifies a single line. Returns ok=false when no pattern
// matches; an unrecognized line is a normal outcome, not an error.
func (m *LogMatcher) MatchLine(line string) (Match, bool) {
	for _, p := range m.patterns {
		loc := p.Re.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		value := line[loc[0]:loc[1]]
		// Prefer the first capture group when present and non-empty.
		if len(loc) >= 4 && loc[2] >= 0 {
			value = line[loc[2]:loc[3]]
		}
		return Match{Tag: p.Tag, Value: strings.TrimSpace(value)}, true
	}
	return Match{}, false
}

// ScanLines classifies every line of text in order and returns the matches.
// Callers watching a server boot typically act on the last ready or error
// match in a capture window.
func (m *LogMatcher) ScanLines(text string) []Match {
	var matches []Match
	for _, line := range strings.Split(text, "\n") {
		if match, ok := m.MatchLine(line); ok {
			matches = append(matches, match)
		}
	}
	return matches
}
