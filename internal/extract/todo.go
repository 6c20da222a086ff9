package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// TodoEntry is one classified line of an agent-authored TODO list.
// Entries are only ever produced by TodoParser and are never authoritative
// beyond the last successful parse.
type TodoEntry struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	Blocked   bool   `json:"blocked"`
}

// ProgressUnknown is the sentinel returned when a session has no parsed
// TODO entries. It is deliberately not 0 or 100: "no data" must render
// differently from "nothing done" and "all done".
const ProgressUnknown = -1

// TodoFamilies configures the three pattern families the parser classifies
// against. Empty families fall back to the compiled-in defaults. Patterns
// are tried in declaration order within a family, and families in the
// order completed, blocked, pending.
type TodoFamilies struct {
	Completed []string
	Blocked   []string
	Pending   []string
}

// TodoParser partitions free text into lines and classifies each against
// the configured families. A line matching no family is silently dropped:
// it is not a TODO, and inventing a status for an ambiguous line would
// make downstream state untrustworthy. First matching family wins.
type TodoParser struct {
	completed []*regexp.Regexp
	blocked   []*regexp.Regexp
	pending   []*regexp.Regexp
}

// Agent output formats are uncontrolled, so the defaults cover the
// checkbox, unicode-mark, and bullet forms observed in the wild. The bare
// bullet fallback must come last within the pending family.
var (
	defaultCompleted = []string{
		`^[✓✅]\s+(.+)$`,
		`^\[[xX]\]\s+(.+)$`,
		`^\*\s+\[[xX]\]\s+(.+)$`,
		`^-\s+\[[xX]\]\s+(.+)$`,
	}
	defaultBlocked = []string{
		`^[✗❌]\s+(.+)$`,
		`^\[!\]\s+(.+)$`,
	}
	defaultPending = []string{
		`^-\s+\[ \]\s+(.+)$`,
		`^\*\s+\[ \]\s+(.+)$`,
		`^\[ \]\s+(.+)$`,
		`^[-⚬○]\s+(.+)$`,
		`^\*\s+(.+)$`,
	}
)

// todoSectionHeaders mark the start of a TODO section in markdown-ish
// agent output. When a header is present only the section is parsed;
// otherwise the whole text is.
var todoSectionHeaders = regexp.MustCompile(`(?i)^(#+\s*(TODO|Tasks?|Plan)|TODO:|Tasks?:|Plan:|\*\*(TODO|Tasks?|Plan)\*\*)`)

// NewTodoParser compiles a parser from the given families.
func NewTodoParser(families TodoFamilies) (*TodoParser, error) {
	completed, err := compileFamily("completed", families.Completed, defaultCompleted)
	if err != nil {
		return nil, err
	}
	blocked, err := compileFamily("blocked", families.Blocked, defaultBlocked)
	if err != nil {
		return nil, err
	}
	pending, err := compileFamily("pending", families.Pending, defaultPending)
	if err != nil {
		return nil, err
	}
	return &TodoParser{completed: completed, blocked: blocked, pending: pending}, nil
}

// MustTodoParser is NewTodoParser with the compiled-in defaults.
func MustTodoParser() *TodoParser {
	p, err := NewTodoParser(TodoFamilies{})
	if err != nil {
		panic(err)
	}
	return p
}

func compileFamily(name string, exprs, defaults []string) ([]*regexp.Regexp, error) {
	if len(exprs) == 0 {
		exprs = defaults
	}
	res := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("%s pattern %q: %w", name, expr, err)
		}
		res = append(res, re)
	}
	return res, nil
}

// Parse extracts an ordered TODO list from free text. The result reflects
// source line order. Unmatched lines are dropped, never errored on; an
// empty result from noisy input is the correct degraded outcome.
func (p *TodoParser) Parse(text string) []TodoEntry {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	section := extractTodoSection(text)
	if section == "" {
		section = text
	}

	var entries []TodoEntry
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if entry, ok := p.classifyLine(line); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// classifyLine tries each family in order: completed, blocked, pending.
// The entry text is the pattern's capture group when it has one, otherwise
// the remainder of the line after the match.
func (p *TodoParser) classifyLine(line string) (TodoEntry, bool) {
	if text, ok := matchFamily(p.completed, line); ok {
		return TodoEntry{Text: text, Completed: true}, true
	}
	if text, ok := matchFamily(p.blocked, line); ok {
		return TodoEntry{Text: text, Blocked: true}, true
	}
	if text, ok := matchFamily(p.pending, line); ok {
		return TodoEntry{Text: text}, true
	}
	return TodoEntry{}, false
}

func matchFamily(family []*regexp.Regexp, line string) (string, bool) {
	for _, re := range family {
		loc := re.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		var text string
		if len(loc) >= 4 && loc[2] >= 0 {
			text = line[loc[2]:loc[3]]
		} else {
			// No capture group: the entry text is whatever follows the
			// matched marker on the line.
			text = line[loc[1]:]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			// A marker with no text is not a TODO.
			continue
		}
		return text, true
	}
	return "", false
}

// extractTodoSection returns the text between a TODO-ish header and the
// next markdown header, or "" when no header is found.
func extractTodoSection(text string) string {
	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		if todoSectionHeaders.MatchString(strings.TrimSpace(line)) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return ""
	}

	end := len(lines)
	for i := start; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "#") {
			end = i
			break
		}
	}
	return strings.Join(lines[start:end], "\n")
}

// Progress computes integer completion percent for a TODO list. With zero
// entries it returns ProgressUnknown: a session whose agent has published
// no TODOs has unknown progress, not 0% and not 100%.
func Progress(entries []TodoEntry) int {
	if len(entries) == 0 {
		return ProgressUnknown
	}
	completed := 0
	for _, e := range entries {
		if e.Completed {
			completed++
		}
	}
	return completed * 100 / len(entries)
}
