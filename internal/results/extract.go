// Package results turns a run's terminal output into structured, assertable
// facts. Extraction failures are always explicit; a missing shape never
// degrades to a zero value that could pass for a real negative result.
package results

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/revosurge/adwatch/internal/agent"
)

// Pattern declares what a flow's output is expected to contain. Zero-value
// fields mean "not expected" and are skipped.
type Pattern struct {
	// ListMarker names a MARKER_LIST_START/END block of entity names, e.g.
	// "CAMPAIGN_LIST" for campaign verification output.
	ListMarker string
	// ExpectNames must each appear in the extracted list (or anywhere in the
	// output, to tolerate truncated table cells).
	ExpectNames []string
	// CountPrefix names a PREFIX_BEFORE/PREFIX_AFTER count pair, e.g.
	// "CREATIVE_COUNT". Checked in the done payload first, then the text.
	CountPrefix string
	// Flags are boolean KEY: true/false markers, e.g. "LOGIN_SUCCESS".
	Flags []string
	// Fields are KEY: value markers, e.g. "REGISTRATION_EMAIL".
	Fields []string
}

// Structured is the typed extraction result.
type Structured struct {
	Names       []string
	CountBefore int
	CountAfter  int
	Flags       map[string]bool
	Fields      map[string]string
}

// CountDelta is the after-minus-before difference; only meaningful when the
// pattern requested counts.
func (s *Structured) CountDelta() int {
	return s.CountAfter - s.CountBefore
}

// ExtractionError reports which expected shape was absent. It is distinct
// from a run-level failure: the agent may have finished its task but produced
// output the extractor cannot parse.
type ExtractionError struct {
	Missing string
	Detail  string
}

func (e *ExtractionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("extraction failed: %s not found (%s)", e.Missing, e.Detail)
	}
	return fmt.Sprintf("extraction failed: %s not found", e.Missing)
}

// Extract applies the pattern against the outcome's done payload and
// transcript text, returning a typed result or an explicit error.
func Extract(outcome agent.RunOutcome, pattern Pattern) (*Structured, error) {
	text := outcome.DoneText
	if outcome.Transcript != nil {
		text += "\n" + outcome.Transcript.Text()
	}

	out := &Structured{
		Flags:  make(map[string]bool),
		Fields: make(map[string]string),
	}

	if pattern.ListMarker != "" {
		names, err := extractList(text, pattern.ListMarker)
		if err != nil {
			return nil, err
		}
		out.Names = names
	}

	for _, want := range pattern.ExpectNames {
		if !nameListed(out.Names, text, want) {
			return nil, &ExtractionError{Missing: "expected name", Detail: want}
		}
	}

	if pattern.CountPrefix != "" {
		before, after, err := extractCounts(outcome.DonePayload, text, pattern.CountPrefix)
		if err != nil {
			return nil, err
		}
		out.CountBefore, out.CountAfter = before, after
	}

	for _, flag := range pattern.Flags {
		value, err := extractFlag(text, flag)
		if err != nil {
			return nil, err
		}
		out.Flags[flag] = value
	}

	for _, field := range pattern.Fields {
		value, err := extractField(text, field)
		if err != nil {
			return nil, err
		}
		out.Fields[field] = value
	}

	return out, nil
}

// extractList pulls names out of a MARKER_START/MARKER_END block.
func extractList(text, marker string) ([]string, error) {
	re := regexp.MustCompile(`(?is)` + regexp.QuoteMeta(marker) + `_START\s*(.*?)\s*` + regexp.QuoteMeta(marker) + `_END`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil, &ExtractionError{Missing: marker + " block"}
	}
	var names []string
	for _, line := range strings.Split(m[1], "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	if len(names) == 0 {
		return nil, &ExtractionError{Missing: marker + " entries", Detail: "block present but empty"}
	}
	return names, nil
}

// nameListed matches case-insensitively and in both containment directions,
// because list cells are often truncated renderings of the full name.
func nameListed(names []string, text, want string) bool {
	wantLower := strings.ToLower(want)
	for _, name := range names {
		nameLower := strings.ToLower(name)
		if strings.Contains(nameLower, wantLower) || strings.Contains(wantLower, nameLower) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(text), wantLower)
}

// extractCounts resolves a before/after pair, preferring the machine-readable
// done payload over the transcript text.
func extractCounts(payload map[string]any, text, prefix string) (before, after int, err error) {
	lower := strings.ToLower(prefix)
	keys := func(suffix string) []string {
		return []string{lower + "_" + suffix, "count_" + suffix}
	}

	fromPayload := func(suffix string) (int, bool) {
		for _, key := range keys(suffix) {
			if v, ok := payload[key]; ok {
				switch n := v.(type) {
				case float64:
					return int(n), true
				case int:
					return n, true
				case string:
					if parsed, err := strconv.Atoi(n); err == nil {
						return parsed, true
					}
				}
			}
		}
		return 0, false
	}

	b, bOK := fromPayload("before")
	a, aOK := fromPayload("after")
	if bOK && aOK {
		return b, a, nil
	}

	fromText := func(suffix string) (int, bool) {
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(prefix) + `_` + suffix + `:\s*(\d+)`)
		if m := re.FindStringSubmatch(text); m != nil {
			n, _ := strconv.Atoi(m[1])
			return n, true
		}
		return 0, false
	}

	if !bOK {
		if b, bOK = fromText("BEFORE"); !bOK {
			return 0, 0, &ExtractionError{Missing: prefix + "_BEFORE"}
		}
	}
	if !aOK {
		if a, aOK = fromText("AFTER"); !aOK {
			return 0, 0, &ExtractionError{Missing: prefix + "_AFTER"}
		}
	}
	return b, a, nil
}

func extractFlag(text, flag string) (bool, error) {
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(flag) + `:\s*(true|false)`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return false, &ExtractionError{Missing: flag + " flag"}
	}
	return strings.EqualFold(m[1], "true"), nil
}

func extractField(text, field string) (string, error) {
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(field) + `:\s*(\S+)`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", &ExtractionError{Missing: field + " field"}
	}
	return m[1], nil
}
