package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Shared pattern fragments for event-tagged log lines of the form
// "<date> <time> [<EVENT> (ID: <n>)] <Key>: <Value> | ...".
const (
	ws  = `[ \t]*`
	sep = ws + `\|` + ws

	linePrefix = `(?m)^` + ws +
		`(?P<date>\d{1,2}/\d{1,2}/\d{4}|\d{4}-\d{2}-\d{2})[ \t]+` +
		`(?P<time>\d{1,2}:\d{2}:\d{2}(?:[ \t]?[AaPp][Mm])?)[ \t]+\[`

	directionField = `Direction:` + ws + `(?P<dir>(?i:LONG|SHORT))`
)

// num returns a named capture for a numeric token. The token is captured
// loosely so that malformed values still match and fall back to zero.
func num(name string) string {
	return `(?P<` + name + `>[^|\s]+)`
}

// taggedLine compiles a pattern for one event tag with an ID.
func taggedLine(tag, fields string) *regexp.Regexp {
	return regexp.MustCompile(linePrefix + tag + ws + `\(ID:` + ws + `(?P<id>\d+)\)\]` + ws + fields)
}

// runStartRe matches the optional run header shared by all dialects.
var runStartRe = regexp.MustCompile(`(?m)\[RUN START\]` + ws + `Strategy:` + ws +
	`(?P<strategy>[^|\n]+?)` + ws + `(?:\|` + ws + `Run:` + ws + `(?P<run>[^|\n]+?))?` + ws + `$`)

// match is one regular expression match with access to named groups.
type match struct {
	re     *regexp.Regexp
	groups []string
}

// get returns the named group, or "" when the group did not participate.
func (m match) get(name string) string {
	i := m.re.SubexpIndex(name)
	if i < 0 || i >= len(m.groups) {
		return ""
	}
	return strings.TrimSpace(m.groups[i])
}

// scan returns all matches of re in text in source order.
func scan(re *regexp.Regexp, text string) []match {
	all := re.FindAllStringSubmatch(text, -1)
	matches := make([]match, 0, len(all))
	for _, groups := range all {
		matches = append(matches, match{re: re, groups: groups})
	}
	return matches
}

// fieldReader converts captured text to numbers. A value that fails to
// convert, or converts to NaN or an infinity, becomes 0 and is counted in
// malformed.
type fieldReader struct {
	malformed int
}

func (f *fieldReader) float(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(v) {
		f.malformed++
		return 0
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// money parses currency tokens such as "$25.00", "-$10.00", "$-10.00" and "($10.00)".
func (f *fieldReader) money(s string) float64 {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "$")
	v := f.float(s)
	if negative {
		return -v
	}
	return v
}

func (f *fieldReader) int(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.Atoi(s)
	if err != nil {
		// Accept "12.0" style counts.
		if fv, ferr := strconv.ParseFloat(s, 64); ferr == nil && finite(fv) {
			return int(fv)
		}
		f.malformed++
		return 0
	}
	return v
}

var dateLayouts = []string{"2006-01-02", "1/2/2006"}

// NormalizeDate converts "M/D/YYYY" or "YYYY-MM-DD" to canonical "YYYY-MM-DD".
// Unrecognized input is returned trimmed and unchanged.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

var timeLayouts = []string{"15:04:05", "3:04:05 PM", "3:04:05PM", "3:04:05 pm", "3:04:05pm"}

// NormalizeTime converts 12- or 24-hour clock text to "HH:MM:SS".
// Unrecognized input is returned trimmed and unchanged.
func NormalizeTime(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04:05")
		}
	}
	return s
}
