package spec

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// DefaultMinParagraphs is the spec_focus per-family paragraph floor.
const DefaultMinParagraphs = 2

// Policy selects the spec text of a family from its description.
type Policy interface {
	// Name is the policy name recorded in the spec control declaration.
	Name() string

	// Select returns the spec text and its rune offset in the description.
	// An empty result excludes the family.
	Select(description string) (string, int)
}

// NewPolicy returns a policy by configuration name.
func NewPolicy(name string, minParagraphs int) (Policy, error) {
	switch name {
	case "", domain.SpecPolicyFullDescription:
		return FullDescription{}, nil
	case domain.SpecPolicySpecFocus:
		return NewFocus(minParagraphs), nil
	default:
		return nil, fmt.Errorf("unknown spec policy: %s", name)
	}
}

// FullDescription uses the whole normalised description.
type FullDescription struct{}

// Name returns the policy name.
func (FullDescription) Name() string { return domain.SpecPolicyFullDescription }

// Select returns the description unchanged.
func (FullDescription) Select(description string) (string, int) {
	return strings.TrimSpace(description), 0
}

var (
	blankLine  = regexp.MustCompile(`\n[ \t]*\n`)
	paraMarker = regexp.MustCompile(`\[\d{4}\]`)
	leadMarker = regexp.MustCompile(`^\s*\[\d{4}\]\s*`)

	headingNoise = regexp.MustCompile(`(?i)^\s*(technical field|field|background|description of related art|related art)\b`)
	summaryNoise = regexp.MustCompile(`(?i)^\s*(summary|brief summary)\b\s*$`)
	explanatory  = regexp.MustCompile(`(?i)\b(is|are|includes?|comprises?|has|have|formed|provided|arranged|disposed|mounted|coupled|connected|configured|wherein)\b`)
)

// Focus keeps explanatory paragraphs and drops section headings and bare
// summary lines. Families with fewer than MinParagraphs explanatory
// paragraphs are topped up with the first non-noise paragraphs.
type Focus struct {
	MinParagraphs int
}

// NewFocus creates a spec_focus policy.
func NewFocus(minParagraphs int) Focus {
	if minParagraphs <= 0 {
		minParagraphs = DefaultMinParagraphs
	}
	return Focus{MinParagraphs: minParagraphs}
}

// Name returns the policy name.
func (Focus) Name() string { return domain.SpecPolicySpecFocus }

// Select returns the kept paragraphs in document order joined by a blank line.
func (f Focus) Select(description string) (string, int) {
	paras := splitParagraphs(description)

	keep := make([]bool, len(paras))
	kept := 0
	for i, p := range paras {
		if !isNoise(p.text) && explanatory.MatchString(p.text) {
			keep[i] = true
			kept++
		}
	}
	for i, p := range paras {
		if kept >= f.MinParagraphs {
			break
		}
		if !keep[i] && !isNoise(p.text) {
			keep[i] = true
			kept++
		}
	}

	var out []string
	offset := -1
	for i, p := range paras {
		if !keep[i] {
			continue
		}
		if offset < 0 {
			offset = p.offset
		}
		out = append(out, p.text)
	}
	if offset < 0 {
		return "", 0
	}
	return strings.Join(out, "\n\n"), offset
}

type paragraph struct {
	text   string
	offset int
}

// splitParagraphs splits at blank lines and before "[0001]" style markers.
func splitParagraphs(s string) []paragraph {
	type cut struct{ end, next int }
	var cuts []cut
	for _, m := range blankLine.FindAllStringIndex(s, -1) {
		cuts = append(cuts, cut{m[0], m[1]})
	}
	for _, m := range paraMarker.FindAllStringIndex(s, -1) {
		if m[0] > 0 {
			cuts = append(cuts, cut{m[0], m[0]})
		}
	}
	sort.SliceStable(cuts, func(i, j int) bool { return cuts[i].end < cuts[j].end })

	var out []paragraph
	add := func(start, end int) {
		raw := s[start:end]
		text := strings.TrimSpace(raw)
		if text == "" {
			return
		}
		lead := len(raw) - len(strings.TrimLeft(raw, " \t\r\n"))
		out = append(out, paragraph{text: text, offset: utf8.RuneCountInString(s[:start+lead])})
	}

	start := 0
	for _, c := range cuts {
		if c.end < start {
			continue
		}
		add(start, c.end)
		start = c.next
	}
	add(start, len(s))
	return out
}

// isNoise reports section headings (first line only) and bare summary lines.
func isNoise(text string) bool {
	t := strings.TrimSpace(leadMarker.ReplaceAllString(text, ""))
	if t == "" {
		return true
	}
	first, _, _ := strings.Cut(t, "\n")
	return headingNoise.MatchString(first) || summaryNoise.MatchString(t)
}
