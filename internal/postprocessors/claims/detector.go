package claims

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/patentgov/internal/normalisers/whitespace"
)

// Parse methods recorded on claim chunks.
const (
	MethodNumbered   = "NUMBERED"
	MethodCJKMarker  = "CJK_MARKER"
	MethodUnnumbered = "UNNUMBERED_FALLBACK"
)

// Detector names used in configuration.
const (
	DetectorNumbered   = "numbered"
	DetectorCJK        = "cjk"
	DetectorUnnumbered = "unnumbered"
)

// Claim is one detected claim.
type Claim struct {
	// Number is the claim number as written.
	Number int

	// Text is the claim body without its enumeration prefix.
	Text string

	// Offset is the rune offset of the claim in the header-stripped text.
	Offset int
}

// Boundaries is the result of a successful detection.
type Boundaries struct {
	Method string

	// Claims are ordered by ascending claim number, one per number.
	Claims []Claim

	// Whole is set by detectors that cannot split claims; it becomes
	// the claim set verbatim.
	Whole string
}

// BoundaryDetector finds claim boundaries in a claims section.
// Detect returns false when the detector does not recognise the text.
type BoundaryDetector interface {
	Name() string
	Detect(text string) (Boundaries, bool)
}

// NewDetector returns a detector by configuration name.
func NewDetector(name string) (BoundaryDetector, error) {
	switch name {
	case DetectorNumbered:
		return Numbered{}, nil
	case DetectorCJK:
		return CJK{}, nil
	case DetectorUnnumbered:
		return Unnumbered{}, nil
	default:
		return nil, fmt.Errorf("unknown claim boundary detector: %s", name)
	}
}

var (
	numberedStart  = regexp.MustCompile(`(?m)^\s*(\d{1,4})\s*[\.):]\s+`)
	numberedPrefix = regexp.MustCompile(`^\s*\d{1,4}\s*[\.):]\s+`)

	cjkStarts = []*regexp.Regexp{
		regexp.MustCompile(`請求項\s*([0-9０-９]+)`),
		regexp.MustCompile(`(?:权利要求|權利要求)\s*([0-9０-９]+)`),
		regexp.MustCompile(`청구항\s*([0-9０-９]+)`),
	}
	cjkPrefix = regexp.MustCompile(`^[【\[]?\s*(?:請求項|权利要求|權利要求|청구항)\s*[0-9０-９]+\s*[】\]）):：.]?\s*`)

	unnumberedShape = regexp.MustCompile(`(?is)^\s*(claims?\s*(\(\s*\d+\s*\))?\s*)?(a|an|the)\b.{0,220}\b(comprising|comprises|including|includes)\b`)
)

// segment is a candidate claim between two boundary positions.
type segment struct {
	number     int
	start, end int
}

// collect keeps the first non-empty segment per number and orders by number.
func collect(text string, segs []segment, prefix *regexp.Regexp) []Claim {
	seen := make(map[int]bool, len(segs))
	var out []Claim
	for _, s := range segs {
		if seen[s.number] {
			continue
		}
		body := prefix.ReplaceAllString(strings.TrimSpace(text[s.start:s.end]), "")
		body = whitespace.Fold(body)
		if body == "" {
			continue
		}
		seen[s.number] = true
		out = append(out, Claim{
			Number: s.number,
			Text:   body,
			Offset: utf8.RuneCountInString(text[:s.start]),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Numbered splits on "1. ", "2) ", "10: " line starts.
type Numbered struct{}

// Name returns the detector name.
func (Numbered) Name() string { return DetectorNumbered }

// Detect segments the text at every numbered line start.
func (Numbered) Detect(text string) (Boundaries, bool) {
	matches := numberedStart.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return Boundaries{}, false
	}
	segs := make([]segment, 0, len(matches))
	for i, m := range matches {
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		segs = append(segs, segment{number: n, start: m[0], end: end})
	}
	claims := collect(text, segs, numberedPrefix)
	if len(claims) == 0 {
		return Boundaries{}, false
	}
	return Boundaries{Method: MethodNumbered, Claims: claims}, true
}

// CJK splits on Japanese, Chinese and Korean claim markers.
type CJK struct{}

// Name returns the detector name.
func (CJK) Name() string { return DetectorCJK }

// Detect segments the text at every claim marker, in text order.
func (CJK) Detect(text string) (Boundaries, bool) {
	var segs []segment
	for _, rx := range cjkStarts {
		for _, m := range rx.FindAllStringSubmatchIndex(text, -1) {
			n, ok := parseDigits(text[m[2]:m[3]])
			if !ok {
				continue
			}
			start, ok := markerStart(text, m[0])
			if !ok {
				continue
			}
			segs = append(segs, segment{number: n, start: start})
		}
	}
	if len(segs) == 0 {
		return Boundaries{}, false
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].start < segs[j].start })

	// A marker followed directly by another marker owns the next body.
	merged := make([]segment, 0, len(segs))
	for i := 0; i < len(segs); {
		s := segs[i]
		j := i + 1
		for {
			s.end = len(text)
			if j < len(segs) {
				s.end = segs[j].start
			}
			if j >= len(segs) || !emptyBody(text[s.start:s.end]) {
				break
			}
			j++
		}
		merged = append(merged, s)
		i = j
	}
	claims := collect(text, merged, cjkPrefix)
	if len(claims) == 0 {
		return Boundaries{}, false
	}
	return Boundaries{Method: MethodCJKMarker, Claims: claims}, true
}

// Unnumbered accepts a claims section shaped like "A/An/The ... comprising".
// The first paragraph stands in for claim 1.
type Unnumbered struct{}

// Name returns the detector name.
func (Unnumbered) Name() string { return DetectorUnnumbered }

// Detect returns the first paragraph as claim 1 and the whole text as the set.
func (Unnumbered) Detect(text string) (Boundaries, bool) {
	whole := whitespace.Fold(text)
	if whole == "" || !unnumberedShape.MatchString(whole) {
		return Boundaries{}, false
	}
	first := whole
	if i := strings.Index(whole, "\n\n"); i >= 0 {
		first = strings.TrimSpace(whole[:i])
	}
	return Boundaries{
		Method: MethodUnnumbered,
		Claims: []Claim{{Number: 1, Text: first}},
		Whole:  whole,
	}, true
}

func emptyBody(seg string) bool {
	return strings.TrimSpace(cjkPrefix.ReplaceAllString(strings.TrimSpace(seg), "")) == ""
}

// markerStart accepts a marker only at a line start or right after an
// opening bracket, so references such as "請求項1に記載の" inside a claim
// body are not taken as boundaries. It returns the segment start.
func markerStart(text string, pos int) (int, bool) {
	before := strings.TrimRight(text[:pos], " \t　")
	switch {
	case before == "" || strings.HasSuffix(before, "\n"):
		return pos, true
	case strings.HasSuffix(before, "【"):
		return len(before) - len("【"), true
	case strings.HasSuffix(before, "["):
		return len(before) - 1, true
	}
	return 0, false
}

// parseDigits parses ASCII or full-width decimal digits.
func parseDigits(s string) (int, bool) {
	ascii := strings.Map(func(r rune) rune {
		if r >= '０' && r <= '９' {
			return '0' + (r - '０')
		}
		return r
	}, s)
	n, err := strconv.Atoi(ascii)
	if err != nil {
		return 0, false
	}
	return n, true
}
