// Package langhint attaches content-based language evidence to a record.
//
// The evidence is a QC signal, not a language determination: script flags
// are computed over the claims text and reduced to a coarse hint. A declared
// hint that disagrees with the evidence is flagged, never overwritten.
package langhint

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// Name is the registry name of the normaliser.
const Name = "langhint"

// DefaultLowSignalRatio is the minimum share of letters among non-space runes.
const DefaultLowSignalRatio = 0.3

var (
	nonASCII = regexp.MustCompile(`[^\x00-\x7F]`)
	cjk      = regexp.MustCompile(`[\x{4E00}-\x{9FFF}]`)
	kana     = regexp.MustCompile(`[\x{3040}-\x{30FF}]`)
	hangul   = regexp.MustCompile(`[\x{AC00}-\x{D7AF}]`)

	// UTF-8 read as Windows-1252: "Ã©", "â€™", "Â " and replacement characters.
	mojibake = regexp.MustCompile(`Ã[\x{0080}-\x{00BF}]|â€|Â[\x{00A0}-\x{00BF}]|\x{FFFD}`)
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser derives script flags and a language hint.
type Normaliser struct {
	lowSignalRatio float64
}

// Option configures the normaliser.
type Option func(*Normaliser)

// WithLowSignalRatio sets the letter share below which text is flagged
// LOW_SIGNAL_DENSITY. Zero disables the check.
func WithLowSignalRatio(ratio float64) Option {
	return func(n *Normaliser) {
		if ratio >= 0 && ratio <= 1 {
			n.lowSignalRatio = ratio
		}
	}
}

// New creates a language evidence normaliser.
func New(opts ...Option) *Normaliser {
	n := &Normaliser{lowSignalRatio: DefaultLowSignalRatio}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name returns the normaliser name.
func (n *Normaliser) Name() string {
	return Name
}

// Normalise attaches evidence and governance flags.
func (n *Normaliser) Normalise(_ context.Context, rec *domain.PreparedRecord) error {
	if rec == nil {
		return domain.ErrInvalidInput
	}

	flags := Flags(rec.Claims)
	derived := Hint(rec.Claims, flags)

	declared := strings.TrimSpace(rec.Record.LanguageHint)
	rec.Language = domain.LanguageEvidence{
		Hint:    declared,
		Derived: derived,
		Flags:   flags,
	}
	if declared == "" {
		rec.Language.Hint = derived
	} else if Mismatch(declared, derived) {
		rec.Flag(domain.FlagLanguageHintMismatch)
	}

	if mojibake.MatchString(rec.Claims) || mojibake.MatchString(rec.Description) {
		rec.Flag(domain.FlagEncodingSuspect)
	}
	if n.lowSignalRatio > 0 && lowSignal(rec.Claims, n.lowSignalRatio) {
		rec.Flag(domain.FlagLowSignalDensity)
	}
	return nil
}

// Flags computes the script flags of a text.
func Flags(text string) domain.ScriptFlags {
	f := domain.ScriptFlags{
		HasNonASCII: nonASCII.MatchString(text),
		HasCJK:      cjk.MatchString(text),
		HasKana:     kana.MatchString(text),
		HasHangul:   hangul.MatchString(text),
	}
	f.ASCIIOnly = text != "" && !f.HasNonASCII
	return f
}

// Hint reduces script flags to a coarse language hint. Hangul wins over
// kana, and kana over bare CJK ideographs.
func Hint(text string, f domain.ScriptFlags) string {
	switch {
	case strings.TrimSpace(text) == "":
		return domain.LanguageHintEmpty
	case f.HasHangul:
		return domain.LanguageHintKorean
	case f.HasKana:
		return domain.LanguageHintJapanese
	case f.HasCJK:
		return domain.LanguageHintCJK
	case f.HasNonASCII:
		return domain.LanguageHintNonASCIIOther
	case f.ASCIIOnly:
		return domain.LanguageHintASCIIEn
	default:
		return domain.LanguageHintEmpty
	}
}

// Mismatch reports whether a declared hint contradicts the derived one.
// Unknown or empty evidence on either side never mismatches.
func Mismatch(declared, derived string) bool {
	switch {
	case declared == "" || declared == domain.LanguageHintUnknown:
		return false
	case derived == "" || derived == domain.LanguageHintEmpty || derived == domain.LanguageHintUnknown:
		return false
	}
	return declared != derived
}

func lowSignal(text string, ratio float64) bool {
	var letters, visible int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		visible++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if visible == 0 {
		return false
	}
	return float64(letters)/float64(visible) < ratio
}
