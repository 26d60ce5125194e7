// Package charset repairs record texts that are not valid UTF-8.
//
// Invalid input is decoded once through the declared Windows-1252 fallback
// and the record is flagged. Valid UTF-8 is never re-decoded; mojibake that
// is already valid UTF-8 is left to the language evidence step to flag.
package charset

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// Name is the registry name of the normaliser.
const Name = "charset"

const bom = "\ufeff"

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser decodes invalid UTF-8 through Windows-1252.
type Normaliser struct{}

// New creates a charset normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Name returns the normaliser name.
func (n *Normaliser) Name() string {
	return Name
}

// Normalise repairs the claims and description texts.
func (n *Normaliser) Normalise(_ context.Context, rec *domain.PreparedRecord) error {
	if rec == nil {
		return domain.ErrInvalidInput
	}
	var fellBack bool
	rec.Claims, fellBack = repair(rec.Claims)
	if fellBack {
		rec.Flag(domain.FlagCharsetFallback)
	}
	rec.Description, fellBack = repair(rec.Description)
	if fellBack {
		rec.Flag(domain.FlagCharsetFallback)
	}
	return nil
}

// repair returns s as valid UTF-8 without a leading byte order mark and
// reports whether the fallback decoder was used.
func repair(s string) (string, bool) {
	fellBack := false
	if !utf8.ValidString(s) {
		decoded, err := charmap.Windows1252.NewDecoder().String(s)
		if err != nil {
			decoded = strings.ToValidUTF8(s, string(utf8.RuneError))
		}
		s = decoded
		fellBack = true
	}
	return strings.TrimPrefix(s, bom), fellBack
}
