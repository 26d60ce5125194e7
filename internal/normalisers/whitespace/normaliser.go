// Package whitespace folds line endings and runs of blanks in record texts.
package whitespace

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// Name is the registry name of the normaliser.
const Name = "whitespace"

var (
	blankRun  = regexp.MustCompile(`[ \t]+`)
	emptyRuns = regexp.MustCompile(`\n{3,}`)
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser folds whitespace while keeping paragraph breaks.
type Normaliser struct{}

// New creates a whitespace normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Name returns the normaliser name.
func (n *Normaliser) Name() string {
	return Name
}

// Normalise folds the claims and description texts.
func (n *Normaliser) Normalise(_ context.Context, rec *domain.PreparedRecord) error {
	if rec == nil {
		return domain.ErrInvalidInput
	}
	rec.Claims = Fold(rec.Claims)
	rec.Description = Fold(rec.Description)
	return nil
}

// Fold converts CRLF to LF, collapses blank runs to one space and at most
// one empty line between paragraphs, and trims the result.
func Fold(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSpace(s)
	s = blankRun.ReplaceAllString(s, " ")
	s = emptyRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
