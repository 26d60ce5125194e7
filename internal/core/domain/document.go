package domain

// TextRecord is one validated text record handed over by the acquisition
// collaborator. The core trusts HasClaims and HasClaim1 as given but never
// trusts population symmetry.
type TextRecord struct {
	// FamilyID is the external family identity. It is never rewritten
	// from text-derived data.
	FamilyID string `json:"family_id"`

	// SelectedPublication is the publication chosen to represent the family.
	SelectedPublication string `json:"selected_publication"`

	// Source names the text lane (e.g. GOOGLE).
	Source string `json:"source"`

	// ClaimsRaw is the claims section as fetched.
	ClaimsRaw string `json:"claims_raw"`

	// DescriptionRaw is the description section as fetched.
	DescriptionRaw string `json:"description_raw"`

	// HasClaims reports whether usable claims text was found upstream.
	HasClaims bool `json:"has_claims"`

	// HasClaim1 reports whether claim 1 was detected upstream.
	HasClaim1 bool `json:"has_claim_1"`

	// Claim1Method is the upstream detection method (REGEX_NUMBERED, CJK_NUMBERED, ...).
	Claim1Method string `json:"claim1_method,omitempty"`

	// LanguageHint is the coarse script label (ascii_en_like, ja_like, ...).
	LanguageHint string `json:"language_hint"`

	// Lineage carries provenance fields from acquisition.
	Lineage map[string]string `json:"lineage,omitempty"`
}

// Family is one invention-equivalence unit. Owned by an external identity
// authority and only referenced here.
type Family struct {
	FamilyID            string
	SelectedPublication string
	LanguageHint        string
}

// Family returns the family reference carried by the record.
func (r TextRecord) Family() Family {
	return Family{
		FamilyID:            r.FamilyID,
		SelectedPublication: r.SelectedPublication,
		LanguageHint:        r.LanguageHint,
	}
}

// Language hints produced by script detection.
const (
	LanguageHintASCIIEn       = "ascii_en_like"
	LanguageHintKorean        = "ko_like"
	LanguageHintJapanese      = "ja_like"
	LanguageHintCJK           = "cjk_like"
	LanguageHintNonASCIIOther = "nonascii_other"
	LanguageHintEmpty         = "empty"
	LanguageHintUnknown       = "unknown"
)

// ScriptFlags is content-based script evidence for a text.
// It is a QC signal, not a language determination.
type ScriptFlags struct {
	HasNonASCII bool `json:"has_nonascii"`
	HasCJK      bool `json:"has_cjk"`
	HasKana     bool `json:"has_kana"`
	HasHangul   bool `json:"has_hangul"`
	ASCIIOnly   bool `json:"is_ascii_only"`
}

// LanguageEvidence records how a language hint was obtained.
type LanguageEvidence struct {
	// Hint is the hint attached to the chunk.
	Hint string `json:"language_hint"`

	// Derived is the hint computed from the claims text itself.
	Derived string `json:"derived_language_hint"`

	// Flags are the script flags behind Derived.
	Flags ScriptFlags `json:"script_flags"`
}

// GovernanceFlag annotates a record without failing it.
type GovernanceFlag string

// Known governance flags.
const (
	// FlagEncodingSuspect marks text with mojibake signatures. Never auto-repaired.
	FlagEncodingSuspect GovernanceFlag = "ENCODING_SUSPECT"

	// FlagLowSignalDensity marks text dominated by non-letter content.
	FlagLowSignalDensity GovernanceFlag = "LOW_SIGNAL_DENSITY"

	// FlagCharsetFallback marks text decoded through the declared Windows-1252 fallback.
	FlagCharsetFallback GovernanceFlag = "CHARSET_FALLBACK_CP1252"

	// FlagClaim1FallbackFirst marks a claim_1 taken from the lowest-numbered claim.
	FlagClaim1FallbackFirst GovernanceFlag = "CLAIM1_FALLBACK_TO_FIRST"

	// FlagLanguageHintMismatch marks a declared hint that disagrees with script evidence.
	FlagLanguageHintMismatch GovernanceFlag = "LANGUAGE_HINT_MISMATCH"
)

// PreparedRecord is a TextRecord after text normalisation. Normalisers
// rewrite Claims and Description in place and attach evidence and flags.
type PreparedRecord struct {
	Record      TextRecord
	Claims      string
	Description string
	Language    LanguageEvidence
	Flags       []GovernanceFlag
}

// NewPreparedRecord seeds a prepared record with the raw texts.
func NewPreparedRecord(rec TextRecord) *PreparedRecord {
	return &PreparedRecord{
		Record:      rec,
		Claims:      rec.ClaimsRaw,
		Description: rec.DescriptionRaw,
		Language:    LanguageEvidence{Hint: rec.LanguageHint},
	}
}

// Flag adds a governance flag once.
func (p *PreparedRecord) Flag(f GovernanceFlag) {
	for _, existing := range p.Flags {
		if existing == f {
			return
		}
	}
	p.Flags = append(p.Flags, f)
}

// HasFlag reports whether the flag is set.
func (p *PreparedRecord) HasFlag(f GovernanceFlag) bool {
	for _, existing := range p.Flags {
		if existing == f {
			return true
		}
	}
	return false
}

// NewChunk returns a chunk of the record's family carrying its language
// evidence and a copy of its governance flags. Policy version, ids and
// timestamps are stamped by the chunk generator.
func (p *PreparedRecord) NewChunk(t ChunkType, text string, spanStart int) Chunk {
	var flags []GovernanceFlag
	if len(p.Flags) > 0 {
		flags = append(flags, p.Flags...)
	}
	return Chunk{
		FamilyID:            p.Record.FamilyID,
		SelectedPublication: p.Record.SelectedPublication,
		Source:              p.Record.Source,
		ChunkType:           t,
		Text:                text,
		LanguageHint:        p.Language.Hint,
		SpanStart:           spanStart,
		Language:            p.Language,
		GovernanceFlags:     flags,
	}
}
