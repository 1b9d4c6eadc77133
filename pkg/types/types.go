// Package types defines the shared domain types used across all Clinscribe
// packages.
//
// These types form the lingua franca between the recognition adapter, the
// enhancement pipeline, the session registry, and the event broker. They are
// intentionally minimal — each package defines its own internals, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// TermCategory classifies a detected medical term into one of the fixed
// vocabulary categories.
type TermCategory string

const (
	CategoryAnatomy     TermCategory = "anatomy"
	CategorySymptoms    TermCategory = "symptoms"
	CategoryMedications TermCategory = "medications"
	CategoryProcedures  TermCategory = "procedures"
	CategoryConditions  TermCategory = "conditions"
)

// TermCategories lists all categories in their fixed scan order. Detection
// iterates this slice, never a map, so results are deterministic.
var TermCategories = []TermCategory{
	CategoryAnatomy,
	CategorySymptoms,
	CategoryMedications,
	CategoryProcedures,
	CategoryConditions,
}

// IsValid reports whether c is a recognised term category.
func (c TermCategory) IsValid() bool {
	switch c {
	case CategoryAnatomy, CategorySymptoms, CategoryMedications,
		CategoryProcedures, CategoryConditions:
		return true
	}
	return false
}

// Section is a SOAP clinical-note section classification.
type Section string

const (
	SectionSubjective Section = "subjective"
	SectionObjective  Section = "objective"
	SectionAssessment Section = "assessment"
	SectionPlan       Section = "plan"

	// SectionGeneral is the fallback when no section scores above zero.
	SectionGeneral Section = "general"
)

// Sections lists the four scored SOAP sections in their fixed enumeration
// order. Ties during classification are broken by this order.
var Sections = []Section{
	SectionSubjective,
	SectionObjective,
	SectionAssessment,
	SectionPlan,
}

// IsValid reports whether s is a recognised section.
func (s Section) IsValid() bool {
	switch s {
	case SectionSubjective, SectionObjective, SectionAssessment,
		SectionPlan, SectionGeneral:
		return true
	}
	return false
}

// Quality is a discrete audio-quality bucket derived from either a raw audio
// buffer or a recognition confidence score.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
	QualityCritical  Quality = "critical"

	// QualityUnknown is the zero-state before any signal has been observed.
	QualityUnknown Quality = "unknown"
)

// MedicalTerm is a single vocabulary hit found in recognised text.
type MedicalTerm struct {
	// Term is the matched text exactly as it appears in the raw input.
	Term string `json:"term"`

	// Category is the vocabulary category the term was matched under.
	Category TermCategory `json:"category"`

	// Confidence is the detection confidence (0.0–1.0). Dictionary hits carry
	// a fixed baseline; phonetic hits carry their similarity score.
	Confidence float64 `json:"confidence"`

	// Correction is the canonical replacement for a misrecognised term.
	// Empty when the term needs no correction.
	Correction string `json:"correction,omitempty"`

	// StartPosition and EndPosition are byte offsets into the raw text the
	// term was found in. Invariant: 0 <= StartPosition < EndPosition <= len(raw).
	StartPosition int `json:"startPosition"`
	EndPosition   int `json:"endPosition"`
}

// TranscriptionResult is one enriched recognition event for a session.
// It is created once per recognizer callback and immutable afterwards.
type TranscriptionResult struct {
	// SessionID identifies the dictation session this result belongs to.
	SessionID string `json:"sessionId"`

	// RawText is the text exactly as the recognition engine produced it.
	RawText string `json:"rawText"`

	// EnhancedText is RawText with vocabulary corrections applied. For
	// interim results enhancement is skipped and EnhancedText equals RawText.
	EnhancedText string `json:"enhancedText"`

	// Confidence is the engine-reported confidence (0.0–1.0), passed through
	// untouched.
	Confidence float64 `json:"confidence"`

	// IsInterim marks a low-latency hypothesis that will be superseded by a
	// later final result. Interim results are never persisted into the
	// session transcript.
	IsInterim bool `json:"isInterim"`

	// Section is the SOAP classification of the enhanced text.
	Section Section `json:"section"`

	// MedicalTerms lists vocabulary hits in positional order.
	MedicalTerms []MedicalTerm `json:"medicalTerms,omitempty"`

	// AudioQuality is the quality bucket derived from the canonical signal.
	AudioQuality Quality `json:"audioQuality"`

	// Timestamp is when the result was constructed.
	Timestamp time.Time `json:"timestamp"`
}
