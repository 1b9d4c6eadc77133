// Package enhance turns raw recognizer output into enhanced clinical text:
// it detects medical terms, repairs common misrecognitions, and classifies
// the utterance into a SOAP note section.
package enhance

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/clinscribe/clinscribe/internal/vocabulary"
	"github.com/clinscribe/clinscribe/pkg/types"
)

// ErrDegraded reports that enhancement failed internally and the caller
// received the raw text unchanged. The dictation stream must keep flowing, so
// this is a warning condition rather than a fatal one.
var ErrDegraded = errors.New("enhance: degraded, raw text passed through")

// dictionaryHitConfidence is assigned to exact dictionary matches. Phonetic
// matches instead carry their similarity score.
const dictionaryHitConfidence = 0.9

// minPhoneticWordLen guards the phonetic stage against short everyday words
// ("the", "and") that phonetically collide with half the vocabulary.
const minPhoneticWordLen = 4

// Matcher is the phonetic fallback consulted for words the dictionaries
// don't cover. Implemented by [phonetic.Matcher].
type Matcher interface {
	Match(word string, terms []string) (match string, score float64, ok bool)
}

// Option configures an [Enhancer].
type Option func(*Enhancer)

// WithMatcher enables the phonetic fallback stage.
func WithMatcher(m Matcher) Option {
	return func(e *Enhancer) {
		e.matcher = m
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(e *Enhancer) {
		e.log = log
	}
}

// Enhancer performs term detection, correction, and SOAP classification.
// Safe for concurrent use; all state is read-only after construction.
type Enhancer struct {
	vocab   *vocabulary.Vocabulary
	matcher Matcher
	log     *slog.Logger

	// canonical is cached from the vocabulary; the phonetic stage consults
	// it for every unmatched word.
	canonical []string
}

// Result is the outcome of enhancing one utterance.
type Result struct {
	// EnhancedText is the input with misrecognition corrections applied.
	// Equals the raw input when nothing needed correcting.
	EnhancedText string
	// Terms lists detected medical terms ordered by position in the raw
	// text. Positions refer to the raw input, not the corrected output.
	Terms []types.MedicalTerm
	// Section is the classified SOAP section, SectionGeneral when no
	// section scored.
	Section types.Section
}

// New returns an Enhancer over vocab.
func New(vocab *vocabulary.Vocabulary, opts ...Option) *Enhancer {
	e := &Enhancer{
		vocab:     vocab,
		log:       slog.Default(),
		canonical: vocab.CanonicalTerms(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Enhance processes raw text through all three stages. It never takes the
// dictation stream down: any internal panic is recovered and the raw text is
// returned untouched together with [ErrDegraded].
func (e *Enhancer) Enhance(raw string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("enhancement degraded, passing raw text through", "panic", fmt.Sprint(r))
			res = Result{EnhancedText: raw, Section: types.SectionGeneral}
			err = ErrDegraded
		}
	}()

	terms := e.detectTerms(raw)
	if e.matcher != nil {
		terms = e.phoneticPass(raw, terms)
	}
	sort.SliceStable(terms, func(i, j int) bool {
		return terms[i].StartPosition < terms[j].StartPosition
	})

	return Result{
		EnhancedText: applyCorrections(raw, terms),
		Terms:        terms,
		Section:      e.ClassifySection(raw),
	}, nil
}

// detectTerms scans the dictionaries in fixed category order, longest entry
// first within each category. Matching is case-insensitive on word
// boundaries, and a span of text claimed by one term is never claimed again.
func (e *Enhancer) detectTerms(raw string) []types.MedicalTerm {
	lower := strings.ToLower(raw)
	claimed := make([]bool, len(lower))
	var terms []types.MedicalTerm

	for _, cat := range types.TermCategories {
		for _, entry := range e.vocab.Terms(cat) {
			needle := strings.ToLower(entry)
			if needle == "" {
				continue
			}
			for from := 0; ; {
				i := strings.Index(lower[from:], needle)
				if i < 0 {
					break
				}
				start := from + i
				end := start + len(needle)
				from = start + 1

				if !onWordBoundary(lower, start, end) || spanClaimed(claimed, start, end) {
					continue
				}
				for p := start; p < end; p++ {
					claimed[p] = true
				}

				mt := types.MedicalTerm{
					Term:          raw[start:end],
					Category:      cat,
					Confidence:    dictionaryHitConfidence,
					StartPosition: start,
					EndPosition:   end,
				}
				if corr, ok := e.vocab.Correction(raw[start:end]); ok {
					mt.Correction = corr
				}
				terms = append(terms, mt)
			}
		}
	}
	return terms
}

// phoneticPass tries to salvage words no dictionary matched. A phonetic hit
// becomes a term whose confidence is the similarity score and whose
// correction is the canonical spelling.
func (e *Enhancer) phoneticPass(raw string, terms []types.MedicalTerm) []types.MedicalTerm {
	covered := func(start, end int) bool {
		for _, t := range terms {
			if start < t.EndPosition && end > t.StartPosition {
				return true
			}
		}
		return false
	}

	for _, w := range splitWords(raw) {
		if w.end-w.start < minPhoneticWordLen || covered(w.start, w.end) {
			continue
		}
		word := raw[w.start:w.end]
		match, score, ok := e.matcher.Match(word, e.canonical)
		if !ok || strings.EqualFold(match, word) {
			continue
		}
		cat, known := e.vocab.CategoryOf(match)
		if !known {
			continue
		}
		terms = append(terms, types.MedicalTerm{
			Term:          word,
			Category:      cat,
			Confidence:    score,
			Correction:    match,
			StartPosition: w.start,
			EndPosition:   w.end,
		})
	}
	return terms
}

// applyCorrections rewrites terms that carry a correction, working from the
// rightmost term backwards so earlier byte offsets stay valid.
func applyCorrections(raw string, terms []types.MedicalTerm) string {
	corrected := raw
	for i := len(terms) - 1; i >= 0; i-- {
		t := terms[i]
		if t.Correction == "" {
			continue
		}
		corrected = corrected[:t.StartPosition] + t.Correction + corrected[t.EndPosition:]
	}
	return corrected
}

// ClassifySection scores the text against every SOAP section. Keywords count
// double, indicators single. The highest-scoring section wins; on a tie the
// earlier section in SOAP order wins, and a zero score everywhere yields
// SectionGeneral.
func (e *Enhancer) ClassifySection(raw string) types.Section {
	lower := strings.ToLower(raw)

	best := types.SectionGeneral
	bestScore := 0
	for _, sec := range types.Sections {
		if sec == types.SectionGeneral {
			continue
		}
		score := 0
		for _, kw := range e.vocab.SectionKeywords(sec) {
			score += 2 * countOccurrences(lower, kw)
		}
		for _, ind := range e.vocab.SectionIndicators(sec) {
			score += countOccurrences(lower, ind)
		}
		if score > bestScore {
			best, bestScore = sec, score
		}
	}
	return best
}

// countOccurrences counts word-boundary occurrences of needle in text. Both
// arguments must be lowercase.
func countOccurrences(text, needle string) int {
	if needle == "" {
		return 0
	}
	n := 0
	for from := 0; ; {
		i := strings.Index(text[from:], needle)
		if i < 0 {
			return n
		}
		start := from + i
		end := start + len(needle)
		from = start + 1
		if onWordBoundary(text, start, end) {
			n++
		}
	}
}

// spanClaimed reports whether any byte in claimed[start:end] is already
// claimed by an earlier term.
func spanClaimed(claimed []bool, start, end int) bool {
	for p := start; p < end; p++ {
		if claimed[p] {
			return true
		}
	}
	return false
}

// onWordBoundary reports whether text[start:end] is not flanked by letters or
// digits on either side.
func onWordBoundary(text string, start, end int) bool {
	if start > 0 && isWordByte(text[start-1]) {
		return false
	}
	if end < len(text) && isWordByte(text[end]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	return unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b))
}

type wordSpan struct {
	start, end int
}

// splitWords returns the byte spans of letter runs in text. Hyphens inside a
// word are kept so "x-ray" stays one token.
func splitWords(text string) []wordSpan {
	var spans []wordSpan
	start := -1
	for i := 0; i < len(text); i++ {
		b := text[i]
		inWord := isWordByte(b) || (b == '-' && start >= 0 && i+1 < len(text) && isWordByte(text[i+1]))
		switch {
		case inWord && start < 0:
			start = i
		case !inWord && start >= 0:
			spans = append(spans, wordSpan{start, i})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, wordSpan{start, len(text)})
	}
	return spans
}
