// Package phonetic matches misrecognised words against the canonical medical
// vocabulary using Double Metaphone codes with Jaro-Winkler ranking.
//
// Speech engines tend to substitute a similar-sounding everyday word for an
// unfamiliar clinical term ("met oh pro lol" for "metoprolol"). The matcher
// works in two stages:
//
//  1. Candidate filtering: Double Metaphone codes are computed for the input
//     word(s) and for each vocabulary term. A term whose code set overlaps
//     the input's becomes a phonetic candidate.
//
//  2. Ranking: among phonetic candidates the term with the highest
//     Jaro-Winkler similarity on the original strings wins, provided it
//     clears the phonetic threshold. When no candidate sounds alike, a
//     stricter pure Jaro-Winkler pass catches plain misspellings.
//
// Multi-word terms ("myocardial infarction") are handled by comparing every
// token pair and the space-stripped concatenations.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultSoundThreshold    = 0.70
	defaultSpellingThreshold = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithSoundThreshold sets the minimum Jaro-Winkler score a phonetically
// overlapping term needs to be accepted. Default 0.70.
func WithSoundThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.soundThreshold = threshold
	}
}

// WithSpellingThreshold sets the minimum Jaro-Winkler score for the fallback
// pure-similarity pass used when nothing sounds alike. Default 0.85.
func WithSpellingThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.spellingThreshold = threshold
	}
}

// Matcher finds the vocabulary term closest in sound to a transcribed word.
// Read-only after construction and safe for concurrent use.
type Matcher struct {
	soundThreshold    float64
	spellingThreshold float64
}

// New returns a Matcher with the supplied options applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		soundThreshold:    defaultSoundThreshold,
		spellingThreshold: defaultSpellingThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the vocabulary term most likely intended by word, together
// with its Jaro-Winkler similarity score. When ok is false no term cleared a
// threshold and word should be left untouched.
//
// word may be a single token or a space-separated phrase.
func (m *Matcher) Match(word string, terms []string) (match string, score float64, ok bool) {
	if len(terms) == 0 || strings.TrimSpace(word) == "" {
		return "", 0, false
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	wordCodes := metaphoneCodes(wordTokens)

	var (
		bestTerm     string
		bestScore    float64
		bestPhonetic bool
	)

	for _, term := range terms {
		termLower := strings.ToLower(strings.TrimSpace(term))
		if termLower == "" {
			continue
		}
		termTokens := strings.Fields(termLower)

		soundsAlike := codesOverlap(wordCodes, metaphoneCodes(termTokens))
		jw := bestSimilarity(wordTokens, termTokens, wordLower, termLower)

		switch {
		case soundsAlike && jw >= m.soundThreshold:
			if !bestPhonetic || jw > bestScore {
				bestTerm, bestScore, bestPhonetic = term, jw, true
			}
		case !soundsAlike && !bestPhonetic:
			if jw >= m.spellingThreshold && jw > bestScore {
				bestTerm, bestScore = term, jw
			}
		}
	}

	if bestTerm == "" {
		return "", 0, false
	}
	return bestTerm, bestScore, true
}

// metaphoneCodes returns the union of primary and secondary Double Metaphone
// codes across tokens. Empty codes are skipped.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity takes the maximum Jaro-Winkler score over the full strings,
// the space-stripped concatenations, and every token pair. The last strategy
// matters when the engine splits one term into several words.
func bestSimilarity(wordTokens, termTokens []string, wordFull, termFull string) float64 {
	score := matchr.JaroWinkler(wordFull, termFull, false)

	if len(wordTokens) > 1 || len(termTokens) > 1 {
		joinedWord := strings.Join(wordTokens, "")
		joinedTerm := strings.Join(termTokens, "")
		if s := matchr.JaroWinkler(joinedWord, joinedTerm, false); s > score {
			score = s
		}
	}

	for _, wt := range wordTokens {
		for _, tt := range termTokens {
			if s := matchr.JaroWinkler(wt, tt, false); s > score {
				score = s
			}
		}
	}

	return score
}
