package stt

import "time"

// Transcript represents a speech-to-text result from a backend.
// Both interim and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or interim
	// transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0) as reported by the
	// engine. Zero when the backend does not report confidence; never a
	// fabricated constant.
	Confidence float64

	// Words contains per-word detail when available (Deepgram). Nil for
	// backends without word-level output.
	Words []WordDetail

	// Timestamp marks when the utterance started, relative to stream start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail holds per-word metadata from backends that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a vocabulary hint passed to the recognition engine.
// Used to improve recognition of clinical terms such as drug names.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "metoprolol").
	Keyword string

	// Boost is the intensity of the boost (backend-specific scale).
	Boost float64
}
