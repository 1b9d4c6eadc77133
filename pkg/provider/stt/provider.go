// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a real-time recognition service (e.g., Deepgram or a
// local whisper-server) and exposes a uniform streaming interface. The central
// abstraction is StreamHandle: once opened, a stream accepts raw PCM audio
// chunks and emits two channels of Transcript values — low-latency interims
// for live display and authoritative finals for the dictation transcript.
//
// Implementations must be safe for concurrent use. Audio input and transcript
// output channels are goroutine-safe by construction.
package stt

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by optional operations (such as mid-stream
// vocabulary updates) that a backend does not implement.
var ErrNotSupported = errors.New("operation not supported by this backend")

// StreamConfig describes the audio format and recognition hints for a new
// recognition stream. All fields must be compatible with what the underlying
// backend supports.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Common values: 16000
	// (STT-optimised mono), 48000 (browser capture).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most
	// backends). Implementors may downmix stereo internally.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the backend auto-detect, if supported.
	Language string

	// Keywords is a list of vocabulary hints that raise recognition
	// probability for uncommon words such as drug names. Backends without a
	// hinting API ignore it.
	Keywords []KeywordBoost
}

// StreamHandle represents an open recognition stream. It is an interface so
// that test code can provide mock implementations without a live backend
// connection.
//
// Callers must call Close when the stream is no longer needed; failing to do
// so may leak goroutines and network connections inside the backend. All
// methods must be safe for concurrent use.
type StreamHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes for recognition. The
	// chunk must match the SampleRate, Channels, and bit depth agreed in
	// StreamConfig. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Interims returns a read-only channel that emits low-latency interim
	// Transcript values as the backend makes preliminary guesses. Suitable
	// for driving live UI but never written to the session transcript.
	// The channel is closed when the stream ends.
	Interims() <-chan Transcript

	// Finals returns a read-only channel that emits authoritative Transcript
	// values once the backend has committed to a recognition result.
	// The channel is closed when the stream ends.
	Finals() <-chan Transcript

	// SetKeywords replaces the active vocabulary hint list without restarting
	// the stream. Backends without mid-stream updates return ErrNotSupported;
	// the stream remains usable afterwards.
	SetKeywords(keywords []KeywordBoost) error

	// Close terminates the stream, flushes any pending audio, and releases
	// all associated resources. After Close returns, the Interims and Finals
	// channels are closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use. Multiple streams may be
// open simultaneously — one per live dictation session.
type Provider interface {
	// StartStream opens a new streaming recognition session with the given
	// audio format and recognition configuration. The returned StreamHandle
	// is ready to accept audio immediately.
	//
	// Returns an error if the backend cannot establish the stream
	// (authentication failure, unsupported configuration, or ctx already
	// cancelled). The caller owns the StreamHandle and must call Close.
	StartStream(ctx context.Context, cfg StreamConfig) (StreamHandle, error)
}
