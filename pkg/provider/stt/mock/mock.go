// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts streams with the expected
// StreamConfig. Use Stream to feed controlled Transcript values and inspect
// which audio chunks were delivered.
//
// Example:
//
//	str := &mock.Stream{
//	    InterimsCh: make(chan stt.Transcript, 1),
//	    FinalsCh:   make(chan stt.Transcript, 1),
//	}
//	p := &mock.Provider{Stream: str}
//	handle, _ := p.StartStream(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/clinscribe/clinscribe/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Stream is the StreamHandle returned by StartStream. If nil, StartStream
	// returns a new default Stream with buffered channels.
	Stream stt.StreamHandle

	// StreamFactory, when non-nil, is called once per StartStream and its
	// result returned. Takes precedence over Stream. Useful for pause/resume
	// tests where every restart needs a fresh handle.
	StreamFactory func() stt.StreamHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns the configured stream or error.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.StreamHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.StreamFactory != nil {
		return p.StreamFactory(), nil
	}
	if p.Stream != nil {
		return p.Stream, nil
	}
	return &Stream{
		InterimsCh: make(chan stt.Transcript, 16),
		FinalsCh:   make(chan stt.Transcript, 16),
	}, nil
}

// Calls returns a snapshot of all recorded StartStream calls.
func (p *Provider) Calls() []StartStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StartStreamCall, len(p.StartStreamCalls))
	copy(out, p.StartStreamCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Stream.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendAudio.
	Chunk []byte
}

// Stream is a mock implementation of stt.StreamHandle.
// Callers should pre-populate InterimsCh and FinalsCh with the Transcript
// values they want the consumer to receive, then close them when done.
type Stream struct {
	mu sync.Mutex

	// InterimsCh is the channel returned by Interims(). Callers own this
	// channel and are responsible for sending to and closing it in tests.
	InterimsCh chan stt.Transcript

	// FinalsCh is the channel returned by Finals(). Callers own this channel.
	FinalsCh chan stt.Transcript

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SetKeywordsErr, if non-nil, is returned by every SetKeywords call.
	SetKeywordsErr error

	// CloseErr, if non-nil, is returned by the first Close.
	CloseErr error

	// CloseChannelsOnClose makes Close close InterimsCh and FinalsCh,
	// mirroring real backend behaviour.
	CloseChannelsOnClose bool

	// --- Call records ---

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// SetKeywordsCalls records every keyword list passed to SetKeywords.
	SetKeywordsCalls [][]stt.KeywordBoost

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Ensure Stream implements stt.StreamHandle at compile time.
var _ stt.StreamHandle = (*Stream)(nil)

// SendAudio records the call and returns SendAudioErr.
func (s *Stream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// SendAudioCount returns the number of recorded SendAudio calls. Safe to
// call while another goroutine is still sending.
func (s *Stream) SendAudioCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// Interims returns InterimsCh. The caller must have initialised InterimsCh
// before calling this method.
func (s *Stream) Interims() <-chan stt.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.InterimsCh
}

// Finals returns FinalsCh.
func (s *Stream) Finals() <-chan stt.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FinalsCh
}

// SetKeywords records the call and returns SetKeywordsErr.
func (s *Stream) SetKeywords(keywords []stt.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kw := make([]stt.KeywordBoost, len(keywords))
	copy(kw, keywords)
	s.SetKeywordsCalls = append(s.SetKeywordsCalls, kw)
	return s.SetKeywordsErr
}

// Close records the call, optionally closes the transcript channels, and
// returns CloseErr on the first invocation only.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if s.CloseCallCount == 1 {
		if s.CloseChannelsOnClose {
			if s.InterimsCh != nil {
				closeIfOpen(s.InterimsCh)
			}
			if s.FinalsCh != nil {
				closeIfOpen(s.FinalsCh)
			}
		}
		return s.CloseErr
	}
	return nil
}

// closeIfOpen closes ch, tolerating a channel the test already closed itself
// to simulate the engine ending the stream.
func closeIfOpen(ch chan stt.Transcript) {
	defer func() { _ = recover() }()
	close(ch)
}
