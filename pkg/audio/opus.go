// Package audio provides PCM helpers and the Opus ingest decoder used on the
// audio ingress path.
//
// Dictation clients may stream either raw 16-bit little-endian PCM or Opus
// packets. When the Opus framing is configured, each session owns one Decoder
// so that decoder state is maintained correctly across consecutive packets.
package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Ingest framing defaults. Browser capture is typically 48 kHz; the decoder
// downstream feeds the recognizer which downmixes/resamples as needed.
const (
	opusSampleRate  = 48000
	opusChannels    = 1
	opusFrameSizeMs = 20

	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
)

// OpusDecoder decodes a single session's Opus packet stream into PCM bytes.
// Not safe for concurrent use; each session must own its own decoder.
type OpusDecoder struct {
	dec *gopus.Decoder
}

// NewOpusDecoder creates a decoder configured for mono 48 kHz ingest audio.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode decodes one Opus packet into interleaved PCM int16 samples and
// returns the result as little-endian bytes.
func (d *OpusDecoder) Decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return Int16sToBytes(pcm), nil
}

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
