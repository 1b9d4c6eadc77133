// Package quality buckets audio quality so clients can warn the clinician
// before a bad microphone ruins a whole note.
//
// Two strategies exist. The amplitude strategy inspects raw 8-bit-centered
// PCM energy and works before any transcript arrives; the confidence strategy
// reuses the recognizer's own confidence and reflects what actually matters,
// recognisability. The active strategy is configured per deployment.
package quality

import (
	"fmt"

	"github.com/clinscribe/clinscribe/pkg/types"
)

// Source selects which signal drives quality assessment.
type Source string

const (
	// SourceAmplitude derives quality from raw audio energy.
	SourceAmplitude Source = "amplitude"
	// SourceConfidence derives quality from recognizer confidence.
	SourceConfidence Source = "confidence"
)

// ParseSource validates a configured strategy name.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceAmplitude, SourceConfidence:
		return Source(s), nil
	default:
		return "", fmt.Errorf("quality: unknown source %q", s)
	}
}

// minAmplitudeSamples is the smallest chunk the amplitude strategy will
// judge. Anything shorter is reported as Poor rather than guessed at.
const minAmplitudeSamples = 1000

// FromAmplitude buckets a raw audio chunk by its mean absolute deviation
// from the unsigned 8-bit midpoint. Chunks shorter than one assessment
// window come back Poor.
func FromAmplitude(chunk []byte) types.Quality {
	if len(chunk) < minAmplitudeSamples {
		return types.QualityPoor
	}

	var total float64
	for _, b := range chunk {
		d := float64(b) - 128
		if d < 0 {
			d = -d
		}
		total += d
	}
	avg := total / float64(len(chunk))

	switch {
	case avg > 50:
		return types.QualityExcellent
	case avg > 30:
		return types.QualityGood
	case avg > 15:
		return types.QualityFair
	case avg > 5:
		return types.QualityPoor
	default:
		return types.QualityCritical
	}
}

// FromConfidence buckets recognizer confidence in [0, 1].
func FromConfidence(confidence float64) types.Quality {
	switch {
	case confidence >= 0.95:
		return types.QualityExcellent
	case confidence >= 0.85:
		return types.QualityGood
	case confidence >= 0.70:
		return types.QualityFair
	case confidence >= 0.50:
		return types.QualityPoor
	default:
		return types.QualityCritical
	}
}

// Assessor applies the configured strategy. The zero value is not usable;
// construct with New.
type Assessor struct {
	source Source
}

// New returns an Assessor using the given source.
func New(source Source) *Assessor {
	return &Assessor{source: source}
}

// Source returns the active strategy.
func (a *Assessor) Source() Source {
	return a.source
}

// AssessChunk rates one audio chunk. Under the confidence strategy audio
// chunks carry no signal, so Unknown is returned and the caller should rely
// on [Assessor.AssessResult] instead.
func (a *Assessor) AssessChunk(chunk []byte) types.Quality {
	if a.source != SourceAmplitude {
		return types.QualityUnknown
	}
	return FromAmplitude(chunk)
}

// AssessResult rates a recognition result by its confidence. Under the
// amplitude strategy results carry no signal and Unknown is returned.
func (a *Assessor) AssessResult(confidence float64) types.Quality {
	if a.source != SourceConfidence {
		return types.QualityUnknown
	}
	return FromConfidence(confidence)
}
