package quality

import (
	"testing"

	"github.com/clinscribe/clinscribe/pkg/types"
)

// chunkWithDeviation builds an audio chunk whose every byte sits dev above
// the unsigned midpoint.
func chunkWithDeviation(dev byte, n int) []byte {
	chunk := make([]byte, n)
	for i := range chunk {
		chunk[i] = 128 + dev
	}
	return chunk
}

func TestFromAmplitude_Buckets(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		dev  byte
		want types.Quality
	}{
		{"excellent", 60, types.QualityExcellent},
		{"good", 40, types.QualityGood},
		{"fair", 20, types.QualityFair},
		{"poor", 10, types.QualityPoor},
		{"critical", 2, types.QualityCritical},
		{"silence", 0, types.QualityCritical},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			if got := FromAmplitude(chunkWithDeviation(c.dev, 2000)); got != c.want {
				t.Errorf("FromAmplitude(dev=%d) = %s, want %s", c.dev, got, c.want)
			}
		})
	}
}

func TestFromAmplitude_ShortChunkIsPoor(t *testing.T) {
	t.Parallel()

	if got := FromAmplitude(nil); got != types.QualityPoor {
		t.Errorf("FromAmplitude(nil) = %s, want poor", got)
	}
	if got := FromAmplitude(chunkWithDeviation(60, 999)); got != types.QualityPoor {
		t.Errorf("FromAmplitude(short loud chunk) = %s, want poor", got)
	}
	// Exactly at the window boundary the chunk is judged normally.
	if got := FromAmplitude(chunkWithDeviation(60, 1000)); got != types.QualityExcellent {
		t.Errorf("FromAmplitude(1000-byte loud chunk) = %s, want excellent", got)
	}
}

func TestFromConfidence_Buckets(t *testing.T) {
	t.Parallel()

	cases := []struct {
		confidence float64
		want       types.Quality
	}{
		{0.99, types.QualityExcellent},
		{0.95, types.QualityExcellent},
		{0.90, types.QualityGood},
		{0.85, types.QualityGood},
		{0.75, types.QualityFair},
		{0.70, types.QualityFair},
		{0.60, types.QualityPoor},
		{0.50, types.QualityPoor},
		{0.40, types.QualityCritical},
		{0, types.QualityCritical},
	}
	for _, c := range cases {
		if got := FromConfidence(c.confidence); got != c.want {
			t.Errorf("FromConfidence(%v) = %s, want %s", c.confidence, got, c.want)
		}
	}
}

func TestParseSource(t *testing.T) {
	t.Parallel()

	if got, err := ParseSource("amplitude"); err != nil || got != SourceAmplitude {
		t.Errorf("ParseSource(amplitude) = %v, %v", got, err)
	}
	if got, err := ParseSource("confidence"); err != nil || got != SourceConfidence {
		t.Errorf("ParseSource(confidence) = %v, %v", got, err)
	}
	if _, err := ParseSource("vibes"); err == nil {
		t.Error("ParseSource(vibes): want error, got nil")
	}
}

func TestAssessor_StrategyRouting(t *testing.T) {
	t.Parallel()

	amp := New(SourceAmplitude)
	if got := amp.AssessChunk(chunkWithDeviation(60, 2000)); got != types.QualityExcellent {
		t.Errorf("amplitude AssessChunk = %s, want excellent", got)
	}
	if got := amp.AssessResult(0.99); got != types.QualityUnknown {
		t.Errorf("amplitude AssessResult = %s, want unknown", got)
	}

	conf := New(SourceConfidence)
	if got := conf.AssessResult(0.99); got != types.QualityExcellent {
		t.Errorf("confidence AssessResult = %s, want excellent", got)
	}
	if got := conf.AssessChunk(chunkWithDeviation(60, 2000)); got != types.QualityUnknown {
		t.Errorf("confidence AssessChunk = %s, want unknown", got)
	}
}
