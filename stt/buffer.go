package stt

// PCMBuffer accumulates samples between utterance cuts. A small
// overlap is retained on extraction so words straddling a cut are not
// lost. Not safe for concurrent use.
type PCMBuffer struct {
	samples      []float32
	overlapRatio float64
}

// NewPCMBuffer creates a buffer. overlapRatio in [0, 1) is the share
// of samples carried over into the next segment.
func NewPCMBuffer(overlapRatio float64) *PCMBuffer {
	return &PCMBuffer{
		samples:      make([]float32, 0, SampleRate*30),
		overlapRatio: overlapRatio,
	}
}

// Append adds samples to the buffer.
func (b *PCMBuffer) Append(samples []float32) {
	b.samples = append(b.samples, samples...)
}

// Extract returns a copy of the buffered samples and resets the
// buffer to the configured overlap tail.
func (b *PCMBuffer) Extract() []float32 {
	if len(b.samples) == 0 {
		return nil
	}
	out := make([]float32, len(b.samples))
	copy(out, b.samples)

	keep := int(float64(len(b.samples)) * b.overlapRatio)
	if keep > 0 && keep < len(b.samples) {
		copy(b.samples, b.samples[len(b.samples)-keep:])
		b.samples = b.samples[:keep]
	} else {
		b.samples = b.samples[:0]
	}
	return out
}

// Clear empties the buffer with no overlap carry-over.
func (b *PCMBuffer) Clear() {
	b.samples = b.samples[:0]
}

// Len returns the number of buffered samples.
func (b *PCMBuffer) Len() int { return len(b.samples) }

// DurationMS returns the buffered audio length in milliseconds.
func (b *PCMBuffer) DurationMS() int64 {
	return int64(float64(len(b.samples)) / float64(SampleRate) * 1000)
}
