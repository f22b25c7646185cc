package stt

import (
	"math"
	"time"
)

// Detector finds utterance boundaries in a dictation stream by RMS
// energy. The segmenter cuts a batch at every boundary so the provider
// sees whole phrases instead of arbitrary windows.
type Detector struct {
	threshold float32

	minUtterance time.Duration // shorter bursts are noise
	maxUtterance time.Duration // force a cut on very long speech
	silence      time.Duration // trailing silence that ends an utterance
	minGap       time.Duration // rate limit between cuts

	inSpeech    bool
	speechStart time.Time
	lastSpeech  time.Time
	lastCut     time.Time
}

// DetectorConfig tunes utterance detection.
type DetectorConfig struct {
	Threshold    float32
	MinUtterance time.Duration
	MaxUtterance time.Duration
	Silence      time.Duration
	MinGap       time.Duration
}

// DefaultDetectorConfig returns thresholds that work for close-mic
// dictation.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Threshold:    0.01,
		MinUtterance: 300 * time.Millisecond,
		MaxUtterance: 15 * time.Second,
		Silence:      600 * time.Millisecond,
		MinGap:       500 * time.Millisecond,
	}
}

// NewDetector creates an utterance detector.
func NewDetector(cfg DetectorConfig) *Detector {
	def := DefaultDetectorConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MinUtterance <= 0 {
		cfg.MinUtterance = def.MinUtterance
	}
	if cfg.MaxUtterance <= 0 {
		cfg.MaxUtterance = def.MaxUtterance
	}
	if cfg.Silence <= 0 {
		cfg.Silence = def.Silence
	}
	if cfg.MinGap <= 0 {
		cfg.MinGap = def.MinGap
	}
	return &Detector{
		threshold:    cfg.Threshold,
		minUtterance: cfg.MinUtterance,
		maxUtterance: cfg.MaxUtterance,
		silence:      cfg.Silence,
		minGap:       cfg.MinGap,
	}
}

// Cut reports whether the buffered utterance should be transcribed
// after observing one frame of samples.
func (d *Detector) Cut(samples []float32) bool {
	return d.cutAt(samples, time.Now())
}

func (d *Detector) cutAt(samples []float32, now time.Time) bool {
	if rms(samples) > d.threshold {
		if !d.inSpeech {
			d.inSpeech = true
			d.speechStart = now
		}
		d.lastSpeech = now
	}
	if !d.inSpeech {
		return false
	}

	spoken := now.Sub(d.speechStart)
	quiet := now.Sub(d.lastSpeech)

	cut := false
	if quiet > d.silence && spoken > d.minUtterance {
		cut = true
		d.inSpeech = false
	} else if spoken > d.maxUtterance {
		// Long continuous speech: cut but stay in the utterance.
		cut = true
		d.speechStart = now
	}
	if cut && now.Sub(d.lastCut) < d.minGap {
		return false
	}
	if cut {
		d.lastCut = now
	}
	return cut
}

// InSpeech reports whether an utterance is in progress.
func (d *Detector) InSpeech() bool { return d.inSpeech }

// Reset clears detection state between sessions.
func (d *Detector) Reset() {
	d.inSpeech = false
	d.speechStart = time.Time{}
	d.lastSpeech = time.Time{}
	d.lastCut = time.Time{}
}

// rms is the root mean square energy of one frame.
func rms(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}
