// Package smoothing holds the moving average applied to raw tilt samples.
package smoothing

import (
	"gonum.org/v1/gonum/floats"
)

// SampleBuffer is a fixed-capacity circular buffer of raw samples. The
// buffer starts filled with zeros, so the average is biased toward zero
// until capacity samples have been pushed.
type SampleBuffer struct {
	samples []float64
	index   int
}

// NewSampleBuffer creates a buffer holding n samples. n below 1 is treated as 1.
func NewSampleBuffer(n int) *SampleBuffer {
	if n < 1 {
		n = 1
	}
	return &SampleBuffer{
		samples: make([]float64, n),
	}
}

// Push overwrites the oldest sample
func (b *SampleBuffer) Push(sample float64) {
	b.samples[b.index] = sample
	b.index++
	if b.index >= len(b.samples) {
		b.index = 0
	}
}

// Average returns the unweighted mean of every slot.
// It is recomputed in full on each call.
func (b *SampleBuffer) Average() float64 {
	return floats.Sum(b.samples) / float64(len(b.samples))
}

// Capacity returns the fixed number of slots
func (b *SampleBuffer) Capacity() int {
	return len(b.samples)
}
