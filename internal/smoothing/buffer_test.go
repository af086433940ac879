package smoothing

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func TestSampleBuffer_WarmUpPadsWithZeros(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		samples  []float64
		want     float64
	}{
		{name: "empty", capacity: 10, samples: nil, want: 0},
		{name: "single sample", capacity: 10, samples: []float64{20}, want: 2},
		{name: "partially filled", capacity: 4, samples: []float64{4, 8}, want: 3},
		{name: "exactly full", capacity: 4, samples: []float64{1, 2, 3, 4}, want: 2.5},
		{name: "negative samples", capacity: 2, samples: []float64{-10, -20}, want: -15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewSampleBuffer(tt.capacity)
			for _, s := range tt.samples {
				b.Push(s)
			}
			if got := b.Average(); math.Abs(got-tt.want) > epsilon {
				t.Errorf("Average() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSampleBuffer_WrapKeepsMostRecent(t *testing.T) {
	b := NewSampleBuffer(3)

	for i := 1; i <= 10; i++ {
		b.Push(float64(i))

		// Mean of the most recent min(i, 3) samples, zero padded
		var sum float64
		for j := max(1, i-2); j <= i; j++ {
			sum += float64(j)
		}
		want := sum / 3
		if got := b.Average(); math.Abs(got-want) > epsilon {
			t.Errorf("after %d pushes Average() = %v, want %v", i, got, want)
		}
	}
}

func TestSampleBuffer_Capacity(t *testing.T) {
	if got := NewSampleBuffer(16).Capacity(); got != 16 {
		t.Errorf("Capacity() = %d, want 16", got)
	}
	if got := NewSampleBuffer(0).Capacity(); got != 1 {
		t.Errorf("Capacity() for 0 = %d, want 1", got)
	}
}
