// Package audio plays the crash alarm on the local speaker.
package audio

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

const (
	DefaultSampleRate = beep.SampleRate(44100)

	// One pass of the siren. The alarm loops by replaying it from the
	// finished callback.
	DefaultDuration = 3 * time.Second

	lowFrequency  = 600.0
	highFrequency = 1200.0
	sweepPeriod   = 1.0 // seconds per low-high-low sweep
	volume        = 0.6
)

var ErrAlreadyPlaying = errors.New("alarm already playing")

// player is the part of the speaker package the siren uses
type player interface {
	Init(sr beep.SampleRate, bufferSize int) error
	Play(s ...beep.Streamer)
	Clear()
}

type speakerPlayer struct{}

func (speakerPlayer) Init(sr beep.SampleRate, bufferSize int) error {
	return speaker.Init(sr, bufferSize)
}

func (speakerPlayer) Play(s ...beep.Streamer) { speaker.Play(s...) }

func (speakerPlayer) Clear() { speaker.Clear() }

// Siren is a sweeping alarm tone played through the speaker
type Siren struct {
	sampleRate beep.SampleRate
	duration   time.Duration
	player     player

	mu          sync.Mutex
	initialized bool
	playing     bool
	generation  int
}

// NewSiren creates a siren that plays through the default speaker
func NewSiren() *Siren {
	return &Siren{
		sampleRate: DefaultSampleRate,
		duration:   DefaultDuration,
		player:     speakerPlayer{},
	}
}

// Play starts one pass of the siren. done is called on its own goroutine
// once the pass has finished playing; it is not called if Stop is called
// first.
func (s *Siren) Play(done func()) error {
	s.mu.Lock()
	if s.playing {
		s.mu.Unlock()
		return ErrAlreadyPlaying
	}
	if !s.initialized {
		if err := s.player.Init(s.sampleRate, s.sampleRate.N(time.Second/10)); err != nil {
			s.mu.Unlock()
			return err
		}
		s.initialized = true
	}
	s.playing = true
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	// The speaker holds its own lock while running callbacks, so s.mu must
	// not be held here.
	s.player.Play(beep.Seq(
		Tone(s.sampleRate, s.duration),
		beep.Callback(func() { s.finished(generation, done) }),
	))
	return nil
}

func (s *Siren) finished(generation int, done func()) {
	s.mu.Lock()
	current := s.playing && s.generation == generation
	if current {
		s.playing = false
	}
	s.mu.Unlock()

	if current && done != nil {
		go done()
	}
}

// Stop silences the siren
func (s *Siren) Stop() {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return
	}
	s.playing = false
	s.generation++
	s.mu.Unlock()

	s.player.Clear()
}

// Playing reports whether a pass is in progress
func (s *Siren) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Tone returns a stereo siren streamer of the given length. The pitch sweeps
// between a low and a high frequency once per sweep period.
func Tone(sr beep.SampleRate, d time.Duration) beep.Streamer {
	total := sr.N(d)
	position := 0
	phase := 0.0
	rate := float64(sr)

	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		if position >= total {
			return 0, false
		}
		for i := range samples {
			if position >= total {
				break
			}
			t := float64(position) / rate
			sweep := (1 - math.Cos(2*math.Pi*t/sweepPeriod)) / 2
			frequency := lowFrequency + (highFrequency-lowFrequency)*sweep
			phase += 2 * math.Pi * frequency / rate
			if phase > 2*math.Pi {
				phase -= 2 * math.Pi
			}
			v := volume * math.Sin(phase)
			samples[i][0], samples[i][1] = v, v
			position++
			n++
		}
		return n, true
	})
}
