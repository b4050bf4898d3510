// Package feedback synthesizes the success and error cues played after a
// verification. Cues are generated as PCM tones; there are no audio assets.
package feedback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSampleRate is used when no rate is configured.
const DefaultSampleRate = 44100

// Kind identifies a cue.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Clip is mono PCM audio in [-1, 1].
type Clip struct {
	SampleRate int
	Samples    []float32
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Cue is a rendered cue: the audio plus the haptic pattern that goes with it.
type Cue struct {
	Kind      Kind
	Clip      Clip
	Vibration []time.Duration
}

// Output is an audio sink that starts suspended until resumed, like a
// browser audio context under an autoplay policy.
type Output interface {
	Suspended() bool
	Resume(ctx context.Context) error
	Play(ctx context.Context, clip Clip) error
	Close() error
}

// Synth renders cues and plays them on an Output. A nil Output makes every
// call a no-op.
type Synth struct {
	out        Output
	sampleRate int
	chain      *chain
	logger     *zap.Logger

	mu       sync.Mutex
	unlocked bool
	closed   bool
	last     *Cue
}

// NewSynth creates a synthesizer on out.
func NewSynth(out Output, sampleRate int, logger *zap.Logger) *Synth {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Synth{
		out:        out,
		sampleRate: sampleRate,
		chain:      newChain(sampleRate),
		logger:     logger,
	}
}

// Success plays the ascending success cue.
func (s *Synth) Success(ctx context.Context) error {
	return s.play(ctx, s.render(KindSuccess))
}

// Error plays the thud and descending error cue.
func (s *Synth) Error(ctx context.Context) error {
	return s.play(ctx, s.render(KindError))
}

// LastCue returns the most recently played cue.
func (s *Synth) LastCue() (Cue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Cue{}, false
	}
	return *s.last, true
}

// Close releases the output. Later cues are no-ops.
func (s *Synth) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.out == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	if err := s.out.Close(); err != nil {
		return fmt.Errorf("failed to close audio output: %w", err)
	}
	return nil
}

func (s *Synth) render(kind Kind) Cue {
	var voices []voice
	var vibration []time.Duration

	switch kind {
	case KindSuccess:
		voices = successVoices()
		vibration = []time.Duration{80 * time.Millisecond}
	default:
		voices = errorVoices()
		vibration = []time.Duration{120 * time.Millisecond, 60 * time.Millisecond, 120 * time.Millisecond}
	}

	return Cue{
		Kind:      kind,
		Clip:      Clip{SampleRate: s.sampleRate, Samples: s.chain.process(mix(voices, s.sampleRate))},
		Vibration: vibration,
	}
}

func (s *Synth) play(ctx context.Context, cue Cue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.out == nil {
		return nil
	}

	if !s.unlocked {
		if err := s.unlock(ctx); err != nil {
			return err
		}
	}

	if err := s.out.Play(ctx, cue.Clip); err != nil {
		s.logger.Warn("Failed to play cue", zap.String("kind", string(cue.Kind)), zap.Error(err))
		return fmt.Errorf("failed to play %s cue: %w", cue.Kind, err)
	}
	s.last = &cue
	return nil
}

// unlock resumes a suspended output and plays one silent sample. It runs
// once per output lifetime.
func (s *Synth) unlock(ctx context.Context) error {
	if s.out.Suspended() {
		if err := s.out.Resume(ctx); err != nil {
			return fmt.Errorf("failed to resume audio output: %w", err)
		}
	}
	if err := s.out.Play(ctx, Clip{SampleRate: s.sampleRate, Samples: make([]float32, 1)}); err != nil {
		return fmt.Errorf("failed to unlock audio output: %w", err)
	}
	s.unlocked = true
	s.logger.Debug("Audio output unlocked")
	return nil
}
