package feedback

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockOutput implements Output for testing
type MockOutput struct {
	mock.Mock
}

func (m *MockOutput) Suspended() bool {
	return m.Called().Bool(0)
}

func (m *MockOutput) Resume(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockOutput) Play(ctx context.Context, clip Clip) error {
	return m.Called(ctx, clip).Error(0)
}

func (m *MockOutput) Close() error {
	return m.Called().Error(0)
}

func silent(c Clip) bool  { return len(c.Samples) == 1 && c.Samples[0] == 0 }
func audible(c Clip) bool { return len(c.Samples) > 1 }

func TestSynth_UnlocksOnce(t *testing.T) {
	out := new(MockOutput)
	out.On("Suspended").Return(true).Once()
	out.On("Resume", mock.Anything).Return(nil).Once()
	out.On("Play", mock.Anything, mock.MatchedBy(silent)).Return(nil).Once()
	out.On("Play", mock.Anything, mock.MatchedBy(audible)).Return(nil).Twice()

	s := NewSynth(out, 8000, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Success(ctx))
	require.NoError(t, s.Error(ctx))

	out.AssertExpectations(t)
	out.AssertNumberOfCalls(t, "Resume", 1)
	out.AssertNumberOfCalls(t, "Play", 3)
}

func TestSynth_ResumeFailure(t *testing.T) {
	out := new(MockOutput)
	out.On("Suspended").Return(true)
	out.On("Resume", mock.Anything).Return(errors.New("not allowed"))

	s := NewSynth(out, 8000, zap.NewNop())
	assert.Error(t, s.Success(context.Background()))
	out.AssertNotCalled(t, "Play", mock.Anything, mock.Anything)
}

func TestSynth_NilOutputIsNoop(t *testing.T) {
	s := NewSynth(nil, 0, zap.NewNop())
	assert.NoError(t, s.Success(context.Background()))
	assert.NoError(t, s.Error(context.Background()))
	assert.NoError(t, s.Close())

	_, ok := s.LastCue()
	assert.False(t, ok)
}

func TestSynth_CloseReleasesOutput(t *testing.T) {
	out := NewBufferOutput()
	s := NewSynth(out, 8000, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Success(ctx))
	assert.Equal(t, 2, out.playCount())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// Played after close: silently ignored, output untouched.
	require.NoError(t, s.Error(ctx))
	assert.Equal(t, 2, out.playCount())
	assert.Error(t, out.Play(ctx, Clip{}))
}

func TestSynth_CuesAreDistinctAndBounded(t *testing.T) {
	s := NewSynth(NewBufferOutput(), 16000, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Success(ctx))
	success, ok := s.LastCue()
	require.True(t, ok)
	require.NoError(t, s.Error(ctx))
	failure, ok := s.LastCue()
	require.True(t, ok)

	assert.Equal(t, KindSuccess, success.Kind)
	assert.Equal(t, KindError, failure.Kind)
	assert.NotEqual(t, success.Clip.Duration(), failure.Clip.Duration())
	assert.NotEqual(t, success.Vibration, failure.Vibration)

	for _, cue := range []Cue{success, failure} {
		peak := 0.0
		for _, v := range cue.Clip.Samples {
			peak = math.Max(peak, math.Abs(float64(v)))
		}
		assert.LessOrEqual(t, peak, 1.0, string(cue.Kind))
		assert.Greater(t, peak, 0.1, string(cue.Kind))
		assert.Greater(t, cue.Clip.Duration(), 200*time.Millisecond)
	}
}

func TestSynth_RepeatedPlaybackIsStable(t *testing.T) {
	s := NewSynth(NewBufferOutput(), 8000, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Success(ctx))
	first, _ := s.LastCue()
	require.NoError(t, s.Success(ctx))
	second, _ := s.LastCue()

	assert.Equal(t, first.Clip.Samples, second.Clip.Samples)
}

func TestEncodeWAV(t *testing.T) {
	clip := Clip{SampleRate: 8000, Samples: []float32{0, 0.5, -1, 2}}
	data, err := EncodeWAV(clip)
	require.NoError(t, err)

	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))

	dec := wav.NewDecoder(bytes.NewReader(data))
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, uint32(8000), dec.SampleRate)
	assert.Equal(t, uint16(1), dec.NumChans)
	assert.Equal(t, uint16(16), dec.BitDepth)
	require.Len(t, buf.Data, 4)
	assert.Equal(t, 0, buf.Data[0])
	assert.Equal(t, -math.MaxInt16, buf.Data[2])
	assert.Equal(t, math.MaxInt16, buf.Data[3])
}

func TestSeekBuffer_PatchesEarlierBytes(t *testing.T) {
	var b seekBuffer
	_, _ = b.Write([]byte("abcdef"))
	pos, err := b.Seek(2, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)
	_, _ = b.Write([]byte("XY"))
	assert.Equal(t, "abXYef", string(b.buf))

	_, err = b.Seek(-10, io.SeekCurrent)
	assert.Error(t, err)
}
