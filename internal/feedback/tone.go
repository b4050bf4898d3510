package feedback

import (
	"math"
)

type waveform int

const (
	sine waveform = iota
	triangle
)

// voice is one enveloped tone. Freq glides exponentially to EndFreq when set.
type voice struct {
	wave    waveform
	freq    float64
	endFreq float64
	start   float64 // seconds
	length  float64 // seconds
	gain    float64
	attack  float64 // seconds
}

func successVoices() []voice {
	// C5 E5 G5 C6, slightly overlapping.
	notes := []float64{523.25, 659.25, 783.99, 1046.50}
	out := make([]voice, 0, len(notes)*2)
	for i, f := range notes {
		start := float64(i) * 0.075
		out = append(out,
			voice{wave: sine, freq: f, start: start, length: 0.16, gain: 0.5, attack: 0.005},
			voice{wave: sine, freq: 2 * f, start: start, length: 0.08, gain: 0.08, attack: 0.005},
		)
	}
	return out
}

func errorVoices() []voice {
	return []voice{
		// Low thud.
		{wave: sine, freq: 140, endFreq: 55, start: 0, length: 0.14, gain: 0.9, attack: 0.002},
		// A4 then F4.
		{wave: triangle, freq: 440, start: 0.12, length: 0.18, gain: 0.45, attack: 0.01},
		{wave: triangle, freq: 349.23, start: 0.30, length: 0.24, gain: 0.45, attack: 0.01},
	}
}

// mix renders voices into one buffer.
func mix(voices []voice, rate int) []float64 {
	var end float64
	for _, v := range voices {
		end = math.Max(end, v.start+v.length)
	}
	buf := make([]float64, int(math.Ceil(end*float64(rate)))+1)

	for _, v := range voices {
		first := int(v.start * float64(rate))
		n := int(v.length * float64(rate))
		phase := 0.0
		for i := 0; i < n && first+i < len(buf); i++ {
			t := float64(i) / float64(rate)
			f := v.freq
			if v.endFreq > 0 {
				f = v.freq * math.Pow(v.endFreq/v.freq, t/v.length)
			}
			phase += f / float64(rate)
			phase -= math.Floor(phase)
			buf[first+i] += v.gain * envelope(t, v.attack, v.length) * oscillate(v.wave, phase)
		}
	}
	return buf
}

// envelope is a linear attack followed by an exponential decay to near
// silence at the end of the note.
func envelope(t, attack, length float64) float64 {
	if t < attack {
		return t / attack
	}
	return math.Exp(-6 * (t - attack) / (length - attack))
}

func oscillate(w waveform, phase float64) float64 {
	switch w {
	case triangle:
		return 4*math.Abs(phase-0.5) - 1
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// chain is the shared dynamics compressor and master gain every cue passes
// through.
type chain struct {
	threshold float64 // linear
	ratio     float64
	attack    float64 // per-sample smoothing coefficients
	release   float64
	makeup    float64
	master    float64
}

func newChain(rate int) *chain {
	coef := func(seconds float64) float64 {
		return math.Exp(-1 / (seconds * float64(rate)))
	}
	return &chain{
		threshold: dbToLinear(-18),
		ratio:     4,
		attack:    coef(0.003),
		release:   coef(0.25),
		makeup:    dbToLinear(6),
		master:    0.7,
	}
}

func (c *chain) process(in []float64) []float32 {
	out := make([]float32, len(in))
	env := 0.0
	for i, x := range in {
		level := math.Abs(x)
		if level > env {
			env = c.attack*env + (1-c.attack)*level
		} else {
			env = c.release*env + (1-c.release)*level
		}

		gain := 1.0
		if env > c.threshold {
			// Above threshold the output rises at 1/ratio of the input.
			over := linearToDB(env) - linearToDB(c.threshold)
			gain = dbToLinear(-over * (1 - 1/c.ratio))
		}

		y := x * gain * c.makeup * c.master
		out[i] = float32(math.Max(-1, math.Min(1, y)))
	}
	return out
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

func linearToDB(v float64) float64 {
	return 20 * math.Log10(v)
}
