package dsp

import (
	"math"
	"math/cmplx"
)

// QuadratureDemod implements a polar discriminator for FM demodulation.
// The output is the per-sample phase difference scaled by gain.
type QuadratureDemod struct {
	gain float32
	prev complex64
}

// QuadratureGain returns the demodulator gain that maps a deviation of
// deviationHz at the given sample rate onto an audio amplitude of 1.0.
func QuadratureGain(sampleRate, deviationHz float64) float32 {
	return float32(sampleRate / (2 * math.Pi * deviationHz))
}

// NewQuadratureDemod creates an FM discriminator with the given gain.
// A gain of 1.0 yields raw phase differences in radians.
func NewQuadratureDemod(gain float32) *QuadratureDemod {
	return &QuadratureDemod{gain: gain, prev: complex(1, 0)}
}

// Process demodulates a block of IQ samples into audio. The first
// output sample uses the carried state from the previous block.
func (d *QuadratureDemod) Process(samples []complex64) []float32 {
	if len(samples) == 0 {
		return nil
	}
	output := make([]float32, len(samples))
	prev := d.prev

	for i, current := range samples {
		// Multiply by the conjugate of the previous sample; the angle
		// of the product is the phase step.
		p := complex128(current) * cmplx.Conj(complex128(prev))
		output[i] = d.gain * float32(cmplx.Phase(p))
		prev = current
	}

	d.prev = prev
	return output
}

// Deemphasis is a first-order low-pass filter compensating broadcast
// FM pre-emphasis.
type Deemphasis struct {
	alpha float64
	prev  float64
}

// NewDeemphasis creates a de-emphasis filter. tau is the time constant,
// 75e-6 for North American broadcast.
func NewDeemphasis(sampleRate int, tau float64) *Deemphasis {
	dt := 1.0 / float64(sampleRate)
	return &Deemphasis{alpha: dt / (tau + dt)}
}

// Process applies the filter in place and returns the block.
func (d *Deemphasis) Process(block []float32) []float32 {
	for i, x := range block {
		d.prev += d.alpha * (float64(x) - d.prev)
		block[i] = float32(d.prev)
	}
	return block
}
