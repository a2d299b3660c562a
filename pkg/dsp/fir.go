package dsp

import (
	"math"

	"github.com/mjibson/go-dsp/window"
)

// DesignLowPass creates low-pass FIR taps by the windowed-sinc method
// with a Hamming window. cutoff and transition are in Hz at the given
// sample rate; the transition width sets the filter length.
func DesignLowPass(sampleRate, cutoff, transition float64) []float64 {
	// Harris approximation for a Hamming window: ~3.3 / normalized
	// transition width, rounded up to the next odd length.
	numTaps := int(math.Ceil(3.3 * sampleRate / transition))
	if numTaps%2 == 0 {
		numTaps++
	}
	if numTaps < 9 {
		numTaps = 9
	}

	taps := make([]float64, numTaps)
	win := window.Hamming(numTaps)
	fc := cutoff / sampleRate * 2 // normalized to Nyquist
	M := float64(numTaps - 1)
	for n := 0; n < numTaps; n++ {
		x := float64(n) - M/2
		if x == 0 {
			taps[n] = fc
		} else {
			taps[n] = fc * math.Sin(math.Pi*fc*x) / (math.Pi * fc * x)
		}
		taps[n] *= win[n]
	}

	// Normalize for unity DC gain.
	sum := 0.0
	for _, t := range taps {
		sum += t
	}
	for i := range taps {
		taps[i] /= sum
	}
	return taps
}

// FIRFilter is a stateful block-based real FIR filter with integer
// decimation.
type FIRFilter struct {
	taps  []float64
	decim int
	state []float32
}

// NewFIRFilter creates a filter over the given taps. decim of 1 means
// no rate change.
func NewFIRFilter(taps []float64, decim int) *FIRFilter {
	if decim < 1 {
		decim = 1
	}
	return &FIRFilter{
		taps:  taps,
		decim: decim,
		state: make([]float32, len(taps)-1),
	}
}

// Process filters a block and returns the decimated output. Filter
// state carries across blocks so block boundaries are seamless.
func (f *FIRFilter) Process(input []float32) []float32 {
	buffer := make([]float32, len(f.state)+len(input))
	copy(buffer, f.state)
	copy(buffer[len(f.state):], input)

	avail := len(buffer) - len(f.taps) + 1
	if avail <= 0 {
		f.state = buffer
		return nil
	}
	outputLen := (avail + f.decim - 1) / f.decim
	output := make([]float32, 0, outputLen)

	for i := 0; i < avail; i += f.decim {
		var acc float32
		for j, tap := range f.taps {
			acc += buffer[i+j] * float32(tap)
		}
		output = append(output, acc)
	}

	f.state = buffer[len(buffer)-(len(f.taps)-1):]
	return output
}

// ComplexFIRFilter is the complex-input counterpart of FIRFilter, used
// for channel selection ahead of the demodulator.
type ComplexFIRFilter struct {
	taps  []float64
	decim int
	state []complex64
}

// NewComplexFIRFilter creates a complex filter with integer decimation.
func NewComplexFIRFilter(taps []float64, decim int) *ComplexFIRFilter {
	if decim < 1 {
		decim = 1
	}
	return &ComplexFIRFilter{
		taps:  taps,
		decim: decim,
		state: make([]complex64, len(taps)-1),
	}
}

// Process filters and decimates a block of IQ samples.
func (f *ComplexFIRFilter) Process(input []complex64) []complex64 {
	buffer := make([]complex64, len(f.state)+len(input))
	copy(buffer, f.state)
	copy(buffer[len(f.state):], input)

	avail := len(buffer) - len(f.taps) + 1
	if avail <= 0 {
		f.state = buffer
		return nil
	}
	output := make([]complex64, 0, (avail+f.decim-1)/f.decim)

	for i := 0; i < avail; i += f.decim {
		var re, im float32
		for j, tap := range f.taps {
			re += real(buffer[i+j]) * float32(tap)
			im += imag(buffer[i+j]) * float32(tap)
		}
		output = append(output, complex(re, im))
	}

	f.state = buffer[len(buffer)-(len(f.taps)-1):]
	return output
}

// Decimator performs plain integer decimation without filtering. Used
// where the preceding stage already band-limited the signal.
type Decimator struct {
	factor int
	skip   int
}

// NewDecimator creates a decimator keeping one sample in factor.
func NewDecimator(factor int) *Decimator {
	if factor < 1 {
		factor = 1
	}
	return &Decimator{factor: factor}
}

// Process returns every factor-th sample, carrying phase across blocks.
func (d *Decimator) Process(input []float32) []float32 {
	output := make([]float32, 0, len(input)/d.factor+1)
	i := d.skip
	for ; i < len(input); i += d.factor {
		output = append(output, input[i])
	}
	d.skip = i - len(input)
	return output
}
