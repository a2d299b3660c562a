package dsp

import "math"

// Resampler performs rational resampling by a fixed interpolation /
// decimation ratio using windowed-sinc interpolation. Fractional read
// position carries across blocks so cadence stays exact over time.
type Resampler struct {
	ratio float64
	// tail keeps enough input history for the sinc window to span
	// block boundaries.
	tail []float32
	// frac is the fractional input position left over from the
	// previous block.
	frac float64
}

const resampleWindow = 16 // taps on each side of the interpolation point

// NewResampler creates a resampler producing interp output samples for
// every decim input samples.
func NewResampler(interp, decim int) *Resampler {
	return &Resampler{
		ratio: float64(interp) / float64(decim),
		tail:  make([]float32, 2*resampleWindow),
	}
}

// Ratio returns the output/input rate ratio.
func (r *Resampler) Ratio() float64 {
	return r.ratio
}

// Process resamples a block. Output length varies by at most one sample
// between calls; over time the exact rational ratio is maintained.
func (r *Resampler) Process(input []float32) []float32 {
	buffer := make([]float32, len(r.tail)+len(input))
	copy(buffer, r.tail)
	copy(buffer[len(r.tail):], input)

	// Interpolation points must keep a full window of lookahead.
	usable := len(buffer) - resampleWindow
	if usable <= resampleWindow {
		r.tail = buffer
		return nil
	}

	invRatio := 1.0 / r.ratio
	output := make([]float32, 0, int(float64(len(input))*r.ratio)+1)

	pos := r.frac + resampleWindow
	for pos < float64(usable) {
		output = append(output, interpolate(buffer, pos))
		pos += invRatio
	}

	// Carry the unconsumed fraction and the history window forward.
	consumed := float64(usable) - resampleWindow
	r.frac = pos - resampleWindow - consumed
	r.tail = buffer[len(buffer)-2*resampleWindow:]
	return output
}

func interpolate(buffer []float32, pos float64) float32 {
	center := int(math.Round(pos))

	var acc, sumTaps float32
	for j := -resampleWindow; j < resampleWindow; j++ {
		idx := center + j
		if idx < 0 || idx >= len(buffer) {
			continue
		}

		sincPos := pos - float64(idx)
		piSincPos := math.Pi * sincPos
		sinc := float32(1.0)
		if piSincPos != 0 {
			sinc = float32(math.Sin(piSincPos) / piSincPos)
		}

		win := 0.54 - 0.46*math.Cos(2*math.Pi*float64(j+resampleWindow)/float64(2*resampleWindow))
		tap := sinc * float32(win)

		acc += buffer[idx] * tap
		sumTaps += tap
	}
	if sumTaps == 0 {
		return 0
	}
	return acc / sumTaps
}
