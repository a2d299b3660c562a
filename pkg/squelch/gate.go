// Package squelch implements block-level RMS squelch gating and volume
// scaling for mono float32 PCM audio.
//
// Gating is per block, not per sample: a block whose RMS falls below
// the threshold is replaced wholesale by silence of the same length, so
// cadence to the transport never breaks. The trade is a slightly abrupt
// attack/decay for a gate with no state to mistrack.
package squelch

// Result describes what the gate did to a block.
type Result struct {
	RMS    float64 // measured before gating
	Gated  bool    // true when the block was replaced by silence
	Output []float32
}

// Apply gates and scales one block. threshold of 0 disables gating
// entirely; the block passes through untouched apart from volume
// scaling. volume of 1.0 with threshold 0 returns the input slice
// unchanged.
func Apply(samples []float32, rms float64, threshold, volume float64) Result {
	if threshold > 0 && rms < threshold {
		return Result{
			RMS:    rms,
			Gated:  true,
			Output: make([]float32, len(samples)),
		}
	}

	if volume == 1.0 {
		return Result{RMS: rms, Output: samples}
	}

	out := make([]float32, len(samples))
	v := float32(volume)
	for i, s := range samples {
		scaled := s * v
		if scaled > 1 {
			scaled = 1
		} else if scaled < -1 {
			scaled = -1
		}
		out[i] = scaled
	}
	return Result{RMS: rms, Output: out}
}
