package audio

import "math"

// Block is one fixed-length unit of mono PCM audio produced at the
// pipeline's output cadence. Samples are float32 in [-1, 1]; Seq
// increases by one per block for the life of a chain.
type Block struct {
	Seq     uint64
	Samples []float32
}

// Silence returns a block of n zero samples with the given sequence
// number. Cadence to the sink must never break, so gated or missing
// audio is silence, not absence.
func Silence(seq uint64, n int) Block {
	return Block{Seq: seq, Samples: make([]float32, n)}
}

// RMS computes the root-mean-square amplitude of the block with each
// sample clipped to [-1, 1] first, matching the squelch reference
// level.
func (b Block) RMS() float64 {
	if len(b.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range b.Samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(b.Samples)))
}

// PCM16 converts the block to interleaved stereo int16 PCM (mono
// duplicated to both channels), clipping out-of-range samples.
func (b Block) PCM16() []int16 {
	out := make([]int16, 2*len(b.Samples))
	for i, s := range b.Samples {
		v := s * 32768
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[2*i] = int16(v)
		out[2*i+1] = int16(v)
	}
	return out
}

// PCM16Bytes converts the block to little-endian stereo int16 bytes,
// the frame format the transport expects.
func (b Block) PCM16Bytes() []byte {
	pcm := b.PCM16()
	out := make([]byte, 2*len(pcm))
	for i, s := range pcm {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}
