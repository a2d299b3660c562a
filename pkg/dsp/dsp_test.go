package dsp

import (
	"math"
	"testing"
)

func TestDesignLowPass(t *testing.T) {
	taps := DesignLowPass(256000, 6000, 6000)

	if len(taps)%2 == 0 {
		t.Errorf("Expected odd tap count, got %d", len(taps))
	}

	// Unity DC gain.
	sum := 0.0
	for _, tap := range taps {
		sum += tap
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("Expected taps to sum to 1.0, got %f", sum)
	}

	// Symmetric (linear phase).
	for i := 0; i < len(taps)/2; i++ {
		if math.Abs(taps[i]-taps[len(taps)-1-i]) > 1e-12 {
			t.Fatalf("Taps not symmetric at index %d", i)
		}
	}
}

func TestFIRFilterDC(t *testing.T) {
	taps := DesignLowPass(48000, 3500, 1500)
	f := NewFIRFilter(taps, 1)

	// DC through a unity-gain low-pass should come out as DC once the
	// filter has filled.
	input := make([]float32, 4096)
	for i := range input {
		input[i] = 0.5
	}
	output := f.Process(input)
	if len(output) == 0 {
		t.Fatal("Expected output samples")
	}
	last := output[len(output)-1]
	if math.Abs(float64(last)-0.5) > 1e-3 {
		t.Errorf("Expected DC 0.5 after settling, got %f", last)
	}
}

func TestFIRFilterDecimation(t *testing.T) {
	taps := DesignLowPass(256000, 6000, 6000)
	f := NewFIRFilter(taps, 4)

	input := make([]float32, 8192)
	output := f.Process(input)

	// Roughly a quarter of the input once state is charged.
	if len(output) < len(input)/4-len(taps) || len(output) > len(input)/4+1 {
		t.Errorf("Decimation by 4 of %d samples gave %d output samples", len(input), len(output))
	}
}

func TestFIRFilterStateAcrossBlocks(t *testing.T) {
	taps := DesignLowPass(48000, 3500, 1500)

	// Filtering one long block must equal filtering two half blocks.
	input := make([]float32, 2048)
	for i := range input {
		input[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 48000))
	}

	whole := NewFIRFilter(taps, 1).Process(input)

	split := NewFIRFilter(taps, 1)
	first := split.Process(input[:1024])
	second := split.Process(input[1024:])
	combined := append(first, second...)

	if len(whole) != len(combined) {
		t.Fatalf("Length mismatch: whole %d, split %d", len(whole), len(combined))
	}
	for i := range whole {
		if math.Abs(float64(whole[i]-combined[i])) > 1e-6 {
			t.Fatalf("Sample %d differs: %f vs %f", i, whole[i], combined[i])
		}
	}
}

func TestQuadratureDemodConstantOffset(t *testing.T) {
	// A constant frequency offset produces a constant phase step, so
	// the demodulated audio should be a constant level.
	const (
		rate   = 256000.0
		offset = 1000.0 // Hz
	)
	d := NewQuadratureDemod(QuadratureGain(rate, 2500))

	samples := make([]complex64, 2048)
	for i := range samples {
		phase := 2 * math.Pi * offset * float64(i) / rate
		samples[i] = complex(float32(math.Cos(phase)), float32(math.Sin(phase)))
	}

	output := d.Process(samples)
	want := float64(QuadratureGain(rate, 2500)) * 2 * math.Pi * offset / rate
	for i := 1; i < len(output); i++ {
		if math.Abs(float64(output[i])-want) > 1e-3 {
			t.Fatalf("Sample %d: got %f, want %f", i, output[i], want)
		}
	}
}

func TestQuadratureDemodStateAcrossBlocks(t *testing.T) {
	const rate = 256000.0
	mk := func() []complex64 {
		samples := make([]complex64, 1024)
		for i := range samples {
			phase := 2 * math.Pi * 500 * float64(i) / rate
			samples[i] = complex(float32(math.Cos(phase)), float32(math.Sin(phase)))
		}
		return samples
	}

	whole := NewQuadratureDemod(1.0).Process(mk())

	split := NewQuadratureDemod(1.0)
	input := mk()
	combined := append(split.Process(input[:512]), split.Process(input[512:])...)

	for i := 1; i < len(whole); i++ {
		if math.Abs(float64(whole[i]-combined[i])) > 1e-6 {
			t.Fatalf("Sample %d differs across block split: %f vs %f", i, whole[i], combined[i])
		}
	}
}

func TestResamplerRatio(t *testing.T) {
	// 64k -> 48k is the chain's final stage.
	r := NewResampler(3, 4)

	total := 0
	blocks := 32
	blockLen := 1024
	for i := 0; i < blocks; i++ {
		input := make([]float32, blockLen)
		total += len(r.Process(input))
	}

	want := blocks * blockLen * 3 / 4
	// The window prefill holds back a handful of samples.
	if total < want-64 || total > want+2 {
		t.Errorf("Expected ~%d output samples, got %d", want, total)
	}
}

func TestResamplerPreservesTone(t *testing.T) {
	r := NewResampler(3, 4)

	// A 440 Hz tone at 64 kHz stays a 440 Hz tone at 48 kHz; check
	// amplitude survives.
	input := make([]float32, 8192)
	for i := range input {
		input[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 64000))
	}
	output := r.Process(input)
	if len(output) == 0 {
		t.Fatal("Expected output")
	}

	var peak float32
	for _, s := range output[64:] {
		if s > peak {
			peak = s
		}
	}
	if peak < 0.9 || peak > 1.1 {
		t.Errorf("Expected peak near 1.0, got %f", peak)
	}
}

func TestDecimator(t *testing.T) {
	d := NewDecimator(4)

	input := []float32{0, 1, 2, 3, 4, 5, 6, 7}
	output := d.Process(input)
	if len(output) != 2 || output[0] != 0 || output[1] != 4 {
		t.Errorf("Unexpected decimator output: %v", output)
	}

	// Phase carries into the next block.
	output = d.Process([]float32{8, 9, 10, 11})
	if len(output) != 1 || output[0] != 8 {
		t.Errorf("Expected phase-continuous decimation, got %v", output)
	}
}

func TestDeemphasis(t *testing.T) {
	d := NewDeemphasis(48000, 75e-6)

	// A step input converges to the step level.
	block := make([]float32, 4096)
	for i := range block {
		block[i] = 1.0
	}
	out := d.Process(block)
	last := out[len(out)-1]
	if math.Abs(float64(last)-1.0) > 1e-3 {
		t.Errorf("Expected convergence to 1.0, got %f", last)
	}
}
