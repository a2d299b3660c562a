package audio

import (
	"math"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/fft"
)

// LevelData represents real-time audio level measurements
type LevelData struct {
	Timestamp int64   `json:"timestamp"`
	RMS       float64 `json:"rms"`      // linear RMS in [0, 1]
	RMSDB     float64 `json:"rms_db"`   // RMS in dBFS
	Peak      float64 `json:"peak"`     // peak level in dBFS
	Clipping  bool    `json:"clipping"` // true if clipping detected
}

// SpectrumData represents FFT spectrum analysis of recent audio
type SpectrumData struct {
	Timestamp  int64     `json:"timestamp"`
	SampleRate int       `json:"sample_rate"`
	Spectrum   []float64 `json:"spectrum"`  // magnitude spectrum in dB
	FreqStep   float64   `json:"freq_step"` // frequency per bin in Hz
}

// LevelMonitor tracks RMS/peak levels and a magnitude spectrum over the
// blocks flowing to the sink. It sits off the hot path: Observe copies
// what it needs and the FFT runs at most once per update interval.
type LevelMonitor struct {
	mutex sync.RWMutex

	sampleRate int
	fftSize    int
	updateRate time.Duration

	currentRMS  float64
	currentPeak float64
	isClipping  bool

	spectrum     []float64
	spectrumTime time.Time

	fftBuffer []float64
	fftFill   int
	window    []float64

	// Debug RMS logging pace (about twice a second while streaming)
	lastRMSLog time.Time
}

// NewLevelMonitor creates a monitor for the given audio rate.
func NewLevelMonitor(sampleRate, fftSize int) *LevelMonitor {
	return &LevelMonitor{
		sampleRate: sampleRate,
		fftSize:    fftSize,
		updateRate: 500 * time.Millisecond,
		spectrum:   make([]float64, fftSize/2),
		fftBuffer:  make([]float64, fftSize),
		window:     makeHannWindow(fftSize),
	}
}

// Observe folds one block into the running measurements. Returns the
// block RMS so callers can reuse it for squelch decisions.
func (m *LevelMonitor) Observe(block Block) float64 {
	rms := block.RMS()

	var peak float64
	clipping := false
	for _, s := range block.Samples {
		v := math.Abs(float64(s))
		if v > peak {
			peak = v
		}
		if v >= 0.999 {
			clipping = true
		}
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.currentRMS = rms
	m.currentPeak = peak
	m.isClipping = clipping

	// Accumulate for the spectrum snapshot.
	for _, s := range block.Samples {
		if m.fftFill >= m.fftSize {
			break
		}
		m.fftBuffer[m.fftFill] = float64(s)
		m.fftFill++
	}
	if m.fftFill >= m.fftSize && time.Since(m.spectrumTime) >= m.updateRate {
		m.computeSpectrumLocked()
		m.spectrumTime = time.Now()
		m.fftFill = 0
	}

	return rms
}

// ShouldLogRMS paces the periodic RMS debug line.
func (m *LevelMonitor) ShouldLogRMS() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if time.Since(m.lastRMSLog) < 500*time.Millisecond {
		return false
	}
	m.lastRMSLog = time.Now()
	return true
}

// Level returns the current level measurements.
func (m *LevelMonitor) Level() LevelData {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return LevelData{
		Timestamp: time.Now().UnixMilli(),
		RMS:       m.currentRMS,
		RMSDB:     toDB(m.currentRMS),
		Peak:      toDB(m.currentPeak),
		Clipping:  m.isClipping,
	}
}

// Spectrum returns the most recent magnitude spectrum.
func (m *LevelMonitor) Spectrum() SpectrumData {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]float64, len(m.spectrum))
	copy(out, m.spectrum)
	return SpectrumData{
		Timestamp:  m.spectrumTime.UnixMilli(),
		SampleRate: m.sampleRate,
		Spectrum:   out,
		FreqStep:   float64(m.sampleRate) / float64(m.fftSize),
	}
}

func (m *LevelMonitor) computeSpectrumLocked() {
	windowed := make([]float64, m.fftSize)
	for i := range windowed {
		windowed[i] = m.fftBuffer[i] * m.window[i]
	}

	bins := fft.FFTReal(windowed)
	for i := 0; i < m.fftSize/2; i++ {
		mag := math.Hypot(real(bins[i]), imag(bins[i])) / float64(m.fftSize)
		m.spectrum[i] = toDB(mag)
	}
}

func toDB(v float64) float64 {
	if v <= 1e-10 {
		return -100
	}
	db := 20 * math.Log10(v)
	if db < -100 {
		return -100
	}
	return db
}

func makeHannWindow(size int) []float64 {
	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return window
}
