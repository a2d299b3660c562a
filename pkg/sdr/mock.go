package sdr

import (
	"fmt"
	"math"
	"sync"
)

// MockDevice implements Device for testing. It synthesizes an FM
// modulated tone at baseband so a full demodulation chain produces
// real audio from it.
type MockDevice struct {
	config DeviceConfig
	mutex  sync.RWMutex

	// Mock state
	open       bool
	centerFreq int64
	sampleRate int
	bandwidth  int
	gain       float64
	ppm        int
	phase      float64
	t          float64

	// Open/close accounting for leak tests
	openCount  int
	closeCount int

	// Tone synthesis: 0 deviation produces an unmodulated carrier
	toneHz      float64
	deviationHz float64

	// Failure injection
	failOpen bool
	// slipRetunes makes GetCenterFreq report an offset frequency until
	// this many further SetCenterFreq calls have been issued.
	slipRetunes int
	slipHz      int64
}

// NewMockDevice creates a new mock tuner.
func NewMockDevice(config DeviceConfig) *MockDevice {
	if config.MaxHz == 0 {
		config.MinHz = 24000000
		config.MaxHz = 1766000000
	}
	if config.MaxGainDB == 0 {
		config.MaxGainDB = 49.6
	}
	if config.SampleRate == 0 {
		config.SampleRate = 2048000
	}
	return &MockDevice{
		config:      config,
		sampleRate:  config.SampleRate,
		slipHz:      8000,
		toneHz:      800,
		deviationHz: 2000,
	}
}

// SetTone configures the synthesized audio tone and FM deviation.
func (d *MockDevice) SetTone(audioHz, deviationHz float64) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.toneHz = audioHz
	d.deviationHz = deviationHz
}

// FailOpen makes the next Open call fail.
func (d *MockDevice) FailOpen(fail bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.failOpen = fail
}

// SlipLock makes the tuner report an off-target frequency for the next
// n retune attempts, simulating a PLL that needs a nudge to re-acquire.
func (d *MockDevice) SlipLock(n int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.slipRetunes = n
}

// OpenHandles returns the number of currently open handles. Anything
// other than 0 or 1 is a bug in the caller.
func (d *MockDevice) OpenHandles() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.openCount - d.closeCount
}

// Open opens the mock tuner.
func (d *MockDevice) Open() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.failOpen {
		return fmt.Errorf("mock device %d: open failed", d.config.Index)
	}
	if d.open {
		return fmt.Errorf("mock device %d: already open", d.config.Index)
	}
	d.open = true
	d.openCount++
	return nil
}

// Close closes the mock tuner. Closing a closed device is a no-op.
func (d *MockDevice) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.open {
		return nil
	}
	d.open = false
	d.closeCount++
	return nil
}

func (d *MockDevice) SetCenterFreq(hz int64) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.open {
		return fmt.Errorf("device not open")
	}
	d.centerFreq = hz
	if d.slipRetunes > 0 {
		d.slipRetunes--
	}
	return nil
}

func (d *MockDevice) GetCenterFreq() (int64, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if !d.open {
		return 0, fmt.Errorf("device not open")
	}
	if d.slipRetunes > 0 {
		return d.centerFreq + d.slipHz, nil
	}
	return d.centerFreq, nil
}

func (d *MockDevice) SetSampleRate(rate int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.open {
		return fmt.Errorf("device not open")
	}
	d.sampleRate = rate
	return nil
}

func (d *MockDevice) SetBandwidth(hz int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.open {
		return fmt.Errorf("device not open")
	}
	d.bandwidth = hz
	return nil
}

func (d *MockDevice) SetGain(db float64) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.open {
		return fmt.Errorf("device not open")
	}
	d.gain = db
	return nil
}

func (d *MockDevice) GetGain() (float64, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if !d.open {
		return 0, fmt.Errorf("device not open")
	}
	return d.gain, nil
}

func (d *MockDevice) SetFreqCorrection(ppm int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.open {
		return fmt.Errorf("device not open")
	}
	d.ppm = ppm
	return nil
}

// ReadIQ synthesizes FM-modulated IQ at baseband:
// phase advances by 2π·(deviation·sin(2π·tone·t))/rate per sample.
func (d *MockDevice) ReadIQ(buf []complex64) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.open {
		return 0, fmt.Errorf("device not open")
	}

	rate := float64(d.sampleRate)
	dt := 1.0 / rate
	for i := range buf {
		inst := d.deviationHz * math.Sin(2*math.Pi*d.toneHz*d.t)
		d.phase += 2 * math.Pi * inst * dt
		buf[i] = complex(float32(math.Cos(d.phase)), float32(math.Sin(d.phase)))
		d.t += dt
	}
	return len(buf), nil
}

func (d *MockDevice) TunableRange() (int64, int64) {
	return d.config.MinHz, d.config.MaxHz
}

func (d *MockDevice) GainRange() (float64, float64) {
	return d.config.MinGainDB, d.config.MaxGainDB
}

func (d *MockDevice) IsOpen() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.open
}
