package sdr

import (
	"fmt"
	"sync"

	rtl "github.com/jpoirier/gortlsdr"
)

// RTLDevice implements Device on top of librtlsdr. Control calls and
// ReadIQ are serialized on separate locks so a retune never has to wait
// for an in-flight capture.
type RTLDevice struct {
	config DeviceConfig

	mutex  sync.Mutex // tuner control
	ioMu   sync.Mutex // ReadIQ
	dev    *rtl.Context
	rawBuf []uint8
}

// NewRTLDevice creates a device handle for the RTL-SDR at the given
// USB index. The device is not opened until Open.
func NewRTLDevice(config DeviceConfig) *RTLDevice {
	return &RTLDevice{config: config}
}

// Open opens the dongle and applies the bring-up sequence. The ordering
// matters on R82xx/R828D tuners: correction and bandwidth before sample
// rate, or the PLL can fail to lock on the first retune.
func (d *RTLDevice) Open() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.dev != nil {
		return fmt.Errorf("rtl device %d: already open", d.config.Index)
	}

	dev, err := rtl.Open(d.config.Index)
	if err != nil {
		return fmt.Errorf("rtl device %d: %w", d.config.Index, err)
	}
	d.dev = dev
	d.rawBuf = make([]uint8, rtl.DefaultBufLength)

	if d.config.PPM != 0 {
		if err := dev.SetFreqCorrection(d.config.PPM); err != nil {
			dev.Close()
			d.dev = nil
			return fmt.Errorf("set freq correction: %w", err)
		}
	}
	if err := dev.SetTunerGainMode(true); err != nil {
		dev.Close()
		d.dev = nil
		return fmt.Errorf("set manual gain mode: %w", err)
	}
	if d.config.BandwidthHz > 0 {
		if err := dev.SetTunerBw(d.config.BandwidthHz); err != nil {
			dev.Close()
			d.dev = nil
			return fmt.Errorf("set bandwidth: %w", err)
		}
	}
	if err := dev.SetSampleRate(d.config.SampleRate); err != nil {
		dev.Close()
		d.dev = nil
		return fmt.Errorf("set sample rate: %w", err)
	}
	if err := dev.ResetBuffer(); err != nil {
		dev.Close()
		d.dev = nil
		return fmt.Errorf("reset buffer: %w", err)
	}
	return nil
}

// Close releases the dongle. Close preempts a blocking ReadSync, so it
// must not take the IO lock.
func (d *RTLDevice) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.dev == nil {
		return nil
	}
	err := d.dev.Close()
	d.dev = nil
	return err
}

func (d *RTLDevice) SetCenterFreq(hz int64) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.dev == nil {
		return fmt.Errorf("device not open")
	}
	return d.dev.SetCenterFreq(int(hz))
}

func (d *RTLDevice) GetCenterFreq() (int64, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.dev == nil {
		return 0, fmt.Errorf("device not open")
	}
	return int64(d.dev.GetCenterFreq()), nil
}

func (d *RTLDevice) SetSampleRate(rate int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.dev == nil {
		return fmt.Errorf("device not open")
	}
	return d.dev.SetSampleRate(rate)
}

func (d *RTLDevice) SetBandwidth(hz int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.dev == nil {
		return fmt.Errorf("device not open")
	}
	return d.dev.SetTunerBw(hz)
}

// SetGain sets the tuner RF gain. librtlsdr expects tenths of a dB.
func (d *RTLDevice) SetGain(db float64) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.dev == nil {
		return fmt.Errorf("device not open")
	}
	return d.dev.SetTunerGain(int(db * 10))
}

func (d *RTLDevice) GetGain() (float64, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.dev == nil {
		return 0, fmt.Errorf("device not open")
	}
	return float64(d.dev.GetTunerGain()) / 10, nil
}

func (d *RTLDevice) SetFreqCorrection(ppm int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.dev == nil {
		return fmt.Errorf("device not open")
	}
	return d.dev.SetFreqCorrection(ppm)
}

// ReadIQ reads raw unsigned 8-bit IQ and converts to complex64 centered
// on zero. Returns the number of complex samples produced.
func (d *RTLDevice) ReadIQ(buf []complex64) (int, error) {
	d.ioMu.Lock()
	defer d.ioMu.Unlock()

	d.mutex.Lock()
	dev := d.dev
	d.mutex.Unlock()
	if dev == nil {
		return 0, fmt.Errorf("device not open")
	}

	want := len(buf) * 2
	if want > len(d.rawBuf) {
		want = len(d.rawBuf)
	}
	nRead, err := dev.ReadSync(d.rawBuf[:want], want)
	if err != nil {
		return 0, fmt.Errorf("read iq: %w", err)
	}

	n := nRead / 2
	for i := 0; i < n; i++ {
		re := (float32(d.rawBuf[2*i]) - 127.5) / 127.5
		im := (float32(d.rawBuf[2*i+1]) - 127.5) / 127.5
		buf[i] = complex(re, im)
	}
	return n, nil
}

func (d *RTLDevice) TunableRange() (int64, int64) {
	return d.config.MinHz, d.config.MaxHz
}

func (d *RTLDevice) GainRange() (float64, float64) {
	return d.config.MinGainDB, d.config.MaxGainDB
}

func (d *RTLDevice) IsOpen() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.dev != nil
}
