package sdr

// DeviceConfig represents tuner hardware configuration
type DeviceConfig struct {
	Index       int     // USB device index
	SampleRate  int     // IQ sample rate in S/s
	BandwidthHz int     // Front-end bandwidth (0 = auto)
	MinHz       int64   // Lower edge of the tunable range
	MaxHz       int64   // Upper edge of the tunable range
	MinGainDB   float64 // Lowest supported RF gain
	MaxGainDB   float64 // Highest supported RF gain
	PPM         int     // Frequency correction
}

// Device defines tuner control and IQ capture operations.
//
// Implementations serialize their own hardware access; callers may issue
// control calls concurrently with ReadIQ.
type Device interface {
	Open() error
	Close() error

	// Tuner control
	SetCenterFreq(hz int64) error
	GetCenterFreq() (int64, error)
	SetSampleRate(rate int) error
	SetBandwidth(hz int) error
	SetGain(db float64) error
	GetGain() (float64, error)
	SetFreqCorrection(ppm int) error

	// ReadIQ fills buf with complex baseband samples and returns the
	// number of samples read.
	ReadIQ(buf []complex64) (int, error)

	// Capability ranges for validation
	TunableRange() (min, max int64)
	GainRange() (min, max float64)

	IsOpen() bool
}

// InRange reports whether hz lies within the device's tunable range.
func InRange(d Device, hz int64) bool {
	min, max := d.TunableRange()
	return hz >= min && hz <= max
}

// GainInRange reports whether db lies within the device's gain range.
func GainInRange(d Device, db float64) bool {
	min, max := d.GainRange()
	return db >= min && db <= max
}
