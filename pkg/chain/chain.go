// Package chain assembles demodulation pipelines: IQ source, channel
// filtering, FM discriminator, and resampling down to transport-rate
// audio blocks.
//
// A Chain is built for exactly one mode and is never reconfigured in
// place. Mode changes are handled above this package by building a
// replacement chain and retiring the old one.
package chain

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bgvfd/radiod/pkg/audio"
	"github.com/bgvfd/radiod/pkg/dsp"
	"github.com/bgvfd/radiod/pkg/logging"
	"github.com/bgvfd/radiod/pkg/sdr"
)

// Mode selects the demodulation pipeline topology.
type Mode string

const (
	ModeNFM Mode = "nfm"
	ModeWFM Mode = "wfm"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nfm":
		return ModeNFM, nil
	case "wfm":
		return ModeWFM, nil
	default:
		return "", fmt.Errorf("mode must be nfm or wfm, got %q", s)
	}
}

// State is the chain lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConfiguring
	StateStreaming
	StateStopping
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Params describes one pipeline instantiation. Rates are picked for
// R828D-class tuners: 2.048 MS/s capture decimated by 8 to a 256 kS/s
// quadrature rate, audio decimated to 64 kHz and resampled 3/4 to the
// 48 kHz transport rate.
type Params struct {
	Mode        Mode
	DeviceRate  int // IQ sample rate
	QuadRate    int // rate at the discriminator
	AudioRate   int // transport audio rate
	BlockSize   int // samples per output block
	DeviationHz int // NFM deviation
}

// DefaultParams returns the deployed rate plan for the given mode.
func DefaultParams(mode Mode, deviationHz int) Params {
	return Params{
		Mode:        mode,
		DeviceRate:  2048000,
		QuadRate:    256000,
		AudioRate:   48000,
		BlockSize:   960,
		DeviationHz: deviationHz,
	}
}

const iqChunk = 16384 // IQ samples per device read

// Chain is one fully-assembled demodulation pipeline producing audio
// blocks from a shared tuner device.
type Chain struct {
	params Params
	dev    sdr.Device
	state  atomic.Int32

	// Assembled stages (mode dependent; nil where unused)
	frontEnd  *dsp.ComplexFIRFilter
	chanLPF   *dsp.ComplexFIRFilter
	demod     *dsp.QuadratureDemod
	postDecim *dsp.Decimator
	audioLPF  *dsp.FIRFilter
	deemph    *dsp.Deemphasis
	resamp    *dsp.Resampler

	blocks  chan audio.Block
	done    chan struct{}
	stopped sync.WaitGroup
	seq     uint64
	pending []float32
}

// New creates an idle chain over the given device. The device must
// already be open; the chain never opens or closes it.
func New(dev sdr.Device, params Params) *Chain {
	return &Chain{
		params: params,
		dev:    dev,
		blocks: make(chan audio.Block, 8),
		done:   make(chan struct{}),
	}
}

// Params returns the chain's build parameters.
func (c *Chain) Params() Params {
	return c.params
}

// State returns the current lifecycle state.
func (c *Chain) State() State {
	return State(c.state.Load())
}

// Blocks returns the channel of produced audio blocks. The channel is
// closed when the chain stops.
func (c *Chain) Blocks() <-chan audio.Block {
	return c.blocks
}

// Configure assembles the pipeline stages and verifies the chain is
// startable. Idle -> Configuring. The chain holds no device claim yet.
func (c *Chain) Configure() error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConfiguring)) {
		return fmt.Errorf("chain is %s, cannot configure", c.State())
	}

	if !c.dev.IsOpen() {
		c.state.Store(int32(StateIdle))
		return fmt.Errorf("device not open")
	}

	decim := c.params.DeviceRate / c.params.QuadRate
	if decim < 1 || c.params.DeviceRate%c.params.QuadRate != 0 {
		c.state.Store(int32(StateIdle))
		return fmt.Errorf("device rate %d not an integer multiple of quad rate %d",
			c.params.DeviceRate, c.params.QuadRate)
	}

	// Front end: band-limit to the quadrature rate and decimate.
	cutoff := float64(c.params.QuadRate) * 0.4
	c.frontEnd = dsp.NewComplexFIRFilter(
		dsp.DesignLowPass(float64(c.params.DeviceRate), cutoff, float64(c.params.QuadRate)*0.5),
		decim)

	quadRate := float64(c.params.QuadRate)
	postRate := c.params.QuadRate / 4 // 64 kHz audio before the final resample

	switch c.params.Mode {
	case ModeWFM:
		// Broadcast FM: discriminate the full channel, then low-pass
		// and decimate to the intermediate audio rate, de-emphasize.
		c.demod = dsp.NewQuadratureDemod(dsp.QuadratureGain(quadRate, 75000))
		c.audioLPF = dsp.NewFIRFilter(
			dsp.DesignLowPass(quadRate, 16000, 8000), 4)
		c.deemph = dsp.NewDeemphasis(postRate, 75e-6)

	case ModeNFM:
		if c.params.DeviationHz <= 0 {
			c.state.Store(int32(StateIdle))
			return fmt.Errorf("nfm deviation must be > 0, got %d", c.params.DeviationHz)
		}
		// Narrowband: select the channel ahead of the discriminator,
		// then voice-bandwidth filtering at the intermediate rate.
		c.chanLPF = dsp.NewComplexFIRFilter(
			dsp.DesignLowPass(quadRate, 6000, 6000), 1)
		c.demod = dsp.NewQuadratureDemod(dsp.QuadratureGain(quadRate, float64(c.params.DeviationHz)))
		c.postDecim = dsp.NewDecimator(4)
		c.audioLPF = dsp.NewFIRFilter(
			dsp.DesignLowPass(float64(postRate), 3500, 1500), 1)

	default:
		c.state.Store(int32(StateIdle))
		return fmt.Errorf("unknown mode %q", c.params.Mode)
	}

	// 64k -> 48k
	c.resamp = dsp.NewResampler(3, 4)
	return nil
}

// Start begins block production. Configuring -> Streaming.
func (c *Chain) Start() error {
	if !c.state.CompareAndSwap(int32(StateConfiguring), int32(StateStreaming)) {
		return fmt.Errorf("chain is %s, cannot start", c.State())
	}

	c.stopped.Add(1)
	go c.run()
	return nil
}

// Stop halts production and releases the chain's claim on the device
// reader. Streaming -> Stopping -> Idle. Stop blocks until the
// production goroutine has exited, so a successor chain can safely
// start afterwards. Stopping a chain that never started is a no-op.
func (c *Chain) Stop() {
	if c.state.CompareAndSwap(int32(StateConfiguring), int32(StateIdle)) {
		return
	}
	if !c.state.CompareAndSwap(int32(StateStreaming), int32(StateStopping)) {
		return
	}
	close(c.done)
	c.stopped.Wait()
	c.state.Store(int32(StateIdle))
}

// run is the sample-production loop. A device read failure degrades to
// silence at cadence rather than stalling the stream.
func (c *Chain) run() {
	defer c.stopped.Done()
	defer close(c.blocks)

	iq := make([]complex64, iqChunk)
	blockDuration := time.Duration(c.params.BlockSize) * time.Second / time.Duration(c.params.AudioRate)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		n, err := c.dev.ReadIQ(iq)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			logging.Warnf("chain", "IQ read failed, producing silence: %v", err)
			if !c.emit(make([]float32, c.params.BlockSize)) {
				return
			}
			time.Sleep(blockDuration)
			continue
		}

		if !c.emit(c.process(iq[:n])) {
			return
		}
	}
}

// process runs one IQ chunk through the assembled stages.
func (c *Chain) process(iq []complex64) []float32 {
	baseband := c.frontEnd.Process(iq)
	if c.chanLPF != nil {
		baseband = c.chanLPF.Process(baseband)
	}
	samples := c.demod.Process(baseband)
	if c.postDecim != nil {
		samples = c.postDecim.Process(samples)
	}
	if c.audioLPF != nil {
		samples = c.audioLPF.Process(samples)
	}
	if c.deemph != nil {
		samples = c.deemph.Process(samples)
	}
	return c.resamp.Process(samples)
}

// emit slices accumulated audio into fixed blocks. Returns false when
// the chain is stopping.
func (c *Chain) emit(samples []float32) bool {
	c.pending = append(c.pending, samples...)

	for len(c.pending) >= c.params.BlockSize {
		block := audio.Block{
			Seq:     c.seq,
			Samples: append([]float32(nil), c.pending[:c.params.BlockSize]...),
		}
		c.pending = c.pending[c.params.BlockSize:]

		select {
		case c.blocks <- block:
			c.seq++
		case <-c.done:
			return false
		}
	}
	return true
}
