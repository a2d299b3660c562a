// Package controller owns the radio: the tuner device, the active
// demodulation chain, and the runtime parameters. All control commands
// funnel through one Controller, which serializes them and keeps the
// audio stream alive across retunes and mode switches.
package controller

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bgvfd/radiod/pkg/audio"
	"github.com/bgvfd/radiod/pkg/chain"
	"github.com/bgvfd/radiod/pkg/config"
	"github.com/bgvfd/radiod/pkg/logging"
	"github.com/bgvfd/radiod/pkg/sdr"
	"github.com/bgvfd/radiod/pkg/squelch"
)

// HistoryRecorder receives tuning events. A nil recorder disables
// history without touching the signal path.
type HistoryRecorder interface {
	RecordTune(freqHz int64, mode, preset string) error
}

// RadioState is a point-in-time snapshot of the radio.
type RadioState struct {
	Streaming        bool            `json:"streaming"`
	ChainState       string          `json:"chain_state"`
	Mode             string          `json:"mode"`
	FrequencyHz      int64           `json:"frequency_hz"`
	FrequencyMHz     float64         `json:"frequency_mhz"`
	TunerReadbackHz  int64           `json:"tuner_readback_hz"`
	PresetName       string          `json:"preset,omitempty"`
	GainDB           float64         `json:"gain_db"`
	SquelchThreshold float64         `json:"squelch"`
	Volume           float64         `json:"volume"`
	BlocksProduced   uint64          `json:"blocks_produced"`
	Listeners        int             `json:"listeners"`
	Level            audio.LevelData `json:"level"`
	StartedAt        time.Time       `json:"started_at"`
}

// ListenerCounter is implemented by sinks that track attached clients.
type ListenerCounter interface {
	ListenerCount() int
}

// Controller drives one tuner through whatever chain the current mode
// requires. Commands are serialized; the streaming path never waits on
// a command in progress.
type Controller struct {
	cfg     *config.Config
	dev     sdr.Device
	sink    audio.Sink
	monitor *audio.LevelMonitor
	history HistoryRecorder

	cmdMu  sync.Mutex // serializes control commands; never held across tuner settles
	tuneMu sync.Mutex // serializes retune sequences against each other
	active atomic.Pointer[chain.Chain]

	stateMu    sync.RWMutex
	tuneAbort  chan struct{} // closed by Stop to abandon an in-flight retune
	started    bool
	startedAt  time.Time
	freqHz     int64
	readbackHz int64
	mode       chain.Mode
	gainDB     float64
	threshold  float64
	volume     float64
	presetName string

	outSeq  uint64
	outDone chan struct{}
	outWG   sync.WaitGroup
}

// New creates a controller over an unopened device. Start must be
// called before any command.
func New(cfg *config.Config, dev sdr.Device, sink audio.Sink) *Controller {
	mode, err := chain.ParseMode(cfg.Radio.Mode)
	if err != nil {
		mode = chain.ModeNFM
	}
	return &Controller{
		cfg:       cfg,
		dev:       dev,
		sink:      sink,
		monitor:   audio.NewLevelMonitor(cfg.Audio.SampleRate, 1024),
		mode:      mode,
		gainDB:    cfg.DefaultGainDB(),
		threshold: cfg.Radio.DefaultSquelch,
		volume:    1.0,
		tuneAbort: make(chan struct{}),
		outDone:   make(chan struct{}),
	}
}

// SetHistory attaches a tuning history recorder. Call before Start.
func (c *Controller) SetHistory(h HistoryRecorder) {
	c.history = h
}

// Start opens the tuner and applies the configured gain and frequency
// correction. Streaming does not begin until the first Tune or
// ApplyPreset. Failure here is fatal: there is no radio without a
// device.
func (c *Controller) Start() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.isStarted() {
		return fmt.Errorf("controller already started")
	}

	if err := c.dev.Open(); err != nil {
		return fatalDeviceErr("open", err)
	}
	if err := c.dev.SetGain(c.currentGain()); err != nil {
		c.dev.Close()
		return fatalDeviceErr("set gain", err)
	}
	if c.cfg.Radio.PPM != 0 {
		if err := c.dev.SetFreqCorrection(c.cfg.Radio.PPM); err != nil {
			c.dev.Close()
			return fatalDeviceErr("set frequency correction", err)
		}
	}

	c.stateMu.Lock()
	c.started = true
	c.startedAt = time.Now()
	c.stateMu.Unlock()

	c.outWG.Add(1)
	go c.outputLoop()

	logging.Infof("controller", "tuner ready, gain %.1f dB, ppm %d",
		c.currentGain(), c.cfg.Radio.PPM)
	return nil
}

// Tune retunes the radio and, if it is not already streaming, brings
// the demodulation chain up. Retuning a streaming radio does not
// rebuild the chain: the device keeps feeding the same pipeline.
func (c *Controller) Tune(freqHz int64) error {
	return c.tune(freqHz, "")
}

// tune runs a full retune. cmdMu is held only for the commit after the
// tuner settles, never across the settling delays; the tuner hardware
// is serialized by tuneMu instead, so Stop stays responsive during an
// in-flight tune and aborts it at the next settle checkpoint.
func (c *Controller) tune(freqHz int64, preset string) error {
	if !c.isStarted() {
		return fmt.Errorf("controller not started")
	}
	if !sdr.InRange(c.dev, freqHz) {
		min, max := c.dev.TunableRange()
		return &ValidationError{
			Field:   "frequency",
			Message: fmt.Sprintf("%.4f MHz outside tunable range %.1f-%.1f MHz", float64(freqHz)/1e6, float64(min)/1e6, float64(max)/1e6),
		}
	}

	c.tuneMu.Lock()
	defer c.tuneMu.Unlock()

	c.stateMu.RLock()
	abort := c.tuneAbort
	c.stateMu.RUnlock()

	readback, err := c.lockTuner(freqHz, abort)
	if err != nil {
		return err
	}

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	// Stop may have begun teardown after the last settle checkpoint.
	select {
	case <-abort:
		return ErrTuneInterrupted
	default:
	}
	if !c.isStarted() {
		return fmt.Errorf("controller not started")
	}

	c.stateMu.Lock()
	c.freqHz = freqHz
	c.readbackHz = readback
	c.presetName = preset
	mode := c.mode
	c.stateMu.Unlock()

	if c.active.Load() == nil {
		if err := c.startChain(mode, abort); err != nil {
			return err
		}
	}

	if c.history != nil {
		if err := c.history.RecordTune(freqHz, string(mode), preset); err != nil {
			logging.Warnf("controller", "failed to record tune event: %v", err)
		}
	}
	logging.Infof("controller", "tuned to %.4f MHz (%s)", float64(freqHz)/1e6, mode)
	return nil
}

// lockTuner walks the tuner through the retune sequence: bandwidth
// relaxed, target set, a jitter excursion above and below to force the
// PLL to re-acquire, then readback verification with bounded retries.
// An off-frequency readback after all retries is logged and tolerated;
// the stream continues degraded rather than dying. Closing abort
// abandons the sequence at the next settle checkpoint.
func (c *Controller) lockTuner(target int64, abort <-chan struct{}) (int64, error) {
	if err := c.dev.SetBandwidth(0); err != nil {
		return 0, deviceErr("relax bandwidth", err)
	}

	readback, err := c.runLockSequence(target, abort)

	// Restore bandwidth even on an abandoned sequence; the device must
	// stay usable for the next tune.
	if bwErr := c.dev.SetBandwidth(c.cfg.Device.BandwidthHz); bwErr != nil && err == nil {
		return 0, deviceErr("restore bandwidth", bwErr)
	}
	return readback, err
}

func (c *Controller) runLockSequence(target int64, abort <-chan struct{}) (int64, error) {
	settle := time.Duration(c.cfg.Tuner.SettleMs) * time.Millisecond
	final := time.Duration(c.cfg.Tuner.FinalSettleMs) * time.Millisecond
	retryDelay := time.Duration(c.cfg.Tuner.RetryDelayMs) * time.Millisecond

	steps := []int64{
		target,
		target + int64(c.cfg.Tuner.JitterUpHz),
		target - int64(c.cfg.Tuner.JitterDownHz),
	}
	for _, hz := range steps {
		if err := c.dev.SetCenterFreq(hz); err != nil {
			return 0, deviceErr("set center frequency", err)
		}
		if err := waitSettle(settle, abort); err != nil {
			return 0, err
		}
	}
	if err := c.dev.SetCenterFreq(target); err != nil {
		return 0, deviceErr("set center frequency", err)
	}
	if err := waitSettle(final, abort); err != nil {
		return 0, err
	}

	readback, err := c.dev.GetCenterFreq()
	if err != nil {
		return 0, deviceErr("read center frequency", err)
	}
	tolerance := int64(c.cfg.Tuner.LockToleranceHz)
	for attempt := 0; attempt < c.cfg.Tuner.LockRetries && absDelta(readback, target) > tolerance; attempt++ {
		logging.Warnf("controller", "tuner readback %d Hz off target (attempt %d), nudging",
			readback-target, attempt+1)
		if err := c.dev.SetCenterFreq(target); err != nil {
			return 0, deviceErr("set center frequency", err)
		}
		if err := waitSettle(retryDelay, abort); err != nil {
			return 0, err
		}
		if readback, err = c.dev.GetCenterFreq(); err != nil {
			return 0, deviceErr("read center frequency", err)
		}
	}
	if absDelta(readback, target) > tolerance {
		logging.Warnf("controller", "tuner did not lock: readback %d Hz off target, continuing degraded",
			readback-target)
	}
	return readback, nil
}

// waitSettle sleeps for one settling interval unless the tune is
// aborted first.
func waitSettle(d time.Duration, abort <-chan struct{}) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-abort:
		return ErrTuneInterrupted
	}
}

func absDelta(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

// SetMode switches demodulation. On a streaming radio the replacement
// chain is fully built and started before the old one is retired, so
// a failed build leaves the previous chain untouched.
func (c *Controller) SetMode(mode string) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	m, err := chain.ParseMode(mode)
	if err != nil {
		return &ValidationError{Field: "mode", Message: err.Error()}
	}

	c.stateMu.Lock()
	prev := c.mode
	c.mode = m
	c.stateMu.Unlock()

	old := c.active.Load()
	if old == nil || m == prev {
		return nil
	}

	next, err := c.buildChain(m)
	if err != nil {
		c.stateMu.Lock()
		c.mode = prev
		c.stateMu.Unlock()
		return err
	}
	if err := next.Start(); err != nil {
		c.stateMu.Lock()
		c.mode = prev
		c.stateMu.Unlock()
		return fmt.Errorf("failed to start %s chain: %w", m, err)
	}

	c.active.Store(next)
	old.Stop()
	logging.Infof("controller", "mode switched %s -> %s", prev, m)
	return nil
}

// SetGain sets tuner RF gain in dB.
func (c *Controller) SetGain(db float64) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if !c.isStarted() {
		return fmt.Errorf("controller not started")
	}
	if !sdr.GainInRange(c.dev, db) {
		min, max := c.dev.GainRange()
		return &ValidationError{
			Field:   "gain",
			Message: fmt.Sprintf("%.1f dB outside %.1f-%.1f dB", db, min, max),
		}
	}
	if err := c.dev.SetGain(db); err != nil {
		return deviceErr("set gain", err)
	}

	c.stateMu.Lock()
	c.gainDB = db
	c.stateMu.Unlock()
	return nil
}

// SetBandwidth sets tuner IF bandwidth in Hz. Zero selects automatic
// bandwidth. The value also becomes the bandwidth restored after each
// retune sequence.
func (c *Controller) SetBandwidth(hz int) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if !c.isStarted() {
		return fmt.Errorf("controller not started")
	}
	if hz < 0 {
		return &ValidationError{Field: "bandwidth", Message: "bandwidth must be >= 0 Hz"}
	}
	if err := c.dev.SetBandwidth(hz); err != nil {
		return deviceErr("set bandwidth", err)
	}
	c.cfg.Device.BandwidthHz = hz
	return nil
}

// SetSquelch sets the RMS gate threshold. Zero disables the gate.
// Takes effect on the next audio block; streaming is not disturbed.
func (c *Controller) SetSquelch(threshold float64) error {
	if threshold < 0 {
		return &ValidationError{Field: "squelch", Message: "threshold must be >= 0"}
	}
	c.stateMu.Lock()
	c.threshold = threshold
	c.stateMu.Unlock()
	return nil
}

// SetVolume sets output volume, 0 to 2 (unity is 1).
func (c *Controller) SetVolume(volume float64) error {
	if volume < 0 || volume > 2 {
		return &ValidationError{Field: "volume", Message: "volume must be between 0 and 2"}
	}
	c.stateMu.Lock()
	c.volume = volume
	c.stateMu.Unlock()
	return nil
}

// ApplyPreset tunes to a named preset, applying its squelch and gain
// overrides when present.
func (c *Controller) ApplyPreset(name string) error {
	preset, ok := c.cfg.Radio.Presets[name]
	if !ok {
		return &ValidationError{Field: "preset", Message: fmt.Sprintf("unknown preset %q", name)}
	}

	if err := c.tune(preset.FrequencyHz(), name); err != nil {
		return err
	}

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if preset.Squelch != nil {
		c.stateMu.Lock()
		c.threshold = *preset.Squelch
		c.stateMu.Unlock()
	}
	if preset.Gain != nil {
		if !sdr.GainInRange(c.dev, *preset.Gain) {
			min, max := c.dev.GainRange()
			logging.Warnf("controller", "preset %q gain %.1f dB outside %.1f-%.1f dB, keeping current gain",
				name, *preset.Gain, min, max)
		} else {
			if err := c.dev.SetGain(*preset.Gain); err != nil {
				return deviceErr("set gain", err)
			}
			c.stateMu.Lock()
			c.gainDB = *preset.Gain
			c.stateMu.Unlock()
		}
	}
	return nil
}

// Resume starts streaming at the last tuned frequency, or at the first
// configured preset when the radio has never been tuned.
func (c *Controller) Resume() error {
	if freq := c.currentFreq(); freq != 0 {
		return c.Tune(freq)
	}
	names := c.cfg.PresetNames()
	if len(names) == 0 {
		return &ValidationError{Field: "frequency", Message: "no frequency tuned and no presets configured"}
	}
	sort.Strings(names)
	return c.ApplyPreset(names[0])
}

// Stop tears the chain down. An in-flight retune is interrupted rather
// than waited out. The device stays open; a later Tune resumes
// streaming. Stopping a stopped radio is a no-op.
func (c *Controller) Stop() error {
	c.stateMu.Lock()
	close(c.tuneAbort)
	c.tuneAbort = make(chan struct{})
	c.stateMu.Unlock()

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if old := c.active.Swap(nil); old != nil {
		old.Stop()
		logging.Info("controller", "streaming stopped")
	}
	return nil
}

// Close stops streaming, halts the output loop, and releases the
// device. The controller cannot be restarted.
func (c *Controller) Close() error {
	if err := c.Stop(); err != nil {
		return err
	}

	// Wait out any tune the Stop above interrupted before releasing the
	// device.
	c.tuneMu.Lock()
	defer c.tuneMu.Unlock()
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.stateMu.Lock()
	wasStarted := c.started
	c.started = false
	c.stateMu.Unlock()
	if !wasStarted {
		return nil
	}

	// A tune begun after the Stop above may have started a fresh chain.
	if old := c.active.Swap(nil); old != nil {
		old.Stop()
	}

	close(c.outDone)
	c.outWG.Wait()
	if err := c.dev.Close(); err != nil {
		return deviceErr("close", err)
	}
	return nil
}

// Status returns a snapshot of the radio.
func (c *Controller) Status() RadioState {
	c.stateMu.RLock()
	state := RadioState{
		Mode:             string(c.mode),
		FrequencyHz:      c.freqHz,
		FrequencyMHz:     float64(c.freqHz) / 1e6,
		TunerReadbackHz:  c.readbackHz,
		PresetName:       c.presetName,
		GainDB:           c.gainDB,
		SquelchThreshold: c.threshold,
		Volume:           c.volume,
		StartedAt:        c.startedAt,
	}
	c.stateMu.RUnlock()

	state.BlocksProduced = atomic.LoadUint64(&c.outSeq)
	state.Level = c.monitor.Level()
	if ch := c.active.Load(); ch != nil {
		state.Streaming = true
		state.ChainState = ch.State().String()
	} else {
		state.ChainState = chain.StateIdle.String()
	}
	if lc, ok := c.sink.(ListenerCounter); ok {
		state.Listeners = lc.ListenerCount()
	}
	return state
}

// Spectrum returns the most recent audio spectrum snapshot.
func (c *Controller) Spectrum() audio.SpectrumData {
	return c.monitor.Spectrum()
}

// Presets returns the configured preset bank.
func (c *Controller) Presets() map[string]config.Preset {
	return c.cfg.Radio.Presets
}

// TunableRange returns the tuner's frequency limits in Hz.
func (c *Controller) TunableRange() (int64, int64) {
	return c.dev.TunableRange()
}

// GainRange returns the tuner's RF gain limits in dB.
func (c *Controller) GainRange() (float64, float64) {
	return c.dev.GainRange()
}

// buildChain assembles and configures a chain for the given mode.
func (c *Controller) buildChain(mode chain.Mode) (*chain.Chain, error) {
	params := chain.Params{
		Mode:        mode,
		DeviceRate:  c.cfg.Device.SampleRate,
		QuadRate:    c.cfg.Device.SampleRate / 8,
		AudioRate:   c.cfg.Audio.SampleRate,
		BlockSize:   c.cfg.Audio.BlockSize,
		DeviationHz: c.cfg.Radio.NFMDeviationHz,
	}
	ch := chain.New(c.dev, params)
	if err := ch.Configure(); err != nil {
		return nil, fmt.Errorf("failed to configure %s chain: %w", mode, err)
	}
	return ch, nil
}

// startChain brings up the first chain, discarding blocks for the
// priming interval so filter transients never reach listeners. An
// abort during priming tears the chain back down.
func (c *Controller) startChain(mode chain.Mode, abort <-chan struct{}) error {
	ch, err := c.buildChain(mode)
	if err != nil {
		return err
	}
	if err := ch.Start(); err != nil {
		return fmt.Errorf("failed to start %s chain: %w", mode, err)
	}

	priming := time.Duration(c.cfg.Audio.PrimingMs) * time.Millisecond
	deadline := time.After(priming)
prime:
	for {
		select {
		case _, ok := <-ch.Blocks():
			if !ok {
				break prime
			}
		case <-abort:
			ch.Stop()
			return ErrTuneInterrupted
		case <-deadline:
			break prime
		}
	}

	c.active.Store(ch)
	return nil
}

// outputLoop moves blocks from whichever chain is active through the
// squelch gate to the sink. It survives chain swaps: when a retired
// chain's channel closes it simply picks up the successor.
func (c *Controller) outputLoop() {
	defer c.outWG.Done()

	for {
		ch := c.active.Load()
		if ch == nil {
			select {
			case <-c.outDone:
				return
			case <-time.After(20 * time.Millisecond):
			}
			continue
		}

		select {
		case <-c.outDone:
			return
		case block, ok := <-ch.Blocks():
			if !ok {
				// Chain retired; successor (if any) is already active.
				if c.active.Load() == ch {
					c.active.CompareAndSwap(ch, nil)
				}
				continue
			}
			c.deliver(block)
		}
	}
}

func (c *Controller) deliver(block audio.Block) {
	c.stateMu.RLock()
	threshold := c.threshold
	volume := c.volume
	c.stateMu.RUnlock()

	rms := c.monitor.Observe(block)
	result := squelch.Apply(block.Samples, rms, threshold, volume)

	out := audio.Block{
		Seq:     atomic.AddUint64(&c.outSeq, 1) - 1,
		Samples: result.Output,
	}
	if err := c.sink.Write(out); err != nil {
		logging.Warnf("controller", "audio sink write failed: %v", err)
	}

	if c.monitor.ShouldLogRMS() {
		logging.Debugf("controller", "audio rms=%.4f gated=%v", rms, result.Gated)
	}
}

func (c *Controller) isStarted() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.started
}

func (c *Controller) currentGain() float64 {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.gainDB
}

func (c *Controller) currentFreq() int64 {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.freqHz
}
