package router

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgvfd/radiod/pkg/audio"
	"github.com/bgvfd/radiod/pkg/config"
	"github.com/bgvfd/radiod/pkg/controller"
	"github.com/bgvfd/radiod/pkg/sdr"
	"github.com/bgvfd/radiod/pkg/storage"
)

func newTestRouter(t *testing.T, history HistoryReader) *Router {
	t.Helper()

	cfg := config.Default()
	cfg.Tuner.SettleMs = 1
	cfg.Tuner.FinalSettleMs = 1
	cfg.Tuner.RetryDelayMs = 1
	cfg.Audio.PrimingMs = 1

	dev := sdr.NewMockDevice(sdr.DeviceConfig{})
	ctrl := controller.New(cfg, dev, audio.NewBufferSink())
	require.NoError(t, ctrl.Start())
	t.Cleanup(func() { ctrl.Close() })

	return New(ctrl, history, "test")
}

func TestDispatchLine(t *testing.T) {
	r := newTestRouter(t, nil)

	t.Run("UnknownCommand", func(t *testing.T) {
		resp := r.DispatchLine("!teleport")
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "unknown command")
	})

	t.Run("EmptyLine", func(t *testing.T) {
		resp := r.DispatchLine("")
		assert.False(t, resp.Success)
	})

	t.Run("Ping", func(t *testing.T) {
		resp := r.DispatchLine("!ping")
		assert.True(t, resp.Success)
		assert.Equal(t, "pong", resp.Message)
	})
}

func TestTuneCommands(t *testing.T) {
	r := newTestRouter(t, nil)

	t.Run("FM", func(t *testing.T) {
		resp := r.DispatchLine("!fm 154.1075")
		require.True(t, resp.Success, resp.Error)
		assert.Contains(t, resp.Message, "154.1075")

		status := r.ctrl.Status()
		assert.Equal(t, int64(154107500), status.FrequencyHz)
		assert.True(t, status.Streaming)
	})

	t.Run("FMBadNumber", func(t *testing.T) {
		resp := r.DispatchLine("!fm onefifty")
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "invalid frequency")
	})

	t.Run("FMRoundsToNearestHz", func(t *testing.T) {
		// 128.0005*1e6 floats a hair under 128000500; truncation would
		// misreport the frequency by a hertz.
		resp := r.DispatchLine("!fm 128.0005")
		require.True(t, resp.Success, resp.Error)
		assert.Equal(t, int64(128000500), r.ctrl.Status().FrequencyHz)
	})

	t.Run("FMOutOfRange", func(t *testing.T) {
		resp := r.DispatchLine("!fm 5.0")
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "outside tunable range")
	})

	t.Run("FMUsage", func(t *testing.T) {
		resp := r.DispatchLine("!fm")
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "usage")
	})

	t.Run("Preset", func(t *testing.T) {
		resp := r.DispatchLine("!preset navmed")
		require.True(t, resp.Success, resp.Error)
		assert.Contains(t, resp.Message, "navmed")
		assert.Equal(t, "navmed", r.ctrl.Status().PresetName)
	})

	t.Run("UnknownPreset", func(t *testing.T) {
		resp := r.DispatchLine("!preset nosuch")
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "unknown preset")
	})
}

func TestParameterCommands(t *testing.T) {
	r := newTestRouter(t, nil)

	t.Run("Volume", func(t *testing.T) {
		resp := r.DispatchLine("!vol 0.5")
		require.True(t, resp.Success, resp.Error)
		assert.Equal(t, 0.5, r.ctrl.Status().Volume)
	})

	t.Run("VolumeOutOfRange", func(t *testing.T) {
		resp := r.DispatchLine("!vol 3")
		assert.False(t, resp.Success)
	})

	t.Run("Squelch", func(t *testing.T) {
		resp := r.DispatchLine("!squelch 0.05")
		require.True(t, resp.Success, resp.Error)
		assert.Equal(t, 0.05, r.ctrl.Status().SquelchThreshold)
	})

	t.Run("SquelchDisabled", func(t *testing.T) {
		resp := r.DispatchLine("!squelch 0")
		require.True(t, resp.Success, resp.Error)
		assert.Contains(t, resp.Message, "disabled")
	})

	t.Run("Gain", func(t *testing.T) {
		resp := r.DispatchLine("!gain 38.6")
		require.True(t, resp.Success, resp.Error)
		assert.Equal(t, 38.6, r.ctrl.Status().GainDB)
	})

	t.Run("GainOutOfRange", func(t *testing.T) {
		resp := r.DispatchLine("!gain 99")
		assert.False(t, resp.Success)
	})

	t.Run("Bandwidth", func(t *testing.T) {
		resp := r.DispatchLine("!bw 300000")
		require.True(t, resp.Success, resp.Error)
		assert.Contains(t, resp.Message, "300000")
	})

	t.Run("BandwidthAuto", func(t *testing.T) {
		resp := r.DispatchLine("!bw 0")
		require.True(t, resp.Success, resp.Error)
		assert.Contains(t, resp.Message, "auto")
	})

	t.Run("Mode", func(t *testing.T) {
		resp := r.DispatchLine("!mode wfm")
		require.True(t, resp.Success, resp.Error)
		assert.Equal(t, "wfm", r.ctrl.Status().Mode)
	})

	t.Run("BadMode", func(t *testing.T) {
		resp := r.DispatchLine("!mode am")
		assert.False(t, resp.Success)
	})
}

// The dispatch table checks parameter ranges itself; an out-of-range
// argument is rejected before the controller is ever invoked. The
// controller here is deliberately left unstarted so any rejection that
// mentions the range rather than "not started" proves the router did
// the check.
func TestRangeCheckedBeforeDispatch(t *testing.T) {
	cfg := config.Default()
	dev := sdr.NewMockDevice(sdr.DeviceConfig{})
	ctrl := controller.New(cfg, dev, audio.NewBufferSink())
	r := New(ctrl, nil, "test")

	t.Run("Frequency", func(t *testing.T) {
		resp := r.DispatchLine("!fm 5.0")
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "outside tunable range")
	})

	t.Run("Gain", func(t *testing.T) {
		resp := r.DispatchLine("!gain 99")
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "outside")
	})

	t.Run("Volume", func(t *testing.T) {
		resp := r.DispatchLine("!vol 2.5")
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "between 0 and 2")
	})

	t.Run("Squelch", func(t *testing.T) {
		resp := r.DispatchLine("!squelch -0.1")
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, ">= 0")
	})

	t.Run("Bandwidth", func(t *testing.T) {
		resp := r.DispatchLine("!bw -1")
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, ">= 0")
	})
}

func TestListPresets(t *testing.T) {
	r := newTestRouter(t, nil)

	resp := r.DispatchLine("!listpresets")
	require.True(t, resp.Success, resp.Error)

	// Sorted by name
	lines := strings.Split(resp.Message, "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "fg1:"))
	assert.Contains(t, resp.Message, "navfire: 154.1075 MHz")
	assert.Equal(t, 154.1075, resp.Data["navfire"])
}

func TestJoinAndStop(t *testing.T) {
	r := newTestRouter(t, nil)

	resp := r.DispatchLine("!join")
	require.True(t, resp.Success, resp.Error)
	assert.True(t, r.ctrl.Status().Streaming)

	resp = r.DispatchLine("!stop")
	require.True(t, resp.Success, resp.Error)
	assert.False(t, r.ctrl.Status().Streaming)
}

func TestStatusCommand(t *testing.T) {
	r := newTestRouter(t, nil)

	t.Run("Idle", func(t *testing.T) {
		resp := r.DispatchLine("!rfinfo")
		require.True(t, resp.Success, resp.Error)
		assert.Equal(t, "idle", resp.Message)
	})

	t.Run("Streaming", func(t *testing.T) {
		require.True(t, r.DispatchLine("!fm 154.1075").Success)
		resp := r.DispatchLine("!status")
		require.True(t, resp.Success, resp.Error)
		assert.Contains(t, resp.Message, "154.1075")
		assert.Contains(t, resp.Message, "nfm")
		assert.NotNil(t, resp.Data["status"])
	})
}

type fakeHistory struct {
	events []storage.TuneEvent
	err    error
	limit  int
}

func (f *fakeHistory) RecentTunes(limit int) ([]storage.TuneEvent, error) {
	f.limit = limit
	return f.events, f.err
}

func TestHistoryCommand(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		r := newTestRouter(t, nil)
		resp := r.DispatchLine("!history")
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "not enabled")
	})

	t.Run("RecentEvents", func(t *testing.T) {
		hist := &fakeHistory{events: []storage.TuneEvent{
			{ID: 2, Timestamp: time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC), FrequencyHz: 155400000, Mode: "nfm", Preset: "fg1"},
			{ID: 1, Timestamp: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC), FrequencyHz: 154107500, Mode: "nfm"},
		}}
		r := newTestRouter(t, hist)

		resp := r.DispatchLine("!history 2")
		require.True(t, resp.Success, resp.Error)
		assert.Equal(t, 2, hist.limit)
		assert.Contains(t, resp.Message, "155.4000 MHz nfm (fg1)")
		assert.Contains(t, resp.Message, "154.1075 MHz nfm")
	})

	t.Run("DefaultLimit", func(t *testing.T) {
		hist := &fakeHistory{}
		r := newTestRouter(t, hist)
		require.True(t, r.DispatchLine("!history").Success)
		assert.Equal(t, 10, hist.limit)
	})

	t.Run("BadCount", func(t *testing.T) {
		r := newTestRouter(t, &fakeHistory{})
		resp := r.DispatchLine("!history zero")
		assert.False(t, resp.Success)
	})

	t.Run("QueryError", func(t *testing.T) {
		r := newTestRouter(t, &fakeHistory{err: fmt.Errorf("db closed")})
		resp := r.DispatchLine("!history")
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "db closed")
	})
}

func TestHelpListsEveryCommand(t *testing.T) {
	r := newTestRouter(t, nil)

	resp := r.DispatchLine("!help")
	require.True(t, resp.Success, resp.Error)
	for name := range r.handlers {
		assert.Contains(t, resp.Message, name)
	}
}
