// Package router maps parsed control commands onto controller
// operations and formats the replies. The same table serves every
// surface: the chat bridge, the control socket, and the HTTP API.
package router

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bgvfd/radiod/pkg/controller"
	"github.com/bgvfd/radiod/pkg/protocol"
	"github.com/bgvfd/radiod/pkg/storage"
)

// HistoryReader serves the history command. Optional.
type HistoryReader interface {
	RecentTunes(limit int) ([]storage.TuneEvent, error)
}

type handler struct {
	usage string
	help  string
	fn    func(args []string) *protocol.Response
}

// Router dispatches commands to the radio controller.
type Router struct {
	ctrl      *controller.Controller
	history   HistoryReader
	version   string
	startTime time.Time
	handlers  map[string]handler
}

// New creates a router over the controller. history may be nil.
func New(ctrl *controller.Controller, history HistoryReader, version string) *Router {
	r := &Router{
		ctrl:      ctrl,
		history:   history,
		version:   version,
		startTime: time.Now(),
	}

	r.handlers = map[string]handler{
		protocol.CmdJoin: {
			usage: "join",
			help:  "start streaming at the last frequency or first preset",
			fn:    r.handleJoin,
		},
		protocol.CmdListPresets: {
			usage: "listpresets",
			help:  "list configured presets",
			fn:    r.handleListPresets,
		},
		protocol.CmdPreset: {
			usage: "preset <name>",
			help:  "tune to a named preset",
			fn:    r.handlePreset,
		},
		protocol.CmdFM: {
			usage: "fm <mhz>",
			help:  "tune to a frequency in MHz",
			fn:    r.handleFM,
		},
		protocol.CmdMode: {
			usage: "mode <nfm|wfm>",
			help:  "switch demodulation mode",
			fn:    r.handleMode,
		},
		protocol.CmdVol: {
			usage: "vol <0-2>",
			help:  "set output volume (1 is unity)",
			fn:    r.handleVol,
		},
		protocol.CmdSquelch: {
			usage: "squelch <threshold>",
			help:  "set the RMS squelch threshold (0 disables)",
			fn:    r.handleSquelch,
		},
		protocol.CmdGain: {
			usage: "gain <db>",
			help:  "set tuner RF gain in dB",
			fn:    r.handleGain,
		},
		protocol.CmdBW: {
			usage: "bw <hz>",
			help:  "set tuner IF bandwidth in Hz (0 for auto)",
			fn:    r.handleBW,
		},
		protocol.CmdStop: {
			usage: "stop",
			help:  "stop streaming",
			fn:    r.handleStop,
		},
		protocol.CmdRFInfo: {
			usage: "rfinfo",
			help:  "show radio status",
			fn:    r.handleStatus,
		},
		protocol.CmdStatus: {
			usage: "status",
			help:  "show radio status",
			fn:    r.handleStatus,
		},
		protocol.CmdHistory: {
			usage: "history [n]",
			help:  "show recent tuning history",
			fn:    r.handleHistory,
		},
		protocol.CmdHelp: {
			usage: "help",
			help:  "show this help",
			fn:    r.handleHelp,
		},
		protocol.CmdPing: {
			usage: "ping",
			help:  "liveness check",
			fn:    func([]string) *protocol.Response { return protocol.NewTextResponse("pong") },
		},
	}
	return r
}

// Dispatch routes one parsed command.
func (r *Router) Dispatch(cmd *protocol.Command) *protocol.Response {
	h, ok := r.handlers[cmd.Name]
	if !ok {
		return protocol.NewErrorResponse(fmt.Sprintf("unknown command %q, try help", cmd.Name))
	}
	return h.fn(cmd.Args)
}

// DispatchLine parses and routes a command line.
func (r *Router) DispatchLine(line string) *protocol.Response {
	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}
	return r.Dispatch(cmd)
}

// errResponse folds controller errors into wire responses. Parameter
// rejections surface as-is; anything else is prefixed with the failed
// operation.
func errResponse(op string, err error) *protocol.Response {
	if controller.IsValidation(err) {
		return protocol.NewErrorResponse(err.Error())
	}
	return protocol.NewErrorResponse(fmt.Sprintf("%s failed: %v", op, err))
}

func (r *Router) handleJoin(args []string) *protocol.Response {
	if err := r.ctrl.Resume(); err != nil {
		return errResponse("join", err)
	}
	status := r.ctrl.Status()
	return protocol.NewTextResponse(fmt.Sprintf("streaming %.4f MHz (%s)", status.FrequencyMHz, status.Mode))
}

func (r *Router) handleListPresets(args []string) *protocol.Response {
	presets := r.ctrl.Presets()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	data := map[string]interface{}{}
	for _, name := range names {
		p := presets[name]
		lines = append(lines, fmt.Sprintf("%s: %.4f MHz", name, p.MHz))
		data[name] = p.MHz
	}

	resp := protocol.NewSuccessResponse(data)
	resp.Message = strings.Join(lines, "\n")
	return resp
}

func (r *Router) handlePreset(args []string) *protocol.Response {
	if len(args) != 1 {
		return protocol.NewErrorResponse("usage: preset <name>")
	}
	if err := r.ctrl.ApplyPreset(args[0]); err != nil {
		return errResponse("preset", err)
	}
	status := r.ctrl.Status()
	return protocol.NewTextResponse(fmt.Sprintf("tuned to %s (%.4f MHz)", args[0], status.FrequencyMHz))
}

func (r *Router) handleFM(args []string) *protocol.Response {
	if len(args) != 1 {
		return protocol.NewErrorResponse("usage: fm <mhz>")
	}
	mhz, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return protocol.NewErrorResponse(fmt.Sprintf("invalid frequency %q", args[0]))
	}
	hz := int64(math.Round(mhz * 1e6))
	if min, max := r.ctrl.TunableRange(); hz < min || hz > max {
		return protocol.NewErrorResponse(fmt.Sprintf("%.4f MHz outside tunable range %.1f-%.1f MHz",
			mhz, float64(min)/1e6, float64(max)/1e6))
	}
	if err := r.ctrl.Tune(hz); err != nil {
		return errResponse("tune", err)
	}
	return protocol.NewTextResponse(fmt.Sprintf("tuned to %.4f MHz", mhz))
}

func (r *Router) handleMode(args []string) *protocol.Response {
	if len(args) != 1 {
		return protocol.NewErrorResponse("usage: mode <nfm|wfm>")
	}
	if err := r.ctrl.SetMode(args[0]); err != nil {
		return errResponse("mode", err)
	}
	return protocol.NewTextResponse(fmt.Sprintf("mode set to %s", strings.ToLower(args[0])))
}

func (r *Router) handleVol(args []string) *protocol.Response {
	if len(args) != 1 {
		return protocol.NewErrorResponse("usage: vol <0-2>")
	}
	vol, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return protocol.NewErrorResponse(fmt.Sprintf("invalid volume %q", args[0]))
	}
	if vol < 0 || vol > 2 {
		return protocol.NewErrorResponse("volume must be between 0 and 2")
	}
	if err := r.ctrl.SetVolume(vol); err != nil {
		return errResponse("volume", err)
	}
	return protocol.NewTextResponse(fmt.Sprintf("volume set to %.2f", vol))
}

func (r *Router) handleSquelch(args []string) *protocol.Response {
	if len(args) != 1 {
		return protocol.NewErrorResponse("usage: squelch <threshold>")
	}
	threshold, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return protocol.NewErrorResponse(fmt.Sprintf("invalid squelch threshold %q", args[0]))
	}
	if threshold < 0 {
		return protocol.NewErrorResponse("squelch threshold must be >= 0")
	}
	if err := r.ctrl.SetSquelch(threshold); err != nil {
		return errResponse("squelch", err)
	}
	if threshold == 0 {
		return protocol.NewTextResponse("squelch disabled")
	}
	return protocol.NewTextResponse(fmt.Sprintf("squelch set to %.3f", threshold))
}

func (r *Router) handleGain(args []string) *protocol.Response {
	if len(args) != 1 {
		return protocol.NewErrorResponse("usage: gain <db>")
	}
	db, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return protocol.NewErrorResponse(fmt.Sprintf("invalid gain %q", args[0]))
	}
	if min, max := r.ctrl.GainRange(); db < min || db > max {
		return protocol.NewErrorResponse(fmt.Sprintf("gain %.1f dB outside %.1f-%.1f dB", db, min, max))
	}
	if err := r.ctrl.SetGain(db); err != nil {
		return errResponse("gain", err)
	}
	return protocol.NewTextResponse(fmt.Sprintf("gain set to %.1f dB", db))
}

func (r *Router) handleBW(args []string) *protocol.Response {
	if len(args) != 1 {
		return protocol.NewErrorResponse("usage: bw <hz>")
	}
	hz, err := strconv.Atoi(args[0])
	if err != nil {
		return protocol.NewErrorResponse(fmt.Sprintf("invalid bandwidth %q", args[0]))
	}
	if hz < 0 {
		return protocol.NewErrorResponse("bandwidth must be >= 0 Hz")
	}
	if err := r.ctrl.SetBandwidth(hz); err != nil {
		return errResponse("bandwidth", err)
	}
	if hz == 0 {
		return protocol.NewTextResponse("bandwidth set to auto")
	}
	return protocol.NewTextResponse(fmt.Sprintf("bandwidth set to %d Hz", hz))
}

func (r *Router) handleStop(args []string) *protocol.Response {
	if err := r.ctrl.Stop(); err != nil {
		return errResponse("stop", err)
	}
	return protocol.NewTextResponse("streaming stopped")
}

func (r *Router) handleStatus(args []string) *protocol.Response {
	state := r.ctrl.Status()

	status := protocol.Status{
		Streaming:    state.Streaming,
		FrequencyMHz: state.FrequencyMHz,
		Mode:         state.Mode,
		Preset:       state.PresetName,
		GainDB:       state.GainDB,
		Squelch:      state.SquelchThreshold,
		Volume:       state.Volume,
		Listeners:    state.Listeners,
		Uptime:       time.Since(r.startTime).Round(time.Second).String(),
		StartTime:    r.startTime,
		Version:      r.version,
	}

	var text string
	if state.Streaming {
		text = fmt.Sprintf("streaming %.4f MHz %s, gain %.1f dB, squelch %.3f, vol %.2f, rms %.4f",
			state.FrequencyMHz, state.Mode, state.GainDB, state.SquelchThreshold,
			state.Volume, state.Level.RMS)
	} else {
		text = "idle"
	}

	return &protocol.Response{
		Success: true,
		Message: text,
		Data: map[string]interface{}{
			"status": status,
			"state":  state,
		},
	}
}

func (r *Router) handleHistory(args []string) *protocol.Response {
	if r.history == nil {
		return protocol.NewErrorResponse("tuning history is not enabled")
	}

	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return protocol.NewErrorResponse(fmt.Sprintf("invalid history count %q", args[0]))
		}
		limit = n
	}

	events, err := r.history.RecentTunes(limit)
	if err != nil {
		return errResponse("history", err)
	}

	var lines []string
	for _, e := range events {
		line := fmt.Sprintf("%s  %.4f MHz %s", e.Timestamp.Format("2006-01-02 15:04:05"), e.FrequencyMHz(), e.Mode)
		if e.Preset != "" {
			line += " (" + e.Preset + ")"
		}
		lines = append(lines, line)
	}

	resp := protocol.NewSuccessResponse(map[string]interface{}{"events": events})
	resp.Message = strings.Join(lines, "\n")
	return resp
}

func (r *Router) handleHelp(args []string) *protocol.Response {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		h := r.handlers[name]
		lines = append(lines, fmt.Sprintf("%-22s %s", h.usage, h.help))
	}
	return protocol.NewTextResponse(strings.Join(lines, "\n"))
}
