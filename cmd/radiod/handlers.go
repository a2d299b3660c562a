package main

import (
	"math"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/bgvfd/radiod/pkg/controller"
	"github.com/bgvfd/radiod/pkg/logging"
)

// handleGetStatus returns the radio state
func (d *RadioDaemon) handleGetStatus(c *gin.Context) {
	state := d.ctrl.Status()
	c.JSON(http.StatusOK, gin.H{
		"version": Version,
		"state":   state,
	})
}

// handleGetPresets returns the configured preset bank
func (d *RadioDaemon) handleGetPresets(c *gin.Context) {
	presets := d.ctrl.Presets()

	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]gin.H, 0, len(names))
	for _, name := range names {
		p := presets[name]
		entry := gin.H{"name": name, "mhz": p.MHz}
		if p.Squelch != nil {
			entry["squelch"] = *p.Squelch
		}
		if p.Gain != nil {
			entry["gain"] = *p.Gain
		}
		list = append(list, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"presets": list,
		"count":   len(list),
	})
}

// handleApplyPreset tunes to a named preset
func (d *RadioDaemon) handleApplyPreset(c *gin.Context) {
	name := c.Param("name")

	if err := d.ctrl.ApplyPreset(name); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"preset": name,
		"state":  d.ctrl.Status(),
	})
}

// handleCommand runs one text command through the dispatch table
func (d *RadioDaemon) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := d.router.DispatchLine(req.Command)
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusBadRequest
	}
	c.JSON(status, resp)
}

// handleSetFrequency tunes the radio
func (d *RadioDaemon) handleSetFrequency(c *gin.Context) {
	var req struct {
		MHz float64 `json:"mhz" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := d.ctrl.Tune(int64(math.Round(req.MHz * 1e6))); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": d.ctrl.Status()})
}

// handleGetHistory returns recent tuning history
func (d *RadioDaemon) handleGetHistory(c *gin.Context) {
	if d.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tuning history is not enabled"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		limit = 20
	}

	events, err := d.store.RecentTunes(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// handleGetChannels returns the most used frequencies
func (d *RadioDaemon) handleGetChannels(c *gin.Context) {
	if d.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tuning history is not enabled"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil {
		limit = 10
	}

	usage, err := d.store.TopChannels(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"channels": usage})
}

// handleGetSpectrum returns the current audio spectrum snapshot
func (d *RadioDaemon) handleGetSpectrum(c *gin.Context) {
	c.JSON(http.StatusOK, d.ctrl.Spectrum())
}

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// handleAudioWebSocket attaches a listener to the PCM broadcast sink
func (d *RadioDaemon) handleAudioWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warnf("daemon", "WebSocket upgrade failed: %v", err)
		return
	}

	if err := d.sink.Attach(conn); err != nil {
		logging.Warnf("daemon", "failed to attach audio listener: %v", err)
		conn.Close()
		return
	}

	logging.Infof("daemon", "audio listener connected (%d total)", d.sink.ListenerCount())
}

// statusFor maps controller errors onto HTTP status codes.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if controller.IsValidation(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
