package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bgvfd/radiod/pkg/audio"
	"github.com/bgvfd/radiod/pkg/config"
	"github.com/bgvfd/radiod/pkg/controller"
	"github.com/bgvfd/radiod/pkg/logging"
	"github.com/bgvfd/radiod/pkg/router"
	"github.com/bgvfd/radiod/pkg/sdr"
	"github.com/bgvfd/radiod/pkg/server"
	"github.com/bgvfd/radiod/pkg/storage"
)

// RadioDaemon wires the tuner, the controller, and the three command
// surfaces (control socket, HTTP API, audio WebSocket) together.
type RadioDaemon struct {
	config *config.Config
	wg     sync.WaitGroup

	device     sdr.Device
	sink       *audio.WebSocketSink
	ctrl       *controller.Controller
	store      *storage.TuneStore
	router     *router.Router
	controlSrv *server.ControlServer
	webServer  *http.Server
}

// NewRadioDaemon creates a new daemon instance
func NewRadioDaemon(cfg *config.Config, mock bool) (*RadioDaemon, error) {
	d := &RadioDaemon{
		config: cfg,
		sink:   audio.NewWebSocketSink(),
	}

	deviceConfig := sdr.DeviceConfig{
		Index:       cfg.Device.Index,
		SampleRate:  cfg.Device.SampleRate,
		BandwidthHz: cfg.Device.BandwidthHz,
		PPM:         cfg.Radio.PPM,
		MinHz:       cfg.Device.MinHz,
		MaxHz:       cfg.Device.MaxHz,
		MinGainDB:   cfg.Device.MinGainDB,
		MaxGainDB:   cfg.Device.MaxGainDB,
	}
	if mock {
		d.device = sdr.NewMockDevice(deviceConfig)
		logging.Info("daemon", "using synthesized mock tuner")
	} else {
		d.device = sdr.NewRTLDevice(deviceConfig)
	}

	d.ctrl = controller.New(cfg, d.device, d.sink)

	if cfg.Storage.DatabasePath != "" {
		store, err := storage.NewTuneStore(cfg.Storage.DatabasePath, cfg.Storage.MaxEvents)
		if err != nil {
			return nil, fmt.Errorf("failed to open tune store: %w", err)
		}
		d.store = store
		d.ctrl.SetHistory(store)
	}

	var history router.HistoryReader
	if d.store != nil {
		history = d.store
	}
	d.router = router.New(d.ctrl, history, Version)
	d.controlSrv = server.NewControlServer(cfg.API.UnixSocket, d.router)

	if err := d.setupWebServer(); err != nil {
		return nil, fmt.Errorf("failed to setup web server: %w", err)
	}

	return d, nil
}

// Start starts the daemon
func (d *RadioDaemon) Start() error {
	if err := d.ctrl.Start(); err != nil {
		return fmt.Errorf("failed to start radio controller: %w", err)
	}

	if err := d.controlSrv.Start(); err != nil {
		d.ctrl.Close()
		return fmt.Errorf("failed to start control server: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		addr := fmt.Sprintf("%s:%d", d.config.Web.BindAddress, d.config.Web.Port)
		logging.Infof("daemon", "starting web server on %s", addr)
		if err := d.webServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("daemon", "web server error: %v", err)
		}
	}()

	return nil
}

// Stop stops the daemon gracefully
func (d *RadioDaemon) Stop() error {
	if d.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.webServer.Shutdown(ctx); err != nil {
			logging.Warnf("daemon", "web server shutdown error: %v", err)
		}
	}

	if d.controlSrv != nil {
		if err := d.controlSrv.Stop(); err != nil {
			logging.Warnf("daemon", "control server shutdown error: %v", err)
		}
	}

	if err := d.ctrl.Close(); err != nil {
		logging.Warnf("daemon", "controller shutdown error: %v", err)
	}

	d.sink.Close()

	if d.store != nil {
		if err := d.store.Close(); err != nil {
			logging.Warnf("daemon", "tune store close error: %v", err)
		}
	}

	d.wg.Wait()
	return nil
}

// setupWebServer initializes the web server and routes
func (d *RadioDaemon) setupWebServer() error {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	api := engine.Group("/api/v1")
	{
		api.GET("/status", d.handleGetStatus)
		api.GET("/presets", d.handleGetPresets)
		api.POST("/presets/:name", d.handleApplyPreset)
		api.POST("/command", d.handleCommand)
		api.PUT("/frequency", d.handleSetFrequency)
		api.GET("/history", d.handleGetHistory)
		api.GET("/channels", d.handleGetChannels)
		api.GET("/spectrum", d.handleGetSpectrum)
	}

	engine.GET("/audio", d.handleAudioWebSocket)

	addr := fmt.Sprintf("%s:%d", d.config.Web.BindAddress, d.config.Web.Port)
	d.webServer = &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	return nil
}
