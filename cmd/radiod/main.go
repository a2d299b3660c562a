package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bgvfd/radiod/pkg/config"
	"github.com/bgvfd/radiod/pkg/logging"
)

var (
	configPath  = flag.String("config", "", "Configuration file path (built-in defaults when empty)")
	mockDevice  = flag.Bool("mock", false, "Use a synthesized tuner instead of RTL-SDR hardware")
	showVersion = flag.Bool("version", false, "Show version information")
)

const (
	Version = "0.1.0-dev"
	Build   = "development"
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("radiod version %s (%s)\n", Version, Build)
		os.Exit(0)
	}

	// A named config file must load cleanly; without one the built-in
	// defaults apply and the environment can still override presets.
	var cfg *config.Config
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	} else {
		cfg = config.Default()
	}

	if applied, err := cfg.ApplyEnvPresets(); err != nil {
		log.Printf("Warning: ignoring %s: %v", config.EnvPresets, err)
	} else if applied {
		log.Printf("Preset overrides applied from %s", config.EnvPresets)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize logging system
	if err := logging.InitGlobalLogger(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseGlobalLogger()

	logging.Info("main", fmt.Sprintf("radiod version %s starting...", Version))
	logging.Info("main", fmt.Sprintf("Radio: %s mode, %d presets", cfg.Radio.Mode, len(cfg.Radio.Presets)))
	logging.Info("main", fmt.Sprintf("Web interface: http://%s:%d", cfg.Web.BindAddress, cfg.Web.Port))

	daemon, err := NewRadioDaemon(cfg, *mockDevice)
	if err != nil {
		logging.Error("main", fmt.Sprintf("Failed to create daemon: %v", err))
		os.Exit(1)
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := daemon.Start(); err != nil {
		logging.Error("main", fmt.Sprintf("Failed to start daemon: %v", err))
		os.Exit(1)
	}

	logging.Info("main", "radiod started successfully")

	// Wait for shutdown signal
	<-sigChan
	logging.Info("main", "Shutting down...")

	if err := daemon.Stop(); err != nil {
		logging.Error("main", fmt.Sprintf("Error during shutdown: %v", err))
	}

	logging.Info("main", "radiod stopped")
}
