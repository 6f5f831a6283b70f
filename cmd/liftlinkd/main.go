package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/repforge/liftlink/internal/ble"
	"github.com/repforge/liftlink/internal/ble/protocol"
	"github.com/repforge/liftlink/internal/config"
	"github.com/repforge/liftlink/internal/session"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/liftlink/config.yaml)")
	scanOnly := flag.Bool("scan", false, "scan for sensors, print what was found, and exit")
	connectAddr := flag.String("connect", "", "address of the sensor to connect to")
	ping := flag.Bool("ping", false, "send a ping once connected")
	listSessions := flag.Bool("sessions", false, "request the session listing once connected")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	setupLogging(cfg.LogLevel)
	printBanner(cfg)

	// Bring up the radio and the facade over it
	adapter := ble.NewAdapter()
	if err := adapter.Enable(); err != nil {
		log.Fatalf("Failed to enable BLE adapter: %v\n\nCheck that Bluetooth is powered on.", err)
	}
	facade := ble.NewFacade(adapter, ble.InProcessHost{}, ble.DiscoveryOptions{
		ScanBudget: time.Duration(cfg.Scan.TimeoutSeconds) * time.Second,
	})
	if err := facade.StartService(); err != nil {
		log.Fatalf("Failed to start service: %v", err)
	}

	if *scanOnly {
		runScan(facade)
		facade.StopService()
		return
	}

	// Session persistence and maintenance
	if err := os.MkdirAll(filepath.Dir(cfg.Session.DBPath), 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	store, err := session.NewStore(cfg.Session.DBPath)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	videos, err := session.NewVideoStore(cfg.Session.VideoDir)
	if err != nil {
		log.Fatalf("Failed to open video store: %v", err)
	}
	cleaner := session.NewCleaner(store, videos, session.CleanerOptions{
		Schedule:  cfg.Cleanup.Schedule,
		Retention: time.Duration(cfg.Cleanup.RetentionDays) * 24 * time.Hour,
	}, slog.Default())
	if err := cleaner.Start(); err != nil {
		log.Fatalf("Failed to schedule session cleanup: %v", err)
	}

	// Decode status notifications, persisting session listings as they
	// arrive from the sensor.
	facade.OnNotify(func(data []byte) {
		ev, err := protocol.DecodeStatus(data)
		if err != nil {
			slog.Warn("undecodable status payload", "error", err, "len", len(data))
			return
		}
		slog.Info("status", "cmd", ev.Cmd, "ok", ev.OK, "sessionId", ev.SessionID)
		for _, item := range ev.Sessions {
			if _, err := store.Record(context.Background(), item); err != nil {
				slog.Warn("record session", "file", item.FileName, "error", err)
			}
		}
	})

	// Signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *connectAddr != "" {
		if err := connectAndGreet(ctx, facade, *connectAddr, *ping, *listSessions); err != nil {
			log.Printf("ERROR: %v", err)
		}
	}

	log.Println("Running. Ctrl+C to quit.")
	<-ctx.Done()

	log.Println("Shutting down...")
	if err := facade.Disconnect(); err != nil {
		log.Printf("disconnect: %v", err)
	}
	facade.StopService()
	cleaner.Stop()
	store.Close()
	log.Println("Goodbye!")
}

// runScan performs one scan and prints every sensor found.
func runScan(facade *ble.Facade) {
	done := make(chan ble.ScanState, 1)
	facade.OnScanState(func(st ble.ScanState) {
		if st.Phase == ble.ScanComplete || st.Phase == ble.ScanFailed {
			select {
			case done <- st:
			default:
			}
		}
	})

	log.Println("Scanning for sensors...")
	if err := facade.StartScan(); err != nil {
		log.Printf("ERROR: %v", err)
		return
	}

	st := <-done
	if st.Phase == ble.ScanFailed {
		log.Printf("Scan failed: %s", st.Err)
		return
	}
	if len(st.Devices) == 0 {
		log.Println("No sensors found.")
		return
	}
	for _, dev := range st.Devices {
		log.Printf("  %s  %s  %d dBm", dev.Address, dev.DisplayName(), dev.RSSI)
	}
}

// connectAndGreet connects to the sensor at addr and sends the requested
// startup commands.
func connectAndGreet(ctx context.Context, facade *ble.Facade, addr string, ping, listSessions bool) error {
	log.Printf("Connecting to %s...", addr)
	if err := facade.Connect(ctx, ble.Device{Address: addr}); err != nil {
		return err
	}

	codec := protocol.NewCodec()
	send := func(cmd protocol.Command) error {
		payload, err := codec.Encode(cmd)
		if err != nil {
			return err
		}
		return facade.Write(payload)
	}

	// Always push the phone clock first so session timestamps line up.
	if err := send(protocol.TimeSync(time.Now().UnixMilli())); err != nil {
		return fmt.Errorf("time sync: %w", err)
	}
	if ping {
		if err := send(protocol.Ping()); err != nil {
			return fmt.Errorf("ping: %w", err)
		}
	}
	if listSessions {
		if err := send(protocol.SessionsList("", 0)); err != nil {
			return fmt.Errorf("sessions list: %w", err)
		}
	}
	return nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// setupLogging routes slog through a text handler at the configured level.
func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== liftlinkd ===")
	fmt.Printf("  Scan:     %ds budget\n", cfg.Scan.TimeoutSeconds)
	fmt.Printf("  Sessions: %s\n", cfg.Session.DBPath)
	fmt.Printf("  Videos:   %s\n", cfg.Session.VideoDir)
	fmt.Printf("  Cleanup:  %s (keep %dd)\n", cfg.Cleanup.Schedule, cfg.Cleanup.RetentionDays)
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("=================")
}
