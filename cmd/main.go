// remotepad - LAN keyboard and mouse remote
// Runs as a receiver that injects input, or as a controller that sends it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"golang.org/x/sync/errgroup"

	"remotepad/internal/api"
	"remotepad/internal/autostart"
	"remotepad/internal/config"
	"remotepad/internal/discovery"
	"remotepad/internal/input"
	"remotepad/internal/logger"
	"remotepad/internal/manager"
	"remotepad/internal/osutils"
	"remotepad/internal/tray"
	"remotepad/internal/ui"
)

var (
	version    = "0.3.0"
	showVer    = flag.Bool("version", false, "Show version")
	configPath = flag.String("config", "", "Path to config.yaml (default: per-user config directory)")
	modeFlag   = flag.String("mode", "", "Persist and run as controller or receiver")
	listDevs   = flag.Bool("list", false, "List receivers on the network")
	connectTo  = flag.String("connect", "", "Receiver name for -type, -key, -move, -click or -pad")
	typeText   = flag.String("type", "", "Type text on the receiver")
	keyCombo   = flag.String("key", "", "Press a key combination on the receiver, e.g. CTRL+SHIFT+T")
	moveBy     = flag.String("move", "", "Move the receiver's mouse by dx,dy (positive dy is up)")
	clickBtn   = flag.String("click", "", "Click left, right or middle on the receiver")
	padMode    = flag.Bool("pad", false, "Drive the receiver from this terminal")
	watchAPI   = flag.Bool("watch", false, "Follow the state of the running instance")
	autoStart  = flag.String("autostart", "", "Start on login: on or off")
	noTray     = flag.Bool("notray", false, "Run the service without a tray icon")
)

var log = logger.For("main")

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("remotepad version %s\n", version)
		return
	}

	cfgMgr, err := openConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	if err := cfgMgr.Load(); err != nil {
		log.Warnf("Failed to load config, using defaults: %v", err)
	}
	cfg := cfgMgr.Get()
	if err := logger.Init(logConfig(cfg.Log)); err != nil {
		log.Warnf("Invalid log settings: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *autoStart != "":
		err = setAutostart(cfgMgr, *autoStart)
	case *watchAPI:
		err = runWatch(ctx, cfg.API)
	case *listDevs:
		err = runList(ctx, cfgMgr)
	case *connectTo != "" || *typeText != "" || *keyCombo != "" || *moveBy != "" || *clickBtn != "" || *padMode:
		err = runOneShot(ctx, cfgMgr)
	default:
		err = runService(ctx, stop, cfgMgr)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

// logConfig fills the unset log settings with the logger defaults.
func logConfig(c config.LogConfig) logger.Config {
	lc := logger.DefaultConfig()
	if c.Level != "" {
		lc.Level = c.Level
	}
	if c.Format != "" {
		lc.Format = c.Format
	}
	return lc
}

func openConfig(path string) (*config.Manager, error) {
	if path != "" {
		return config.NewManagerAt(path), nil
	}
	return config.NewManager()
}

func setAutostart(cfgMgr *config.Manager, value string) error {
	cfg := cfgMgr.Get()
	switch value {
	case "on":
		if err := autostart.Enable(); err != nil {
			return fmt.Errorf("enable autostart: %w", err)
		}
		cfg.General.StartOnBoot = true
	case "off":
		if err := autostart.Disable(); err != nil {
			return fmt.Errorf("disable autostart: %w", err)
		}
		cfg.General.StartOnBoot = false
	default:
		return fmt.Errorf("-autostart wants on or off, got %q", value)
	}
	cfgMgr.Set(cfg)
	if err := cfgMgr.Save(); err != nil {
		return err
	}
	fmt.Printf("Autostart: %s\n", value)
	return nil
}

func runWatch(ctx context.Context, cfg config.APIConfig) error {
	w := api.NewWatcher(cfg.Addr, cfg.Token)
	w.OnState = func(s manager.State) {
		fmt.Printf("[%s] %s", s.Mode, s.Status)
		switch s.Mode {
		case config.ModeReceiver:
			fmt.Printf("  port=%d connections=%d", s.Port, s.Connections)
		case config.ModeController:
			fmt.Printf("  devices=%d outbound=%s", len(s.Devices), s.Outbound)
		}
		fmt.Println()
	}
	return w.Run(ctx)
}

// newInjector builds the platform injector with the configured timing.
func newInjector(cfg config.Config) *input.Simulator {
	return input.NewSimulator(input.Timing{
		KeyInterval: cfg.Receiver.KeyInterval,
		KeyHold:     cfg.Receiver.KeyHold,
		ClickHold:   cfg.Receiver.ClickHold,
	})
}

func runService(ctx context.Context, stop context.CancelFunc, cfgMgr *config.Manager) error {
	if *modeFlag != "" {
		mode, err := config.ParseMode(*modeFlag)
		if err != nil {
			return err
		}
		if err := cfgMgr.SetMode(mode); err != nil {
			return fmt.Errorf("save mode: %w", err)
		}
	}
	cfg := cfgMgr.Get()
	log.Infof("remotepad %s starting in %s mode", version, cfg.General.Mode)

	if cfg.General.StartOnBoot && !autostart.IsEnabled() {
		if err := autostart.Enable(); err != nil {
			log.Warnf("Autostart: %v", err)
		}
	}
	if runtime.GOOS == "windows" && cfg.General.Mode == config.ModeReceiver {
		go func() {
			exe, err := os.Executable()
			if err != nil {
				return
			}
			if err := osutils.EnsureFirewallRule(exe); err != nil {
				log.Warnf("Firewall: %v", err)
			}
		}()
	}

	resolver := discovery.NewLocalResolver()
	defer resolver.Close()

	m := manager.New(manager.Options{
		Config:       cfgMgr,
		Registry:     &discovery.MDNS{},
		Injector:     newInjector(cfg),
		HostResolver: resolver,
		DeviceName:   osutils.DeviceName(ctx),
		Version:      version,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.Run(gctx) })
	if cfg.API.Enabled {
		srv := api.NewServer(cfg.API, m)
		settings := ui.NewServer(cfgMgr, m, cfg.API.Token)
		srv.Mount(settings, settings.Patterns()...)
		g.Go(func() error {
			if err := srv.Run(gctx); err != nil {
				log.Warnf("Continuing without the status API: %v", err)
			}
			return nil
		})
	}

	if cfg.General.Tray && !*noTray {
		t := buildTray(gctx, m, cfg.API)
		go func() {
			<-gctx.Done()
			t.Stop()
		}()
		log.Info("remotepad running. Use the tray menu or Ctrl+C to stop.")
		t.Run()
		stop()
	} else {
		log.Info("remotepad running. Press Ctrl+C to stop.")
		<-gctx.Done()
	}

	log.Info("Shutting down...")
	return g.Wait()
}

func buildTray(ctx context.Context, m *manager.Manager, apiCfg config.APIConfig) *tray.Tray {
	t := tray.New("remotepad - LAN keyboard and mouse")

	switchTo := func(mode config.Mode) func() {
		return func() {
			go func() {
				if err := m.SetMode(ctx, mode); err != nil {
					log.Errorf("Switch to %s failed: %v", mode, err)
				}
			}()
		}
	}
	receiverID := t.AddCheckItem("Receiver", false, switchTo(config.ModeReceiver))
	controllerID := t.AddCheckItem("Controller", false, switchTo(config.ModeController))
	t.AddSeparator()
	t.AddMenuItem("Disconnect", func() {
		go m.Disconnect(ctx)
	})
	if apiCfg.Enabled {
		t.AddMenuItem("Settings...", func() {
			if err := ui.OpenBrowser(ui.PageURL(apiCfg.Addr, apiCfg.Token)); err != nil {
				log.Warnf("Failed to open browser: %v", err)
			}
		})
	}
	t.AddSeparator()
	t.AddMenuItem("Quit", func() {
		t.Stop()
	})

	m.Subscribe(func(s manager.State) {
		t.SetStatus(s.Status)
		t.SetItemChecked(receiverID, s.Mode == config.ModeReceiver)
		t.SetItemChecked(controllerID, s.Mode == config.ModeController)
	})
	return t
}
