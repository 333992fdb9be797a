package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"remotepad/internal/config"
	"remotepad/internal/discovery"
	"remotepad/internal/input"
	"remotepad/internal/keymap"
	"remotepad/internal/manager"
	"remotepad/internal/pad"
	"remotepad/internal/protocol"
)

// startController runs a throwaway controller. The stored mode is left alone.
// The returned func releases the resolver once the controller is done.
func startController(ctx context.Context, cfgMgr *config.Manager, responses chan<- protocol.Frame) (*manager.Manager, config.Config, func()) {
	cfg := cfgMgr.Get()
	cfg.General.Mode = config.ModeController
	scratch := config.NewManagerAt(cfgMgr.Path())
	scratch.Set(cfg)

	resolver := discovery.NewLocalResolver()
	m := manager.New(manager.Options{
		Config:       scratch,
		Registry:     &discovery.MDNS{},
		HostResolver: resolver,
		Version:      version,
		OnResponse: func(f protocol.Frame) {
			select {
			case responses <- f:
			default:
			}
		},
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	return m, cfg, releaseAfter(done, resolver)
}

// releaseAfter returns a func that waits for done, then closes c.
func releaseAfter(done <-chan struct{}, c io.Closer) func() {
	return func() {
		<-done
		if err := c.Close(); err != nil {
			log.Debugf("Close: %v", err)
		}
	}
}

func runList(ctx context.Context, cfgMgr *config.Manager) error {
	ctx, cancel := context.WithCancel(ctx)
	m, cfg, release := startController(ctx, cfgMgr, nil)
	defer release()
	defer cancel()

	wait := cfg.Discovery.BrowseTimeout + cfg.Discovery.ResolveTimeout
	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return nil
	}

	devs := m.State().Devices
	if len(devs) == 0 {
		fmt.Println("No receivers found")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tSIGNAL")
	for _, d := range devs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Addr(), d.Signal)
	}
	return w.Flush()
}

func runOneShot(ctx context.Context, cfgMgr *config.Manager) error {
	if *connectTo == "" {
		return fmt.Errorf("-connect <name> is required")
	}
	cmds, err := oneShotCommands(*typeText, *keyCombo, *moveBy, *clickBtn)
	if err != nil {
		return err
	}
	if len(cmds) == 0 && !*padMode {
		return fmt.Errorf("nothing to send: use -type, -key, -move, -click or -pad")
	}

	ctx, stop := context.WithCancel(ctx)
	responses := make(chan protocol.Frame, 16)
	m, cfg, release := startController(ctx, cfgMgr, responses)
	defer release()
	defer stop()

	findCtx, cancel := context.WithTimeout(ctx, cfg.Discovery.BrowseTimeout+cfg.Discovery.ResolveTimeout)
	_, err = m.Await(findCtx, func(s manager.State) bool {
		for _, d := range s.Devices {
			if d.Name == *connectTo {
				return true
			}
		}
		return false
	})
	cancel()
	if err != nil {
		return fmt.Errorf("receiver %q not found", *connectTo)
	}

	if err := m.ConnectByName(ctx, *connectTo); err != nil {
		return err
	}
	s, err := m.Await(ctx, func(s manager.State) bool {
		return s.Outbound == manager.OutboundReady || s.Outbound == manager.OutboundFailed
	})
	if err != nil {
		return err
	}
	if s.Outbound == manager.OutboundFailed {
		return fmt.Errorf("%s", s.Status)
	}
	defer m.Disconnect(context.Background())

	if *padMode {
		return pad.New(m, cfg.Controller.MoveStep).Run(ctx, os.Stdin, os.Stdout)
	}

	for _, cmd := range cmds {
		if err := m.Send(cmd); err != nil {
			return err
		}
		select {
		case f := <-responses:
			log.Debugf("Receiver answered %d", f.Status())
		case <-time.After(cfg.Controller.WriteTimeout):
			return fmt.Errorf("no answer from %q for %s", *connectTo, cmd.Endpoint())
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// oneShotCommands turns the command line flags into commands, in the order
// text, key, move, click.
func oneShotCommands(text, combo, move, button string) ([]protocol.Command, error) {
	var cmds []protocol.Command
	if text != "" {
		cmds = append(cmds, protocol.Text{Text: text})
	}
	if combo != "" {
		s, err := keymap.ParseCombo(combo)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, protocol.KeyPress{Keycode: s.Keycode, Modifier: s.Modifier})
	}
	if move != "" {
		mv, err := parseMove(move)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, mv)
	}
	if button != "" {
		b, ok := input.ParseButton(button)
		if !ok {
			return nil, fmt.Errorf("-click wants left, right or middle, got %q", button)
		}
		cmds = append(cmds, protocol.MouseClick{Button: string(b)})
	}
	return cmds, nil
}

// parseMove parses "dx,dy" with both deltas in -128..127.
func parseMove(s string) (protocol.MouseMove, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return protocol.MouseMove{}, fmt.Errorf("-move wants dx,dy, got %q", s)
	}
	var d [2]int8
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return protocol.MouseMove{}, fmt.Errorf("-move: %q is not in -128..127", p)
		}
		d[i] = int8(n)
	}
	return protocol.MouseMove{DeltaX: d[0], DeltaY: d[1]}, nil
}
