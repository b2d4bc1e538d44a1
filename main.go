// Package main runs the NFC bridge: it reads tags through libnfc, a phone or
// a recorded journal and delivers normalized scans to WebSocket clients, the
// journal and the console.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nedpals/davi-nfc-bridge/buildinfo"
	"github.com/nedpals/davi-nfc-bridge/config"
	"github.com/nedpals/davi-nfc-bridge/console"
	"github.com/nedpals/davi-nfc-bridge/nfc"
)

// cliListener is the listener name used to log scans in CLI mode.
const cliListener = "cli"

// withDefaultConfig adds -config for the user's config file when it exists
// and no -config was given.
func withDefaultConfig(args []string) []string {
	for _, arg := range args {
		name := strings.TrimLeft(arg, "-")
		if name == "config" || strings.HasPrefix(name, "config=") {
			return args
		}
	}
	path := buildinfo.ConfigPath()
	if path == "" {
		return args
	}
	if _, err := os.Stat(path); err != nil {
		return args
	}
	return append([]string{"-config", path}, args...)
}

// errorRearmDelay spaces out new sessions after an error so a reader that
// keeps failing is not reopened in a tight loop.
var errorRearmDelay = time.Second

// scanContinuously logs every scan and keeps a session open: once the bridge
// is ready it registers the CLI listener through a Scanner and opens a new
// session whenever the previous one has ended. The returned function stops
// following status changes.
func scanContinuously(bridge *nfc.Bridge, active func() bool) (cancel func()) {
	scanner := nfc.NewScanner(bridge)

	rearm := func() {
		if !active() {
			scanner.Init()
		}
	}

	arm := func(status nfc.Status) {
		if status != nfc.StatusReady {
			return
		}
		scanner.AddListener(cliListener,
			func(rec nfc.DiscoveryRecord) {
				data, err := json.Marshal(rec)
				if err != nil {
					log.Printf("Discovered tag (unprintable: %v)", err)
				} else {
					log.Printf("Discovered: %s", data)
				}
				rearm()
			},
			func(raw nfc.RawError) {
				log.Printf("NFC error (%s): %s", raw.Origin, raw.Error)
				time.AfterFunc(errorRearmDelay, rearm)
			},
		)
		rearm()
	}

	cancel = bridge.StatusTracker().Watch(arm)
	arm(bridge.CheckStatus())
	return cancel
}

func runCLI(agent *Agent) error {
	if err := agent.Start(); err != nil {
		return err
	}
	defer agent.Stop()

	bridge := agent.Bridge()
	stopFollowing := scanContinuously(bridge, agent.ScanState())
	defer stopFollowing()
	if !bridge.IsEnabled() {
		log.Printf("Waiting for NFC (status: %s)", bridge.CheckStatus())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received, stopping server...")
	return nil
}

func runConsole(agent *Agent) error {
	if err := agent.Start(); err != nil {
		return err
	}
	defer agent.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return console.Run(ctx, cancel, agent.Bridge())
}

func main() {
	cfg, opts, err := config.ParseFlags(os.Args[0], withDefaultConfig(os.Args[1:]))
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if opts.ShowVersion {
		fmt.Println(buildinfo.BuildInfo())
		return
	}

	agent := NewAgent(cfg)

	switch cfg.Mode {
	case config.ModeCLI:
		err = runCLI(agent)
	case config.ModeConsole:
		err = runConsole(agent)
	default:
		NewSystrayApp(agent).Run()
	}
	if err != nil {
		log.Fatalf("Failed to start agent: %v", err)
	}
}
