package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/nedpals/davi-nfc-bridge/buildinfo"
	"github.com/nedpals/davi-nfc-bridge/config"
	"github.com/nedpals/davi-nfc-bridge/journal"
	"github.com/nedpals/davi-nfc-bridge/nfc"
	"github.com/nedpals/davi-nfc-bridge/nfc/libnfc"
	"github.com/nedpals/davi-nfc-bridge/nfc/phonenfc"
	"github.com/nedpals/davi-nfc-bridge/nfc/replay"
	"github.com/nedpals/davi-nfc-bridge/protocol"
	"github.com/nedpals/davi-nfc-bridge/server"
)

// Agent wires an adapter, the bridge, the optional journal and the server
// together for one run.
type Agent struct {
	Logger *log.Logger
	Config config.Config

	// NewAdapter overrides adapter selection. Used by tests.
	NewAdapter func(cfg config.Config) (nfc.SessionAdapter, error)

	mu      sync.Mutex
	adapter nfc.SessionAdapter
	phone   *phonenfc.Adapter
	bridge  *nfc.Bridge
	journal *journal.Writer
	server  *server.Server
}

func NewAgent(cfg config.Config) *Agent {
	return &Agent{
		Logger: log.New(os.Stderr, "[agent] ", log.LstdFlags),
		Config: cfg,
	}
}

// newAdapter builds the adapter named by the configuration.
func (a *Agent) newAdapter() (nfc.SessionAdapter, error) {
	if a.NewAdapter != nil {
		return a.NewAdapter(a.Config)
	}

	cfg := a.Config
	switch cfg.Adapter {
	case config.AdapterLibnfc:
		return libnfc.NewDefaultAdapter(libnfc.Config{
			Device:        cfg.Libnfc.Device,
			PollInterval:  cfg.Libnfc.PollInterval,
			KeepSession:   cfg.Libnfc.KeepSession,
			MaxScanErrors: cfg.Libnfc.MaxScanErrors,
			ProbeInterval: cfg.Libnfc.ProbeInterval,
		}, nil), nil
	case config.AdapterPhone:
		return phonenfc.NewAdapter(phonenfc.Config{
			InactivityTimeout: cfg.Phone.InactivityTimeout,
			ServerInfo: protocol.ServerInfo{
				Name:    buildinfo.DisplayName,
				Version: buildinfo.FullVersion(),
			},
		}, nil), nil
	case config.AdapterReplay:
		return replay.NewAdapter(replay.Config{
			Path:     cfg.Replay.Path,
			Interval: cfg.Replay.Interval,
			Loop:     cfg.Replay.Loop,
		}, nil), nil
	}
	return nil, fmt.Errorf("unknown adapter %q", cfg.Adapter)
}

// Start creates the bridge and brings up the journal and server. The
// adapter's availability probe runs as part of creating the bridge.
func (a *Agent) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bridge != nil {
		return errors.New("agent is already running")
	}

	adapter, err := a.newAdapter()
	if err != nil {
		return err
	}
	bridge := nfc.NewBridge(adapter)
	if m, ok := adapter.(interface{ Monitor() }); ok {
		m.Monitor()
	}

	var writer *journal.Writer
	if a.Config.Journal.Path != "" {
		writer, err = journal.Create(a.Config.Journal.Path, nil)
		if err != nil {
			closeAdapter(adapter)
			return err
		}
		if err := bridge.AddListener(journal.ListenerName, writer.RecordDiscovery, writer.RecordError); err != nil {
			writer.Close()
			closeAdapter(adapter)
			return err
		}
		a.Logger.Printf("Journaling scans to %s", a.Config.Journal.Path)
	}

	phone, _ := adapter.(*phonenfc.Adapter)

	var srv *server.Server
	if a.Config.Server.Port != 0 || phone != nil {
		srvCfg := server.Config{
			Bridge:      bridge,
			AdapterName: a.Config.Adapter,
			Port:        a.Config.Server.Port,
			APISecret:   a.Config.Server.APISecret,
			MDNS:        a.Config.Server.MDNS,
		}
		if phone != nil {
			srvCfg.DeviceHandler = phone
		}
		srv = server.New(srvCfg)
		if err := srv.Start(); err != nil {
			if writer != nil {
				writer.Close()
			}
			closeAdapter(adapter)
			return err
		}
	}

	a.adapter = adapter
	a.phone = phone
	a.bridge = bridge
	a.journal = writer
	a.server = srv

	a.Logger.Printf("Agent started with %s adapter (status: %s)", a.Config.Adapter, bridge.CheckStatus())
	return nil
}

// Stop shuts down the server, ends any session and closes the journal.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bridge == nil {
		a.Logger.Println("Agent is not running")
		return
	}

	a.Logger.Println("Stopping agent...")

	if a.server != nil {
		a.server.Stop()
		a.server = nil
	}

	a.bridge.StopScan()
	a.bridge.RemoveAllListeners()
	closeAdapter(a.adapter)

	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.Logger.Printf("Error closing journal: %v", err)
		}
		a.journal = nil
	}

	a.adapter = nil
	a.phone = nil
	a.bridge = nil
	a.Logger.Println("Agent stopped successfully")
}

// Bridge returns the running bridge, or nil when stopped.
func (a *Agent) Bridge() *nfc.Bridge {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bridge
}

// Server returns the running server, or nil when it is disabled or stopped.
func (a *Agent) Server() *server.Server {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server
}

// ScanState returns a function reporting whether the adapter currently has a
// session open. The function does not take the agent lock, so listeners may
// call it.
func (a *Agent) ScanState() func() bool {
	a.mu.Lock()
	adapter := a.adapter
	a.mu.Unlock()

	if ad, ok := adapter.(interface{ Active() bool }); ok {
		return ad.Active
	}
	return func() bool { return false }
}

// Running reports whether Start succeeded and Stop has not been called.
func (a *Agent) Running() bool {
	return a.Bridge() != nil
}

// closeAdapter releases whatever the adapter holds after its session closed.
func closeAdapter(adapter nfc.SessionAdapter) {
	adapter.CloseSession()
	switch ad := adapter.(type) {
	case interface{ Close() }:
		ad.Close()
	case interface{ Wait() }:
		ad.Wait()
	}
}
