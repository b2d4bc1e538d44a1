package main

import (
	"fmt"
	"log"
	"net"
	"os/exec"
	"runtime"
	"sync"

	"fyne.io/systray"

	"github.com/nedpals/davi-nfc-bridge/buildinfo"
	"github.com/nedpals/davi-nfc-bridge/config"
	"github.com/nedpals/davi-nfc-bridge/nfc"
	"github.com/nedpals/davi-nfc-bridge/server"
)

// trayListener is the bridge listener name the tray registers under.
const trayListener = "tray"

// getLocalIPs returns a list of local IP addresses (excluding loopback)
func getLocalIPs() []string {
	var ips []string
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ips
	}

	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				ips = append(ips, ipNet.IP.String())
			}
		}
	}
	return ips
}

func localIP() string {
	if ips := getLocalIPs(); len(ips) > 0 {
		return ips[0]
	}
	return "localhost"
}

// clientURL is the WebSocket URL application clients connect to.
func clientURL(host string, port int) string {
	return fmt.Sprintf("ws://%s:%d%s", host, port, server.RouteWebSocket)
}

// deviceURL is the WebSocket URL phones connect to.
func deviceURL(host string, port int) string {
	return fmt.Sprintf("ws://%s:%d%s", host, port, server.RouteDevice)
}

// statusTitle is the status line shown for a bridge status.
func statusTitle(status nfc.Status) string {
	switch status {
	case nfc.StatusReady:
		return "NFC: Ready"
	case nfc.StatusMissing:
		return "NFC: No reader found"
	case nfc.StatusUnavailable:
		return "NFC: Unavailable"
	default:
		return "NFC: Waiting..."
	}
}

// scanTitles are the menu lines for the last scan.
func scanTitles(rec *nfc.DiscoveryRecord) (id, tagType, scanned string) {
	if rec == nil {
		return "Tag ID: None", "Tag Type: None", "Scanned: None"
	}
	orNone := func(s *string) string {
		if s == nil || *s == "" {
			return "None"
		}
		return *s
	}
	return "Tag ID: " + orNone(rec.ID), "Tag Type: " + orNone(rec.Type), "Scanned: " + orNone(rec.Scanned)
}

// SystrayApp manages the system tray interface for the NFC bridge
type SystrayApp struct {
	agent *Agent

	// Menu items
	mStatus    *systray.MenuItem
	mScanning  *systray.MenuItem
	mTagID     *systray.MenuItem
	mTagType   *systray.MenuItem
	mScanned   *systray.MenuItem
	mClientURL *systray.MenuItem
	mDeviceURL *systray.MenuItem
	mCopyURL   *systray.MenuItem
	mStart     *systray.MenuItem
	mStop      *systray.MenuItem
	mQuit      *systray.MenuItem

	mu          sync.Mutex
	cancelWatch func()
}

// NewSystrayApp creates a new systray application
func NewSystrayApp(agent *Agent) *SystrayApp {
	return &SystrayApp{agent: agent}
}

// Run starts the systray application
func (s *SystrayApp) Run() {
	systray.Run(s.onReady, s.onExit)
}

func (s *SystrayApp) onReady() {
	s.setupUI()
	go s.handleMenuEvents()
	go s.handleStartAgent()
}

func (s *SystrayApp) onExit() {
	s.detach()
	s.agent.Stop()
}

// setupUI initializes all menu items
func (s *SystrayApp) setupUI() {
	systray.SetIcon(iconData)
	systray.SetTitle("NFC")
	systray.SetTooltip(buildinfo.DisplayName)

	s.mStatus = systray.AddMenuItem("Starting...", "Bridge status")
	s.mStatus.Disable()
	s.mScanning = systray.AddMenuItemCheckbox("Scanning", "Start or stop the NFC session", false)
	s.mScanning.Disable()

	systray.AddSeparator()

	s.mTagID = systray.AddMenuItem("Tag ID: None", "Last scanned tag ID")
	s.mTagID.Disable()
	s.mTagType = systray.AddMenuItem("Tag Type: None", "Last scanned tag type")
	s.mTagType.Disable()
	s.mScanned = systray.AddMenuItem("Scanned: None", "Last scanned content")
	s.mScanned.Disable()

	systray.AddSeparator()

	s.mClientURL = systray.AddMenuItem("Clients: Not running", "WebSocket URL for applications")
	s.mClientURL.Disable()
	s.mDeviceURL = systray.AddMenuItem("Phones: Not running", "WebSocket URL for phones")
	s.mDeviceURL.Disable()
	s.mDeviceURL.Hide()
	s.mCopyURL = systray.AddMenuItem("Copy Client URL", "Copy the client URL to the clipboard")
	s.mCopyURL.Disable()

	systray.AddSeparator()

	s.mStart = systray.AddMenuItem("Start Bridge", "Start the NFC bridge")
	s.mStop = systray.AddMenuItem("Stop Bridge", "Stop the NFC bridge")
	s.mStart.Disable()
	s.mStop.Disable()

	systray.AddSeparator()
	s.mQuit = systray.AddMenuItem("Quit", "Quit the application")
}

// handleMenuEvents processes all menu click events
func (s *SystrayApp) handleMenuEvents() {
	for {
		select {
		case <-s.mStart.ClickedCh:
			s.handleStartAgent()
		case <-s.mStop.ClickedCh:
			s.handleStopAgent()
		case <-s.mScanning.ClickedCh:
			s.handleToggleScanning()
		case <-s.mCopyURL.ClickedCh:
			if srv := s.agent.Server(); srv != nil {
				if err := copyToClipboard(clientURL(localIP(), serverPort(srv))); err != nil {
					log.Printf("[systray] Failed to copy to clipboard: %v", err)
				} else {
					log.Printf("[systray] Copied client URL to clipboard")
				}
			}
		case <-s.mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (s *SystrayApp) handleStartAgent() {
	if err := s.agent.Start(); err != nil {
		log.Printf("[systray] Failed to start agent: %v", err)
		s.mStatus.SetTitle("Failed to Start")
		systray.SetIcon(iconDataError)
		s.mStart.Enable()
		return
	}
	s.attach()
	s.updateURLs()
	s.mStart.Disable()
	s.mStop.Enable()
}

func (s *SystrayApp) handleStopAgent() {
	s.detach()
	s.agent.Stop()

	s.mStatus.SetTitle("Stopped")
	systray.SetIcon(iconDataStopped)
	s.mScanning.Uncheck()
	s.mScanning.Disable()
	s.clearURLs()
	s.mStop.Disable()
	s.mStart.Enable()
}

func (s *SystrayApp) handleToggleScanning() {
	bridge := s.agent.Bridge()
	if bridge == nil {
		return
	}
	active := s.agent.ScanState()
	if active() {
		bridge.StopScan()
		s.mScanning.Uncheck()
		return
	}
	if err := bridge.Initialize(); err != nil {
		log.Printf("[systray] Cannot start scanning: %v", err)
		s.mScanning.Uncheck()
		return
	}
	s.mScanning.Check()
}

// attach registers the tray listener and follows status changes.
func (s *SystrayApp) attach() {
	bridge := s.agent.Bridge()
	if bridge == nil {
		return
	}

	active := s.agent.ScanState()
	err := bridge.AddListener(trayListener,
		func(rec nfc.DiscoveryRecord) {
			id, tagType, scanned := scanTitles(&rec)
			s.mTagID.SetTitle(id)
			s.mTagType.SetTitle(tagType)
			s.mScanned.SetTitle(scanned)
			s.syncScanning(active())
		},
		func(raw nfc.RawError) {
			log.Printf("[systray] NFC error (%s): %s", raw.Origin, raw.Error)
			s.syncScanning(active())
		},
	)
	if err != nil {
		log.Printf("[systray] Failed to register listener: %v", err)
	}

	cancel := bridge.StatusTracker().Watch(s.updateStatus)
	s.mu.Lock()
	s.cancelWatch = cancel
	s.mu.Unlock()
	s.updateStatus(bridge.CheckStatus())
}

func (s *SystrayApp) detach() {
	s.mu.Lock()
	cancel := s.cancelWatch
	s.cancelWatch = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if bridge := s.agent.Bridge(); bridge != nil {
		bridge.RemoveListener(trayListener)
	}
}

// syncScanning matches the Scanning checkbox to the adapter, which may end
// a session on its own after a read or an error.
func (s *SystrayApp) syncScanning(active bool) {
	if active {
		s.mScanning.Check()
	} else {
		s.mScanning.Uncheck()
	}
}

// updateStatus updates the status menu item and icon
func (s *SystrayApp) updateStatus(status nfc.Status) {
	s.mStatus.SetTitle(statusTitle(status))

	switch status {
	case nfc.StatusReady:
		systray.SetIcon(iconDataConnected)
		s.mScanning.Enable()
	case nfc.StatusMissing, nfc.StatusUnavailable:
		systray.SetIcon(iconDataError)
		s.mScanning.Uncheck()
		s.mScanning.Disable()
	default:
		systray.SetIcon(iconData)
	}
}

func serverPort(srv *server.Server) int {
	if addr, ok := srv.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return server.DefaultPort
}

// updateURLs updates all server URL displays
func (s *SystrayApp) updateURLs() {
	srv := s.agent.Server()
	if srv == nil {
		s.mClientURL.SetTitle("Clients: Server disabled")
		return
	}

	ip, port := localIP(), serverPort(srv)
	s.mClientURL.SetTitle("Clients: " + clientURL(ip, port))
	s.mCopyURL.Enable()
	if s.agent.Config.Adapter == config.AdapterPhone {
		s.mDeviceURL.SetTitle("Phones: " + deviceURL(ip, port))
		s.mDeviceURL.Show()
	}
}

// clearURLs resets all URL displays to "Not running"
func (s *SystrayApp) clearURLs() {
	s.mClientURL.SetTitle("Clients: Not running")
	s.mDeviceURL.SetTitle("Phones: Not running")
	s.mCopyURL.Disable()
}

// copyToClipboard copies text to the system clipboard
func copyToClipboard(text string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		cmd = exec.Command("xclip", "-selection", "clipboard")
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	if _, err := stdin.Write([]byte(text)); err != nil {
		return err
	}

	stdin.Close()
	return cmd.Wait()
}
