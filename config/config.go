// Package config loads the bridge configuration from an optional YAML file
// and command-line flags. Flags that are set explicitly override the file.
//
// Example file:
//
//	adapter: libnfc
//	mode: tray
//	server:
//	  port: 18080
//	  mdns: true
//	libnfc:
//	  device: "acr122_usb:001:004"
//	  pollInterval: 250ms
//	journal:
//	  path: scans.njl
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Adapters
const (
	AdapterLibnfc = "libnfc"
	AdapterPhone  = "phone"
	AdapterReplay = "replay"
)

// Run modes
const (
	ModeTray    = "tray"
	ModeCLI     = "cli"
	ModeConsole = "console"
)

// Config is the complete bridge configuration.
type Config struct {
	Adapter string        `yaml:"adapter"`
	Mode    string        `yaml:"mode"`
	Server  ServerConfig  `yaml:"server"`
	Libnfc  LibnfcConfig  `yaml:"libnfc"`
	Phone   PhoneConfig   `yaml:"phone"`
	Replay  ReplayConfig  `yaml:"replay"`
	Journal JournalConfig `yaml:"journal"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	APISecret string `yaml:"apiSecret"`
	MDNS      bool   `yaml:"mdns"`
}

type LibnfcConfig struct {
	Device        string        `yaml:"device"`
	PollInterval  time.Duration `yaml:"pollInterval"`
	KeepSession   bool          `yaml:"keepSession"`
	MaxScanErrors int           `yaml:"maxScanErrors"`
	ProbeInterval time.Duration `yaml:"probeInterval"`
}

type PhoneConfig struct {
	InactivityTimeout time.Duration `yaml:"inactivityTimeout"`
}

type ReplayConfig struct {
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
	Loop     bool          `yaml:"loop"`
}

// JournalConfig enables journaling of every scan when Path is set.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Adapter: AdapterLibnfc,
		Mode:    ModeTray,
		Server: ServerConfig{
			Port: 18080,
			MDNS: true,
		},
		Libnfc: LibnfcConfig{
			PollInterval:  250 * time.Millisecond,
			MaxScanErrors: 3,
			ProbeInterval: 2 * time.Second,
		},
		Phone: PhoneConfig{
			InactivityTimeout: 30 * time.Second,
		},
		Replay: ReplayConfig{
			Interval: 500 * time.Millisecond,
		},
	}
}

// Parse reads YAML into a copy of base. Unknown keys are rejected.
func Parse(data []byte, base Config) (Config, error) {
	cfg := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// Load reads the file at path on top of the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data, Default())
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Marshal encodes the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks the configuration for values the bridge cannot run with.
func (c Config) Validate() error {
	switch c.Adapter {
	case AdapterLibnfc, AdapterPhone:
	case AdapterReplay:
		if c.Replay.Path == "" {
			return errors.New("replay adapter requires a journal path")
		}
	default:
		return fmt.Errorf("unknown adapter %q (want %s, %s or %s)", c.Adapter, AdapterLibnfc, AdapterPhone, AdapterReplay)
	}

	switch c.Mode {
	case ModeTray, ModeCLI, ModeConsole:
	default:
		return fmt.Errorf("unknown mode %q (want %s, %s or %s)", c.Mode, ModeTray, ModeCLI, ModeConsole)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Adapter == AdapterPhone && c.Server.Port == 0 {
		return errors.New("phone adapter requires the server")
	}
	if c.Libnfc.PollInterval < 0 || c.Libnfc.ProbeInterval < 0 || c.Replay.Interval < 0 || c.Phone.InactivityTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	if c.Journal.Path != "" && c.Adapter == AdapterReplay && c.Journal.Path == c.Replay.Path {
		return errors.New("journal and replay must use different files")
	}
	return nil
}

// Options are the flag-only settings.
type Options struct {
	ConfigPath  string
	ShowVersion bool
}

// ParseFlags parses args, loads the file named by -config and applies the
// flags that were set on top of it.
func ParseFlags(name string, args []string) (Config, Options, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	var opts Options
	var flagCfg Config
	var cli, console bool

	fs.StringVar(&opts.ConfigPath, "config", "", "Path to a YAML configuration file")
	fs.BoolVar(&opts.ShowVersion, "version", false, "Print version information and exit")
	fs.StringVar(&flagCfg.Adapter, "adapter", "", "Reader adapter: libnfc, phone or replay")
	fs.StringVar(&flagCfg.Libnfc.Device, "device", "", "libnfc connection string (empty selects the first reader)")
	fs.BoolVar(&flagCfg.Libnfc.KeepSession, "keep-session", false, "Keep libnfc sessions open after the first tag")
	fs.IntVar(&flagCfg.Server.Port, "port", 0, "Port to listen on (0 disables the server unless the phone adapter is used)")
	fs.StringVar(&flagCfg.Server.APISecret, "api-secret", "", "API secret clients must pass as ?secret= (optional)")
	fs.BoolVar(&flagCfg.Server.MDNS, "mdns", false, "Advertise the server over mDNS")
	fs.StringVar(&flagCfg.Journal.Path, "journal", "", "Append every scan to this journal file")
	fs.StringVar(&flagCfg.Replay.Path, "replay", "", "Journal to replay (implies -adapter replay)")
	fs.BoolVar(&flagCfg.Replay.Loop, "replay-loop", false, "Restart the replay at the end of the journal")
	fs.StringVar(&flagCfg.Mode, "mode", "", "Run mode: tray, cli or console")
	fs.BoolVar(&cli, "cli", false, "Shorthand for -mode cli")
	fs.BoolVar(&console, "console", false, "Shorthand for -mode console")

	if err := fs.Parse(args); err != nil {
		return Config{}, opts, err
	}

	cfg := Default()
	if opts.ConfigPath != "" {
		loaded, err := Load(opts.ConfigPath)
		if err != nil {
			return Config{}, opts, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "adapter":
			cfg.Adapter = flagCfg.Adapter
		case "device":
			cfg.Libnfc.Device = flagCfg.Libnfc.Device
		case "keep-session":
			cfg.Libnfc.KeepSession = flagCfg.Libnfc.KeepSession
		case "port":
			cfg.Server.Port = flagCfg.Server.Port
		case "api-secret":
			cfg.Server.APISecret = flagCfg.Server.APISecret
		case "mdns":
			cfg.Server.MDNS = flagCfg.Server.MDNS
		case "journal":
			cfg.Journal.Path = flagCfg.Journal.Path
		case "replay":
			cfg.Replay.Path = flagCfg.Replay.Path
			cfg.Adapter = AdapterReplay
		case "replay-loop":
			cfg.Replay.Loop = flagCfg.Replay.Loop
		case "mode":
			cfg.Mode = flagCfg.Mode
		case "cli":
			if cli {
				cfg.Mode = ModeCLI
			}
		case "console":
			if console {
				cfg.Mode = ModeConsole
			}
		}
	})

	if opts.ShowVersion {
		return cfg, opts, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, opts, err
	}
	return cfg, opts, nil
}
