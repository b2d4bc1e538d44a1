// Package console provides an interactive prompt for driving a bridge from a
// terminal: start and stop scanning, inspect status and attach listeners
// that print every scan.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/nedpals/davi-nfc-bridge/nfc"
)

// DefaultListener is the listener name used by "listen" without arguments.
const DefaultListener = "console"

// Console executes commands against a bridge.
type Console struct {
	bridge *nfc.Bridge

	mu  sync.Mutex
	out io.Writer
	// listeners added from this console
	owned map[string]bool
}

// New creates a console that writes its output to out.
func New(bridge *nfc.Bridge, out io.Writer) *Console {
	return &Console{
		bridge: bridge,
		out:    out,
		owned:  make(map[string]bool),
	}
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Execute runs one command line. It returns false when the console should
// exit.
func (c *Console) Execute(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "init", "start":
		c.cmdInit()

	case "stop":
		c.bridge.StopScan()
		c.printf("Scanning stopped\n")

	case "status", "s":
		c.cmdStatus()

	case "listen", "l":
		c.cmdListen(args)

	case "unlisten", "u":
		c.cmdUnlisten(args)

	case "listeners", "ls":
		c.cmdListeners()

	case "clear":
		c.bridge.RemoveAllListeners()
		c.mu.Lock()
		c.owned = make(map[string]bool)
		c.mu.Unlock()
		c.printf("All listeners removed\n")

	case "quit", "exit", "q":
		c.printf("Exiting...\n")
		return false

	default:
		c.printf("Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	c.printf(`Commands:
  init, start          Start an NFC session
  stop                 Stop the NFC session
  status, s            Show bridge status
  listen, l [name]     Print scans under a listener name (default %q)
  unlisten, u [name]   Remove a listener
  listeners, ls        List registered listeners
  clear                Remove every listener
  help, ?              Show this help
  quit, exit, q        Exit
`, DefaultListener)
}

func (c *Console) cmdInit() {
	if err := c.bridge.Initialize(); err != nil {
		if nfc.IsNotReadyError(err) {
			c.printf("Error: %s (status: %s)\n", nfc.NotReadyMessage, c.bridge.CheckStatus())
			return
		}
		c.printf("Error: %v\n", err)
		return
	}
	c.printf("Scanning started\n")
}

func (c *Console) cmdStatus() {
	tracker := c.bridge.StatusTracker()
	c.printf("Status:    %s\n", c.bridge.CheckStatus())
	c.printf("Enabled:   %v\n", c.bridge.IsEnabled())
	c.printf("Loading:   %v\n", tracker.Loading())
	c.printf("Listeners: %d\n", len(c.bridge.Listeners()))
}

func listenerName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return DefaultListener
}

func (c *Console) cmdListen(args []string) {
	name := listenerName(args)
	err := c.bridge.AddListener(name,
		func(rec nfc.DiscoveryRecord) {
			data, err := json.Marshal(rec)
			if err != nil {
				c.printf("[%s] discovered (unprintable: %v)\n", name, err)
				return
			}
			c.printf("[%s] discovered %s\n", name, data)
		},
		func(raw nfc.RawError) {
			if raw.Origin != "" {
				c.printf("[%s] error from %s: %s\n", name, raw.Origin, raw.Error)
				return
			}
			c.printf("[%s] error: %s\n", name, raw.Error)
		},
	)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}

	c.mu.Lock()
	c.owned[name] = true
	c.mu.Unlock()
	c.printf("Listening as %q\n", name)
}

func (c *Console) cmdUnlisten(args []string) {
	name := listenerName(args)
	c.mu.Lock()
	delete(c.owned, name)
	c.mu.Unlock()

	if !c.bridge.RemoveListener(name) {
		c.printf("No listener named %q\n", name)
		return
	}
	c.printf("Removed listener %q\n", name)
}

func (c *Console) cmdListeners() {
	names := c.bridge.Listeners()
	if len(names) == 0 {
		c.printf("No listeners\n")
		return
	}
	sort.Strings(names)
	for _, name := range names {
		c.printf("  %s\n", name)
	}
}

// Close removes the listeners added from this console.
func (c *Console) Close() {
	c.mu.Lock()
	names := make([]string, 0, len(c.owned))
	for name := range c.owned {
		names = append(names, name)
	}
	c.owned = make(map[string]bool)
	c.mu.Unlock()

	for _, name := range names {
		c.bridge.RemoveListener(name)
	}
}

// lineReader is the part of *readline.Instance the command loop uses.
type lineReader interface {
	Readline() (string, error)
	Close() error
}

// Run reads commands from the terminal until quit, EOF or ctx is done, then
// calls cancel.
func Run(ctx context.Context, cancel context.CancelFunc, bridge *nfc.Bridge) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "nfc> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}

	c := New(bridge, rl.Stdout())
	defer c.Close()
	c.printHelp()
	return c.loop(ctx, cancel, rl)
}

// loop executes lines from rl. rl is closed when ctx is done so a blocked
// Readline returns.
func (c *Console) loop(ctx context.Context, cancel context.CancelFunc, rl lineReader) error {
	var closeOnce sync.Once
	closeReader := func() { closeOnce.Do(func() { rl.Close() }) }
	defer closeReader()

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			closeReader()
		case <-finished:
		}
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt && ctx.Err() == nil {
				continue
			}
			c.printf("Exiting...\n")
			cancel()
			return nil
		}

		if !c.Execute(line) {
			cancel()
			return nil
		}
	}
}
