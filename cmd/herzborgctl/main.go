// Command herzborgctl talks to Herzborg motors directly over a serial bus.
// It is meant for commissioning: finding addresses, checking replies and
// setting registers before the bridge is configured.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/abiosoft/ishell"
	"go.uber.org/zap"

	"github.com/jgulick48/herzborg-bridge/internal/herzborg"
	"github.com/jgulick48/herzborg-bridge/internal/logging"
	"github.com/jgulick48/herzborg-bridge/internal/models"
)

func main() {
	device := flag.String("device", "/dev/ttyUSB0", "Serial device of the bus.")
	timeout := flag.Duration("timeout", time.Second, "Read timeout for replies.")
	level := flag.String("log", "warn", "Log level.")
	flag.Parse()

	logger := logging.NewLogger(models.LoggingConfig{Level: *level, Format: "console"})
	defer logger.Sync()

	bus, err := herzborg.OpenSerialBus(herzborg.SerialConfig{Device: *device, ReadTimeout: *timeout}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *device, err)
		os.Exit(1)
	}
	defer bus.Close()

	shell := newShell(bus, logger)
	if args := flag.Args(); len(args) > 0 {
		if err := shell.Process(args...); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	shell.Printf("Connected to %s\n", *device)
	shell.Run()
}

func newShell(bus herzborg.Bus, logger *zap.Logger) *ishell.Shell {
	shell := ishell.New()
	shell.SetPrompt("herzborg > ")
	for _, cmd := range commands(bus, logger) {
		shell.AddCmd(cmd)
	}
	return shell
}
