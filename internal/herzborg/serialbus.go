package herzborg

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

// Line settings are fixed by the motor firmware.
const (
	baudRate = 9600
	dataBits = 8

	defaultReadTimeout = time.Second
)

type SerialConfig struct {
	Device      string
	ReadTimeout time.Duration
}

// OpenSerialBus opens the serial device at 9600 baud 8N1 without flow
// control.
func OpenSerialBus(config SerialConfig, logger *zap.Logger) (Bus, error) {
	if config.Device == "" {
		return nil, ErrNoPort
	}
	port, err := serial.OpenPort(portConfig(config))
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrIO, config.Device, err)
	}
	logger.Info("opened serial port", zap.String("device", config.Device))
	return NewStreamBus(config.Device, port, logger), nil
}

func portConfig(config SerialConfig) *serial.Config {
	timeout := config.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	return &serial.Config{
		Name:        config.Device,
		Baud:        baudRate,
		Size:        dataBits,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: timeout,
	}
}
