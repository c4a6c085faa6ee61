package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mitchellh/panicwrap"
	"go.uber.org/zap"

	"github.com/jgulick48/herzborg-bridge/internal/api"
	"github.com/jgulick48/herzborg-bridge/internal/herzborg"
	"github.com/jgulick48/herzborg-bridge/internal/history"
	"github.com/jgulick48/herzborg-bridge/internal/homekit"
	"github.com/jgulick48/herzborg-bridge/internal/logging"
	"github.com/jgulick48/herzborg-bridge/internal/metrics"
	"github.com/jgulick48/herzborg-bridge/internal/models"
	"github.com/jgulick48/herzborg-bridge/internal/mqtt"
	"github.com/jgulick48/herzborg-bridge/internal/openHab"
	"github.com/jgulick48/herzborg-bridge/internal/thing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to the config file (default $HERZBORG_CONFIG or ./config.json).")
	itemsPath := flag.String("items", "./items.json", "File holding the HomeKit accessory ids.")
	flag.Parse()

	exitStatus, err := panicwrap.BasicWrap(panicHandler)
	if err != nil {
		panic(err)
	}
	if exitStatus >= 0 {
		os.Exit(exitStatus)
	}

	config, err := models.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config file provided: %s\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(config.Logging)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, config, *itemsPath, logger); err != nil {
		logger.Error("bridge stopped", zap.Error(err))
		os.Exit(1)
	}
}

func panicHandler(output string) {
	fmt.Fprintf(os.Stderr, "The bridge crashed:\n\n%s\n", output)
	logger := logging.NewLogger(models.LoggingConfig{Level: "error"})
	logger.Error("panic", zap.String("output", output))
	_ = logger.Sync()
	os.Exit(1)
}

func run(ctx context.Context, config models.Config, itemsPath string, logger *zap.Logger) error {
	callbacks := thing.NewCallbacks(metrics.PrometheusRecorder{})
	binding := herzborg.NewBinding(busConfigs(config), curtainConfigs(config), callbacks, thing.NewScheduler(), logger.Named("herzborg"))

	if config.StatsServer != "" {
		statsClient, err := metrics.NewClient(config.StatsServer, logger.Named("statsd"))
		if err != nil {
			logger.Warn("statsd disabled", zap.Error(err))
		} else {
			defer statsClient.Close()
			callbacks.Add(statsClient)
		}
	}

	recorder, err := history.Connect(config.InfluxDB, logger)
	switch {
	case err == nil:
		defer recorder.Close()
		callbacks.Add(recorder)
	case !errors.Is(err, history.ErrDisabled):
		logger.Warn("influxdb history disabled", zap.Error(err))
	}

	habClient := openHab.NewClient(config.OpenHabServer, logger)
	if habClient.IsEnabled() {
		callbacks.Add(habClient)
		var channels []thing.ChannelUID
		for _, curtain := range binding.Curtains() {
			for _, channel := range herzborg.Channels {
				channels = append(channels, thing.NewChannelUID(curtain.UID(), channel))
			}
		}
		if missing := habClient.MissingItems(channels); len(missing) > 0 {
			logger.Warn("openHAB items missing, their states will not be mirrored", zap.Strings("items", missing))
		}
	}

	mqttClient := mqtt.NewClient(config.MQTT, binding, logger)
	if mqttClient.IsEnabled() {
		for _, curtain := range binding.Curtains() {
			mqttClient.RegisterCurtain(curtain.UID(), curtain.Label())
		}
		callbacks.Add(mqttClient)
		if err := mqttClient.Connect(); err != nil {
			logger.Error("unable to connect to mqtt, will keep retrying", zap.Error(err))
		}
		defer mqttClient.Close()
	}

	bridge := homekit.NewBridge(homekit.Config{
		BridgeName: config.BridgeName,
		PIN:        config.PIN,
		Port:       config.Port,
		ItemsFile:  itemsPath,
	}, binding, logger)
	for _, curtain := range binding.Curtains() {
		bridge.RegisterCurtain(curtain.UID(), curtain.Label(), curtain.Address())
	}
	callbacks.Add(bridge)

	binding.Start()
	defer binding.Stop()

	if err := bridge.Start(); err != nil {
		return fmt.Errorf("starting homekit bridge: %w", err)
	}
	defer bridge.Stop()

	server := api.New(config.HTTP, binding, metrics.Handler(), logger)
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", config.HTTP.Addr))
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func busConfigs(config models.Config) []herzborg.BusConfig {
	buses := make([]herzborg.BusConfig, 0, len(config.Buses))
	for _, bus := range config.Buses {
		buses = append(buses, herzborg.BusConfig{
			ID:          bus.ID,
			Label:       bus.Label,
			Device:      bus.Device,
			ReadTimeout: bus.ReadTimeout,
		})
	}
	return buses
}

func curtainConfigs(config models.Config) []herzborg.CurtainConfig {
	curtains := make([]herzborg.CurtainConfig, 0, len(config.Curtains))
	for _, curtain := range config.Curtains {
		curtains = append(curtains, herzborg.CurtainConfig{
			ID:           curtain.ID,
			Label:        curtain.Label,
			Bus:          curtain.Bus,
			Address:      uint16(curtain.Address),
			PollInterval: curtain.PollInterval,
		})
	}
	return curtains
}
