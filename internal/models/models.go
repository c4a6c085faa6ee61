package models

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultConfigPath = "./config.json"
	envPrefix         = "HERZBORG"
)

type Config struct {
	BridgeName    string            `mapstructure:"bridgeName"`
	OpenHabServer string            `mapstructure:"openHabServer"`
	PIN           string            `mapstructure:"pin"`
	Port          string            `mapstructure:"port"`
	StatsServer   string            `mapstructure:"statsServer"`
	Logging       LoggingConfig     `mapstructure:"logging"`
	Buses         []BusConfig       `mapstructure:"buses"`
	Curtains      []CurtainConfig   `mapstructure:"curtains"`
	MQTT          MQTTConfiguration `mapstructure:"mqtt"`
	HTTP          HTTPConfig        `mapstructure:"http"`
	InfluxDB      InfluxDBConfig    `mapstructure:"influxdb"`
}

type BusConfig struct {
	ID          string        `mapstructure:"id"`
	Label       string        `mapstructure:"label"`
	Device      string        `mapstructure:"device"`
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

type CurtainConfig struct {
	ID           string        `mapstructure:"id"`
	Label        string        `mapstructure:"label"`
	Bus          string        `mapstructure:"bus"`
	Address      int           `mapstructure:"address"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
}

type MQTTConfiguration struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	ClientID  string `mapstructure:"clientID"`
	BaseTopic string `mapstructure:"baseTopic"`
	Discovery string `mapstructure:"discovery"`
}

type HTTPConfig struct {
	Addr         string  `mapstructure:"addr"`
	CommandRate  float64 `mapstructure:"commandRate"`
	CommandBurst int     `mapstructure:"commandBurst"`
}

type InfluxDBConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	URL       string `mapstructure:"url"`
	Token     string `mapstructure:"token"`
	Org       string `mapstructure:"org"`
	Bucket    string `mapstructure:"bucket"`
	BatchSize uint   `mapstructure:"batchSize"`
}

type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// Load reads the config file at path, or HERZBORG_CONFIG, or ./config.json.
// Scalar keys can be overridden with HERZBORG_ environment variables, with
// dots replaced by underscores (HERZBORG_MQTT_HOST).
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	if path == "" {
		path = DefaultConfigPath
	}
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bridgeName", "Herzborg")
	v.SetDefault("pin", "00102003")
	v.SetDefault("port", "")
	v.SetDefault("openHabServer", "")
	v.SetDefault("statsServer", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 28)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("mqtt.host", "")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.clientID", "")
	v.SetDefault("mqtt.baseTopic", "herzborg")
	v.SetDefault("mqtt.discovery", "homeassistant")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.commandRate", 5)
	v.SetDefault("http.commandBurst", 10)

	v.SetDefault("influxdb.enabled", false)
	v.SetDefault("influxdb.url", "http://localhost:8086")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.org", "")
	v.SetDefault("influxdb.bucket", "herzborg")
	v.SetDefault("influxdb.batchSize", 100)
}

// applyDefaults fills per-entry defaults viper cannot express for list items.
func (c *Config) applyDefaults() {
	for i := range c.Buses {
		if c.Buses[i].ReadTimeout == 0 {
			c.Buses[i].ReadTimeout = time.Second
		}
	}
	for i := range c.Curtains {
		if c.Curtains[i].PollInterval == 0 {
			c.Curtains[i].PollInterval = 10 * time.Second
		}
	}
}

// Validate checks the thing definitions. A bus without a device is accepted
// here and reported as a configuration error on the bus thing itself.
func (c Config) Validate() error {
	var errs []error
	buses := make(map[string]bool, len(c.Buses))
	for i, bus := range c.Buses {
		if bus.ID == "" {
			errs = append(errs, fmt.Errorf("buses[%d].id is required", i))
			continue
		}
		if buses[bus.ID] {
			errs = append(errs, fmt.Errorf("buses[%d].id %q is duplicated", i, bus.ID))
		}
		buses[bus.ID] = true
		if bus.ReadTimeout < 0 {
			errs = append(errs, fmt.Errorf("buses[%d].readTimeout must not be negative", i))
		}
	}
	curtains := make(map[string]bool, len(c.Curtains))
	for i, curtain := range c.Curtains {
		if curtain.ID == "" {
			errs = append(errs, fmt.Errorf("curtains[%d].id is required", i))
		} else if curtains[curtain.ID] {
			errs = append(errs, fmt.Errorf("curtains[%d].id %q is duplicated", i, curtain.ID))
		}
		curtains[curtain.ID] = true
		if !buses[curtain.Bus] {
			errs = append(errs, fmt.Errorf("curtains[%d].bus %q does not name a configured bus", i, curtain.Bus))
		}
		if curtain.Address < 0 || curtain.Address > 0xffff {
			errs = append(errs, fmt.Errorf("curtains[%d].address %d out of range", i, curtain.Address))
		}
		if curtain.PollInterval <= 0 {
			errs = append(errs, fmt.Errorf("curtains[%d].pollInterval must be positive", i))
		}
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, errors.New("influxdb.url is required when influxdb is enabled"))
	}
	return errors.Join(errs...)
}
