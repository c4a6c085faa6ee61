package metrics

import (
	"fmt"

	"github.com/DataDog/datadog-go/v5/statsd"
	"go.uber.org/zap"

	"github.com/jgulick48/herzborg-bridge/internal/thing"
)

type gauger interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Close() error
}

// Client forwards thing status and numeric channel states to statsd.
type Client interface {
	thing.Callback
	Close() error
}

type client struct {
	statsd gauger
	logger *zap.Logger
}

func NewClient(address string, logger *zap.Logger) (Client, error) {
	statsdClient, err := statsd.New(address, statsd.WithNamespace("herzborg."))
	if err != nil {
		return nil, fmt.Errorf("creating statsd client for %s: %w", address, err)
	}
	return newClient(statsdClient, logger), nil
}

func newClient(g gauger, logger *zap.Logger) *client {
	return &client{statsd: g, logger: logger}
}

func FormatTag(key, value string) string {
	return fmt.Sprintf("%s:%s", key, value)
}

func (c *client) SendGaugeMetric(name string, tags []string, value float64) {
	err := c.statsd.Gauge(name, value, tags, 1)
	if err != nil {
		c.logger.Warn("Got error trying to send metric", zap.String("metric", name), zap.Error(err))
	}
}

func (c *client) StatusUpdated(uid thing.UID, info thing.StatusInfo) {
	online := 0.0
	if info.Status == thing.StatusOnline {
		online = 1
	}
	c.SendGaugeMetric("thing.online", []string{
		FormatTag("thing", string(uid)),
		FormatTag("detail", string(info.Detail)),
	}, online)
}

func (c *client) StateUpdated(channel thing.ChannelUID, state thing.State) {
	tags := []string{
		FormatTag("thing", string(channel.Thing)),
		FormatTag("channel", channel.ID),
	}
	switch s := state.(type) {
	case thing.PercentType:
		c.SendGaugeMetric("channel.value", tags, float64(s))
	case thing.OnOffType:
		value := 0.0
		if s == thing.On {
			value = 1
		}
		c.SendGaugeMetric("channel.value", tags, value)
	case thing.StringType:
		c.SendGaugeMetric("channel.state", append(tags, FormatTag("value", string(s))), 1)
	}
}

func (c *client) Close() error {
	return c.statsd.Close()
}
