package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/guregu/null"
	"go.uber.org/zap"

	"github.com/jgulick48/herzborg-bridge/internal/models"
	"github.com/jgulick48/herzborg-bridge/internal/thing"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	quiesce        = 250

	bridgeOnline  = "online"
	bridgeOffline = "offline"
)

var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrNotConnected     = errors.New("mqtt not connected")
)

// CommandSender delivers commands received on set topics.
type CommandSender interface {
	SendCommand(uid thing.UID, channelID string, command thing.Command) error
}

// Client mirrors thing status and channel states to MQTT and accepts
// commands on <base>/<type>/<id>/<channel>/set.
type Client interface {
	thing.Callback
	Close()
	Connect() error
	IsEnabled() bool
	RegisterCurtain(uid thing.UID, label string)
}

// broker is the part of the paho client this package uses.
type broker interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Disconnect()
}

type curtainInfo struct {
	uid   thing.UID
	label string
}

func NewClient(config models.MQTTConfiguration, commands CommandSender, logger *zap.Logger) Client {
	return newClient(config, commands, nil, logger)
}

func newClient(config models.MQTTConfiguration, commands CommandSender, b broker, logger *zap.Logger) *client {
	if config.BaseTopic == "" {
		config.BaseTopic = "herzborg"
	}
	config.BaseTopic = strings.TrimSuffix(config.BaseTopic, "/")
	return &client{
		config:   config,
		commands: commands,
		broker:   b,
		logger:   logger.Named("mqtt"),
	}
}

type client struct {
	config   models.MQTTConfiguration
	commands CommandSender
	logger   *zap.Logger

	mux      sync.RWMutex
	broker   broker
	curtains []curtainInfo
}

func (c *client) IsEnabled() bool {
	return c.config.Host != ""
}

func (c *client) RegisterCurtain(uid thing.UID, label string) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.curtains = append(c.curtains, curtainInfo{uid: uid, label: label})
}

func (c *client) Connect() error {
	if !c.IsEnabled() {
		return nil
	}
	address := fmt.Sprintf("tcp://%s:%d", c.config.Host, c.config.Port)
	c.logger.Info("connecting", zap.String("broker", address))
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(address)
	opts.SetClientID(c.clientID())
	if c.config.Username != "" && c.config.Password != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetWill(c.bridgeTopic(), bridgeOffline, 1, true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		c.onConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logger.Warn("connection lost", zap.Error(err))
	})
	pc := pahomqtt.NewClient(opts)
	c.mux.Lock()
	c.broker = &pahoBroker{client: pc}
	c.mux.Unlock()

	token := pc.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

func (c *client) clientID() string {
	if c.config.ClientID != "" {
		return c.config.ClientID
	}
	id, err := machineid.ProtectedID("herzborg-bridge")
	if err != nil {
		c.logger.Warn("unable to read machine id", zap.Error(err))
		return "herzborg-bridge"
	}
	return "herzborg-" + id[:12]
}

// onConnect runs on every (re)connect: it restores the command subscription
// and republishes availability and discovery.
func (c *client) onConnect() {
	c.logger.Info("connected")
	b := c.currentBroker()
	if b == nil {
		return
	}
	topic := c.config.BaseTopic + "/+/+/+/set"
	if err := b.Subscribe(topic, c.handleMessage); err != nil {
		c.logger.Error("unable to subscribe", zap.String("topic", topic), zap.Error(err))
	}
	c.publish(c.bridgeTopic(), []byte(bridgeOnline))
	c.publishDiscovery()
}

func (c *client) Close() {
	b := c.currentBroker()
	if b == nil {
		return
	}
	c.publish(c.bridgeTopic(), []byte(bridgeOffline))
	b.Disconnect()
	c.mux.Lock()
	c.broker = nil
	c.mux.Unlock()
}

func (c *client) currentBroker() broker {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.broker
}

func (c *client) bridgeTopic() string {
	return c.config.BaseTopic + "/bridge/status"
}

func (c *client) thingTopic(uid thing.UID) string {
	return fmt.Sprintf("%s/%s/%s", c.config.BaseTopic, uid.ThingType(), uid.ID())
}

func (c *client) StatusUpdated(uid thing.UID, info thing.StatusInfo) {
	message := StatusMessage{
		Status:      string(info.Status),
		Detail:      string(info.Detail),
		Description: null.NewString(info.Description, info.Description != ""),
	}
	c.publishJSON(c.thingTopic(uid)+"/status", message)
}

func (c *client) StateUpdated(channel thing.ChannelUID, state thing.State) {
	message := StateMessage{State: state.String()}
	if percent, ok := state.(thing.PercentType); ok {
		message.Value = null.IntFrom(int64(percent))
	}
	c.publishJSON(c.thingTopic(channel.Thing)+"/"+channel.ID, message)
}

func (c *client) handleMessage(topic string, payload []byte) {
	segments := strings.Split(strings.TrimPrefix(topic, c.config.BaseTopic+"/"), "/")
	if len(segments) != 4 || segments[3] != "set" {
		c.logger.Debug("ignoring message", zap.String("topic", topic))
		return
	}
	command, err := thing.ParseCommand(string(payload))
	if err != nil {
		c.logger.Warn("invalid command", zap.String("topic", topic), zap.ByteString("payload", payload), zap.Error(err))
		return
	}
	uid := thing.NewUID(segments[0], segments[1])
	if err := c.commands.SendCommand(uid, segments[2], command); err != nil {
		c.logger.Warn("unable to send command", zap.String("topic", topic), zap.Error(err))
	}
}

func (c *client) publishDiscovery() {
	if c.config.Discovery == "" {
		return
	}
	c.mux.RLock()
	curtains := append([]curtainInfo{}, c.curtains...)
	c.mux.RUnlock()
	for _, curtain := range curtains {
		base := c.thingTopic(curtain.uid)
		uniqueID := strings.ReplaceAll(string(curtain.uid), ":", "_")
		device := SensorDevice{
			Manufacturer: "Herzborg",
			Name:         curtain.label,
			Identifiers:  []string{uniqueID},
		}
		availabilityTemplate := "{{ 'online' if value_json.status == 'ONLINE' else 'offline' }}"
		cover := CoverJSON{
			UniqueId:             uniqueID,
			Name:                 curtain.label,
			DeviceClass:          "curtain",
			CommandTopic:         base + "/position/set",
			PayloadOpen:          "OPEN",
			PayloadClose:         "CLOSE",
			PayloadStop:          "STOP",
			PositionTopic:        base + "/position",
			PositionTemplate:     "{{ value_json.value }}",
			SetPositionTopic:     base + "/position/set",
			PositionOpen:         0,
			PositionClosed:       100,
			AvailabilityTopic:    base + "/status",
			AvailabilityTemplate: availabilityTemplate,
			Device:               device,
		}
		c.publishJSON(fmt.Sprintf("%s/cover/%s/config", c.config.Discovery, uniqueID), cover)
		mode := SensorJSON{
			UniqueId:             uniqueID + "_mode",
			Name:                 curtain.label + " mode",
			StateTopic:           base + "/mode",
			ValueTemplate:        "{{ value_json.state }}",
			AvailabilityTopic:    base + "/status",
			AvailabilityTemplate: availabilityTemplate,
			Device:               device,
		}
		c.publishJSON(fmt.Sprintf("%s/sensor/%s_mode/config", c.config.Discovery, uniqueID), mode)
	}
}

func (c *client) publishJSON(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("unable to encode payload", zap.String("topic", topic), zap.Error(err))
		return
	}
	c.publish(topic, payload)
}

func (c *client) publish(topic string, payload []byte) {
	b := c.currentBroker()
	if b == nil {
		return
	}
	if err := b.Publish(topic, true, payload); err != nil {
		c.logger.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

type pahoBroker struct {
	client pahomqtt.Client
}

func (p *pahoBroker) Publish(topic string, retained bool, payload []byte) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}
	token := p.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func (p *pahoBroker) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	token := p.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe to %s timed out", topic)
	}
	return token.Error()
}

func (p *pahoBroker) Disconnect() {
	p.client.Disconnect(quiesce)
}
