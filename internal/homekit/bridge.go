package homekit

import (
	"sync"

	"github.com/jgulick48/hc"
	"github.com/jgulick48/hc/accessory"
	"github.com/jgulick48/hc/characteristic"
	"github.com/jgulick48/hc/service"
	"go.uber.org/zap"

	"github.com/jgulick48/herzborg-bridge/internal/herzborg"
	"github.com/jgulick48/herzborg-bridge/internal/thing"
)

// CommandSender delivers commands from HomeKit to the curtain handlers.
type CommandSender interface {
	SendCommand(uid thing.UID, channelID string, command thing.Command) error
}

type Config struct {
	BridgeName string
	PIN        string
	Port       string
	ItemsFile  string
}

// Bridge exposes curtains as HomeKit window coverings.
type Bridge struct {
	config   Config
	commands CommandSender
	logger   *zap.Logger
	ids      *itemIDs
	bridge   *accessory.Bridge

	mux       sync.RWMutex
	curtains  map[thing.UID]*curtain
	order     []thing.UID
	transport hc.Transport
}

func NewBridge(config Config, commands CommandSender, logger *zap.Logger) *Bridge {
	logger = logger.Named("homekit")
	if config.ItemsFile == "" {
		config.ItemsFile = "./items.json"
	}
	ids, err := loadItemIDs(config.ItemsFile)
	if err != nil {
		logger.Warn("starting with new accessory ids", zap.Error(err))
	}
	return &Bridge{
		config:   config,
		commands: commands,
		logger:   logger,
		ids:      ids,
		bridge: accessory.NewBridge(accessory.Info{
			Name:         config.BridgeName,
			Manufacturer: "Herzborg",
			ID:           bridgeID,
		}),
		curtains: make(map[thing.UID]*curtain),
	}
}

// RegisterCurtain adds a window covering accessory for the curtain thing.
func (b *Bridge) RegisterCurtain(uid thing.UID, label string, address uint16) {
	c := newCurtain(b.ids.get(string(uid)), uid, label, address, b.commands, b.logger)
	b.mux.Lock()
	defer b.mux.Unlock()
	if _, ok := b.curtains[uid]; !ok {
		b.order = append(b.order, uid)
	}
	b.curtains[uid] = c
}

func (b *Bridge) Accessories() []*accessory.Accessory {
	b.mux.RLock()
	defer b.mux.RUnlock()
	accessories := make([]*accessory.Accessory, 0, len(b.order))
	for _, uid := range b.order {
		accessories = append(accessories, b.curtains[uid].accessory)
	}
	return accessories
}

// Start persists the accessory IDs and publishes the bridge. It returns once
// the transport is running.
func (b *Bridge) Start() error {
	if err := b.ids.save(); err != nil {
		b.logger.Warn("unable to save accessory ids", zap.String("file", b.config.ItemsFile), zap.Error(err))
	}
	accessories := b.Accessories()
	b.logger.Info("starting bridge", zap.Int("accessories", len(accessories)))
	t, err := hc.NewIPTransport(hc.Config{
		Pin:  b.config.PIN,
		Port: b.config.Port,
	}, b.bridge.Accessory, accessories...)
	if err != nil {
		return err
	}
	b.mux.Lock()
	b.transport = t
	b.mux.Unlock()
	go t.Start()
	return nil
}

func (b *Bridge) Stop() {
	b.mux.Lock()
	t := b.transport
	b.transport = nil
	b.mux.Unlock()
	if t != nil {
		<-t.Stop()
	}
}

func (b *Bridge) lookup(uid thing.UID) (*curtain, bool) {
	b.mux.RLock()
	defer b.mux.RUnlock()
	c, ok := b.curtains[uid]
	return c, ok
}

func (b *Bridge) StatusUpdated(uid thing.UID, info thing.StatusInfo) {
	if c, ok := b.lookup(uid); ok {
		c.statusChanged(info)
	}
}

func (b *Bridge) StateUpdated(channel thing.ChannelUID, state thing.State) {
	if c, ok := b.lookup(channel.Thing); ok {
		c.stateChanged(channel.ID, state)
	}
}

type curtain struct {
	uid       thing.UID
	commands  CommandSender
	logger    *zap.Logger
	accessory *accessory.Accessory
	covering  *service.WindowCovering
}

func newCurtain(id uint64, uid thing.UID, label string, address uint16, commands CommandSender, logger *zap.Logger) *curtain {
	ac := accessory.New(accessory.Info{
		Name:         label,
		Manufacturer: "Herzborg",
		SerialNumber: string(uid),
		Model:        "curtain motor",
		ID:           id,
	}, accessory.TypeWindowCovering)
	covering := service.NewWindowCovering()
	ac.AddService(covering.Service)
	c := &curtain{
		uid:       uid,
		commands:  commands,
		logger:    logger.With(zap.String("thing", string(uid)), zap.Uint16("address", address)),
		accessory: ac,
		covering:  covering,
	}
	covering.PositionState.SetValue(characteristic.PositionStateStopped)
	covering.TargetPosition.OnValueRemoteUpdate(c.targetChanged)
	return c
}

// HomeKit counts 100 as fully open, the motor counts 0 as fully open.
func toHomeKit(percent thing.PercentType) int {
	return 100 - int(percent)
}

func fromHomeKit(position int) thing.PercentType {
	if position < 0 {
		position = 0
	}
	if position > 100 {
		position = 100
	}
	return thing.PercentType(100 - position)
}

func (c *curtain) targetChanged(position int) {
	var command thing.Command = fromHomeKit(position)
	switch position {
	case 100:
		command = thing.Up
	case 0:
		command = thing.Down
	}
	if err := c.commands.SendCommand(c.uid, herzborg.ChannelPosition, command); err != nil {
		c.logger.Warn("unable to send command", zap.Stringer("command", command), zap.Error(err))
	}
}

func (c *curtain) stateChanged(channelID string, state thing.State) {
	switch channelID {
	case herzborg.ChannelPosition:
		if percent, ok := state.(thing.PercentType); ok {
			c.covering.CurrentPosition.SetValue(toHomeKit(percent))
			if c.covering.PositionState.GetValue() == characteristic.PositionStateStopped {
				c.covering.TargetPosition.SetValue(toHomeKit(percent))
			}
		}
	case herzborg.ChannelMode:
		c.covering.PositionState.SetValue(positionState(state))
	}
}

func (c *curtain) statusChanged(info thing.StatusInfo) {
	if info.Status != thing.StatusOnline {
		c.covering.PositionState.SetValue(characteristic.PositionStateStopped)
	}
}

func positionState(mode thing.State) int {
	switch mode.String() {
	case "OPENING":
		return characteristic.PositionStateIncreasing
	case "CLOSING":
		return characteristic.PositionStateDecreasing
	default:
		return characteristic.PositionStateStopped
	}
}
