package herzborg

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jgulick48/herzborg-bridge/internal/thing"
)

// Binding creates the bus bridges and curtains from configuration and drives
// their lifecycle.
type Binding struct {
	buses    []*BusHandler
	curtains []*CurtainHandler
	handlers map[thing.UID]thing.Handler
	logger   *zap.Logger
}

func NewBinding(buses []BusConfig, curtains []CurtainConfig, callback thing.Callback, scheduler thing.Scheduler, logger *zap.Logger) *Binding {
	return newBinding(buses, curtains, callback, scheduler, OpenSerialBus, logger)
}

func newBinding(buses []BusConfig, curtains []CurtainConfig, callback thing.Callback, scheduler thing.Scheduler, open BusOpener, logger *zap.Logger) *Binding {
	b := &Binding{
		handlers: make(map[thing.UID]thing.Handler),
		logger:   logger,
	}
	busesByID := make(map[string]*BusHandler)
	for _, config := range buses {
		handler := NewBusHandler(config, callback, logger)
		handler.open = open
		busesByID[config.ID] = handler
		b.buses = append(b.buses, handler)
		b.handlers[handler.UID()] = handler
	}
	for _, config := range curtains {
		var bridge Bridge
		if bus, ok := busesByID[config.Bus]; ok {
			bridge = bus
		} else {
			logger.Warn("curtain references unknown bus", zap.String("curtain", config.ID), zap.String("bus", config.Bus))
		}
		handler := NewCurtainHandler(config, bridge, callback, scheduler, logger)
		b.curtains = append(b.curtains, handler)
		b.handlers[handler.UID()] = handler
	}
	return b
}

// Start initializes the bridges first so curtains find an open bus.
func (b *Binding) Start() {
	for _, bus := range b.buses {
		bus.Initialize()
	}
	for _, curtain := range b.curtains {
		curtain.Initialize()
	}
	b.logger.Info("binding started", zap.Int("buses", len(b.buses)), zap.Int("curtains", len(b.curtains)))
}

func (b *Binding) Stop() {
	for _, curtain := range b.curtains {
		curtain.Dispose()
	}
	for _, bus := range b.buses {
		bus.Dispose()
	}
}

func (b *Binding) Handler(uid thing.UID) (thing.Handler, bool) {
	handler, ok := b.handlers[uid]
	return handler, ok
}

// Handlers returns all bridges followed by all curtains.
func (b *Binding) Handlers() []thing.Handler {
	handlers := make([]thing.Handler, 0, len(b.buses)+len(b.curtains))
	for _, bus := range b.buses {
		handlers = append(handlers, bus)
	}
	for _, curtain := range b.curtains {
		handlers = append(handlers, curtain)
	}
	return handlers
}

// SendCommand routes a command to the handler owning uid.
func (b *Binding) SendCommand(uid thing.UID, channelID string, command thing.Command) error {
	handler, ok := b.handlers[uid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownThing, uid)
	}
	handler.HandleCommand(channelID, command)
	return nil
}

func (b *Binding) Curtains() []*CurtainHandler {
	return b.curtains
}

func (b *Binding) Buses() []*BusHandler {
	return b.buses
}
