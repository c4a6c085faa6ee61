package herzborg

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jgulick48/herzborg-bridge/internal/thing"
)

type BusConfig struct {
	ID          string
	Label       string
	Device      string
	ReadTimeout time.Duration
}

// BusOpener opens the transport for a bus bridge.
type BusOpener func(config SerialConfig, logger *zap.Logger) (Bus, error)

// BridgeListener is notified when the status of its bridge changes.
type BridgeListener interface {
	BridgeStatusChanged(info thing.StatusInfo)
}

// Bridge is what a curtain needs from the bus thing it is attached to.
type Bridge interface {
	Bus() Bus
	StatusInfo() thing.StatusInfo
	AddListener(listener BridgeListener)
	RemoveListener(listener BridgeListener)
}

// BusHandler is the bridge thing owning one serial bus.
type BusHandler struct {
	uid      thing.UID
	config   BusConfig
	callback thing.Callback
	open     BusOpener
	logger   *zap.Logger

	mux       sync.RWMutex
	bus       Bus
	status    thing.StatusInfo
	listeners []BridgeListener
}

func NewBusHandler(config BusConfig, callback thing.Callback, logger *zap.Logger) *BusHandler {
	uid := thing.NewUID(thing.TypeSerialBus, config.ID)
	return &BusHandler{
		uid:      uid,
		config:   config,
		callback: callback,
		open:     OpenSerialBus,
		logger:   logger.With(zap.String("thing", string(uid))),
		status:   thing.StatusInfo{Status: thing.StatusUninitialized, Detail: thing.DetailNone},
	}
}

func (h *BusHandler) UID() thing.UID {
	return h.uid
}

func (h *BusHandler) Label() string {
	return h.config.Label
}

func (h *BusHandler) Initialize() {
	if h.config.Device == "" {
		h.updateStatus(thing.Offline(thing.DetailConfigurationError, ErrNoPort.Error()))
		return
	}
	bus, err := h.open(SerialConfig{Device: h.config.Device, ReadTimeout: h.config.ReadTimeout}, h.logger)
	if err != nil {
		h.logger.Warn("unable to open bus", zap.Error(err))
		h.updateStatus(thing.Offline(thing.DetailCommunicationError, err.Error()))
		return
	}
	h.mux.Lock()
	h.bus = bus
	h.mux.Unlock()
	h.updateStatus(thing.Online())
}

// HandleCommand is a no-op; the bus bridge exposes no channels.
func (h *BusHandler) HandleCommand(channelID string, command thing.Command) {
	h.logger.Debug("ignoring command for bridge", zap.String("channel", channelID), zap.Stringer("command", command))
}

func (h *BusHandler) Dispose() {
	h.mux.Lock()
	bus := h.bus
	h.bus = nil
	h.mux.Unlock()
	if bus != nil {
		if err := bus.Close(); err != nil {
			h.logger.Warn("error closing bus", zap.Error(err))
		}
	}
	h.updateStatus(thing.Offline(thing.DetailBridgeUninitialized, "disposed"))
}

func (h *BusHandler) Bus() Bus {
	h.mux.RLock()
	defer h.mux.RUnlock()
	return h.bus
}

func (h *BusHandler) StatusInfo() thing.StatusInfo {
	h.mux.RLock()
	defer h.mux.RUnlock()
	return h.status
}

func (h *BusHandler) AddListener(listener BridgeListener) {
	h.mux.Lock()
	defer h.mux.Unlock()
	for _, l := range h.listeners {
		if l == listener {
			return
		}
	}
	h.listeners = append(h.listeners, listener)
}

func (h *BusHandler) RemoveListener(listener BridgeListener) {
	h.mux.Lock()
	defer h.mux.Unlock()
	for i, l := range h.listeners {
		if l == listener {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

func (h *BusHandler) updateStatus(info thing.StatusInfo) {
	h.mux.Lock()
	h.status = info
	listeners := make([]BridgeListener, len(h.listeners))
	copy(listeners, h.listeners)
	h.mux.Unlock()

	h.logger.Info("status changed", zap.Stringer("status", info))
	h.callback.StatusUpdated(h.uid, info)
	for _, listener := range listeners {
		listener.BridgeStatusChanged(info)
	}
}
