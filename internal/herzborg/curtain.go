package herzborg

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jgulick48/herzborg-bridge/internal/thing"
)

const defaultPollInterval = 10 * time.Second

type CurtainConfig struct {
	ID           string
	Label        string
	Bus          string
	Address      uint16
	PollInterval time.Duration
}

// CurtainHandler polls one curtain motor and translates channel commands
// into bus frames.
type CurtainHandler struct {
	uid       thing.UID
	config    CurtainConfig
	bridge    Bridge
	callback  thing.Callback
	scheduler thing.Scheduler
	logger    *zap.Logger

	// lifecycle serializes Initialize, BridgeStatusChanged and Dispose.
	lifecycle sync.Mutex
	disposed  bool

	mux        sync.Mutex
	status     thing.StatusInfo
	states     map[string]thing.State
	cancelPoll func()
}

// NewCurtainHandler creates the handler. bridge may be nil, in which case
// Initialize reports a configuration error.
func NewCurtainHandler(config CurtainConfig, bridge Bridge, callback thing.Callback, scheduler thing.Scheduler, logger *zap.Logger) *CurtainHandler {
	uid := thing.NewUID(thing.TypeCurtain, config.ID)
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}
	return &CurtainHandler{
		uid:       uid,
		config:    config,
		bridge:    bridge,
		callback:  callback,
		scheduler: scheduler,
		logger:    logger.With(zap.String("thing", string(uid)), zap.Uint16("address", config.Address)),
		status:    thing.StatusInfo{Status: thing.StatusUninitialized, Detail: thing.DetailNone},
		states:    make(map[string]thing.State),
	}
}

func (h *CurtainHandler) UID() thing.UID {
	return h.uid
}

func (h *CurtainHandler) Label() string {
	return h.config.Label
}

func (h *CurtainHandler) Address() uint16 {
	return h.config.Address
}

func (h *CurtainHandler) Initialize() {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()
	h.disposed = false
	if h.bridge == nil {
		h.updateStatus(thing.Offline(thing.DetailConfigurationError, ErrNoBridge.Error()))
		return
	}
	h.bridge.AddListener(h)
	h.start(h.bridge.StatusInfo())
}

func (h *CurtainHandler) start(bridgeStatus thing.StatusInfo) {
	if bridgeStatus.Status != thing.StatusOnline {
		h.updateStatus(thing.Offline(thing.DetailBridgeOffline, ""))
		return
	}
	if h.bridge.Bus() == nil {
		h.updateStatus(thing.Offline(thing.DetailConfigurationError, ErrBridgeNotReady.Error()))
		return
	}
	h.updateStatus(thing.Unknown())
	h.stopPolling()
	cancel := h.scheduler.ScheduleWithFixedDelay(h.poll, 0, h.config.PollInterval)
	h.mux.Lock()
	h.cancelPoll = cancel
	h.mux.Unlock()
}

func (h *CurtainHandler) stopPolling() {
	h.mux.Lock()
	cancel := h.cancelPoll
	h.cancelPoll = nil
	h.mux.Unlock()
	if cancel != nil {
		cancel()
	}
}

// BridgeStatusChanged restarts polling when the bridge comes back online and
// stops it otherwise.
func (h *CurtainHandler) BridgeStatusChanged(info thing.StatusInfo) {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()
	if h.disposed {
		return
	}
	h.stopPolling()
	h.start(info)
}

func (h *CurtainHandler) Dispose() {
	h.lifecycle.Lock()
	h.disposed = true
	h.stopPolling()
	h.lifecycle.Unlock()
	if h.bridge != nil {
		h.bridge.RemoveListener(h)
	}
}

func (h *CurtainHandler) StatusInfo() thing.StatusInfo {
	h.mux.Lock()
	defer h.mux.Unlock()
	return h.status
}

// States returns the last state published for each channel.
func (h *CurtainHandler) States() map[string]thing.State {
	h.mux.Lock()
	defer h.mux.Unlock()
	states := make(map[string]thing.State, len(h.states))
	for channel, state := range h.states {
		states[channel] = state
	}
	return states
}

func (h *CurtainHandler) bus() Bus {
	if h.bridge == nil {
		return nil
	}
	return h.bridge.Bus()
}

func (h *CurtainHandler) poll() {
	bus := h.bus()
	if bus == nil {
		h.updateStatus(thing.Offline(thing.DetailBridgeOffline, ErrBridgeNotReady.Error()))
		return
	}
	reply, err := h.request(bus, NewReadPacket(h.config.Address, RegPosition, 4))
	if err != nil {
		h.handleError(bus, err)
		return
	}
	h.updateStatus(thing.Online())
	data := reply.Payload()
	h.updateState(ChannelPosition, positionState(data[0]))
	h.updateState(ChannelReverse, thing.OnOffFromBool(data[1] != 0))
	h.updateState(ChannelHandStart, thing.OnOffFromBool(data[2] == 0))
	h.updateState(ChannelMode, lookupState(modes, data[3]))

	reply, err = h.request(bus, NewReadPacket(h.config.Address, RegExtSwitch, 2))
	if err != nil {
		h.handleError(bus, err)
		return
	}
	data = reply.Payload()
	h.updateState(ChannelExtSwitch, lookupState(extSwitchTypes, data[0]))
	h.updateState(ChannelHVSwitch, lookupState(hvSwitchTypes, data[1]))
}

func (h *CurtainHandler) request(bus Bus, request Packet) (Packet, error) {
	reply, err := bus.DoPacket(request)
	if err != nil {
		return Packet{}, err
	}
	if err := checkReply(request, reply); err != nil {
		return Packet{}, err
	}
	return reply, nil
}

func (h *CurtainHandler) handleError(bus Bus, err error) {
	h.logger.Warn("poll failed", zap.Error(err))
	if errors.Is(err, ErrInvalidPacket) || errors.Is(err, ErrIO) {
		if flushErr := bus.Flush(); flushErr != nil {
			h.logger.Debug("flush failed", zap.Error(flushErr))
		}
	}
	h.updateStatus(thing.Offline(thing.DetailCommunicationError, err.Error()))
}

// HandleCommand translates the command into a frame and sends it on a
// scheduler worker. It never blocks on the bus.
func (h *CurtainHandler) HandleCommand(channelID string, command thing.Command) {
	if command == thing.Refresh {
		h.scheduler.Execute(h.poll)
		return
	}
	request, err := h.commandPacket(channelID, command)
	if err != nil {
		h.logger.Warn("unable to handle command", zap.String("channel", channelID), zap.Stringer("command", command), zap.Error(err))
		return
	}
	bus := h.bus()
	if bus == nil {
		h.logger.Warn("dropping command, bridge not ready", zap.String("channel", channelID), zap.Stringer("command", command))
		return
	}
	h.scheduler.Execute(func() {
		reply, err := h.request(bus, request)
		if err != nil {
			h.logger.Warn("command failed", zap.String("channel", channelID), zap.Stringer("command", command), zap.Error(err))
			return
		}
		h.logger.Debug("command acknowledged", zap.String("channel", channelID), zap.Stringer("reply", reply))
	})
}

func (h *CurtainHandler) commandPacket(channelID string, command thing.Command) (Packet, error) {
	address := h.config.Address
	switch channelID {
	case ChannelPosition:
		switch c := command.(type) {
		case thing.UpDownType:
			if c == thing.Up {
				return NewControlPacket(address, ControlOpen), nil
			}
			return NewControlPacket(address, ControlClose), nil
		case thing.StopMoveType:
			if c == thing.Stop {
				return NewControlPacket(address, ControlStop), nil
			}
		case thing.PercentType:
			return NewPercentPacket(address, byte(c)), nil
		}
	case ChannelReverse:
		if c, ok := command.(thing.OnOffType); ok {
			return NewWritePacket(address, RegDefaultDirection, boolByte(c == thing.On)), nil
		}
	case ChannelHandStart:
		if c, ok := command.(thing.OnOffType); ok {
			return NewWritePacket(address, RegHandStart, boolByte(c == thing.Off)), nil
		}
	case ChannelExtSwitch:
		if value, ok := stringValue(extSwitchTypes, command); ok {
			return NewWritePacket(address, RegExtSwitch, value), nil
		}
	case ChannelHVSwitch:
		if value, ok := stringValue(hvSwitchTypes, command); ok {
			return NewWritePacket(address, RegExtHVSwitch, value), nil
		}
	}
	return Packet{}, fmt.Errorf("%w %s on channel %s", ErrUnsupportedCommand, command, channelID)
}

func stringValue(table map[byte]string, command thing.Command) (byte, bool) {
	s, ok := command.(thing.StringType)
	if !ok {
		return 0, false
	}
	return reverseLookup(table, string(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (h *CurtainHandler) updateStatus(info thing.StatusInfo) {
	h.mux.Lock()
	changed := h.status != info
	h.status = info
	h.mux.Unlock()
	if !changed {
		return
	}
	h.logger.Info("status changed", zap.Stringer("status", info))
	h.callback.StatusUpdated(h.uid, info)
}

func (h *CurtainHandler) updateState(channelID string, state thing.State) {
	h.mux.Lock()
	h.states[channelID] = state
	h.mux.Unlock()
	h.callback.StateUpdated(thing.NewChannelUID(h.uid, channelID), state)
}
