// Package thing holds the host-side contracts a binding handler is written
// against: status and state callbacks, the handler lifecycle and the
// scheduler used for polling.
package thing

import "sync"

// StatusReporter receives connectivity updates for things.
type StatusReporter interface {
	StatusUpdated(uid UID, info StatusInfo)
}

// StateUpdater receives channel state updates.
type StateUpdater interface {
	StateUpdated(channel ChannelUID, state State)
}

// Callback is everything a handler reports back to the host.
type Callback interface {
	StatusReporter
	StateUpdater
}

// Handler is the lifecycle every thing handler implements.
type Handler interface {
	UID() UID
	Label() string
	Initialize()
	HandleCommand(channelID string, command Command)
	Dispose()
	StatusInfo() StatusInfo
}

// Callbacks fans out updates to every registered callback.
type Callbacks struct {
	mux       sync.RWMutex
	callbacks []Callback
}

func NewCallbacks(callbacks ...Callback) *Callbacks {
	return &Callbacks{callbacks: callbacks}
}

func (c *Callbacks) Add(callback Callback) {
	c.mux.Lock()
	c.callbacks = append(c.callbacks, callback)
	c.mux.Unlock()
}

func (c *Callbacks) StatusUpdated(uid UID, info StatusInfo) {
	c.mux.RLock()
	defer c.mux.RUnlock()
	for _, callback := range c.callbacks {
		callback.StatusUpdated(uid, info)
	}
}

func (c *Callbacks) StateUpdated(channel ChannelUID, state State) {
	c.mux.RLock()
	defer c.mux.RUnlock()
	for _, callback := range c.callbacks {
		callback.StateUpdated(channel, state)
	}
}
