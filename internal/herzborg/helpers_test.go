package herzborg

import (
	"fmt"
	"sync"
	"time"

	"github.com/jgulick48/herzborg-bridge/internal/thing"
)

// frame builds a raw frame with a valid checksum.
func frame(address uint16, function byte, dataAddr byte, payload ...byte) []byte {
	return newRequest(address, function, dataAddr, payload...).Bytes()
}

func readReply(address uint16, data ...byte) Packet {
	return NewPacket(frame(address, FunctionRead, byte(len(data)), data...))
}

func writeReply(address uint16, dataAddr byte, written byte) Packet {
	return NewPacket(frame(address, FunctionWrite, dataAddr, written))
}

type recordingCallback struct {
	mux      sync.Mutex
	statuses map[thing.UID][]thing.StatusInfo
	states   map[string]thing.State
}

func newRecordingCallback() *recordingCallback {
	return &recordingCallback{
		statuses: make(map[thing.UID][]thing.StatusInfo),
		states:   make(map[string]thing.State),
	}
}

func (r *recordingCallback) StatusUpdated(uid thing.UID, info thing.StatusInfo) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.statuses[uid] = append(r.statuses[uid], info)
}

func (r *recordingCallback) StateUpdated(channel thing.ChannelUID, state thing.State) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.states[channel.ID] = state
}

func (r *recordingCallback) lastStatus(uid thing.UID) thing.StatusInfo {
	r.mux.Lock()
	defer r.mux.Unlock()
	statuses := r.statuses[uid]
	if len(statuses) == 0 {
		return thing.StatusInfo{}
	}
	return statuses[len(statuses)-1]
}

func (r *recordingCallback) state(channel string) thing.State {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.states[channel]
}

// manualScheduler records polling jobs so tests can run ticks explicitly.
// Execute either runs inline or queues when deferred is set.
type manualScheduler struct {
	mux       sync.Mutex
	jobs      []func()
	cancelled int
	deferred  bool
	queue     []func()
}

func (s *manualScheduler) ScheduleWithFixedDelay(fn func(), _ time.Duration, _ time.Duration) func() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.jobs = append(s.jobs, fn)
	return func() {
		s.mux.Lock()
		s.cancelled++
		s.mux.Unlock()
	}
}

// pending is the number of polling jobs that have not been cancelled.
func (s *manualScheduler) pending() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.jobs) - s.cancelled
}

func (s *manualScheduler) Execute(fn func()) {
	s.mux.Lock()
	if s.deferred {
		s.queue = append(s.queue, fn)
		s.mux.Unlock()
		return
	}
	s.mux.Unlock()
	fn()
}

func (s *manualScheduler) tick() {
	s.mux.Lock()
	jobs := append([]func(){}, s.jobs...)
	s.mux.Unlock()
	for _, job := range jobs {
		job()
	}
}

func (s *manualScheduler) runQueued() {
	s.mux.Lock()
	queue := s.queue
	s.queue = nil
	s.mux.Unlock()
	for _, fn := range queue {
		fn()
	}
}

// fakeBus answers requests from a table keyed by the encoded request.
type fakeBus struct {
	mux      sync.Mutex
	replies  map[string]Packet
	errs     map[string]error
	requests []Packet
	flushes  int
	closed   bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		replies: make(map[string]Packet),
		errs:    make(map[string]error),
	}
}

func (b *fakeBus) reply(request Packet, reply Packet) {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.replies[request.String()] = reply
}

func (b *fakeBus) fail(request Packet, err error) {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.errs[request.String()] = err
}

func (b *fakeBus) DoPacket(request Packet) (Packet, error) {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.requests = append(b.requests, request)
	if err, ok := b.errs[request.String()]; ok {
		return Packet{}, err
	}
	if reply, ok := b.replies[request.String()]; ok {
		return reply, nil
	}
	return Packet{}, fmt.Errorf("%w: no reply scripted for %s", ErrIO, request)
}

func (b *fakeBus) Flush() error {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.flushes++
	return nil
}

func (b *fakeBus) Close() error {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBus) sent() []Packet {
	b.mux.Lock()
	defer b.mux.Unlock()
	return append([]Packet{}, b.requests...)
}

func (b *fakeBus) flushCount() int {
	b.mux.Lock()
	defer b.mux.Unlock()
	return b.flushes
}

type fakeBridge struct {
	mux       sync.Mutex
	bus       Bus
	status    thing.StatusInfo
	listeners []BridgeListener
}

func (b *fakeBridge) Bus() Bus {
	b.mux.Lock()
	defer b.mux.Unlock()
	return b.bus
}

func (b *fakeBridge) StatusInfo() thing.StatusInfo {
	b.mux.Lock()
	defer b.mux.Unlock()
	return b.status
}

func (b *fakeBridge) AddListener(listener BridgeListener) {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.listeners = append(b.listeners, listener)
}

func (b *fakeBridge) RemoveListener(listener BridgeListener) {
	b.mux.Lock()
	defer b.mux.Unlock()
	for i, l := range b.listeners {
		if l == listener {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

func (b *fakeBridge) setStatus(bus Bus, info thing.StatusInfo) {
	b.mux.Lock()
	b.bus = bus
	b.status = info
	listeners := append([]BridgeListener{}, b.listeners...)
	b.mux.Unlock()
	for _, l := range listeners {
		l.BridgeStatusChanged(info)
	}
}
