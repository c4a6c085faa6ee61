package herzborg

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jgulick48/herzborg-bridge/internal/thing"
)

const testAddress uint16 = 0x1234

type curtainFixture struct {
	bus       *fakeBus
	bridge    *fakeBridge
	callback  *recordingCallback
	scheduler *manualScheduler
	handler   *CurtainHandler
}

func newCurtainFixture(t *testing.T) *curtainFixture {
	t.Helper()
	f := &curtainFixture{
		bus:       newFakeBus(),
		callback:  newRecordingCallback(),
		scheduler: &manualScheduler{},
	}
	f.bridge = &fakeBridge{bus: f.bus, status: thing.Online()}
	f.handler = NewCurtainHandler(CurtainConfig{ID: "living", Label: "Living room", Bus: "main", Address: testAddress}, f.bridge, f.callback, f.scheduler, zap.NewNop())
	return f
}

func (f *curtainFixture) scriptPoll(position, reverse, handStart, mode, extSwitch, hvSwitch byte) {
	f.bus.reply(NewReadPacket(testAddress, RegPosition, 4), readReply(testAddress, position, reverse, handStart, mode))
	f.bus.reply(NewReadPacket(testAddress, RegExtSwitch, 2), readReply(testAddress, extSwitch, hvSwitch))
}

func (f *curtainFixture) status() thing.StatusInfo {
	return f.callback.lastStatus(f.handler.UID())
}

func Test_CurtainPollMapsChannels(t *testing.T) {
	f := newCurtainFixture(t)
	f.scriptPoll(42, 1, 0, 2, 4, 3)

	f.handler.Initialize()
	assert.Equal(t, thing.StatusUnknown, f.status().Status)
	require.Len(t, f.scheduler.jobs, 1)

	f.scheduler.tick()
	assert.Equal(t, thing.Online(), f.status())
	assert.Equal(t, thing.PercentType(42), f.callback.state(ChannelPosition))
	assert.Equal(t, thing.On, f.callback.state(ChannelReverse))
	assert.Equal(t, thing.On, f.callback.state(ChannelHandStart))
	assert.Equal(t, thing.StringType("CLOSING"), f.callback.state(ChannelMode))
	assert.Equal(t, thing.StringType("HOTEL"), f.callback.state(ChannelExtSwitch))
	assert.Equal(t, thing.StringType("3_BUTTON_REBOUND"), f.callback.state(ChannelHVSwitch))

	states := f.handler.States()
	assert.Len(t, states, len(Channels))
	assert.Equal(t, thing.PercentType(42), states[ChannelPosition])
}

func Test_CurtainPollUnknownValues(t *testing.T) {
	tests := []struct {
		name     string
		position byte
		want     thing.State
	}{
		{name: "closed", position: 0, want: thing.PercentType(0)},
		{name: "open", position: 100, want: thing.PercentType(100)},
		{name: "just above range", position: 101, want: thing.Undef},
		{name: "no travel limits", position: 0xff, want: thing.Undef},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newCurtainFixture(t)
			f.scriptPoll(test.position, 0, 1, 9, 0, 7)
			f.handler.Initialize()
			f.scheduler.tick()

			assert.Equal(t, test.want, f.callback.state(ChannelPosition))
			assert.Equal(t, thing.Off, f.callback.state(ChannelReverse))
			assert.Equal(t, thing.Off, f.callback.state(ChannelHandStart))
			assert.Equal(t, thing.Undef, f.callback.state(ChannelMode))
			assert.Equal(t, thing.Undef, f.callback.state(ChannelExtSwitch))
			assert.Equal(t, thing.Undef, f.callback.state(ChannelHVSwitch))
		})
	}
}

func Test_CurtainCorruptReplyFlushesAndGoesOffline(t *testing.T) {
	f := newCurtainFixture(t)
	corrupt := readReply(testAddress, 10, 0, 0, 0).Bytes()
	corrupt[len(corrupt)-1] ^= 0xff
	f.bus.reply(NewReadPacket(testAddress, RegPosition, 4), NewPacket(corrupt))

	f.handler.Initialize()
	f.scheduler.tick()

	status := f.status()
	assert.Equal(t, thing.StatusOffline, status.Status)
	assert.Equal(t, thing.DetailCommunicationError, status.Detail)
	assert.Contains(t, status.Description, ErrInvalidPacket.Error())
	assert.Equal(t, 1, f.bus.flushCount())
	assert.Nil(t, f.callback.state(ChannelPosition))
}

func Test_CurtainShortReadReplyIsInvalid(t *testing.T) {
	f := newCurtainFixture(t)
	f.bus.reply(NewReadPacket(testAddress, RegPosition, 4), readReply(testAddress, 10, 0))

	f.handler.Initialize()
	f.scheduler.tick()

	assert.Equal(t, thing.DetailCommunicationError, f.status().Detail)
	assert.Equal(t, 1, f.bus.flushCount())
}

func Test_CurtainReplyFromOtherAddressIsInvalid(t *testing.T) {
	f := newCurtainFixture(t)
	f.bus.reply(NewReadPacket(testAddress, RegPosition, 4), readReply(testAddress+1, 10, 0, 0, 0))

	f.handler.Initialize()
	f.scheduler.tick()

	assert.Equal(t, thing.DetailCommunicationError, f.status().Detail)
}

func Test_CurtainIOErrorGoesOffline(t *testing.T) {
	f := newCurtainFixture(t)
	f.bus.fail(NewReadPacket(testAddress, RegPosition, 4), fmt.Errorf("%w: timeout", ErrIO))

	f.handler.Initialize()
	f.scheduler.tick()

	status := f.status()
	assert.Equal(t, thing.StatusOffline, status.Status)
	assert.Equal(t, thing.DetailCommunicationError, status.Detail)
	assert.Equal(t, 1, f.bus.flushCount())

	f.scriptPoll(50, 0, 0, 0, 1, 1)
	f.bus.mux.Lock()
	delete(f.bus.errs, NewReadPacket(testAddress, RegPosition, 4).String())
	f.bus.mux.Unlock()
	f.scheduler.tick()
	assert.Equal(t, thing.Online(), f.status())
}

func Test_CurtainClosedBusIsNotFlushed(t *testing.T) {
	f := newCurtainFixture(t)
	f.bus.fail(NewReadPacket(testAddress, RegPosition, 4), ErrBusClosed)

	f.handler.Initialize()
	f.scheduler.tick()

	assert.Equal(t, thing.DetailCommunicationError, f.status().Detail)
	assert.Equal(t, 0, f.bus.flushCount())
}

func Test_CurtainWithoutBridge(t *testing.T) {
	callback := newRecordingCallback()
	scheduler := &manualScheduler{}
	handler := NewCurtainHandler(CurtainConfig{ID: "orphan", Address: 1}, nil, callback, scheduler, zap.NewNop())

	handler.Initialize()

	status := callback.lastStatus(handler.UID())
	assert.Equal(t, thing.StatusOffline, status.Status)
	assert.Equal(t, thing.DetailConfigurationError, status.Detail)
	assert.Equal(t, ErrNoBridge.Error(), status.Description)
	assert.Empty(t, scheduler.jobs)

	handler.HandleCommand(ChannelPosition, thing.Up)
	handler.Dispose()
}

func Test_CurtainBridgeWithoutBus(t *testing.T) {
	f := newCurtainFixture(t)
	f.bridge.bus = nil

	f.handler.Initialize()

	assert.Equal(t, thing.DetailConfigurationError, f.status().Detail)
	assert.Equal(t, ErrBridgeNotReady.Error(), f.status().Description)
	assert.Empty(t, f.scheduler.jobs)
}

func Test_CurtainFollowsBridgeStatus(t *testing.T) {
	f := newCurtainFixture(t)
	f.bridge.status = thing.Offline(thing.DetailCommunicationError, "port busy")
	f.bridge.bus = nil

	f.handler.Initialize()
	assert.Equal(t, thing.StatusOffline, f.status().Status)
	assert.Equal(t, thing.DetailBridgeOffline, f.status().Detail)
	assert.Empty(t, f.scheduler.jobs)

	f.scriptPoll(10, 0, 0, 0, 1, 1)
	f.bridge.setStatus(f.bus, thing.Online())
	assert.Equal(t, thing.StatusUnknown, f.status().Status)
	require.Len(t, f.scheduler.jobs, 1)
	f.scheduler.tick()
	assert.Equal(t, thing.Online(), f.status())

	f.bridge.setStatus(nil, thing.Offline(thing.DetailBridgeUninitialized, "disposed"))
	assert.Equal(t, thing.DetailBridgeOffline, f.status().Detail)
	assert.Equal(t, 1, f.scheduler.cancelled)

	f.handler.Dispose()
	assert.Empty(t, f.bridge.listeners)
}

func Test_CurtainDisposeCancelsPolling(t *testing.T) {
	f := newCurtainFixture(t)
	f.handler.Initialize()
	require.Len(t, f.bridge.listeners, 1)

	f.handler.Dispose()
	assert.Equal(t, 1, f.scheduler.cancelled)
	assert.Empty(t, f.bridge.listeners)
}

func Test_CurtainIgnoresBridgeStatusAfterDispose(t *testing.T) {
	f := newCurtainFixture(t)
	f.handler.Initialize()
	f.handler.Dispose()

	f.handler.BridgeStatusChanged(thing.Online())
	assert.Len(t, f.scheduler.jobs, 1)
	assert.Equal(t, 0, f.scheduler.pending())
}

func Test_CurtainBridgeStatusRacingDisposeLeavesNoPolling(t *testing.T) {
	f := newCurtainFixture(t)
	f.handler.Initialize()

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				f.handler.BridgeStatusChanged(thing.Online())
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.handler.Dispose()
	}()
	wg.Wait()

	assert.Equal(t, 0, f.scheduler.pending())
}

func Test_CurtainCommands(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		command thing.Command
		want    Packet
	}{
		{name: "open", channel: ChannelPosition, command: thing.Up, want: NewControlPacket(testAddress, ControlOpen)},
		{name: "close", channel: ChannelPosition, command: thing.Down, want: NewControlPacket(testAddress, ControlClose)},
		{name: "stop", channel: ChannelPosition, command: thing.Stop, want: NewControlPacket(testAddress, ControlStop)},
		{name: "percent", channel: ChannelPosition, command: thing.PercentType(35), want: NewPercentPacket(testAddress, 35)},
		{name: "reverse on", channel: ChannelReverse, command: thing.On, want: NewWritePacket(testAddress, RegDefaultDirection, 1)},
		{name: "reverse off", channel: ChannelReverse, command: thing.Off, want: NewWritePacket(testAddress, RegDefaultDirection, 0)},
		{name: "hand start on", channel: ChannelHandStart, command: thing.On, want: NewWritePacket(testAddress, RegHandStart, 0)},
		{name: "hand start off", channel: ChannelHandStart, command: thing.Off, want: NewWritePacket(testAddress, RegHandStart, 1)},
		{name: "ext switch", channel: ChannelExtSwitch, command: thing.StringType("HOTEL"), want: NewWritePacket(testAddress, RegExtSwitch, 4)},
		{name: "hv switch", channel: ChannelHVSwitch, command: thing.StringType("2_BUTTON_REBOUND"), want: NewWritePacket(testAddress, RegExtHVSwitch, 2)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newCurtainFixture(t)
			f.handler.Initialize()

			f.handler.HandleCommand(test.channel, test.command)

			sent := f.bus.sent()
			require.Len(t, sent, 1)
			assert.Equal(t, test.want.Bytes(), sent[0].Bytes())
		})
	}
}

func Test_CurtainCommandsAreAsynchronous(t *testing.T) {
	f := newCurtainFixture(t)
	f.handler.Initialize()
	f.scheduler.deferred = true
	request := NewControlPacket(testAddress, ControlOpen)
	f.bus.reply(request, NewPacket(request.Bytes()))

	f.handler.HandleCommand(ChannelPosition, thing.Up)
	assert.Empty(t, f.bus.sent())

	f.scheduler.runQueued()
	require.Len(t, f.bus.sent(), 1)
	assert.Equal(t, request.Bytes(), f.bus.sent()[0].Bytes())
}

func Test_CurtainRejectsUnsupportedCommands(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		command thing.Command
	}{
		{name: "mode is read only", channel: ChannelMode, command: thing.StringType("STOP")},
		{name: "move", channel: ChannelPosition, command: thing.Move},
		{name: "string on position", channel: ChannelPosition, command: thing.StringType("HALF")},
		{name: "unknown switch type", channel: ChannelExtSwitch, command: thing.StringType("DOORBELL")},
		{name: "percent on reverse", channel: ChannelReverse, command: thing.PercentType(1)},
		{name: "unknown channel", channel: "speed", command: thing.On},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newCurtainFixture(t)
			f.handler.Initialize()

			_, err := f.handler.commandPacket(test.channel, test.command)
			assert.True(t, errors.Is(err, ErrUnsupportedCommand))

			f.handler.HandleCommand(test.channel, test.command)
			assert.Empty(t, f.bus.sent())
		})
	}
}

func Test_CurtainRefreshPollsImmediately(t *testing.T) {
	f := newCurtainFixture(t)
	f.scriptPoll(77, 0, 0, 1, 1, 1)
	f.handler.Initialize()

	f.handler.HandleCommand(ChannelPosition, thing.Refresh)

	assert.Equal(t, thing.PercentType(77), f.callback.state(ChannelPosition))
	assert.Equal(t, thing.StringType("OPENING"), f.callback.state(ChannelMode))
	assert.Len(t, f.bus.sent(), 2)
}

func Test_CurtainStatusReportedOnlyOnChange(t *testing.T) {
	f := newCurtainFixture(t)
	f.scriptPoll(1, 0, 0, 0, 1, 1)
	f.handler.Initialize()

	f.scheduler.tick()
	f.scheduler.tick()
	f.scheduler.tick()

	statuses := f.callback.statuses[f.handler.UID()]
	require.Len(t, statuses, 2)
	assert.Equal(t, thing.StatusUnknown, statuses[0].Status)
	assert.Equal(t, thing.StatusOnline, statuses[1].Status)
}
