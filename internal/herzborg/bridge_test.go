package herzborg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jgulick48/herzborg-bridge/internal/thing"
)

type statusRecorder struct {
	infos []thing.StatusInfo
}

func (r *statusRecorder) BridgeStatusChanged(info thing.StatusInfo) {
	r.infos = append(r.infos, info)
}

func newTestBusHandler(config BusConfig, open BusOpener) (*BusHandler, *recordingCallback) {
	callback := newRecordingCallback()
	handler := NewBusHandler(config, callback, zap.NewNop())
	handler.open = open
	return handler, callback
}

func Test_BusHandlerInitialize(t *testing.T) {
	bus := newFakeBus()
	var opened SerialConfig
	handler, callback := newTestBusHandler(BusConfig{ID: "main", Device: "/dev/ttyUSB0"}, func(config SerialConfig, _ *zap.Logger) (Bus, error) {
		opened = config
		return bus, nil
	})
	listener := &statusRecorder{}
	handler.AddListener(listener)
	handler.AddListener(listener)

	handler.Initialize()

	assert.Equal(t, "/dev/ttyUSB0", opened.Device)
	assert.Equal(t, thing.UID("herzborg:serial_bus:main"), handler.UID())
	assert.Equal(t, thing.Online(), callback.lastStatus(handler.UID()))
	assert.Equal(t, thing.Online(), handler.StatusInfo())
	assert.Same(t, bus, handler.Bus())
	require.Len(t, listener.infos, 1)
	assert.Equal(t, thing.StatusOnline, listener.infos[0].Status)

	handler.Dispose()
	assert.True(t, bus.closed)
	assert.Nil(t, handler.Bus())
	status := callback.lastStatus(handler.UID())
	assert.Equal(t, thing.StatusOffline, status.Status)
	assert.Equal(t, thing.DetailBridgeUninitialized, status.Detail)
	require.Len(t, listener.infos, 2)
}

func Test_BusHandlerMissingDevice(t *testing.T) {
	handler, callback := newTestBusHandler(BusConfig{ID: "main"}, func(SerialConfig, *zap.Logger) (Bus, error) {
		t.Fatal("bus must not be opened without a device")
		return nil, nil
	})

	handler.Initialize()

	status := callback.lastStatus(handler.UID())
	assert.Equal(t, thing.StatusOffline, status.Status)
	assert.Equal(t, thing.DetailConfigurationError, status.Detail)
	assert.Equal(t, ErrNoPort.Error(), status.Description)
	assert.Nil(t, handler.Bus())
}

func Test_BusHandlerOpenFailure(t *testing.T) {
	handler, callback := newTestBusHandler(BusConfig{ID: "main", Device: "/dev/missing"}, func(SerialConfig, *zap.Logger) (Bus, error) {
		return nil, errors.New("no such file or directory")
	})

	handler.Initialize()

	status := callback.lastStatus(handler.UID())
	assert.Equal(t, thing.StatusOffline, status.Status)
	assert.Equal(t, thing.DetailCommunicationError, status.Detail)
	assert.Contains(t, status.Description, "no such file")
}

func Test_BusHandlerRemoveListener(t *testing.T) {
	handler, _ := newTestBusHandler(BusConfig{ID: "main", Device: "/dev/ttyUSB0"}, func(SerialConfig, *zap.Logger) (Bus, error) {
		return newFakeBus(), nil
	})
	first := &statusRecorder{}
	second := &statusRecorder{}
	handler.AddListener(first)
	handler.AddListener(second)
	handler.RemoveListener(first)

	handler.Initialize()

	assert.Empty(t, first.infos)
	assert.Len(t, second.infos, 1)
}

func Test_OpenSerialBusWithoutDevice(t *testing.T) {
	_, err := OpenSerialBus(SerialConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoPort)
}
