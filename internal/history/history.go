// Package history records thing status and channel states to InfluxDB.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/jgulick48/herzborg-bridge/internal/models"
	"github.com/jgulick48/herzborg-bridge/internal/thing"
)

const (
	connectTimeout = 10 * time.Second

	measurementState  = "channel_state"
	measurementStatus = "thing_status"
)

var (
	ErrDisabled         = errors.New("influxdb disabled")
	ErrConnectionFailed = errors.New("influxdb connection failed")
)

type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Recorder writes one point per update. Writes are batched and never block
// the caller.
type Recorder struct {
	client influxdb2.Client
	writer pointWriter
	logger *zap.Logger
	now    func() time.Time
}

func Connect(cfg models.InfluxDBConfig, logger *zap.Logger) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(batchSize))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	r := newRecorder(writeAPI, logger)
	r.client = client
	go func() {
		for err := range writeAPI.Errors() {
			r.logger.Warn("write failed", zap.Error(err))
		}
	}()
	return r, nil
}

func newRecorder(writer pointWriter, logger *zap.Logger) *Recorder {
	return &Recorder{
		writer: writer,
		logger: logger.Named("history"),
		now:    time.Now,
	}
}

func (r *Recorder) StatusUpdated(uid thing.UID, info thing.StatusInfo) {
	online := 0
	if info.Status == thing.StatusOnline {
		online = 1
	}
	r.writer.WritePoint(write.NewPoint(measurementStatus,
		map[string]string{
			"thing": string(uid),
			"type":  uid.ThingType(),
		},
		map[string]interface{}{
			"status": string(info.Status),
			"detail": string(info.Detail),
			"online": online,
		},
		r.now()))
}

// StateUpdated writes numeric states to the value field and everything
// else to the state field. UNDEF is skipped.
func (r *Recorder) StateUpdated(channel thing.ChannelUID, state thing.State) {
	fields := map[string]interface{}{}
	switch s := state.(type) {
	case thing.UnDefType:
		return
	case thing.PercentType:
		fields["value"] = int(s)
	case thing.OnOffType:
		fields["value"] = boolValue(s == thing.On)
	default:
		fields["state"] = s.String()
	}
	r.writer.WritePoint(write.NewPoint(measurementState,
		map[string]string{
			"thing":   string(channel.Thing),
			"channel": channel.ID,
		},
		fields,
		r.now()))
}

func boolValue(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r *Recorder) Close() {
	r.writer.Flush()
	if r.client != nil {
		r.client.Close()
	}
}
