package herzborg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jgulick48/herzborg-bridge/internal/metrics"
)

// Bus performs request/reply exchanges with the motors on one RS-485 line.
type Bus interface {
	// DoPacket writes request and blocks until the full reply has been read.
	// Only one exchange is in flight at a time. The reply is not validated.
	DoPacket(request Packet) (Packet, error)
	// Flush discards any unread input so the next exchange starts on a frame
	// boundary.
	Flush() error
	// Close releases the stream. A blocked DoPacket fails with an error.
	Close() error
}

// drainTimeout bounds how long Flush reads from streams without a native
// flush.
const drainTimeout = 50 * time.Millisecond

type flusher interface {
	Flush() error
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type streamBus struct {
	name   string
	mux    sync.Mutex
	stream io.ReadWriteCloser
	closed atomic.Bool
	logger *zap.Logger
}

// NewStreamBus runs the bus protocol over an already open stream.
func NewStreamBus(name string, stream io.ReadWriteCloser, logger *zap.Logger) Bus {
	return &streamBus{
		name:   name,
		stream: stream,
		logger: logger,
	}
}

func (b *streamBus) DoPacket(request Packet) (Packet, error) {
	b.mux.Lock()
	defer b.mux.Unlock()
	if b.closed.Load() {
		return Packet{}, ErrBusClosed
	}
	start := time.Now()
	reply, err := b.exchange(request)
	metrics.ObserveBusRequest(b.name, functionName(request.Function()), resultLabel(request, reply, err), time.Since(start))
	if err != nil {
		return Packet{}, err
	}
	b.logger.Debug("bus exchange", zap.Stringer("request", request), zap.Stringer("reply", reply))
	return reply, nil
}

func (b *streamBus) exchange(request Packet) (Packet, error) {
	if _, err := b.stream.Write(request.Bytes()); err != nil {
		return Packet{}, fmt.Errorf("%w: writing %s: %w", ErrIO, request, err)
	}
	buffer := make([]byte, request.ExpectedReplyLength())
	read := 0
	for read < len(buffer) {
		n, err := b.stream.Read(buffer[read:])
		read += n
		if read == len(buffer) {
			break
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Packet{}, fmt.Errorf("%w: end of stream after %d of %d bytes", ErrIO, read, len(buffer))
			}
			return Packet{}, fmt.Errorf("%w: reading reply: %w", ErrIO, err)
		}
		if n == 0 {
			return Packet{}, fmt.Errorf("%w: no data after %d of %d bytes", ErrIO, read, len(buffer))
		}
	}
	return NewPacket(buffer), nil
}

// Flush waits for any exchange in progress before discarding input.
func (b *streamBus) Flush() error {
	b.mux.Lock()
	defer b.mux.Unlock()
	if b.closed.Load() {
		return ErrBusClosed
	}
	if f, ok := b.stream.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("%w: flushing: %w", ErrIO, err)
		}
		return nil
	}
	return b.drain()
}

// drain reads and discards input for at most drainTimeout. Streams without
// read deadlines are left alone since a read could block forever.
func (b *streamBus) drain() error {
	d, ok := b.stream.(readDeadliner)
	if !ok {
		return nil
	}
	if err := d.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
		return fmt.Errorf("%w: setting drain deadline: %w", ErrIO, err)
	}
	defer func() {
		_ = d.SetReadDeadline(time.Time{})
	}()
	buffer := make([]byte, 64)
	discarded := 0
	for {
		n, err := b.stream.Read(buffer)
		discarded += n
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			return fmt.Errorf("%w: draining: %w", ErrIO, err)
		}
		if n == 0 {
			break
		}
	}
	if discarded > 0 {
		b.logger.Debug("discarded input", zap.String("bus", b.name), zap.Int("bytes", discarded))
	}
	return nil
}

func (b *streamBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.stream.Close()
}

// resultLabel classifies an exchange for the request metrics. Replies that
// fail the frame checks count as invalid even though DoPacket returns them.
func resultLabel(request Packet, reply Packet, err error) string {
	switch {
	case err != nil:
		return "error"
	case checkReply(request, reply) != nil:
		return "invalid"
	default:
		return "ok"
	}
}

func functionName(function byte) string {
	switch function {
	case FunctionRead:
		return "read"
	case FunctionWrite:
		return "write"
	case FunctionControl:
		return "control"
	default:
		return "unknown"
	}
}
