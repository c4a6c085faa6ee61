package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"
	"go.uber.org/zap"

	"github.com/jgulick48/herzborg-bridge/internal/herzborg"
)

var errUsage = errors.New("wrong number of arguments")

// packetBuilder turns shell arguments into a request frame.
type packetBuilder func(args []string) (herzborg.Packet, error)

func commands(bus herzborg.Bus, logger *zap.Logger) []*ishell.Cmd {
	return []*ishell.Cmd{
		busCmd(bus, logger, "read", "ADDRESS REGISTER [COUNT]", buildRead),
		busCmd(bus, logger, "write", "ADDRESS REGISTER VALUE...", buildWrite),
		busCmd(bus, logger, "open", "ADDRESS", buildControl(herzborg.ControlOpen)),
		busCmd(bus, logger, "close", "ADDRESS", buildControl(herzborg.ControlClose)),
		busCmd(bus, logger, "stop", "ADDRESS", buildControl(herzborg.ControlStop)),
		busCmd(bus, logger, "percent", "ADDRESS PERCENT", buildPercent),
		{
			Name: "flush",
			Help: "discard unread input",
			Func: func(c *ishell.Context) {
				if err := bus.Flush(); err != nil {
					c.Err(err)
				}
			},
		},
	}
}

func busCmd(bus herzborg.Bus, logger *zap.Logger, name string, help string, build packetBuilder) *ishell.Cmd {
	return &ishell.Cmd{
		Name: name,
		Help: help,
		Func: func(c *ishell.Context) {
			request, err := build(c.Args)
			if err != nil {
				c.Err(fmt.Errorf("%s %s: %w", name, help, err))
				return
			}
			c.Println(">", request)
			reply, err := bus.DoPacket(request)
			if err != nil {
				c.Err(err)
				return
			}
			c.Println("<", reply)
			c.Println(describeReply(reply))
			logger.Debug("exchange", zap.Stringer("request", request), zap.Stringer("reply", reply))
		},
	}
}

func describeReply(reply herzborg.Packet) string {
	if !reply.IsValid() {
		return "invalid reply"
	}
	return fmt.Sprintf("address=0x%04x function=%d data=0x%02x payload=% x",
		reply.Address(), reply.Function(), reply.DataAddress(), reply.Payload())
}

func parseAddress(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint16(v), nil
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q", s)
	}
	return byte(v), nil
}

func buildRead(args []string) (herzborg.Packet, error) {
	if len(args) < 2 || len(args) > 3 {
		return herzborg.Packet{}, errUsage
	}
	address, err := parseAddress(args[0])
	if err != nil {
		return herzborg.Packet{}, err
	}
	register, err := parseByte(args[1])
	if err != nil {
		return herzborg.Packet{}, err
	}
	count := byte(1)
	if len(args) == 3 {
		if count, err = parseByte(args[2]); err != nil {
			return herzborg.Packet{}, err
		}
	}
	return herzborg.NewReadPacket(address, register, count), nil
}

func buildWrite(args []string) (herzborg.Packet, error) {
	if len(args) < 3 {
		return herzborg.Packet{}, errUsage
	}
	address, err := parseAddress(args[0])
	if err != nil {
		return herzborg.Packet{}, err
	}
	register, err := parseByte(args[1])
	if err != nil {
		return herzborg.Packet{}, err
	}
	if len(args)-2 > herzborg.MaxWriteData {
		return herzborg.Packet{}, fmt.Errorf("at most %d values per write", herzborg.MaxWriteData)
	}
	data := make([]byte, 0, len(args)-2)
	for _, arg := range args[2:] {
		b, err := parseByte(arg)
		if err != nil {
			return herzborg.Packet{}, err
		}
		data = append(data, b)
	}
	return herzborg.NewWritePacket(address, register, data...), nil
}

func buildControl(code byte) packetBuilder {
	return func(args []string) (herzborg.Packet, error) {
		if len(args) != 1 {
			return herzborg.Packet{}, errUsage
		}
		address, err := parseAddress(args[0])
		if err != nil {
			return herzborg.Packet{}, err
		}
		return herzborg.NewControlPacket(address, code), nil
	}
}

func buildPercent(args []string) (herzborg.Packet, error) {
	if len(args) != 2 {
		return herzborg.Packet{}, errUsage
	}
	address, err := parseAddress(args[0])
	if err != nil {
		return herzborg.Packet{}, err
	}
	percent, err := parseByte(args[1])
	if err != nil {
		return herzborg.Packet{}, err
	}
	if percent > 100 {
		return herzborg.Packet{}, fmt.Errorf("percent %d out of range", percent)
	}
	return herzborg.NewPercentPacket(address, percent), nil
}
