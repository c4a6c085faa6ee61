package thing

import (
	"fmt"
	"strconv"
	"strings"
)

// State is the value of a channel as reported to the host.
type State interface {
	String() string
}

// Command is a request sent to a channel.
type Command interface {
	String() string
}

type UnDefType string

const (
	Undef UnDefType = "UNDEF"
	Null  UnDefType = "NULL"
)

func (u UnDefType) String() string { return string(u) }

// PercentType is a value in the range 0..100.
type PercentType int

func NewPercentType(value int) (PercentType, error) {
	if value < 0 || value > 100 {
		return 0, fmt.Errorf("percent value %d out of range", value)
	}
	return PercentType(value), nil
}

func (p PercentType) String() string { return strconv.Itoa(int(p)) }

type OnOffType string

const (
	On  OnOffType = "ON"
	Off OnOffType = "OFF"
)

func OnOffFromBool(on bool) OnOffType {
	if on {
		return On
	}
	return Off
}

func (o OnOffType) String() string { return string(o) }

type StringType string

func (s StringType) String() string { return string(s) }

type UpDownType string

const (
	Up   UpDownType = "UP"
	Down UpDownType = "DOWN"
)

func (u UpDownType) String() string { return string(u) }

type StopMoveType string

const (
	Stop StopMoveType = "STOP"
	Move StopMoveType = "MOVE"
)

func (s StopMoveType) String() string { return string(s) }

type RefreshType string

const Refresh RefreshType = "REFRESH"

func (r RefreshType) String() string { return string(r) }

// ParseCommand converts the textual command representation used on MQTT
// topics and the REST API into a typed command.
func ParseCommand(value string) (Command, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty command")
	}
	switch strings.ToUpper(value) {
	case "UP", "OPEN":
		return Up, nil
	case "DOWN", "CLOSE":
		return Down, nil
	case "STOP":
		return Stop, nil
	case "MOVE":
		return Move, nil
	case "ON":
		return On, nil
	case "OFF":
		return Off, nil
	case "REFRESH":
		return Refresh, nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		return NewPercentType(n)
	}
	return StringType(value), nil
}
