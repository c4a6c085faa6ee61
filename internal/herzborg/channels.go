package herzborg

import "github.com/jgulick48/herzborg-bridge/internal/thing"

// Curtain channel IDs.
const (
	ChannelPosition  = "position"
	ChannelReverse   = "reverse"
	ChannelHandStart = "handStart"
	ChannelMode      = "mode"
	ChannelExtSwitch = "extSwitch"
	ChannelHVSwitch  = "hvSwitch"
)

// Channels lists the curtain channels in the order they are polled.
var Channels = []string{
	ChannelPosition,
	ChannelReverse,
	ChannelHandStart,
	ChannelMode,
	ChannelExtSwitch,
	ChannelHVSwitch,
}

// Position bytes above 100 mean the motor has lost its travel limits.
const maxPosition = 100

var modes = map[byte]string{
	0x00: "STOP",
	0x01: "OPENING",
	0x02: "CLOSING",
	0x03: "SETTING",
}

var extSwitchTypes = map[byte]string{
	0x01: "2_BUTTON_REBOUND",
	0x02: "2_BUTTON_LATCH",
	0x03: "3_BUTTON_REBOUND",
	0x04: "HOTEL",
}

var hvSwitchTypes = map[byte]string{
	0x01: "2_BUTTON_LATCH",
	0x02: "2_BUTTON_REBOUND",
	0x03: "3_BUTTON_REBOUND",
}

func positionState(value byte) thing.State {
	if value > maxPosition {
		return thing.Undef
	}
	return thing.PercentType(value)
}

func lookupState(table map[byte]string, value byte) thing.State {
	if name, ok := table[value]; ok {
		return thing.StringType(name)
	}
	return thing.Undef
}

func reverseLookup(table map[byte]string, name string) (byte, bool) {
	for value, n := range table {
		if n == name {
			return value, true
		}
	}
	return 0, false
}

// ExtSwitchTypes returns the accepted values of the extSwitch channel.
func ExtSwitchTypes() []string {
	return sortedValues(extSwitchTypes)
}

// HVSwitchTypes returns the accepted values of the hvSwitch channel.
func HVSwitchTypes() []string {
	return sortedValues(hvSwitchTypes)
}

func sortedValues(table map[byte]string) []string {
	values := make([]string, 0, len(table))
	for i := 0; i <= 0xff; i++ {
		if name, ok := table[byte(i)]; ok {
			values = append(values, name)
		}
	}
	return values
}
