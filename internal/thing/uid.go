package thing

import (
	"fmt"
	"strings"
)

const (
	BindingID = "herzborg"

	TypeSerialBus = "serial_bus"
	TypeCurtain   = "curtain"
)

// UID identifies a thing, e.g. "herzborg:curtain:living".
type UID string

func NewUID(thingType string, id string) UID {
	return UID(fmt.Sprintf("%s:%s:%s", BindingID, thingType, id))
}

// ID returns the last segment of the UID.
func (u UID) ID() string {
	s := string(u)
	return s[strings.LastIndex(s, ":")+1:]
}

// ThingType returns the middle segment of the UID.
func (u UID) ThingType() string {
	segments := strings.Split(string(u), ":")
	if len(segments) < 3 {
		return ""
	}
	return segments[1]
}

// ChannelUID identifies a single channel of a thing, e.g.
// "herzborg:curtain:living:position".
type ChannelUID struct {
	Thing UID
	ID    string
}

func NewChannelUID(thing UID, id string) ChannelUID {
	return ChannelUID{Thing: thing, ID: id}
}

func (c ChannelUID) String() string {
	return fmt.Sprintf("%s:%s", c.Thing, c.ID)
}

// ItemName converts the channel UID into the item name the openHAB UI
// generates for a linked channel.
func (c ChannelUID) ItemName() string {
	uid := strings.Replace(c.String(), ":", "_", -1)
	uid = strings.Replace(uid, "-", "_", -1)
	return uid
}
