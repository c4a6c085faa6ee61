package mqtt

import "github.com/guregu/null"

// SensorJSON is a Home Assistant MQTT discovery payload for a sensor.
type SensorJSON struct {
	UniqueId             string       `json:"unique_id"`
	Name                 string       `json:"name"`
	StateTopic           string       `json:"state_topic"`
	StateClass           string       `json:"state_class,omitempty"`
	DeviceClass          string       `json:"device_class,omitempty"`
	ValueTemplate        string       `json:"value_template"`
	UnitOfMeasurement    string       `json:"unit_of_measurement,omitempty"`
	AvailabilityTopic    string       `json:"availability_topic"`
	AvailabilityTemplate string       `json:"availability_template"`
	Device               SensorDevice `json:"device"`
}

// CoverJSON is a Home Assistant MQTT discovery payload for a cover. Positions
// follow the motor: 0 is fully open and 100 fully closed.
type CoverJSON struct {
	UniqueId             string       `json:"unique_id"`
	Name                 string       `json:"name"`
	DeviceClass          string       `json:"device_class"`
	CommandTopic         string       `json:"command_topic"`
	PayloadOpen          string       `json:"payload_open"`
	PayloadClose         string       `json:"payload_close"`
	PayloadStop          string       `json:"payload_stop"`
	PositionTopic        string       `json:"position_topic"`
	PositionTemplate     string       `json:"position_template"`
	SetPositionTopic     string       `json:"set_position_topic"`
	PositionOpen         int          `json:"position_open"`
	PositionClosed       int          `json:"position_closed"`
	AvailabilityTopic    string       `json:"availability_topic"`
	AvailabilityTemplate string       `json:"availability_template"`
	Device               SensorDevice `json:"device"`
}

type SensorDevice struct {
	Manufacturer string   `json:"manufacturer"`
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
}

// StateMessage is published for every channel update. Value is only set for
// numeric states.
type StateMessage struct {
	State string   `json:"state"`
	Value null.Int `json:"value"`
}

type StatusMessage struct {
	Status      string      `json:"status"`
	Detail      string      `json:"detail"`
	Description null.String `json:"description"`
}
