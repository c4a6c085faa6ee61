package thing

import "fmt"

type Status string

type StatusDetail string

const (
	StatusUninitialized Status = "UNINITIALIZED"
	StatusInitializing  Status = "INITIALIZING"
	StatusUnknown       Status = "UNKNOWN"
	StatusOnline        Status = "ONLINE"
	StatusOffline       Status = "OFFLINE"
	StatusRemoving      Status = "REMOVING"
	StatusRemoved       Status = "REMOVED"

	DetailNone                StatusDetail = "NONE"
	DetailHandlerMissing      StatusDetail = "HANDLER_MISSING_ERROR"
	DetailHandlerInitializing StatusDetail = "HANDLER_INITIALIZING_ERROR"
	DetailConfigurationError  StatusDetail = "CONFIGURATION_ERROR"
	DetailCommunicationError  StatusDetail = "COMMUNICATION_ERROR"
	DetailBridgeOffline       StatusDetail = "BRIDGE_OFFLINE"
	DetailBridgeUninitialized StatusDetail = "BRIDGE_UNINITIALIZED"
)

// StatusInfo is the connectivity status of a thing as reported to the host.
type StatusInfo struct {
	Status      Status       `json:"status"`
	Detail      StatusDetail `json:"statusDetail"`
	Description string       `json:"description,omitempty"`
}

func (s StatusInfo) String() string {
	if s.Description == "" {
		return fmt.Sprintf("%s (%s)", s.Status, s.Detail)
	}
	return fmt.Sprintf("%s (%s): %s", s.Status, s.Detail, s.Description)
}

func Online() StatusInfo {
	return StatusInfo{Status: StatusOnline, Detail: DetailNone}
}

func Unknown() StatusInfo {
	return StatusInfo{Status: StatusUnknown, Detail: DetailNone}
}

func Offline(detail StatusDetail, description string) StatusInfo {
	return StatusInfo{Status: StatusOffline, Detail: detail, Description: description}
}
