package openHab

// Item is the part of openHAB's enriched item response the bridge reads.
type Item struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Label string `json:"label"`
	State string `json:"state"`
}
