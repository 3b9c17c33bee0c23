package bus

import "strings"

// Sensor and gate state values. The Spanish spellings are what the deployed
// ESP32 firmware publishes; the English ones are accepted as well.
const (
	StateWaiting  = "Esperando"
	StateOccupied = "Occupied"
	StateFree     = "Free"

	stateOccupiedES = "Ocupado"
	stateFreeES     = "Libre"

	CommandOpen = "OPEN"
)

// Message is one inbound publish.
type Message struct {
	Topic   string
	Payload []byte
}

// StatePayload is the body of arrival and occupancy events.
type StatePayload struct {
	State  string `json:"state"`
	Estado string `json:"estado"`
}

// Value returns whichever state key the publisher used.
func (p StatePayload) Value() string {
	if p.State != "" {
		return p.State
	}
	return p.Estado
}

// NormalizeOccupancy maps a sensor state to StateOccupied or StateFree.
// The second result is false for unknown values.
func NormalizeOccupancy(state string) (string, bool) {
	switch strings.TrimSpace(state) {
	case StateOccupied, stateOccupiedES:
		return StateOccupied, true
	case StateFree, stateFreeES:
		return StateFree, true
	}
	return "", false
}

// BarrierCommand is published to open the gate towards an assigned cubicle.
type BarrierCommand struct {
	Command string `json:"command"`
	Cubicle string `json:"cubicle"`
}

// DisplayCubicle is one entry of a display broadcast.
type DisplayCubicle struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// DisplayStatus is the periodic broadcast consumed by the entrance display.
type DisplayStatus struct {
	FreeCount int              `json:"free_count"`
	Cubicles  []DisplayCubicle `json:"cubicles"`
}

// CubicleFromTopic extracts the cubicle name from "<prefix>/<name>".
func CubicleFromTopic(prefix, topic string) (string, bool) {
	p := strings.TrimSuffix(prefix, "/") + "/"
	if !strings.HasPrefix(topic, p) {
		return "", false
	}
	name := strings.TrimPrefix(topic, p)
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
