package bridge

import "encoding/json"

type EventType string

const (
	EventPacketIn   EventType = "packet_in"
	EventSwitchUp   EventType = "switch_up"
	EventSwitchDown EventType = "switch_down"
	EventPortUp     EventType = "port_up"
	EventPortDown   EventType = "port_down"
)

// Event is one message from the controller's event stream.
type Event struct {
	Type     EventType `json:"type"`
	SwitchID uint64    `json:"switch_id"`
	PortID   int       `json:"port_id"`
	Ports    []int     `json:"ports,omitempty"`
	Payload  Payload   `json:"payload"`
}

// PacketIn is a packet the current policy sent to the controller.
type PacketIn struct {
	SwitchID uint64
	PortID   int
	Payload  Payload
}

// Payload carries packet bytes and, when the switch buffered the packet, the
// buffer id it must be released with.
type Payload struct {
	Buffered bool
	BufferID int32
	Data     []byte
}

type payloadWire struct {
	Type     string `json:"type"`
	BufferID *int32 `json:"bufferid,omitempty"`
	Buffer   []byte `json:"buffer,omitempty"`
}

func (p Payload) MarshalJSON() ([]byte, error) {
	w := payloadWire{Type: "notbuffered", Buffer: p.Data}
	if p.Buffered {
		id := p.BufferID
		w.Type = "buffered"
		w.BufferID = &id
	}
	return json.Marshal(w)
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var w payloadWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	p.Data = w.Buffer
	p.Buffered = w.Type == "buffered" && w.BufferID != nil
	if p.Buffered {
		p.BufferID = *w.BufferID
	}

	return nil
}

// PacketOut sends one packet out of OutPort on a switch, bypassing the flow
// table.
type PacketOut struct {
	SwitchID uint64
	InPort   *int
	OutPort  int
	Payload  Payload
}

type pseudoport struct {
	Type string `json:"type"`
	Port int    `json:"port"`
}

type outputAction struct {
	Type       string     `json:"type"`
	Pseudoport pseudoport `json:"pseudoport"`
}

type packetOutWire struct {
	Switch  uint64         `json:"switch"`
	InPort  *int           `json:"in_port"`
	Actions []outputAction `json:"actions"`
	Payload Payload        `json:"payload"`
}

func (p PacketOut) MarshalJSON() ([]byte, error) {
	return json.Marshal(packetOutWire{
		Switch: p.SwitchID,
		InPort: p.InPort,
		Actions: []outputAction{{
			Type:       "output",
			Pseudoport: pseudoport{Type: "physical", Port: p.OutPort},
		}},
		Payload: p.Payload,
	})
}
