package protocol

import (
	"encoding/json"

	"colonycraft.ai/internal/codec"
)

const Version = "0.1"

// Message types.
const (
	TypeSubscribe    = "SUBSCRIBE"
	TypeCitizenViews = "CITIZEN_VIEWS"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Client -> Server. First (text) message on a replication connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ColonyID        string `json:"colony_id"`
}

// Server -> Client (binary, CBOR). A point-in-time view of every citizen in
// the colony; consumers replace their whole cache with it.
type CitizenViewsMsg struct {
	Type            string        `cbor:"type"`
	ProtocolVersion string        `cbor:"protocol_version"`
	ColonyID        string        `cbor:"colony_id"`
	Tick            uint64        `cbor:"tick"`
	Citizens        []CitizenBlob `cbor:"citizens"`
}

// CitizenBlob carries one citizen's opaque view blob.
type CitizenBlob struct {
	ID   string `cbor:"id"`
	Blob []byte `cbor:"blob"`
}

func EncodeCitizenViews(m CitizenViewsMsg) ([]byte, error) {
	return codec.Marshal(m)
}

func DecodeCitizenViews(b []byte) (CitizenViewsMsg, error) {
	var m CitizenViewsMsg
	err := codec.Unmarshal(b, &m)
	return m, err
}
