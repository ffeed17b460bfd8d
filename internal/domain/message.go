package domain

import "encoding/json"

// Relay event names. Every frame on the wire carries exactly one of these.
const (
	EventJoinRoom       = "join-room"
	EventSendMessage    = "send-message"
	EventReceiveMessage = "receive-message"
)

// Envelope is the fixed {event, data} wrapper around every relay frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinRoomPayload is the data of a join-room command.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// SendMessagePayload is the data of a send-message command. Company and
// AccessToken are forwarded verbatim from the injected credential; FileURL
// is nil (serialized as null) when the message carries no attachment.
type SendMessagePayload struct {
	RoomID      string  `json:"roomId"`
	Message     string  `json:"message"`
	FileURL     *string `json:"fileUrl"`
	Company     string  `json:"company"`
	AccessToken string  `json:"accessToken"`
}

// Sender identifies the origin of a received message.
type Sender struct {
	ID string `json:"id"`
}

// ReceivedMessage is one inbound receive-message event. The shape is owned
// by the relay; beyond presence of these fields it is treated as opaque.
type ReceivedMessage struct {
	Message string `json:"message,omitempty"`
	FileURL string `json:"fileUrl,omitempty"`
	Sender  Sender `json:"sender"`
}
