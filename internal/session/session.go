// Package session tracks join state for one room per client session and
// coordinates the send path: resolve the staged attachment, emit the command,
// clear local compose state.
package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"roomchat/internal/chatlog"
	"roomchat/internal/domain"
	"roomchat/internal/metrics"

	"github.com/google/uuid"
)

var (
	// ErrNotJoined is returned when Send is called before a room is joined.
	ErrNotJoined = errors.New("session: not joined to a room")
	// ErrUploadInFlight is returned when Send is called while an attachment
	// upload has not finished.
	ErrUploadInFlight = errors.New("session: attachment upload in flight")
)

// AttachmentSource is the uploader surface the send path needs.
type AttachmentSource interface {
	Uploading() bool
	Current() *domain.Attachment
	Take() *domain.Attachment
}

// Config configures a session.
type Config struct {
	Channel    domain.Channel
	Uploader   AttachmentSource
	Log        *chatlog.Log
	Credential domain.Credential
	Logger     *slog.Logger
}

// Session owns the room ID and join state. It registers the single inbound
// receive-message handler and is the sole writer to the chat log.
type Session struct {
	channel  domain.Channel
	uploader AttachmentSource
	log      *chatlog.Log
	cred     domain.Credential
	logger   *slog.Logger
	clientID string

	mu     sync.Mutex
	roomID string
	joined bool
	recvID string // inbound handler registration, "" when stopped
}

func New(cfg Config) *Session {
	return &Session{
		channel:  cfg.Channel,
		uploader: cfg.Uploader,
		log:      cfg.Log,
		cred:     cfg.Credential,
		logger:   cfg.Logger,
		clientID: uuid.NewString(),
	}
}

// Start subscribes the inbound handler. Idempotent; Stop must be called on
// teardown so a later re-subscribe cannot double-append.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recvID != "" {
		return
	}
	s.recvID = s.channel.On(domain.EventReceiveMessage, s.handleReceive)
}

// Stop deregisters the inbound handler.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recvID == "" {
		return
	}
	s.channel.Off(domain.EventReceiveMessage, s.recvID)
	s.recvID = ""
}

// Join enters the room. Blank room IDs are rejected with no side effect.
// Joining while already joined switches rooms: the new ID replaces the old
// and a fresh join-room command is emitted. Fire-and-forget, no ack awaited.
func (s *Session) Join(roomID string) bool {
	if strings.TrimSpace(roomID) == "" {
		return false
	}

	s.mu.Lock()
	s.roomID = roomID
	s.joined = true
	s.mu.Unlock()

	if err := s.channel.Emit(domain.EventJoinRoom, domain.JoinRoomPayload{RoomID: roomID}); err != nil {
		s.logger.Error("join-room emit failed", "room", roomID, "err", err)
	} else {
		metrics.RoomsJoined.Inc()
		s.logger.Info("joined room", "room", roomID)
	}
	return true
}

// Send emits one send-message command for the current room. A message that
// trims to empty with no staged attachment is a silent no-op. On emission
// the staged attachment is cleared unconditionally: delivery is at-most-once
// and no server acknowledgement exists to wait for. The caller clears its
// compose text on a nil return.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	joined, roomID := s.joined, s.roomID
	s.mu.Unlock()

	if !joined {
		return ErrNotJoined
	}
	if s.uploader.Uploading() {
		return ErrUploadInFlight
	}

	att := s.uploader.Current()
	if strings.TrimSpace(text) == "" && att == nil {
		return nil
	}

	payload := domain.SendMessagePayload{
		RoomID:      roomID,
		Message:     text,
		Company:     s.cred.Company,
		AccessToken: s.cred.AccessToken,
	}
	if att != nil {
		payload.FileURL = &att.RemoteURL
	}

	if err := s.channel.Emit(domain.EventSendMessage, payload); err != nil {
		return err
	}

	s.uploader.Take()
	metrics.MessagesSent.Inc()
	return nil
}

// handleReceive appends one inbound message to the chat log in arrival order.
func (s *Session) handleReceive(data json.RawMessage) {
	var msg domain.ReceivedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("invalid receive-message payload", "err", err)
		return
	}
	s.log.Append(msg)
	metrics.MessagesReceived.Inc()
}

// Joined reports whether a room has been joined.
func (s *Session) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

// RoomID returns the current room, or "" before a join.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// ClientID is the per-process identity used for display purposes.
func (s *Session) ClientID() string { return s.clientID }
