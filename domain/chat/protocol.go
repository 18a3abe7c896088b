package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Client to relay event names.
const (
	EventJoin       = "user:join"
	EventSend       = "message:send"
	EventTyping     = "user:typing"
	EventStopTyping = "user:stop-typing"
)

// Relay to client event names. user:typing and user:stop-typing are shared with
// the inbound set.
const (
	EventHistory    = "message:history"
	EventNewMessage = "message:new"
	EventUsersList  = "users:list"
	EventUserJoined = "user:joined"
	EventUserLeft   = "user:left"
	EventError      = "error"
)

// ErrMalformedFrame is returned for frames that cannot be decoded into an Inbound event.
var ErrMalformedFrame = errors.New("malformed frame")

// Envelope is the JSON frame exchanged over the websocket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is a decoded client event. The concrete types are JoinRequest,
// SendRequest, TypingStarted and TypingStopped.
type Inbound interface {
	inboundEvent() string
}

// JoinRequest asks to join the room under a display name.
type JoinRequest struct {
	Username string
}

// SendRequest carries a message body.
type SendRequest struct {
	Text string
}

// TypingStarted signals that the user is composing a message.
type TypingStarted struct{}

// TypingStopped signals that the user stopped composing.
type TypingStopped struct{}

func (JoinRequest) inboundEvent() string   { return EventJoin }
func (SendRequest) inboundEvent() string   { return EventSend }
func (TypingStarted) inboundEvent() string { return EventTyping }
func (TypingStopped) inboundEvent() string { return EventStopTyping }

// EventName returns the wire name of an inbound event.
func EventName(in Inbound) string {
	return in.inboundEvent()
}

// DecodeInbound parses a websocket frame into a typed event.
func DecodeInbound(frame []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Event {
	case EventJoin:
		s, err := stringPayload(env)
		if err != nil {
			return nil, err
		}
		return JoinRequest{Username: s}, nil
	case EventSend:
		s, err := stringPayload(env)
		if err != nil {
			return nil, err
		}
		return SendRequest{Text: s}, nil
	case EventTyping:
		return TypingStarted{}, nil
	case EventStopTyping:
		return TypingStopped{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformedFrame, env.Event)
	}
}

func stringPayload(env Envelope) (string, error) {
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", fmt.Errorf("%w: %s requires a string payload", ErrMalformedFrame, env.Event)
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("%w: %s payload must be a string", ErrMalformedFrame, env.Event)
	}
	return s, nil
}

// Outbound is an event sent from the relay to a client.
type Outbound struct {
	Event string
	Data  any
}

// MarshalJSON encodes the event as an Envelope.
func (o Outbound) MarshalJSON() ([]byte, error) {
	out := struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: o.Event, Data: o.Data}
	return json.Marshal(out)
}

// HistoryEvent replays the message log to a newly joined client.
func HistoryEvent(history []Message) Outbound {
	if history == nil {
		history = []Message{}
	}
	return Outbound{Event: EventHistory, Data: history}
}

// NewMessageEvent announces a message appended to the log.
func NewMessageEvent(msg Message) Outbound {
	return Outbound{Event: EventNewMessage, Data: msg}
}

// UsersListEvent carries the current presence list.
func UsersListEvent(users []Presence) Outbound {
	if users == nil {
		users = []Presence{}
	}
	return Outbound{Event: EventUsersList, Data: users}
}

// UserJoinedEvent is the informational notice that a user joined.
func UserJoinedEvent(username string) Outbound {
	return Outbound{Event: EventUserJoined, Data: username}
}

// UserLeftEvent is the informational notice that a user left.
func UserLeftEvent(username string) Outbound {
	return Outbound{Event: EventUserLeft, Data: username}
}

// TypingEvent tells other clients that username is typing.
func TypingEvent(username string) Outbound {
	return Outbound{Event: EventTyping, Data: username}
}

// StopTypingEvent tells other clients that username stopped typing.
func StopTypingEvent(username string) Outbound {
	return Outbound{Event: EventStopTyping, Data: username}
}

// ErrorEvent reports a rejected request to its sender.
func ErrorEvent(message string) Outbound {
	return Outbound{Event: EventError, Data: message}
}
