package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/collab-chat-relay/domain/chat"
)

// Defaults for a Relay built without options.
const (
	DefaultHistoryLimit  = 500
	DefaultSweepInterval = 250 * time.Millisecond
	DefaultContextWindow = 20
	DefaultBotName       = "ChatBot"

	inboxSize = 64
)

// Sink receives the events addressed to one connection. Deliver is called from
// the relay loop and must not block.
type Sink interface {
	Deliver(event chat.Outbound)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event chat.Outbound)

// Deliver calls f(event).
func (f SinkFunc) Deliver(event chat.Outbound) { f(event) }

// Observer is notified of committed state transitions. Calls happen on the
// relay loop after the matching broadcast and must not block.
type Observer interface {
	MessagePosted(msg chat.Message)
	UserJoined(conn chat.Presence)
	UserLeft(conn chat.Presence)
}

// MentionHandler receives messages that mention the bot. HandleMention must
// return promptly; generation happens elsewhere and comes back through
// PostBotReply.
type MentionHandler interface {
	HandleMention(req chat.MentionRequest)
}

// Stats is a point-in-time count of relay state.
type Stats struct {
	Connections int `json:"connections"`
	Joined      int `json:"joined"`
	Messages    int `json:"messages"`
	Typing      int `json:"typing"`
}

// Relay serializes every state change through a single loop. The registry,
// message log and typing tracker are only touched from Run.
type Relay struct {
	registry *Registry
	log      *MessageLog
	typing   *TypingTracker
	sinks    map[string]Sink

	now           func() time.Time
	historyLimit  int
	sweepInterval time.Duration
	typingTimeout time.Duration
	contextWindow int
	botName       string
	observers     []Observer
	mentions      MentionHandler
	logger        *slog.Logger

	inbox chan func()
	done  chan struct{}
}

// New creates a Relay. Call Run to start processing.
func New(opts ...Option) *Relay {
	r := &Relay{
		now:           time.Now,
		historyLimit:  DefaultHistoryLimit,
		sweepInterval: DefaultSweepInterval,
		typingTimeout: DefaultTypingTimeout,
		contextWindow: DefaultContextWindow,
		botName:       DefaultBotName,
		logger:        slog.Default(),
		inbox:         make(chan func(), inboxSize),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.registry = NewRegistry()
	r.log = NewMessageLog(r.historyLimit, r.now)
	r.typing = NewTypingTracker(r.typingTimeout)
	r.sinks = make(map[string]Sink)
	return r
}

// Run processes commands and sweeps expired typing entries until ctx is
// cancelled. After Run returns every method fails with ErrRelayStopped.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	defer close(r.done)

	r.logger.Info("relay started", "history_limit", r.historyLimit, "typing_timeout", r.typingTimeout)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped", "connections", r.registry.Len(), "messages", r.log.Len())
			return
		case cmd := <-r.inbox:
			cmd()
		case <-ticker.C:
			r.sweepTyping()
		}
	}
}

// Done is closed when Run returns.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// exec runs fn on the relay loop and waits for its result.
func (r *Relay) exec(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case r.inbox <- func() { result <- fn() }:
	case <-r.done:
		return ErrRelayStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-r.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrRelayStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect registers a transport connection. It receives nothing until it joins
// or a broadcast addressed to all connections is sent.
func (r *Relay) Connect(ctx context.Context, connID string, sink Sink) error {
	if sink == nil {
		return errors.New("relay: nil sink")
	}
	return r.exec(ctx, func() error {
		if err := r.registry.Register(connID); err != nil {
			return err
		}
		r.sinks[connID] = sink
		r.logger.Debug("connection registered", "conn", connID)
		return nil
	})
}

// Join claims a display name for the connection. On success the joiner gets
// the message history, every connection gets the new users list and the
// others get a user:joined notice.
func (r *Relay) Join(ctx context.Context, connID, name string) error {
	return r.exec(ctx, func() error {
		if _, ok := r.registry.Get(connID); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
		}

		username, err := r.registry.Join(connID, name)
		if err != nil {
			r.reject(connID, err)
			return err
		}

		r.deliver(connID, chat.HistoryEvent(r.log.History()))
		r.broadcast(chat.UsersListEvent(r.registry.ListJoined()), "")
		r.broadcast(chat.UserJoinedEvent(username), connID)

		joined := chat.Presence{ID: connID, Username: username}
		for _, o := range r.observers {
			o.UserJoined(joined)
		}
		r.logger.Info("user joined", "conn", connID, "username", username)
		return nil
	})
}

// Send appends a message from a joined connection and broadcasts it to every
// connection. The body is trimmed and must be 1 to 1000 characters.
func (r *Relay) Send(ctx context.Context, connID, body string) error {
	return r.exec(ctx, func() error {
		conn, err := r.joined(connID)
		if err != nil {
			return err
		}

		text, err := ValidateMessage(body)
		if err != nil {
			r.reject(connID, err)
			return err
		}

		msg := r.log.Append(conn.Username, text, false)
		r.broadcast(chat.NewMessageEvent(msg), "")
		if r.typing.MarkStoppedTyping(conn.Username) {
			r.broadcast(chat.StopTypingEvent(conn.Username), connID)
		}

		for _, o := range r.observers {
			o.MessagePosted(msg)
		}
		if r.mentions != nil && chat.DetectMention(msg.Text) {
			r.mentions.HandleMention(chat.MentionRequest{
				Trigger: msg,
				Context: r.log.Recent(r.contextWindow),
			})
		}
		return nil
	})
}

// Typing marks the connection's user as typing and tells the other
// connections. Refreshing an active entry only extends its deadline.
func (r *Relay) Typing(ctx context.Context, connID string) error {
	return r.exec(ctx, func() error {
		conn, err := r.joined(connID)
		if err != nil {
			return err
		}
		if r.typing.MarkTyping(conn.Username, connID, r.now()) {
			r.broadcast(chat.TypingEvent(conn.Username), connID)
		}
		return nil
	})
}

// StopTyping clears the connection's typing entry and tells the other
// connections. It is a no-op if the user was not typing.
func (r *Relay) StopTyping(ctx context.Context, connID string) error {
	return r.exec(ctx, func() error {
		conn, err := r.joined(connID)
		if err != nil {
			return err
		}
		if r.typing.MarkStoppedTyping(conn.Username) {
			r.broadcast(chat.StopTypingEvent(conn.Username), connID)
		}
		return nil
	})
}

// Disconnect removes the connection. If it had joined, its typing entry is
// cleared and the remaining connections get the new users list. Unknown ids
// are ignored.
func (r *Relay) Disconnect(ctx context.Context, connID string) error {
	return r.exec(ctx, func() error {
		conn, ok := r.registry.Remove(connID)
		if !ok {
			return nil
		}
		delete(r.sinks, connID)

		if !conn.Joined {
			r.logger.Debug("connection removed before join", "conn", connID)
			return nil
		}

		if r.typing.MarkStoppedTyping(conn.Username) {
			r.broadcast(chat.StopTypingEvent(conn.Username), "")
		}
		r.broadcast(chat.UsersListEvent(r.registry.ListJoined()), "")
		r.broadcast(chat.UserLeftEvent(conn.Username), "")

		left := chat.Presence{ID: connID, Username: conn.Username}
		for _, o := range r.observers {
			o.UserLeft(left)
		}
		r.logger.Info("user left", "conn", connID, "username", conn.Username)
		return nil
	})
}

// PostBotReply appends a bot-authored message and broadcasts it to every
// connection. It never triggers mention detection.
func (r *Relay) PostBotReply(ctx context.Context, text string) (chat.Message, error) {
	var msg chat.Message
	err := r.exec(ctx, func() error {
		body, err := ValidateMessage(text)
		if err != nil {
			return err
		}
		msg = r.log.Append(r.botName, body, true)
		r.broadcast(chat.NewMessageEvent(msg), "")
		for _, o := range r.observers {
			o.MessagePosted(msg)
		}
		return nil
	})
	return msg, err
}

// Snapshot returns a consistent copy of history, presence and typing state.
func (r *Relay) Snapshot(ctx context.Context) (chat.Snapshot, error) {
	var snap chat.Snapshot
	err := r.exec(ctx, func() error {
		snap = chat.Snapshot{
			History: r.log.History(),
			Users:   r.registry.ListJoined(),
			Typing:  r.typing.ListTyping(r.now()),
		}
		return nil
	})
	return snap, err
}

// Stats returns current counts.
func (r *Relay) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.exec(ctx, func() error {
		s = Stats{
			Connections: r.registry.Len(),
			Joined:      r.registry.JoinedCount(),
			Messages:    r.log.Len(),
			Typing:      len(r.typing.ListTyping(r.now())),
		}
		return nil
	})
	return s, err
}

// BotName returns the author name used for bot replies.
func (r *Relay) BotName() string {
	return r.botName
}

// ValidateMessage trims body and checks it is between 1 and 1000 characters.
func ValidateMessage(body string) (string, error) {
	text := strings.TrimSpace(body)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > chat.MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return text, nil
}

// joined returns the connection if it exists and has joined. A registered
// but unjoined connection is sent an error event.
func (r *Relay) joined(connID string) (Connection, error) {
	conn, ok := r.registry.Get(connID)
	if !ok {
		return Connection{}, fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	if !conn.Joined {
		r.reject(connID, ErrNotJoined)
		return Connection{}, ErrNotJoined
	}
	return conn, nil
}

func (r *Relay) sweepTyping() {
	for _, entry := range r.typing.Sweep(r.now()) {
		r.broadcast(chat.StopTypingEvent(entry.Username), entry.ConnectionID)
		r.logger.Debug("typing expired", "username", entry.Username)
	}
}

// reject answers a refused request on the requesting connection only.
func (r *Relay) reject(connID string, err error) {
	r.logger.Debug("request rejected", "conn", connID, "error", err)
	r.deliver(connID, chat.ErrorEvent(errorText(err)))
}

func (r *Relay) deliver(connID string, event chat.Outbound) {
	if sink, ok := r.sinks[connID]; ok {
		sink.Deliver(event)
	}
}

// broadcast sends event to every registered connection except the one named
// by except, in connect order.
func (r *Relay) broadcast(event chat.Outbound, except string) {
	for _, id := range r.registry.IDs() {
		if id == except {
			continue
		}
		r.deliver(id, event)
	}
}

// errorText maps request errors to the text shown to the client.
func errorText(err error) string {
	switch {
	case errors.Is(err, ErrInvalidName):
		return "Invalid username: must be between 1 and 20 characters"
	case errors.Is(err, ErrAlreadyJoined):
		return "Already joined"
	case errors.Is(err, ErrNotJoined):
		return "You must join before sending messages"
	case errors.Is(err, ErrEmptyMessage):
		return "Message cannot be empty"
	case errors.Is(err, ErrMessageTooLong):
		return "Message is too long (max 1000 characters)"
	default:
		return err.Error()
	}
}
