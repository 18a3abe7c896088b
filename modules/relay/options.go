package relay

import (
	"log/slog"
	"time"
)

// Option configures a Relay.
type Option func(*Relay)

// WithClock replaces time.Now for message timestamps and typing deadlines.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// WithHistoryLimit caps the message log. 0 keeps every message.
func WithHistoryLimit(limit int) Option {
	return func(r *Relay) {
		if limit >= 0 {
			r.historyLimit = limit
		}
	}
}

// WithSweepInterval sets how often expired typing entries are swept.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.sweepInterval = d
		}
	}
}

// WithTypingTimeout sets the typing inactivity window.
func WithTypingTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.typingTimeout = d
		}
	}
}

// WithContextWindow sets how many recent messages accompany a mention.
func WithContextWindow(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.contextWindow = n
		}
	}
}

// WithBotName sets the author name of bot replies.
func WithBotName(name string) Option {
	return func(r *Relay) {
		if name != "" {
			r.botName = name
		}
	}
}

// WithObserver adds an observer of committed messages and presence changes.
func WithObserver(o Observer) Option {
	return func(r *Relay) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithMentionHandler sets the receiver of bot mentions.
func WithMentionHandler(h MentionHandler) Option {
	return func(r *Relay) {
		r.mentions = h
	}
}

// WithLogger sets the relay logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}
