package relay

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/example/collab-chat-relay/domain/chat"
)

// Connection is one live client session.
type Connection struct {
	ID       string
	Username string
	Joined   bool
}

// Registry tracks live connections and the display name each has claimed.
// It is not safe for concurrent use; the Relay actor owns it.
type Registry struct {
	conns     map[string]*Connection
	connOrder []string // connect order
	joinOrder []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
	}
}

// ValidateUsername trims name and checks it is between 1 and 20 characters.
func ValidateUsername(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if utf8.RuneCountInString(trimmed) > chat.MaxUsernameLength {
		return "", fmt.Errorf("%w: name is too long", ErrInvalidName)
	}
	return trimmed, nil
}

// Register adds an unnamed, not-yet-joined connection.
func (r *Registry) Register(id string) error {
	if _, ok := r.conns[id]; ok {
		return fmt.Errorf("%w: %s", ErrConnectionExists, id)
	}
	r.conns[id] = &Connection{ID: id}
	r.connOrder = append(r.connOrder, id)
	return nil
}

// Join attaches a display name to a registered connection and returns the
// stored (trimmed) name. The registry is unchanged on error.
func (r *Registry) Join(id, name string) (string, error) {
	conn, ok := r.conns[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	if conn.Joined {
		return "", ErrAlreadyJoined
	}

	username, err := ValidateUsername(name)
	if err != nil {
		return "", err
	}

	conn.Username = username
	conn.Joined = true
	r.joinOrder = append(r.joinOrder, id)
	return username, nil
}

// Remove deletes a connection. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) (Connection, bool) {
	conn, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	delete(r.conns, id)
	r.connOrder = slices.DeleteFunc(r.connOrder, func(s string) bool { return s == id })
	if conn.Joined {
		r.joinOrder = slices.DeleteFunc(r.joinOrder, func(s string) bool { return s == id })
	}
	return *conn, true
}

// Get returns a copy of the connection.
func (r *Registry) Get(id string) (Connection, bool) {
	conn, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *conn, true
}

// ListJoined returns joined connections in join order.
func (r *Registry) ListJoined() []chat.Presence {
	users := make([]chat.Presence, 0, len(r.joinOrder))
	for _, id := range r.joinOrder {
		users = append(users, chat.Presence{ID: id, Username: r.conns[id].Username})
	}
	return users
}

// IDs returns every registered connection id in connect order.
func (r *Registry) IDs() []string {
	return slices.Clone(r.connOrder)
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	return len(r.conns)
}

// JoinedCount returns the number of joined connections.
func (r *Registry) JoinedCount() int {
	return len(r.joinOrder)
}
