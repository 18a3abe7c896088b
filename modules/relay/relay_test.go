package relay

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/collab-chat-relay/domain/chat"
)

// recordingSink collects every event delivered to one connection.
type recordingSink struct {
	mu     sync.Mutex
	events []chat.Outbound
}

func (s *recordingSink) Deliver(event chat.Outbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) all() []chat.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Outbound, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) named(name string) []chat.Outbound {
	var out []chat.Outbound
	for _, e := range s.all() {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMentions struct {
	mu       sync.Mutex
	requests []chat.MentionRequest
}

func (h *recordingMentions) HandleMention(req chat.MentionRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
}

func (h *recordingMentions) all() []chat.MentionRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]chat.MentionRequest(nil), h.requests...)
}

type recordingObserver struct {
	mu     sync.Mutex
	posted []chat.Message
	joined []chat.Presence
	left   []chat.Presence
}

func (o *recordingObserver) MessagePosted(msg chat.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.posted = append(o.posted, msg)
}

func (o *recordingObserver) UserJoined(conn chat.Presence) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.joined = append(o.joined, conn)
}

func (o *recordingObserver) UserLeft(conn chat.Presence) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.left = append(o.left, conn)
}

func startRelay(t *testing.T, opts ...Option) *Relay {
	t.Helper()
	r := New(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-r.Done()
	})
	return r
}

func connectAndJoin(t *testing.T, r *Relay, id, name string) *recordingSink {
	t.Helper()
	sink := &recordingSink{}
	require.NoError(t, r.Connect(context.Background(), id, sink))
	require.NoError(t, r.Join(context.Background(), id, name))
	return sink
}

func TestRelay_JoinSendsHistoryAndPresence(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()

	alice := connectAndJoin(t, r, "a", "Alice")

	got := alice.all()
	require.Len(t, got, 2)
	assert.Equal(t, chat.HistoryEvent(nil), got[0])
	assert.Equal(t, chat.UsersListEvent([]chat.Presence{{ID: "a", Username: "Alice"}}), got[1])
	assert.Empty(t, alice.named(chat.EventUserJoined), "joiner does not get its own user:joined")

	require.NoError(t, r.Send(ctx, "a", "first"))
	alice.reset()

	bob := connectAndJoin(t, r, "b", "Bob")

	bobEvents := bob.all()
	require.Len(t, bobEvents, 2)
	assert.Equal(t, chat.EventHistory, bobEvents[0].Event)
	history := bobEvents[0].Data.([]chat.Message)
	require.Len(t, history, 1)
	assert.Equal(t, "first", history[0].Text)

	assert.Equal(t, []chat.Outbound{
		chat.UsersListEvent([]chat.Presence{{ID: "a", Username: "Alice"}, {ID: "b", Username: "Bob"}}),
		chat.UserJoinedEvent("Bob"),
	}, alice.all())
}

func TestRelay_InvalidJoinRepliesToSenderOnly(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()

	alice := connectAndJoin(t, r, "a", "Alice")
	alice.reset()

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "    "},
		{"too long", strings.Repeat("n", 21)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			id := "x-" + tt.name
			require.NoError(t, r.Connect(ctx, id, sink))

			err := r.Join(ctx, id, tt.input)
			assert.ErrorIs(t, err, ErrInvalidName)

			got := sink.all()
			require.Len(t, got, 1)
			assert.Equal(t, chat.EventError, got[0].Event)
			assert.Empty(t, alice.all())

			snap, err := r.Snapshot(ctx)
			require.NoError(t, err)
			assert.Len(t, snap.Users, 1)
		})
	}
}

func TestRelay_RejoinRejected(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()

	alice := connectAndJoin(t, r, "a", "Alice")
	alice.reset()

	err := r.Join(ctx, "a", "Alicia")
	assert.ErrorIs(t, err, ErrAlreadyJoined)
	assert.Equal(t, []chat.Outbound{chat.ErrorEvent("Already joined")}, alice.all())

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []chat.Presence{{ID: "a", Username: "Alice"}}, snap.Users)
}

// Scenario A: a message reaches every client and is absent from the history
// Bob received before it was sent.
func TestRelay_ScenarioA_MessageBroadcast(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()

	alice := connectAndJoin(t, r, "a", "Alice")
	bob := connectAndJoin(t, r, "b", "Bob")

	require.NoError(t, r.Send(ctx, "a", "hello"))

	for _, sink := range []*recordingSink{alice, bob} {
		got := sink.named(chat.EventNewMessage)
		require.Len(t, got, 1)
		msg := got[0].Data.(chat.Message)
		assert.Equal(t, "Alice", msg.Username)
		assert.Equal(t, "hello", msg.Text)
		assert.False(t, msg.IsAI)
	}

	history := bob.named(chat.EventHistory)
	require.Len(t, history, 1)
	assert.Empty(t, history[0].Data.([]chat.Message))
}

// Scenario B: a mention is broadcast immediately, then the reply arrives as a
// second bot-authored message.
func TestRelay_ScenarioB_MentionAndBotReply(t *testing.T) {
	mentions := &recordingMentions{}
	r := startRelay(t, WithMentionHandler(mentions), WithContextWindow(2))
	ctx := context.Background()

	alice := connectAndJoin(t, r, "a", "Alice")
	bob := connectAndJoin(t, r, "b", "Bob")

	require.NoError(t, r.Send(ctx, "b", "warming up"))
	require.NoError(t, r.Send(ctx, "a", "@chatbot what is 2+2?"))

	for _, sink := range []*recordingSink{alice, bob} {
		require.Len(t, sink.named(chat.EventNewMessage), 2)
	}

	reqs := mentions.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "@chatbot what is 2+2?", reqs[0].Trigger.Text)
	require.Len(t, reqs[0].Context, 2)
	assert.Equal(t, "warming up", reqs[0].Context[0].Text)
	assert.Equal(t, reqs[0].Trigger, reqs[0].Context[1])

	reply, err := r.PostBotReply(ctx, "4")
	require.NoError(t, err)
	assert.True(t, reply.IsAI)
	assert.Equal(t, DefaultBotName, reply.Username)

	for _, sink := range []*recordingSink{alice, bob} {
		got := sink.named(chat.EventNewMessage)
		require.Len(t, got, 3)
		assert.Equal(t, reply, got[2].Data.(chat.Message))
		assert.Empty(t, sink.named(chat.EventError))
	}
	assert.Len(t, mentions.all(), 1, "bot replies never trigger mentions")
}

func TestRelay_MentionIsCaseSensitive(t *testing.T) {
	mentions := &recordingMentions{}
	r := startRelay(t, WithMentionHandler(mentions))
	ctx := context.Background()

	connectAndJoin(t, r, "a", "Alice")
	require.NoError(t, r.Send(ctx, "a", "@ChatBot hi"))
	require.NoError(t, r.Send(ctx, "a", "ping@chatbotty"))

	reqs := mentions.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "ping@chatbotty", reqs[0].Trigger.Text)
}

// Scenario C: an over-length body is rejected without touching the log.
func TestRelay_ScenarioC_TooLongRejected(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()

	alice := connectAndJoin(t, r, "a", "Alice")
	bob := connectAndJoin(t, r, "b", "Bob")
	alice.reset()
	bob.reset()

	err := r.Send(ctx, "a", strings.Repeat("x", 1001))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	assert.Empty(t, bob.all())
	assert.Equal(t, []chat.Outbound{chat.ErrorEvent("Message is too long (max 1000 characters)")}, alice.all())

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.History)

	require.NoError(t, r.Send(ctx, "a", strings.Repeat("x", 1000)))
}

func TestRelay_SendValidation(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()

	connectAndJoin(t, r, "a", "Alice")

	assert.ErrorIs(t, r.Send(ctx, "a", ""), ErrEmptyMessage)
	assert.ErrorIs(t, r.Send(ctx, "a", " \n\t "), ErrEmptyMessage)
	assert.ErrorIs(t, r.Send(ctx, "missing", "hi"), ErrUnknownConnection)

	require.NoError(t, r.Send(ctx, "a", "  padded  "))
	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.History, 1)
	assert.Equal(t, "padded", snap.History[0].Text)
}

func TestRelay_NotJoinedRejected(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()

	alice := connectAndJoin(t, r, "a", "Alice")
	alice.reset()
	lurker := &recordingSink{}
	require.NoError(t, r.Connect(ctx, "l", lurker))

	assert.ErrorIs(t, r.Send(ctx, "l", "hi"), ErrNotJoined)
	assert.ErrorIs(t, r.Typing(ctx, "l"), ErrNotJoined)
	assert.ErrorIs(t, r.StopTyping(ctx, "l"), ErrNotJoined)

	assert.Len(t, lurker.named(chat.EventError), 3)
	assert.Empty(t, alice.all())
}

func TestRelay_TypingBroadcastToOthers(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()

	alice := connectAndJoin(t, r, "a", "Alice")
	bob := connectAndJoin(t, r, "b", "Bob")
	alice.reset()
	bob.reset()

	require.NoError(t, r.Typing(ctx, "a"))
	require.NoError(t, r.Typing(ctx, "a"))

	assert.Equal(t, []chat.Outbound{chat.TypingEvent("Alice")}, bob.all())
	assert.Empty(t, alice.all())

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, snap.Typing)

	require.NoError(t, r.StopTyping(ctx, "a"))
	require.NoError(t, r.StopTyping(ctx, "a"))
	assert.Equal(t, []chat.Outbound{chat.TypingEvent("Alice"), chat.StopTypingEvent("Alice")}, bob.all())
	assert.Empty(t, alice.all())
}

func TestRelay_SendClearsTyping(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()

	alice := connectAndJoin(t, r, "a", "Alice")
	bob := connectAndJoin(t, r, "b", "Bob")

	require.NoError(t, r.Typing(ctx, "a"))
	alice.reset()
	bob.reset()

	require.NoError(t, r.Send(ctx, "a", "done typing"))

	bobEvents := bob.all()
	require.Len(t, bobEvents, 2)
	assert.Equal(t, chat.EventNewMessage, bobEvents[0].Event)
	assert.Equal(t, chat.StopTypingEvent("Alice"), bobEvents[1])
	assert.Empty(t, alice.named(chat.EventStopTyping))

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Typing)
}

func TestRelay_TypingExpires(t *testing.T) {
	clock := newFakeClock()
	r := startRelay(t, WithClock(clock.Now), WithSweepInterval(5*time.Millisecond))
	ctx := context.Background()

	alice := connectAndJoin(t, r, "a", "Alice")
	bob := connectAndJoin(t, r, "b", "Bob")
	require.NoError(t, r.Typing(ctx, "a"))
	alice.reset()

	clock.Advance(1500 * time.Millisecond)
	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, snap.Typing)

	clock.Advance(500 * time.Millisecond)
	snap, err = r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Typing)

	assert.Eventually(t, func() bool {
		return len(bob.named(chat.EventStopTyping)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, alice.named(chat.EventStopTyping), "expiry is not sent to the typer")
}

// Scenario D: disconnecting while typing clears both typing state and presence.
func TestRelay_ScenarioD_DisconnectWhileTyping(t *testing.T) {
	observer := &recordingObserver{}
	r := startRelay(t, WithObserver(observer))
	ctx := context.Background()

	connectAndJoin(t, r, "a", "Alice")
	bob := connectAndJoin(t, r, "b", "Bob")
	require.NoError(t, r.Typing(ctx, "a"))
	bob.reset()

	require.NoError(t, r.Disconnect(ctx, "a"))

	assert.Equal(t, []chat.Outbound{
		chat.StopTypingEvent("Alice"),
		chat.UsersListEvent([]chat.Presence{{ID: "b", Username: "Bob"}}),
		chat.UserLeftEvent("Alice"),
	}, bob.all())

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Typing)
	assert.Equal(t, []chat.Presence{{ID: "b", Username: "Bob"}}, snap.Users)

	observer.mu.Lock()
	defer observer.mu.Unlock()
	assert.Equal(t, []chat.Presence{{ID: "a", Username: "Alice"}}, observer.left)
}

func TestRelay_DisconnectIsIdempotent(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()

	bob := connectAndJoin(t, r, "b", "Bob")
	lurker := &recordingSink{}
	require.NoError(t, r.Connect(ctx, "l", lurker))
	bob.reset()

	require.NoError(t, r.Disconnect(ctx, "l"))
	assert.Empty(t, bob.all(), "unjoined disconnect is silent")

	require.NoError(t, r.Disconnect(ctx, "l"))
	require.NoError(t, r.Disconnect(ctx, "never"))
	assert.Empty(t, bob.all())
}

func TestRelay_ObserverSeesCommittedMessages(t *testing.T) {
	observer := &recordingObserver{}
	r := startRelay(t, WithObserver(observer), WithBotName("Helper"))
	ctx := context.Background()

	connectAndJoin(t, r, "a", "Alice")
	require.NoError(t, r.Send(ctx, "a", "hi"))
	_ = r.Send(ctx, "a", "")
	_, err := r.PostBotReply(ctx, "hello Alice")
	require.NoError(t, err)

	observer.mu.Lock()
	defer observer.mu.Unlock()
	require.Len(t, observer.posted, 2)
	assert.Equal(t, "hi", observer.posted[0].Text)
	assert.Equal(t, "Helper", observer.posted[1].Username)
	assert.True(t, observer.posted[1].IsAI)
	assert.Equal(t, []chat.Presence{{ID: "a", Username: "Alice"}}, observer.joined)
}

func TestRelay_PostBotReplyValidation(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()

	_, err := r.PostBotReply(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = r.PostBotReply(ctx, strings.Repeat("y", 1001))
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestRelay_HistoryLimit(t *testing.T) {
	r := startRelay(t, WithHistoryLimit(2))
	ctx := context.Background()

	connectAndJoin(t, r, "a", "Alice")
	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, r.Send(ctx, "a", body))
	}

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.History, 2)
	assert.Equal(t, "two", snap.History[0].Text)
}

func TestRelay_ConnectErrors(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()

	require.NoError(t, r.Connect(ctx, "a", &recordingSink{}))
	assert.ErrorIs(t, r.Connect(ctx, "a", &recordingSink{}), ErrConnectionExists)
	assert.Error(t, r.Connect(ctx, "b", nil))
	assert.ErrorIs(t, r.Join(ctx, "zzz", "Zed"), ErrUnknownConnection)
}

func TestRelay_Stats(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()

	connectAndJoin(t, r, "a", "Alice")
	require.NoError(t, r.Connect(ctx, "l", &recordingSink{}))
	require.NoError(t, r.Send(ctx, "a", "hi"))
	require.NoError(t, r.Typing(ctx, "a"))

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Connections: 2, Joined: 1, Messages: 1, Typing: 1}, stats)
}

func TestRelay_StoppedRelayRejectsCalls(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	require.NoError(t, r.Connect(context.Background(), "a", &recordingSink{}))

	cancel()
	<-r.Done()

	assert.ErrorIs(t, r.Connect(context.Background(), "b", &recordingSink{}), ErrRelayStopped)
	_, err := r.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrRelayStopped)
}

func TestRelay_CallerContextCancelled(t *testing.T) {
	r := New() // never started
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	for i := 0; i < inboxSize; i++ {
		r.inbox <- func() {}
	}
	err := r.Connect(ctx, "a", &recordingSink{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRelay_ConcurrentSendersKeepOneOrder(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()

	observerSink := connectAndJoin(t, r, "watch", "Watcher")
	const senders, perSender = 8, 25
	for i := 0; i < senders; i++ {
		connectAndJoin(t, r, string(rune('a'+i)), "user"+string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				assert.NoError(t, r.Send(ctx, id, "msg"))
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.History, senders*perSender)

	delivered := observerSink.named(chat.EventNewMessage)
	require.Len(t, delivered, senders*perSender)
	for i, e := range delivered {
		assert.Equal(t, snap.History[i].ID, e.Data.(chat.Message).ID)
	}
}
