package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/semaphore"

	"github.com/example/collab-chat-relay/domain/chat"
)

// Responder defaults.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxInFlight = 4

	postTimeout = 5 * time.Second
)

// Responder errors.
var (
	ErrBusy            = errors.New("too many replies in flight")
	ErrResponderClosed = errors.New("responder closed")
)

// Poster appends a bot message to the chat. The relay implements it.
type Poster interface {
	PostBotReply(ctx context.Context, text string) (chat.Message, error)
}

// ResponderConfig tunes a Responder.
type ResponderConfig struct {
	Timeout     time.Duration // bound on one generation
	MaxInFlight int           // concurrent generations; extra mentions are dropped
}

// ResponderStats counts mention outcomes.
type ResponderStats struct {
	InFlight int64 `json:"in_flight"`
	Posted   int64 `json:"posted"`
	Failed   int64 `json:"failed"`
	Dropped  int64 `json:"dropped"`
}

// Responder turns mentions into bot replies in the background. Failures are
// logged and never reach chat clients.
type Responder struct {
	generator Generator
	poster    Poster
	logger    types.Logger
	timeout   time.Duration
	sem       *semaphore.Weighted

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool

	inFlight atomic.Int64
	posted   atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

// NewResponder creates a Responder.
func NewResponder(generator Generator, poster Poster, cfg ResponderConfig, logger types.Logger) *Responder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}

	base, cancel := context.WithCancel(context.Background())
	return &Responder{
		generator: generator,
		poster:    poster,
		logger:    logger,
		timeout:   cfg.Timeout,
		sem:       semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		base:      base,
		cancel:    cancel,
	}
}

// HandleMention starts generating a reply in the background and returns
// immediately. It returns ErrBusy when every slot is taken; the mention is
// dropped in that case.
func (r *Responder) HandleMention(req chat.MentionRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrResponderClosed
	}
	if !r.sem.TryAcquire(1) {
		r.dropped.Add(1)
		return ErrBusy
	}

	r.wg.Add(1)
	r.inFlight.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inFlight.Add(-1)
		defer r.sem.Release(1)
		r.Respond(r.base, req)
	}()
	return nil
}

// Respond generates and posts a reply synchronously. Any failure is logged
// and swallowed.
func (r *Responder) Respond(ctx context.Context, req chat.MentionRequest) {
	reply, err := r.Generate(ctx, req)
	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("Bot reply generation failed", "messageID", req.Trigger.ID, "error", err)
		return
	}

	postCtx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()
	msg, err := r.poster.PostBotReply(postCtx, reply)
	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("Failed to post bot reply", "messageID", req.Trigger.ID, "error", err)
		return
	}

	r.posted.Add(1)
	r.logger.Info("Bot replied", "trigger", req.Trigger.ID, "reply", msg.ID)
}

// Generate asks the generator for a reply, bounded by the configured timeout,
// and cleans it for posting.
func (r *Responder) Generate(ctx context.Context, req chat.MentionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conversation := req.Context
	if len(conversation) == 0 {
		conversation = []chat.Message{req.Trigger}
	}

	text, err := r.generator.GenerateReply(ctx, conversation)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	reasoning, reply := CleanReply(text, chat.MaxMessageLength)
	if reasoning != "" {
		r.logger.Debug("Stripped model reasoning", "messageID", req.Trigger.ID, "reasoning", reasoning)
	}
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// Close stops accepting mentions, cancels running generations and waits for
// them to finish or ctx to expire.
func (r *Responder) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for bot replies: %w", ctx.Err())
	}
}

// Stats returns the outcome counters.
func (r *Responder) Stats() ResponderStats {
	return ResponderStats{
		InFlight: r.inFlight.Load(),
		Posted:   r.posted.Load(),
		Failed:   r.failed.Load(),
		Dropped:  r.dropped.Load(),
	}
}
