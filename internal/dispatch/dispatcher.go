// Package dispatch produces bot replies for user messages. It owns the
// pending-work bookkeeping: at most one in-flight reply per user message,
// cancellable whether it is a delayed keyword reply or a network request.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"SimpleChat/internal/chat"
)

// Mode selects how bot replies are generated.
type Mode string

const (
	// ModeEliza answers locally with the keyword engine after a short delay.
	ModeEliza Mode = "eliza"
	// ModeChatGPT answers through the completion provider.
	ModeChatGPT Mode = "chatgpt"
)

// DefaultReplyDelay is the keyword-engine reply delay.
const DefaultReplyDelay = 250 * time.Millisecond

const (
	// ThinkingLabel fills a bot placeholder while a provider request runs.
	ThinkingLabel = "Thinking…"
	// CancelledNotice settles a placeholder whose request was cancelled.
	CancelledNotice = "Request cancelled."
	// UnavailableNotice settles a placeholder after a provider failure.
	UnavailableNotice = "The assistant is unavailable right now. Please try again later."
)

// Completer is the completion-provider boundary: user text in, reply text
// or failure out. Cancelling ctx must abort the request.
type Completer interface {
	Complete(ctx context.Context, message string) (string, error)
}

// KeywordEngine is the synchronous local reply generator.
type KeywordEngine interface {
	Reply(text string) string
}

// Scheduler runs a function after a delay and returns a cancel handle.
// Injected so tests can fire timers deterministically.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// pendingReply tracks one in-flight unit of reply work, keyed by the user
// message that triggered it. botID is set only for provider requests, which
// settle into an existing placeholder slot.
type pendingReply struct {
	userID     string
	botID      string
	cancel     func()
	superseded bool
	markEdited bool
}

// Options configures a Dispatcher. Zero fields get working defaults,
// except Store which is required.
type Options struct {
	Store      *chat.Store
	Engine     KeywordEngine
	Completer  Completer
	Scheduler  Scheduler
	Logger     *slog.Logger
	Mode       Mode
	ReplyDelay time.Duration
}

// Dispatcher reacts to presentation intents: it mutates the store and
// schedules, reuses or cancels reply work so bot answers stay coherent
// with user-message edits and deletes.
//
// Store subscribers must not call back into the Dispatcher; completion
// paths deliver replies while holding its lock.
type Dispatcher struct {
	mu        sync.Mutex
	store     *chat.Store
	engine    KeywordEngine
	completer Completer
	sched     Scheduler
	logger    *slog.Logger
	mode      Mode
	delay     time.Duration
	pending   map[string]*pendingReply
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Scheduler == nil {
		opts.Scheduler = timerScheduler{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Mode == "" {
		opts.Mode = ModeEliza
	}
	if opts.ReplyDelay <= 0 {
		opts.ReplyDelay = DefaultReplyDelay
	}
	return &Dispatcher{
		store:     opts.Store,
		engine:    opts.Engine,
		completer: opts.Completer,
		sched:     opts.Scheduler,
		logger:    opts.Logger,
		mode:      opts.Mode,
		delay:     opts.ReplyDelay,
		pending:   make(map[string]*pendingReply),
	}
}

// Mode returns the active reply mode.
func (d *Dispatcher) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// SetMode switches the reply mode. Switching cancels all in-flight work;
// provider placeholders settle with a cancellation notice.
func (d *Dispatcher) SetMode(mode Mode) error {
	if mode != ModeEliza && mode != ModeChatGPT {
		return fmt.Errorf("unknown mode: %s", mode)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if mode == d.mode {
		return nil
	}
	d.mode = mode
	d.cancelAllLocked()
	d.logger.Info("reply mode changed", "mode", mode)
	return nil
}

// PendingCount reports how many replies are in flight.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// HandleSend records a message and, for user messages, starts reply work.
// Empty text is rejected here; the store performs no content checks.
func (d *Dispatcher) HandleSend(text string, isUser bool) *chat.Message {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	entry := d.store.AddMessage(trimmed, isUser)
	if isUser {
		d.mu.Lock()
		d.dispatchLocked(entry.ID, trimmed, "")
		d.mu.Unlock()
	}
	return &entry
}

// HandleEdit rewrites a user message and refreshes its answer. Any pending
// reply for the old content is cancelled first; when the store reports an
// existing bot reply right after the edited message, that slot is reused
// instead of appending a duplicate answer.
func (d *Dispatcher) HandleEdit(messageID, newText string) {
	trimmed := strings.TrimSpace(newText)
	if messageID == "" || trimmed == "" {
		return
	}

	updated, nextBot := d.store.UpdateUserMessage(messageID, trimmed)
	if updated == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelLocked(messageID, true)
	if nextBot != nil {
		d.dispatchLocked(messageID, trimmed, nextBot.ID)
	} else {
		d.dispatchLocked(messageID, trimmed, "")
	}
}

// HandleDelete removes a message and the rest of the conversation tail,
// cancelling pending work for every removed user message. A reply must
// never land after its triggering message is gone.
func (d *Dispatcher) HandleDelete(messageID string) {
	if messageID == "" {
		return
	}

	removed := d.store.RemoveMessage(messageID)
	if len(removed) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, msg := range removed {
		if msg.IsUser {
			d.cancelLocked(msg.ID, false)
		}
	}
}

// HandleClear empties the conversation and cancels all pending work.
func (d *Dispatcher) HandleClear() {
	d.store.ClearMessages()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelAllLocked()
}

// HandleImport replaces the conversation and cancels all pending work.
// A malformed payload is reported to the caller with the state untouched.
func (d *Dispatcher) HandleImport(raw []byte) ([]chat.Message, error) {
	imported, err := d.store.ImportMessages(raw)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelAllLocked()
	return imported, nil
}

// dispatchLocked starts exactly one unit of reply work for the given user
// message, superseding any prior work for the same id. reuseBotID, when
// set, names the existing bot slot to overwrite instead of appending.
func (d *Dispatcher) dispatchLocked(userID, text, reuseBotID string) {
	d.cancelLocked(userID, true)

	switch d.mode {
	case ModeChatGPT:
		d.dispatchProviderLocked(userID, text, reuseBotID)
	default:
		d.dispatchElizaLocked(userID, text, reuseBotID)
	}
}

func (d *Dispatcher) dispatchElizaLocked(userID, text, reuseBotID string) {
	if reuseBotID != "" {
		// Edit-cascade with an already delivered answer: rewrite it in
		// place, flagged as a correction.
		d.store.UpdateMessageContent(reuseBotID, d.engine.Reply(text), true)
		return
	}

	p := &pendingReply{userID: userID}
	p.cancel = d.sched.AfterFunc(d.delay, func() {
		d.completeTimer(p, text)
	})
	d.pending[userID] = p
}

func (d *Dispatcher) completeTimer(p *pendingReply, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending[p.userID] != p {
		return
	}
	delete(d.pending, p.userID)
	d.store.AddMessage(d.engine.Reply(text), false)
}

func (d *Dispatcher) dispatchProviderLocked(userID, text, reuseBotID string) {
	var botID string
	markEdited := false

	if reuseBotID != "" {
		// Reused slot: the final reply corrects an already delivered
		// answer, so it is flagged as an edit. The interim label is not.
		if d.store.UpdateMessageContent(reuseBotID, ThinkingLabel, false) != nil {
			botID = reuseBotID
			markEdited = true
		}
	}
	if botID == "" {
		placeholder := d.store.AddMessage(ThinkingLabel, false)
		botID = placeholder.ID
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &pendingReply{
		userID:     userID,
		botID:      botID,
		cancel:     cancel,
		markEdited: markEdited,
	}
	d.pending[userID] = p

	go d.completeRequest(ctx, p, text)
}

// completeRequest settles a provider request into its placeholder slot.
// A superseded request never touches the slot: the newer work owns it. A
// cancelled request settles the slot with a cancellation notice so nothing
// is left permanently "thinking"; if the slot was removed meanwhile, the
// overwrite is a harmless no-op.
func (d *Dispatcher) completeRequest(ctx context.Context, p *pendingReply, text string) {
	reply, err := d.completer.Complete(ctx, text)

	d.mu.Lock()
	defer d.mu.Unlock()

	current := d.pending[p.userID] == p
	if current {
		delete(d.pending, p.userID)
	}
	if p.superseded {
		return
	}

	switch {
	case err == nil && current:
		d.store.UpdateMessageContent(p.botID, reply, p.markEdited)
	case err == nil || errors.Is(err, context.Canceled):
		// Cancelled (or the response raced the cancellation): settle the
		// placeholder without logging, this is an expected outcome.
		d.store.UpdateMessageContent(p.botID, CancelledNotice, false)
	default:
		d.logger.Error("completion request failed", "error", err)
		d.store.UpdateMessageContent(p.botID, UnavailableNotice, false)
	}
}

// cancelLocked cancels pending work for one user message. superseded marks
// the cancellation as "about to be replaced", which stops the old request
// from settling the slot its replacement now owns.
func (d *Dispatcher) cancelLocked(userID string, superseded bool) {
	p, ok := d.pending[userID]
	if !ok {
		return
	}
	if superseded {
		p.superseded = true
	}
	p.cancel()
	delete(d.pending, userID)
}

func (d *Dispatcher) cancelAllLocked() {
	for id, p := range d.pending {
		p.cancel()
		delete(d.pending, id)
	}
}
