package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SimpleChat/internal/chat"
	"SimpleChat/internal/eliza"
	"SimpleChat/internal/storage"
)

// fakeScheduler collects timers and fires them on demand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	fn      func()
	stopped bool
	fired   bool
}

func (s *fakeScheduler) AfterFunc(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{fn: fn}
	s.timers = append(s.timers, t)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.stopped = true
	}
}

// fire runs every armed timer that has not been stopped.
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

func (s *fakeScheduler) armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// completerFunc adapts a function to the Completer interface.
type completerFunc func(ctx context.Context, message string) (string, error)

func (f completerFunc) Complete(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

// blockingCompleter holds every request until released, honoring ctx.
type blockingCompleter struct {
	release chan struct{}
	reply   string
}

func newBlockingCompleter(reply string) *blockingCompleter {
	return &blockingCompleter{release: make(chan struct{}), reply: reply}
}

func (b *blockingCompleter) Complete(ctx context.Context, message string) (string, error) {
	select {
	case <-b.release:
		return b.reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func newTestStore() *chat.Store {
	return chat.NewStore(chat.Options{Storage: storage.NewMemoryStore()})
}

func waitForText(t *testing.T, store *chat.Store, index int, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		msgs := store.GetAllMessages()
		return len(msgs) > index && msgs[index].Text == want
	}, 2*time.Second, 10*time.Millisecond, "message %d never became %q", index, want)
}

func TestElizaMode_SendProducesDelayedReply(t *testing.T) {
	store := newTestStore()
	sched := &fakeScheduler{}
	d := New(Options{
		Store:     store,
		Engine:    eliza.New(1),
		Scheduler: sched,
		Mode:      ModeEliza,
	})

	entry := d.HandleSend("hello", true)
	require.NotNil(t, entry)
	require.Len(t, store.GetAllMessages(), 1, "reply waits for the delay")
	assert.Equal(t, 1, d.PendingCount())

	sched.fire()

	msgs := store.GetAllMessages()
	require.Len(t, msgs, 2)
	assert.False(t, msgs[1].IsUser)
	assert.NotEmpty(t, msgs[1].Text)
	assert.Equal(t, 0, d.PendingCount())
}

func TestHandleSend_RejectsEmptyText(t *testing.T) {
	store := newTestStore()
	d := New(Options{Store: store, Engine: eliza.New(1), Scheduler: &fakeScheduler{}})

	assert.Nil(t, d.HandleSend("", true))
	assert.Nil(t, d.HandleSend("   ", true))
	assert.Empty(t, store.GetAllMessages())
}

func TestHandleSend_BotMessageGetsNoReplyWork(t *testing.T) {
	store := newTestStore()
	sched := &fakeScheduler{}
	d := New(Options{Store: store, Engine: eliza.New(1), Scheduler: sched})

	d.HandleSend("imported bot line", false)
	assert.Equal(t, 0, d.PendingCount())
	assert.Zero(t, sched.armed())
}

func TestProviderMode_SendResolvesPlaceholder(t *testing.T) {
	store := newTestStore()
	d := New(Options{
		Store: store,
		Mode:  ModeChatGPT,
		Completer: completerFunc(func(ctx context.Context, message string) (string, error) {
			return "Mocked LLM response.", nil
		}),
	})

	d.HandleSend("Summarize MVC", true)

	msgs := store.GetAllMessages()
	require.Len(t, msgs, 2, "placeholder appears immediately")
	assert.False(t, msgs[1].IsUser)

	waitForText(t, store, 1, "Mocked LLM response.")
	assert.Len(t, store.GetAllMessages(), 2, "reply lands in the placeholder, not appended")
	assert.False(t, store.GetAllMessages()[1].Edited, "placeholder fill is not an edit")
}

func TestProviderMode_FailureWritesUnavailabilityNotice(t *testing.T) {
	store := newTestStore()
	d := New(Options{
		Store: store,
		Mode:  ModeChatGPT,
		Completer: completerFunc(func(ctx context.Context, message string) (string, error) {
			return "", assert.AnError
		}),
	})

	d.HandleSend("anything", true)
	waitForText(t, store, 1, UnavailableNotice)
	assert.Equal(t, 0, d.PendingCount())
}

func TestModeSwitch_CancelsInFlightRequest(t *testing.T) {
	store := newTestStore()
	completer := newBlockingCompleter("too late")
	d := New(Options{
		Store:     store,
		Engine:    eliza.New(1),
		Mode:      ModeChatGPT,
		Completer: completer,
		Scheduler: &fakeScheduler{},
	})

	d.HandleSend("slow question", true)
	require.Len(t, store.GetAllMessages(), 2)
	require.Equal(t, ThinkingLabel, store.GetAllMessages()[1].Text)

	require.NoError(t, d.SetMode(ModeEliza))

	waitForText(t, store, 1, CancelledNotice)
	assert.Equal(t, 0, d.PendingCount())
}

func TestSetMode_RejectsUnknownMode(t *testing.T) {
	d := New(Options{Store: newTestStore(), Engine: eliza.New(1), Scheduler: &fakeScheduler{}})
	assert.Error(t, d.SetMode("markov"))
	assert.NoError(t, d.SetMode(ModeEliza), "setting the current mode is a no-op")
}

func TestEditCascade_OverwritesExistingReplyInPlace(t *testing.T) {
	store := newTestStore()
	sched := &fakeScheduler{}
	d := New(Options{Store: store, Engine: eliza.New(1), Scheduler: sched, Mode: ModeEliza})

	u := d.HandleSend("i need coffee", true)
	sched.fire()

	msgs := store.GetAllMessages()
	require.Len(t, msgs, 2)
	replyID := msgs[1].ID

	d.HandleEdit(u.ID, "i need tea")

	msgs = store.GetAllMessages()
	require.Len(t, msgs, 2, "no duplicate answer")
	assert.Equal(t, replyID, msgs[1].ID, "same slot")
	assert.Contains(t, msgs[1].Text, "tea")
	assert.True(t, msgs[1].Edited, "correcting a delivered reply is flagged")
}

func TestEditCascade_ProviderModeReusesSlot(t *testing.T) {
	store := newTestStore()
	d := New(Options{
		Store: store,
		Mode:  ModeChatGPT,
		Completer: completerFunc(func(ctx context.Context, message string) (string, error) {
			return "reply to: " + message, nil
		}),
	})

	u := d.HandleSend("first question", true)
	waitForText(t, store, 1, "reply to: first question")
	replyID := store.GetAllMessages()[1].ID

	d.HandleEdit(u.ID, "second question")
	waitForText(t, store, 1, "reply to: second question")

	msgs := store.GetAllMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, replyID, msgs[1].ID)
	assert.True(t, msgs[1].Edited)
}

func TestEdit_WhileReplyPending_StartsExactlyOneNewUnit(t *testing.T) {
	store := newTestStore()
	sched := &fakeScheduler{}
	d := New(Options{Store: store, Engine: eliza.New(1), Scheduler: sched, Mode: ModeEliza})

	u := d.HandleSend("i need coffee", true)
	require.Equal(t, 1, sched.armed())

	d.HandleEdit(u.ID, "i need tea")
	assert.Equal(t, 1, sched.armed(), "old timer cancelled, one new timer armed")
	assert.Equal(t, 1, d.PendingCount())

	sched.fire()

	msgs := store.GetAllMessages()
	require.Len(t, msgs, 2, "exactly one reply for the edited message")
	assert.Contains(t, msgs[1].Text, "tea")
}

func TestEdit_IgnoresUnknownAndBotIDs(t *testing.T) {
	store := newTestStore()
	sched := &fakeScheduler{}
	d := New(Options{Store: store, Engine: eliza.New(1), Scheduler: sched})

	bot := store.AddMessage("bot line", false)
	d.HandleEdit(bot.ID, "nope")
	d.HandleEdit("missing", "nope")
	d.HandleEdit("", "")

	assert.Equal(t, "bot line", store.GetAllMessages()[0].Text)
	assert.Zero(t, sched.armed())
}

func TestDelete_CancelsPendingWork(t *testing.T) {
	store := newTestStore()
	completer := newBlockingCompleter("orphan reply")
	d := New(Options{Store: store, Mode: ModeChatGPT, Completer: completer})

	u := d.HandleSend("doomed question", true)
	require.Len(t, store.GetAllMessages(), 2)

	d.HandleDelete(u.ID)
	assert.Empty(t, store.GetAllMessages(), "tail truncation removed the placeholder too")
	assert.Equal(t, 0, d.PendingCount())

	// The aborted request must not resurrect anything.
	close(completer.release)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, store.GetAllMessages())
}

func TestDelete_TimerNeverFiresForRemovedMessage(t *testing.T) {
	store := newTestStore()
	sched := &fakeScheduler{}
	d := New(Options{Store: store, Engine: eliza.New(1), Scheduler: sched, Mode: ModeEliza})

	u := d.HandleSend("hello", true)
	d.HandleDelete(u.ID)

	sched.fire()
	assert.Empty(t, store.GetAllMessages())
}

func TestClear_CancelsAllPendingWork(t *testing.T) {
	store := newTestStore()
	sched := &fakeScheduler{}
	d := New(Options{Store: store, Engine: eliza.New(1), Scheduler: sched, Mode: ModeEliza})

	d.HandleSend("one", true)
	d.HandleSend("two", true)
	require.Equal(t, 2, d.PendingCount())

	d.HandleClear()
	assert.Empty(t, store.GetAllMessages())
	assert.Equal(t, 0, d.PendingCount())

	sched.fire()
	assert.Empty(t, store.GetAllMessages())
}

func TestImport_ReplacesConversationAndCancelsWork(t *testing.T) {
	store := newTestStore()
	sched := &fakeScheduler{}
	d := New(Options{Store: store, Engine: eliza.New(1), Scheduler: sched, Mode: ModeEliza})

	d.HandleSend("about to vanish", true)

	imported, err := d.HandleImport([]byte(`[{"message":"restored","isUser":true}]`))
	require.NoError(t, err)
	require.Len(t, imported, 1)
	assert.Equal(t, 0, d.PendingCount())

	sched.fire()
	require.Len(t, store.GetAllMessages(), 1, "cancelled timer adds nothing")
}

func TestImport_InvalidFormatLeavesStateUntouched(t *testing.T) {
	store := newTestStore()
	d := New(Options{Store: store, Engine: eliza.New(1), Scheduler: &fakeScheduler{}})

	store.AddMessage("keep me", true)

	_, err := d.HandleImport([]byte(`{"not":"a chat"}`))
	require.ErrorIs(t, err, chat.ErrInvalidFormat)
	require.Len(t, store.GetAllMessages(), 1)
	assert.Equal(t, "keep me", store.GetAllMessages()[0].Text)
}

func TestProviderMode_OutOfOrderResolutionPatchesOwnSlots(t *testing.T) {
	store := newTestStore()
	first := newBlockingCompleter("")

	d := New(Options{
		Store: store,
		Mode:  ModeChatGPT,
		Completer: completerFunc(func(ctx context.Context, message string) (string, error) {
			if message == "slow" {
				select {
				case <-first.release:
					return "slow reply", nil
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}
			return "fast reply", nil
		}),
	})

	d.HandleSend("slow", true)
	d.HandleSend("fast", true)

	// The later message resolves first.
	waitForText(t, store, 3, "fast reply")
	assert.Equal(t, ThinkingLabel, store.GetAllMessages()[1].Text)

	close(first.release)
	waitForText(t, store, 1, "slow reply")

	msgs := store.GetAllMessages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "slow reply", msgs[1].Text)
	assert.Equal(t, "fast reply", msgs[3].Text)
}
