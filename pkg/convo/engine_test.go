package convo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/voxkit/voxkit/pkg/jsontime"
	"github.com/voxkit/voxkit/pkg/kv"
)

// fakeClock lets tests pin and advance the engine clock safely across
// goroutines.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestEngine(t *testing.T, cfg Config, clock *fakeClock) *Engine {
	t.Helper()
	if cfg.Store == nil {
		cfg.Store = kv.NewMemory()
	}
	if cfg.Room == "" {
		cfg.Room = "test"
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Hour // tests drive sweeps explicitly
	}
	saved := timeNow
	timeNow = clock.now
	e, err := NewEngine(cfg)
	timeNow = saved
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func mms(v int64) jsontime.Milli { return jsontime.Milli(time.UnixMilli(v)) }

func TestEngineTranscriptionUpdatesInPlace(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1000)}
	e := newTestEngine(t, Config{LocalIdentity: "alice"}, clock)

	e.HandleTranscription(TranscriptionEvent{ID: "m1", Timestamp: mms(1000), Participant: "agent", Text: "What can"})
	e.HandleTranscription(TranscriptionEvent{ID: "m1", Timestamp: mms(1200), Participant: "agent", Text: "What can I get you?"})

	msgs := e.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.Text != "What can I get you?" {
		t.Fatalf("Text = %q, want latest delta", m.Text)
	}
	if !m.Timestamp.Equal(mms(1000)) {
		t.Fatalf("Timestamp = %d, want the original 1000", m.Timestamp.UnixMilli())
	}
	if m.EditedAt == nil || !m.EditedAt.Equal(mms(1200)) {
		t.Fatalf("EditedAt = %v, want 1200", m.EditedAt)
	}
	if m.Origin != OriginRemote {
		t.Fatalf("Origin = %s, want remote", m.Origin)
	}
}

func TestEngineAttachesOfferEitherOrder(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1000)}
	e := newTestEngine(t, Config{LocalIdentity: "alice"}, clock)

	// Offer first, then the transcription it belongs to.
	e.HandleOffer(OptionOffer{
		Options:    []Option{{Label: "Latte", Value: "latte"}, {Label: "Cappuccino", Value: "cappuccino"}},
		TextHint:   "What can I get",
		ReceivedAt: mms(1000),
	})
	e.HandleTranscription(TranscriptionEvent{ID: "m1", Timestamp: mms(1010), Participant: "agent", Text: "What can I get for you today?"})

	// Transcription first, then its offer.
	e.HandleTranscription(TranscriptionEvent{ID: "m2", Timestamp: mms(2000), Participant: "agent", Text: "Anything else?"})
	e.HandleOffer(OptionOffer{
		Options:    []Option{{Label: "No thanks", Value: "no"}},
		ReceivedAt: mms(2100),
	})

	msgs := e.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if len(msgs[0].Options) != 2 || msgs[0].Options[0].Label != "Latte" {
		t.Fatalf("m1 options = %v", msgs[0].Options)
	}
	if len(msgs[1].Options) != 1 || msgs[1].Options[0].Value != "no" {
		t.Fatalf("m2 options = %v", msgs[1].Options)
	}
}

func TestEngineLocalAndDirectNeverGetOptions(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1000)}
	e := newTestEngine(t, Config{LocalIdentity: "alice"}, clock)

	e.HandleOffer(OptionOffer{Options: []Option{{Label: "x", Value: "x"}}, ReceivedAt: mms(1000)})
	e.HandleTranscription(TranscriptionEvent{ID: "u1", Timestamp: mms(1001), Participant: "alice", Text: "typed by the user"})
	e.HandleChat(ChatMessage{ID: "d1", Timestamp: mms(1002), Participant: "agent", Text: "direct channel"})

	for _, m := range e.Messages() {
		if len(m.Options) > 0 {
			t.Fatalf("message %s received options: %v", m.ID, m.Options)
		}
	}
}

func TestEngineOfferExpiresViaSweep(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1000)}
	e := newTestEngine(t, Config{LocalIdentity: "alice"}, clock)

	e.HandleOffer(OptionOffer{Options: []Option{{Label: "x", Value: "x"}}, ReceivedAt: mms(1000)})

	// Expiry window (5s) elapses with no candidate message.
	clock.set(time.UnixMilli(6001))
	done := make(chan struct{})
	e.post(func() {
		e.correlator.Sweep(e.now())
		close(done)
	})
	<-done

	e.HandleTranscription(TranscriptionEvent{ID: "m1", Timestamp: mms(6002), Participant: "agent", Text: "too late"})
	msgs := e.Messages()
	if len(msgs) != 1 || msgs[0].Options != nil {
		t.Fatalf("purged offer still attached: %+v", msgs)
	}
}

func TestEngineSendPreservesOrder(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1000)}

	var mu sync.Mutex
	var sent []string
	sender := SenderFunc(func(_ context.Context, text string) error {
		mu.Lock()
		sent = append(sent, text)
		mu.Unlock()
		return nil
	})

	e := newTestEngine(t, Config{LocalIdentity: "alice", Sender: sender}, clock)

	if err := e.Send("first"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := e.Send("second"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// Selecting an option is indistinguishable from typing its value.
	if err := e.SelectOption(Option{Label: "Latte", Value: "latte"}); err != nil {
		t.Fatalf("SelectOption: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(sent)
		mu.Unlock()
		if n == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d of 3 submissions delivered", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if sent[0] != "first" || sent[1] != "second" || sent[2] != "latte" {
		t.Fatalf("sent = %v, want submission order", sent)
	}
}

func TestEngineSendWithoutSender(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1000)}
	e := newTestEngine(t, Config{}, clock)
	if err := e.Send("text"); err == nil {
		t.Fatal("expected error without a Sender")
	}
}

func TestEngineReloadRoundTrip(t *testing.T) {
	store := kv.NewMemory()

	// First session: messages settle (clock is 10s past them) and persist.
	clock := &fakeClock{t: time.UnixMilli(20000)}
	e1 := newTestEngine(t, Config{Store: store, Room: "rt", LocalIdentity: "alice"}, clock)
	e1.HandleTranscription(TranscriptionEvent{ID: "u1", Timestamp: mms(1000), Participant: "alice", Text: "hi"})
	e1.HandleTranscription(TranscriptionEvent{ID: "a1", Timestamp: mms(1200), Participant: "agent", Text: "hello!"})
	before := e1.Messages()
	e1.Close()

	// Second session over the same store, no live events.
	e2 := newTestEngine(t, Config{Store: store, Room: "rt", LocalIdentity: "alice"}, clock)
	after := e2.Messages()

	if len(after) != len(before) {
		t.Fatalf("reload: %d messages, want %d", len(after), len(before))
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].Text != after[i].Text || before[i].Origin != after[i].Origin {
			t.Fatalf("reload mismatch at %d: %+v vs %+v", i, before[i], after[i])
		}
	}
}

func TestEngineReloadSkipsUnsettledEntries(t *testing.T) {
	store := kv.NewMemory()

	// Clock sits at 3s: a message at 1s is still inside the 5s settle
	// window when the session ends, so it must not survive the reload.
	clock := &fakeClock{t: time.UnixMilli(3000)}
	e1 := newTestEngine(t, Config{Store: store, Room: "rt2", LocalIdentity: "alice"}, clock)
	e1.HandleTranscription(TranscriptionEvent{ID: "m1", Timestamp: mms(1000), Participant: "agent", Text: "not settled"})
	e1.Close()

	e2 := newTestEngine(t, Config{Store: store, Room: "rt2", LocalIdentity: "alice"}, clock)
	if msgs := e2.Messages(); len(msgs) != 0 {
		t.Fatalf("unsettled entry resurfaced after reload: %v", msgs)
	}
}

func TestEngineDuplicateIDAcrossSnapshotAndLive(t *testing.T) {
	store := kv.NewMemory()
	clock := &fakeClock{t: time.UnixMilli(20000)}

	e1 := newTestEngine(t, Config{Store: store, Room: "dup", LocalIdentity: "alice"}, clock)
	e1.HandleTranscription(TranscriptionEvent{ID: "a1", Timestamp: mms(1000), Participant: "agent", Text: "persisted text"})
	e1.Messages() // force a reconcile/persist cycle before closing
	e1.Close()

	// Mid-session reload: the same id arrives again live with fresher
	// text. The live copy wins and the id appears once.
	e2 := newTestEngine(t, Config{Store: store, Room: "dup", LocalIdentity: "alice"}, clock)
	e2.HandleTranscription(TranscriptionEvent{ID: "a1", Timestamp: mms(1000), Participant: "agent", Text: "updated text"})
	msgs := e2.Messages()
	if len(msgs) != 1 {
		t.Fatalf("duplicate id produced %d entries", len(msgs))
	}
	if msgs[0].Text != "updated text" {
		t.Fatalf("Text = %q, want the live copy", msgs[0].Text)
	}
}

func TestEngineOnUpdateFiresOnlyOnChange(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1000)}
	updates := make(chan []Message, 16)
	e := newTestEngine(t, Config{
		LocalIdentity: "alice",
		OnUpdate:      func(msgs []Message) { updates <- msgs },
	}, clock)

	ev := TranscriptionEvent{ID: "m1", Timestamp: mms(1000), Participant: "agent", Text: "hello"}
	e.HandleTranscription(ev)
	e.HandleTranscription(ev) // identical redelivery: no visible change
	e.Messages()              // barrier: both events processed

	if n := len(updates); n != 1 {
		t.Fatalf("OnUpdate fired %d times, want 1", n)
	}
	got := <-updates
	if len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("update payload = %v", got)
	}
}

func TestEngineCloseIdempotent(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1000)}
	e := newTestEngine(t, Config{LocalIdentity: "alice"}, clock)

	e.Close()
	e.Close()

	// Events after close are dropped, not applied, and must not panic.
	e.HandleTranscription(TranscriptionEvent{ID: "m1", Timestamp: mms(1000), Participant: "agent", Text: "late"})
	if msgs := e.Messages(); msgs != nil {
		t.Fatalf("Messages after close = %v, want nil", msgs)
	}
	if err := e.Send("text"); err == nil {
		t.Fatal("Send after close should fail")
	}
}
