package convo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/voxkit/voxkit/pkg/jsontime"
	"github.com/voxkit/voxkit/pkg/kv"
)

// DefaultSweepInterval is how often the engine sweeps expired offers and
// re-checks the settle window.
const DefaultSweepInterval = time.Second

// ErrClosed is returned by engine methods after Close.
var ErrClosed = errors.New("convo: engine closed")

// timeNow is the engine clock. A variable so tests can pin it.
var timeNow = time.Now

// Sender delivers an outbound message on the session's primary channel.
// The engine guarantees each submitted string is delivered to the Sender
// exactly once, in submission order.
type Sender interface {
	SendText(ctx context.Context, text string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, text string) error

func (f SenderFunc) SendText(ctx context.Context, text string) error { return f(ctx, text) }

// Config configures an Engine.
type Config struct {
	// Store is the durable store for the history snapshot. Required.
	Store kv.Store

	// Room scopes the snapshot slot. Required.
	Room string

	// LocalIdentity is the local participant's identity; messages from it
	// are OriginLocal, everything else OriginRemote.
	LocalIdentity string

	// Sender delivers outbound submissions. Optional; without it Send
	// returns an error.
	Sender Sender

	// OnUpdate is invoked from the engine loop with a copy of the
	// reconciled sequence whenever it changes. Optional. Handlers must
	// not call back into the engine synchronously.
	OnUpdate func([]Message)

	// Logger receives diagnostics. Optional.
	Logger Logger

	// Window overrides; zero values use the package defaults.
	MatchWindow   time.Duration
	OfferExpiry   time.Duration
	SettleWindow  time.Duration
	SweepInterval time.Duration
}

// Engine owns all mutable reconciliation state on one goroutine. Sources
// post events through the Handle* methods; the loop enriches, merges, and
// persists, then notifies OnUpdate. There is no locking: the pool, the
// source collections, and the reconciled view mutate only inside the loop.
type Engine struct {
	cfg Config
	log Logger
	now func() time.Time

	ops      chan func()
	quit     chan struct{}
	loopDone chan struct{}
	sendDone chan struct{}
	outbound chan string
	closer   sync.Once

	// Loop-owned state. Never touched off the loop goroutine.
	snapshot   []Message
	live       []Message
	liveIndex  map[string]int
	direct     []Message
	correlator *Correlator
	merger     Merger
	persister  *Persister
	view       []Message
}

// NewEngine creates and starts an engine. The persisted snapshot is read
// before any live source can emit, so a reload shows prior history
// immediately.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("convo: Config.Store is required")
	}
	if cfg.Room == "" {
		return nil, errors.New("convo: Config.Room is required")
	}
	log := cfg.Logger
	if log == nil {
		log = nopLogger{}
	}

	e := &Engine{
		cfg:        cfg,
		log:        log,
		now:        timeNow,
		ops:        make(chan func(), 256),
		quit:       make(chan struct{}),
		loopDone:   make(chan struct{}),
		sendDone:   make(chan struct{}),
		outbound:   make(chan string, 64),
		liveIndex:  make(map[string]int),
		correlator: NewCorrelator(cfg.MatchWindow, cfg.OfferExpiry, log),
		persister:  NewPersister(cfg.Store, cfg.Room, cfg.SettleWindow, log),
	}

	e.snapshot = e.persister.Load(context.Background())

	go e.loop()
	go e.sendLoop()

	// Surface the seeded history through the first reconcile.
	e.post(e.reconcile)
	return e, nil
}

// post schedules fn on the engine loop. Events posted after Close are
// dropped; teardown never mutates freed state.
func (e *Engine) post(fn func()) bool {
	select {
	case <-e.quit:
		return false
	case e.ops <- fn:
		return true
	}
}

func (e *Engine) loop() {
	defer close(e.loopDone)

	interval := e.cfg.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.quit:
			return
		case fn := <-e.ops:
			fn()
		case <-ticker.C:
			e.correlator.Sweep(e.now())
			// Messages may have crossed the settle window with no new
			// events; give the persister a chance to pick them up.
			e.persister.Save(context.Background(), e.view, e.now())
		}
	}
}

// HandleTranscription applies a transcription delta. A known id updates
// the existing entry in place: the text is replaced and EditedAt set, the
// original timestamp is kept so the row's position is stable.
func (e *Engine) HandleTranscription(ev TranscriptionEvent) {
	e.post(func() {
		ts := ev.Timestamp
		if ts.IsZero() {
			ts = jsontime.Milli(e.now())
		}
		if i, ok := e.liveIndex[ev.ID]; ok {
			m := &e.live[i]
			if m.Text != ev.Text {
				m.Text = ev.Text
				edited := ts
				m.EditedAt = &edited
			}
		} else {
			e.liveIndex[ev.ID] = len(e.live)
			e.live = append(e.live, Message{
				ID:          ev.ID,
				Timestamp:   ts,
				Origin:      e.originOf(ev.Participant),
				Participant: ev.Participant,
				Text:        ev.Text,
			})
		}
		e.attach()
		e.reconcile()
	})
}

// HandleChat applies a direct-channel message. Options are never attached
// on this channel.
func (e *Engine) HandleChat(ev ChatMessage) {
	e.post(func() {
		ts := ev.Timestamp
		if ts.IsZero() {
			ts = jsontime.Milli(e.now())
		}
		e.direct = append(e.direct, Message{
			ID:          ev.ID,
			Timestamp:   ts,
			Origin:      e.originOf(ev.Participant),
			Participant: ev.Participant,
			Text:        ev.Text,
		})
		e.reconcile()
	})
}

// HandleOffer pools a side-channel option offer and immediately tries to
// attach it to an already-present message; offers and their target
// transcription can arrive in either order.
func (e *Engine) HandleOffer(offer OptionOffer) {
	e.post(func() {
		if offer.ReceivedAt.IsZero() {
			offer.ReceivedAt = jsontime.Milli(e.now())
		}
		e.correlator.Add(offer)
		e.attach()
		e.reconcile()
	})
}

// attach runs a claim pass over live remote messages still lacking
// options. Pool removal keeps every offer one-shot no matter how often
// this runs.
func (e *Engine) attach() {
	for i := range e.live {
		m := &e.live[i]
		if m.Origin == OriginRemote && len(m.Options) == 0 {
			e.correlator.Claim(m)
		}
	}
}

// reconcile merges all sources, persists the settled subset, and notifies
// OnUpdate when the view actually changed.
func (e *Engine) reconcile() {
	prev := e.view
	e.view = e.merger.Merge(e.snapshot, e.live, e.direct)
	if sameView(prev, e.view) {
		return
	}
	e.persister.Save(context.Background(), e.view, e.now())
	if e.cfg.OnUpdate != nil {
		e.cfg.OnUpdate(cloneMessages(e.view))
	}
}

// sameView reports whether the memoized merger returned the identical
// slice again.
func sameView(a, b []Message) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}

// Messages returns a copy of the current reconciled sequence. It runs as a
// query on the engine loop, so it observes every event the caller posted
// beforehand. Returns nil after Close.
func (e *Engine) Messages() []Message {
	reply := make(chan []Message, 1)
	if !e.post(func() { reply <- cloneMessages(e.view) }) {
		return nil
	}
	select {
	case <-e.quit:
		return nil
	case msgs := <-reply:
		return msgs
	}
}

// Send submits text on the outbound channel. Submissions are delivered to
// the Sender exactly once each, in call order.
func (e *Engine) Send(text string) error {
	if e.cfg.Sender == nil {
		return errors.New("convo: no Sender configured")
	}
	select {
	case <-e.quit:
		return ErrClosed
	case e.outbound <- text:
		return nil
	}
}

// SelectOption submits an option's value through the same outbound path as
// free text; downstream cannot tell the two apart.
func (e *Engine) SelectOption(opt Option) error {
	return e.Send(opt.Value)
}

func (e *Engine) sendLoop() {
	defer close(e.sendDone)
	for {
		select {
		case <-e.quit:
			return
		case text := <-e.outbound:
			if err := e.cfg.Sender.SendText(context.Background(), text); err != nil {
				e.log.Warnf("outbound send failed: %v", err)
			}
		}
	}
}

// Close stops the engine. Idempotent; events posted afterwards are
// dropped. In-flight operations are not cancelled, they just have nowhere
// left to land.
func (e *Engine) Close() {
	e.closer.Do(func() {
		close(e.quit)
		<-e.loopDone
		<-e.sendDone
	})
}

func (e *Engine) originOf(participant string) Origin {
	if participant != "" && participant == e.cfg.LocalIdentity {
		return OriginLocal
	}
	return OriginRemote
}
