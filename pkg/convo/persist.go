package convo

import (
	"context"
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/voxkit/voxkit/pkg/jsontime"
	"github.com/voxkit/voxkit/pkg/kv"
)

// DefaultSettleWindow is the minimum age before a message is considered
// final enough to persist. Entries younger than this at write time are
// left out of the snapshot so a reload never resurrects text that may
// still update in place.
const DefaultSettleWindow = 5 * time.Second

// HistoryKey returns the store key holding a room's persisted snapshot.
func HistoryKey(room string) string { return "history:" + room }

// storedMessage is the at-rest shape of a Message. Kept separate from the
// wire shape so the msgpack encoding does not chase time.Time internals.
type storedMessage struct {
	ID          string   `msgpack:"id"`
	Timestamp   int64    `msgpack:"ts"`
	Origin      string   `msgpack:"origin"`
	Participant string   `msgpack:"who,omitempty"`
	Text        string   `msgpack:"text"`
	EditedAt    int64    `msgpack:"edited,omitempty"`
	Options     []Option `msgpack:"options,omitempty"`
}

// EncodeSnapshot serializes messages into the persisted snapshot form.
func EncodeSnapshot(msgs []Message) ([]byte, error) {
	stored := make([]storedMessage, len(msgs))
	for i, m := range msgs {
		sm := storedMessage{
			ID:          m.ID,
			Timestamp:   m.Timestamp.UnixMilli(),
			Origin:      string(m.Origin),
			Participant: m.Participant,
			Text:        m.Text,
			Options:     m.Options,
		}
		if m.EditedAt != nil {
			sm.EditedAt = m.EditedAt.UnixMilli()
		}
		stored[i] = sm
	}
	return msgpack.Marshal(stored)
}

// DecodeSnapshot deserializes a persisted snapshot.
func DecodeSnapshot(data []byte) ([]Message, error) {
	var stored []storedMessage
	if err := msgpack.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	msgs := make([]Message, len(stored))
	for i, sm := range stored {
		m := Message{
			ID:          sm.ID,
			Timestamp:   jsontime.Milli(time.UnixMilli(sm.Timestamp)),
			Origin:      Origin(sm.Origin),
			Participant: sm.Participant,
			Text:        sm.Text,
			Options:     sm.Options,
		}
		if sm.EditedAt != 0 {
			e := jsontime.Milli(time.UnixMilli(sm.EditedAt))
			m.EditedAt = &e
		}
		msgs[i] = m
	}
	return msgs, nil
}

// Persister writes settled messages into a room's single snapshot slot and
// seeds the view from it on startup. Store failures are logged and degrade
// to "no persisted data" on read and "write skipped" on write; a skipped
// write retries naturally on the next reconciliation cycle.
type Persister struct {
	store  kv.Store
	key    string
	settle time.Duration
	log    Logger

	// lastDigest skips rewrites when the eligible subset is unchanged
	// since the previous successful write.
	lastDigest uint64
	written    bool
}

// NewPersister creates a Persister for one room. A zero settle window
// falls back to DefaultSettleWindow; a nil logger discards output.
func NewPersister(store kv.Store, room string, settle time.Duration, log Logger) *Persister {
	if settle <= 0 {
		settle = DefaultSettleWindow
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Persister{store: store, key: HistoryKey(room), settle: settle, log: log}
}

// Load reads the room's snapshot once at startup. A missing slot or any
// read/decode failure yields an empty history.
func (p *Persister) Load(ctx context.Context) []Message {
	data, err := p.store.Get(ctx, p.key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			p.log.Warnf("history read failed, starting empty: %v", err)
		}
		return nil
	}
	msgs, err := DecodeSnapshot(data)
	if err != nil {
		p.log.Warnf("history decode failed, starting empty: %v", err)
		return nil
	}
	p.log.Debugf("loaded %d persisted message(s) from %s", len(msgs), p.key)
	return msgs
}

// Save overwrites the room's slot with the subset of seq older than the
// settle window at now. The write is a full replacement, not an append.
func (p *Persister) Save(ctx context.Context, seq []Message, now time.Time) {
	cutoff := jsontime.Milli(now.Add(-p.settle))
	eligible := make([]Message, 0, len(seq))
	for _, m := range seq {
		if m.Timestamp.Before(cutoff) {
			eligible = append(eligible, m)
		}
	}

	d := digestSources(eligible)
	if p.written && d == p.lastDigest {
		return
	}

	data, err := EncodeSnapshot(eligible)
	if err != nil {
		p.log.Warnf("history encode failed, write skipped: %v", err)
		return
	}
	if err := p.store.Set(ctx, p.key, data); err != nil {
		p.log.Warnf("history write failed, write skipped: %v", err)
		return
	}
	p.lastDigest = d
	p.written = true
	p.log.Debugf("persisted %d settled message(s) to %s", len(eligible), p.key)
}
