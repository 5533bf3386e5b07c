// Package convo reconciles a voice session's independently arriving streams
// (live transcription deltas, a structured side-channel carrying option
// offers, a direct chat channel, and a persisted history snapshot) into a
// single chronologically ordered conversation view.
//
// The core pieces are:
//
//   - [Correlator]: attaches option offers to the remote utterance that
//     produced them, using explicit ids, text hints, and temporal proximity.
//   - [Merger]: orders and de-duplicates messages from all sources with a
//     stable sort, memoized so unchanged inputs yield the identical slice.
//   - [Persister]: snapshots settled messages into a [kv.Store] slot and
//     seeds the view from it on startup.
//   - [Engine]: the single-goroutine event loop that owns all mutable state
//     and exposes the reconciled sequence.
//
// All timestamps are Unix milliseconds ([jsontime.Milli]) as delivered by
// the feed.
package convo

import (
	"github.com/voxkit/voxkit/pkg/jsontime"
)

// Origin identifies which side of the conversation produced a message.
type Origin string

const (
	// OriginLocal marks messages from the local participant (the user).
	OriginLocal Origin = "local"
	// OriginRemote marks messages from any other participant (the agent).
	OriginRemote Origin = "remote"
)

// Option is one selectable response choice offered alongside a remote
// message. Choosing it submits Value verbatim as the next outbound message.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Message is a single reconciled conversation entry.
//
// ID is opaque and unique within a session. Timestamp orders the entry in
// the reconciled sequence and never changes after creation; in-place
// transcription updates replace Text and set EditedAt instead, so rows do
// not jump. Options is set at most once, by the correlator.
type Message struct {
	ID          string          `json:"id"`
	Timestamp   jsontime.Milli  `json:"timestamp"`
	Origin      Origin          `json:"origin"`
	Participant string          `json:"participantIdentity,omitempty"`
	Text        string          `json:"text"`
	EditedAt    *jsontime.Milli `json:"editedAt,omitempty"`
	Options     []Option        `json:"options,omitempty"`
}

// TranscriptionEvent is an ordered text delta from the transcription
// stream. Repeated delivery of the same ID is an in-place update of the
// existing entry, not a new one.
type TranscriptionEvent struct {
	ID          string         `json:"id"`
	Timestamp   jsontime.Milli `json:"timestamp"`
	Participant string         `json:"participantIdentity"`
	Text        string         `json:"text"`
}

// ChatMessage is an already-materialized message from the direct two-way
// chat channel. Messages on this channel never carry options.
type ChatMessage struct {
	ID          string         `json:"id"`
	Timestamp   jsontime.Milli `json:"timestamp"`
	Participant string         `json:"participantIdentity"`
	Text        string         `json:"text"`
}

// OptionOffer is a side-channel broadcast proposing selectable response
// options for a remote message. The producing channel shares no identifier
// with the transcription stream, so attachment is best-effort: MessageID
// and TextHint narrow the match when present, temporal proximity is the
// fallback.
type OptionOffer struct {
	Options []Option
	// MessageID is an explicit correlation id for the target message,
	// when the producer can supply one.
	MessageID string
	// TextHint is a prefix or substring of the target message's text.
	TextHint string
	// ReceivedAt is when the offer arrived on the side-channel.
	ReceivedAt jsontime.Milli
}

// clone returns a deep copy of m so callers cannot mutate engine state
// through returned slices.
func (m Message) clone() Message {
	cp := m
	if m.EditedAt != nil {
		e := *m.EditedAt
		cp.EditedAt = &e
	}
	if m.Options != nil {
		cp.Options = make([]Option, len(m.Options))
		copy(cp.Options, m.Options)
	}
	return cp
}

func cloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.clone()
	}
	return out
}
