package convo

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Merger combines the persisted snapshot, the enriched transcription
// messages, and the direct-channel messages into one reconciled sequence:
// ascending by timestamp, stable on ties (arrival order), one entry per id.
//
// The output is referentially stable: when a content digest of the inputs
// matches the previous call, the previously returned slice is handed back
// unchanged so downstream renderers can skip work.
//
// Merger is not safe for concurrent use; the engine loop serializes calls.
type Merger struct {
	digest uint64
	cached []Message
	primed bool
}

// Merge reconciles the three sources. Options are always cleared on the
// direct channel. When the same id appears in more than one source the
// copy from the later source wins (live over snapshot, so a mid-session
// reload keeps the freshest edit state), but it keeps the earliest
// arrival position so rows do not jump.
func (g *Merger) Merge(snapshot, live, direct []Message) []Message {
	d := digestSources(snapshot, live, direct)
	if g.primed && d == g.digest {
		return g.cached
	}

	out := make([]Message, 0, len(snapshot)+len(live)+len(direct))
	index := make(map[string]int, cap(out))

	collapse := func(m Message) {
		if i, ok := index[m.ID]; ok {
			out[i] = m
			return
		}
		index[m.ID] = len(out)
		out = append(out, m)
	}

	for _, m := range snapshot {
		collapse(m)
	}
	for _, m := range live {
		collapse(m)
	}
	for _, m := range direct {
		m.Options = nil
		collapse(m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	g.digest = d
	g.cached = out
	g.primed = true
	return out
}

// digestSources hashes every field that affects merge output, with
// separators between fields, messages, and sources so reslicing content
// across boundaries cannot collide.
func digestSources(sources ...[]Message) uint64 {
	h := xxhash.New()
	var buf [8]byte
	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	for _, msgs := range sources {
		writeInt(int64(len(msgs)))
		for _, m := range msgs {
			h.WriteString(m.ID)
			h.Write([]byte{0})
			writeInt(m.Timestamp.UnixMilli())
			h.WriteString(string(m.Origin))
			h.Write([]byte{0})
			h.WriteString(m.Participant)
			h.Write([]byte{0})
			h.WriteString(m.Text)
			h.Write([]byte{0})
			if m.EditedAt != nil {
				writeInt(m.EditedAt.UnixMilli())
			}
			writeInt(int64(len(m.Options)))
			for _, o := range m.Options {
				h.WriteString(o.Label)
				h.Write([]byte{0})
				h.WriteString(o.Value)
				h.Write([]byte{0})
			}
		}
	}
	return h.Sum64()
}
