package convo

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default correlation windows.
const (
	// DefaultMatchWindow bounds how far apart an offer and a message may
	// be, in either direction, for temporal matching.
	DefaultMatchWindow = 2500 * time.Millisecond

	// DefaultOfferExpiry is how long an unclaimed offer stays in the pool
	// before the sweep drops it.
	DefaultOfferExpiry = 5 * time.Second

	// hintPrefixRunes is how much of a text hint participates in matching.
	hintPrefixRunes = 20
)

// Correlator owns the pending offer pool and decides which remote message
// an option offer belongs to. Each pooled offer is consumed exactly once:
// claimed by one message or dropped by [Correlator.Sweep], whichever comes
// first.
//
// Correlator is not safe for concurrent use; the engine loop serializes
// all calls.
type Correlator struct {
	matchWindow time.Duration
	expireAfter time.Duration
	pending     map[string]*pendingOffer
	seq         uint64
	log         Logger
}

type pendingOffer struct {
	OptionOffer
	key string
	// seq breaks ties among offers received on the same millisecond.
	seq uint64
}

// NewCorrelator creates a Correlator. Zero windows fall back to the
// defaults; a nil logger discards output.
func NewCorrelator(matchWindow, expireAfter time.Duration, log Logger) *Correlator {
	if matchWindow <= 0 {
		matchWindow = DefaultMatchWindow
	}
	if expireAfter <= 0 {
		expireAfter = DefaultOfferExpiry
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Correlator{
		matchWindow: matchWindow,
		expireAfter: expireAfter,
		pending:     make(map[string]*pendingOffer),
		log:         log,
	}
}

// Add inserts an offer into the pool and returns its pool key: the explicit
// message id when the producer supplied one, else a generated key. Adding a
// second offer with the same explicit id replaces the first.
func (c *Correlator) Add(offer OptionOffer) string {
	key := offer.MessageID
	if key == "" {
		key = "offer-" + uuid.NewString()
	}
	c.seq++
	c.pending[key] = &pendingOffer{OptionOffer: offer, key: key, seq: c.seq}
	c.log.Debugf("offer pooled key=%s hint=%q options=%d", key, offer.TextHint, len(offer.Options))
	return key
}

// Claim finds the best unclaimed offer for msg and, on a match, assigns its
// options and removes it from the pool. Returns whether options were
// attached.
//
// Local messages and messages that already carry options are never
// eligible. Match precedence: explicit id, then text hint, then smallest
// timestamp delta within the match window (ties go to the oldest offer).
func (c *Correlator) Claim(msg *Message) bool {
	if msg.Origin != OriginRemote || len(msg.Options) > 0 || len(c.pending) == 0 {
		return false
	}

	if po, ok := c.pending[msg.ID]; ok && po.MessageID == msg.ID {
		return c.take(msg, po, "id")
	}

	var hinted *pendingOffer
	for _, po := range c.pending {
		if po.TextHint == "" || !hintMatches(po.TextHint, msg.Text) {
			continue
		}
		if hinted == nil || po.older(hinted) {
			hinted = po
		}
	}
	if hinted != nil {
		return c.take(msg, hinted, "hint")
	}

	var (
		nearest      *pendingOffer
		nearestDelta time.Duration
	)
	for _, po := range c.pending {
		delta := po.ReceivedAt.Sub(msg.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta > c.matchWindow {
			continue
		}
		if nearest == nil || delta < nearestDelta || (delta == nearestDelta && po.older(nearest)) {
			nearest = po
			nearestDelta = delta
		}
	}
	if nearest != nil {
		return c.take(msg, nearest, "window")
	}
	return false
}

// take assigns the offer's options to msg and removes it from the pool.
func (c *Correlator) take(msg *Message, po *pendingOffer, how string) bool {
	msg.Options = make([]Option, len(po.Options))
	copy(msg.Options, po.Options)
	delete(c.pending, po.key)
	c.log.Debugf("offer %s attached to message %s via %s", po.key, msg.ID, how)
	return true
}

// Sweep drops every pooled offer older than the expiry window and returns
// how many were dropped. Unmatched expiry is not an error; options are a
// convenience affordance.
func (c *Correlator) Sweep(now time.Time) int {
	dropped := 0
	for key, po := range c.pending {
		if now.Sub(po.ReceivedAt.Time()) > c.expireAfter {
			delete(c.pending, key)
			dropped++
		}
	}
	if dropped > 0 {
		c.log.Debugf("swept %d expired offer(s), %d pending", dropped, len(c.pending))
	}
	return dropped
}

// Pending returns the number of unclaimed offers in the pool.
func (c *Correlator) Pending() int { return len(c.pending) }

// older reports whether po was received before other, falling back to
// insertion order on equal timestamps.
func (po *pendingOffer) older(other *pendingOffer) bool {
	if !po.ReceivedAt.Equal(other.ReceivedAt) {
		return po.ReceivedAt.Before(other.ReceivedAt)
	}
	return po.seq < other.seq
}

// hintMatches reports whether the first ~20 characters of hint appear in
// text, case-insensitively. A prefix match is the common case; substring
// covers transcriptions that settle with a leading filler word.
func hintMatches(hint, text string) bool {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return false
	}
	if r := []rune(hint); len(r) > hintPrefixRunes {
		hint = string(r[:hintPrefixRunes])
	}
	return strings.Contains(strings.ToLower(text), hint)
}
