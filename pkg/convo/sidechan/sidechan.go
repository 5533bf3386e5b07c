// Package sidechan decodes the structured side-channel: discriminated JSON
// envelopes broadcast next to the primary chat/transcription channels,
// carrying metadata such as option offers.
//
// Producers are not always well behaved, so decoding is lenient: a payload
// that fails to parse is run through jsonrepair once before being given up
// on. Envelopes of unknown type and unrepairable payloads are the caller's
// to drop; nothing here is fatal.
package sidechan

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"

	"github.com/voxkit/voxkit/pkg/convo"
	"github.com/voxkit/voxkit/pkg/jsontime"
)

// Envelope is the discriminated wire frame. Type selects the payload
// shape; Time is when the producer emitted it.
type Envelope struct {
	Type    string          `json:"type"`
	Time    jsontime.Milli  `json:"time"`
	Payload json.RawMessage `json:"pld"`
}

// Known envelope types.
const (
	TypeOptionOffer = "option_offer"
)

// OfferPayload is the option-offer payload: the selectable options plus
// optional correlation hints for the message that produced them.
type OfferPayload struct {
	Options   []convo.Option `json:"options"`
	MessageID string         `json:"messageCorrelationId,omitempty"`
	TextHint  string         `json:"messageTextHint,omitempty"`
}

// Decode parses an envelope, repairing malformed JSON once before failing.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := unmarshalLenient(data, &env); err != nil {
		return nil, fmt.Errorf("sidechan: decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("sidechan: envelope missing type")
	}
	return &env, nil
}

// OptionOffer extracts the offer payload from an option_offer envelope,
// ready to hand to the correlator. ReceivedAt is taken from the envelope
// time when set; the engine stamps it otherwise.
func (e *Envelope) OptionOffer() (convo.OptionOffer, error) {
	if e.Type != TypeOptionOffer {
		return convo.OptionOffer{}, fmt.Errorf("sidechan: envelope type %q is not %s", e.Type, TypeOptionOffer)
	}
	var p OfferPayload
	if err := unmarshalLenient(e.Payload, &p); err != nil {
		return convo.OptionOffer{}, fmt.Errorf("sidechan: decode offer payload: %w", err)
	}
	if len(p.Options) == 0 {
		return convo.OptionOffer{}, fmt.Errorf("sidechan: offer payload has no options")
	}
	return convo.OptionOffer{
		Options:    p.Options,
		MessageID:  p.MessageID,
		TextHint:   p.TextHint,
		ReceivedAt: e.Time,
	}, nil
}

// EncodeOffer builds an option_offer envelope for producers of the
// side-channel.
func EncodeOffer(p OfferPayload, at jsontime.Milli) ([]byte, error) {
	pld, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: TypeOptionOffer, Time: at, Payload: pld})
}

// unmarshalLenient unmarshals data into v, attempting a jsonrepair pass
// when the first parse fails with a syntax error.
func unmarshalLenient(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); !ok {
		return err
	}
	fixed, rerr := jsonrepair.JSONRepair(string(data))
	if rerr != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}
