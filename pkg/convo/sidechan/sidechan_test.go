package sidechan_test

import (
	"strings"
	"testing"
	"time"

	"github.com/voxkit/voxkit/pkg/convo"
	"github.com/voxkit/voxkit/pkg/convo/sidechan"
	"github.com/voxkit/voxkit/pkg/jsontime"
)

func TestDecodeOfferEnvelope(t *testing.T) {
	raw := []byte(`{
		"type": "option_offer",
		"time": 1000,
		"pld": {
			"options": [{"label":"Latte","value":"latte"},{"label":"Cappuccino","value":"cappuccino"}],
			"messageTextHint": "What can I get"
		}
	}`)

	env, err := sidechan.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Type != sidechan.TypeOptionOffer {
		t.Fatalf("Type = %q", env.Type)
	}

	offer, err := env.OptionOffer()
	if err != nil {
		t.Fatalf("OptionOffer: %v", err)
	}
	if len(offer.Options) != 2 || offer.Options[0].Value != "latte" {
		t.Fatalf("Options = %v", offer.Options)
	}
	if offer.TextHint != "What can I get" || offer.MessageID != "" {
		t.Fatalf("hints = %q / %q", offer.TextHint, offer.MessageID)
	}
	if offer.ReceivedAt.UnixMilli() != 1000 {
		t.Fatalf("ReceivedAt = %d, want 1000", offer.ReceivedAt.UnixMilli())
	}
}

func TestDecodeRepairsMalformedJSON(t *testing.T) {
	// Single quotes and a trailing comma: repairable producer sloppiness.
	raw := []byte(`{'type': 'option_offer', 'time': 1000, 'pld': {'options': [{'label': 'Yes', 'value': 'yes'},]}}`)

	env, err := sidechan.Decode(raw)
	if err != nil {
		t.Fatalf("Decode should repair, got: %v", err)
	}
	offer, err := env.OptionOffer()
	if err != nil {
		t.Fatalf("OptionOffer: %v", err)
	}
	if len(offer.Options) != 1 || offer.Options[0].Value != "yes" {
		t.Fatalf("Options = %v", offer.Options)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := sidechan.Decode([]byte(`{"time": 1000}`)); err == nil {
		t.Error("envelope without type should fail")
	}
	if _, err := sidechan.Decode([]byte{0x00, 0x01}); err == nil {
		t.Error("binary garbage should fail")
	}
}

func TestOfferPayloadValidation(t *testing.T) {
	env, err := sidechan.Decode([]byte(`{"type":"option_offer","time":1,"pld":{"options":[]}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := env.OptionOffer(); err == nil {
		t.Error("offer with no options should fail")
	}

	env, _ = sidechan.Decode([]byte(`{"type":"metrics","time":1,"pld":{}}`))
	if _, err := env.OptionOffer(); err == nil || !strings.Contains(err.Error(), "option_offer") {
		t.Errorf("wrong-type extraction error = %v", err)
	}
}

func TestEncodeOfferRoundTrip(t *testing.T) {
	at := jsontime.Milli(time.UnixMilli(42000))
	raw, err := sidechan.EncodeOffer(sidechan.OfferPayload{
		Options:   []convo.Option{{Label: "Confirm", Value: "confirm"}},
		MessageID: "m1",
	}, at)
	if err != nil {
		t.Fatalf("EncodeOffer: %v", err)
	}

	env, err := sidechan.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	offer, err := env.OptionOffer()
	if err != nil {
		t.Fatalf("OptionOffer: %v", err)
	}
	if offer.MessageID != "m1" || len(offer.Options) != 1 || offer.Options[0].Value != "confirm" {
		t.Fatalf("offer = %+v", offer)
	}
	if offer.ReceivedAt.UnixMilli() != 42000 {
		t.Fatalf("ReceivedAt = %d, want 42000", offer.ReceivedAt.UnixMilli())
	}
}
