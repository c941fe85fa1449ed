package vault

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestItemEncodeDecodeRoundTrip(t *testing.T) {
	created := time.Date(2026, 8, 23, 10, 15, 0, 0, time.UTC)
	item := &Item{
		ID:      "GMAIL_20260823T101500Z_reply-to-alice",
		Source:  "gmail",
		Subject: "Reply to Alice",
		Action: &Action{
			Kind:   "send_email",
			Params: map[string]string{"to": "alice@example.com"},
		},
		Annotations: map[string]string{"thread": "t-123"},
		CreatedAt:   created,
		UpdatedAt:   created,
		Body:        []byte("Hi Alice,\n\nSee attached.\n"),
	}

	data, err := item.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeItem(data)
	if err != nil {
		t.Fatalf("DecodeItem: %v", err)
	}
	if decoded.ID != item.ID || decoded.Source != item.Source || decoded.Subject != item.Subject {
		t.Fatalf("decoded header mismatch: %+v", decoded)
	}
	if decoded.Action == nil || decoded.Action.Kind != "send_email" || decoded.Action.Params["to"] != "alice@example.com" {
		t.Fatalf("decoded action mismatch: %+v", decoded.Action)
	}
	if !decoded.CreatedAt.Equal(created) {
		t.Fatalf("created = %v, want %v", decoded.CreatedAt, created)
	}
	if !bytes.Equal(decoded.Body, item.Body) {
		t.Fatalf("body not preserved byte for byte: %q", decoded.Body)
	}
}

func TestDecodeItemMalformed(t *testing.T) {
	cases := map[string][]byte{
		"no frontmatter":         []byte("just a body\n"),
		"unterminated":           []byte("---\nid: x\nsource: y\n"),
		"missing id":             []byte("---\nsource: gmail\n---\nbody\n"),
		"missing source":         []byte("---\nid: X_1\n---\nbody\n"),
		"unparsable frontmatter": []byte("---\nid: [broken\n---\nbody\n"),
	}
	for name, data := range cases {
		if _, err := DecodeItem(data); !errors.Is(err, ErrMalformedItem) {
			t.Errorf("%s: err = %v, want ErrMalformedItem", name, err)
		}
	}
}

func TestValidateAction(t *testing.T) {
	item := &Item{ID: "X_1", Source: "cli"}
	if err := item.ValidateAction(); !errors.Is(err, ErrMalformedItem) {
		t.Fatalf("missing action: err = %v", err)
	}
	item.Action = &Action{Kind: "  "}
	if err := item.ValidateAction(); !errors.Is(err, ErrMalformedItem) {
		t.Fatalf("blank kind: err = %v", err)
	}
	item.Action.Kind = "shell"
	if err := item.ValidateAction(); err != nil {
		t.Fatalf("valid action rejected: %v", err)
	}
}
