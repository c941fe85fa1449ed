package vault

import (
	"strings"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	at := time.Date(2026, 8, 23, 10, 15, 0, 0, time.UTC)

	id := NewID("gmail", at, "Reply to Alice")
	if id != "GMAIL_20260823T101500Z_reply-to-alice" {
		t.Fatalf("id = %q", id)
	}

	id = NewID("", at, "")
	if id != "ITEM_20260823T101500Z" {
		t.Fatalf("empty-source id = %q", id)
	}

	id = NewID("file drop!", at, "")
	if id != "FILE_DROP__20260823T101500Z" {
		t.Fatalf("sanitized tag id = %q", id)
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Reply to Alice", "reply-to-alice"},
		{"  --weird -- spacing  ", "weird-spacing"},
		{"Café Déjà Vu", "cafe-deja-vu"},
		{"100% done?!", "100-done"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	long := Slugify(strings.Repeat("budget report ", 20))
	if len(long) > maxSlugLength {
		t.Fatalf("slug length %d exceeds cap", len(long))
	}
	if strings.HasSuffix(long, "-") || strings.HasPrefix(long, "-") {
		t.Fatalf("slug not trimmed: %q", long)
	}
}
