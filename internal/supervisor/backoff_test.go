package supervisor

import (
	"testing"
	"time"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Cap: 32 * time.Second}
	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		32 * time.Second,
		32 * time.Second,
	}
	for i, expected := range want {
		if got := b.Delay(i + 1); got != expected {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, expected)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	var b Backoff
	if got := b.Delay(1); got != 2*time.Second {
		t.Fatalf("zero-value base delay = %v", got)
	}
	// Cap below base collapses to base.
	b = Backoff{Base: 10 * time.Second, Cap: time.Second}
	if got := b.Delay(5); got != 10*time.Second {
		t.Fatalf("delay with inverted cap = %v", got)
	}
}

func TestBackoffLowAttempts(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Cap: 32 * time.Second}
	if got := b.Delay(0); got != 2*time.Second {
		t.Fatalf("Delay(0) = %v", got)
	}
	if got := b.Delay(-3); got != 2*time.Second {
		t.Fatalf("Delay(-3) = %v", got)
	}
}
