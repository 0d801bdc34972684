package codec

import (
	"bytes"
	"testing"
	"time"
)

type sample struct {
	ID     string    `cbor:"id"`
	Scope  []string  `cbor:"scope"`
	At     time.Time `cbor:"at"`
	Rev    int64     `cbor:"rev"`
	Reason string    `cbor:"reason,omitempty"`
}

func TestMarshal_Deterministic(t *testing.T) {
	v := sample{
		ID:    "g-1",
		Scope: []string{"EEG Records", "Medical History"},
		At:    time.Date(2025, 3, 1, 12, 0, 0, 5, time.UTC),
		Rev:   3,
	}

	a, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("expected identical bytes for identical values")
	}

	var out sample
	if err := Unmarshal(a, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.ID != v.ID || out.Rev != v.Rev || !out.At.Equal(v.At) || len(out.Scope) != 2 {
		t.Fatalf("decoded mismatch: %+v", out)
	}
}
