package accessgrants

import (
	"testing"
	"time"
)

func TestEffectiveStatus(t *testing.T) {
	exp := t0.Add(time.Hour)

	tests := []struct {
		name string
		g    Grant
		now  time.Time
		want Status
	}{
		{"pending stays", Grant{Status: StatusPending}, exp.Add(time.Hour), StatusPending},
		{"active before", Grant{Status: StatusActive, ExpiresAt: &exp}, exp.Add(-time.Millisecond), StatusActive},
		{"active at boundary", Grant{Status: StatusActive, ExpiresAt: &exp}, exp, StatusExpired},
		{"active after", Grant{Status: StatusActive, ExpiresAt: &exp}, exp.Add(time.Hour), StatusExpired},
		{"active without expiry", Grant{Status: StatusActive}, exp, StatusActive},
		{"revoked stays", Grant{Status: StatusRevoked, ExpiresAt: &exp}, exp.Add(time.Hour), StatusRevoked},
		{"denied stays", Grant{Status: StatusDenied}, exp, StatusDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveStatus(tt.g, tt.now); got != tt.want {
				t.Fatalf("EffectiveStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEffective_KeepsRevision(t *testing.T) {
	exp := t0
	g := Grant{Status: StatusActive, ExpiresAt: &exp, Revision: 2}

	eff := g.Effective(t0)
	if eff.Status != StatusExpired || eff.Revision != 2 {
		t.Fatalf("unexpected effective grant: %+v", eff)
	}
	if g.Status != StatusActive {
		t.Fatalf("Effective mutated the receiver")
	}
	if !Expired(g, t0) || Expired(eff, t0) {
		t.Fatalf("Expired should only report pending persistence")
	}
}

func TestRemaining(t *testing.T) {
	exp := t0.Add(90 * time.Minute)
	g := Grant{Status: StatusActive, ExpiresAt: &exp}

	if got := g.Remaining(t0); got != 90*time.Minute {
		t.Fatalf("Remaining = %s", got)
	}
	if got := g.Remaining(exp); got != 0 {
		t.Fatalf("Remaining at expiry = %s", got)
	}
	if got := (Grant{Status: StatusPending}).Remaining(t0); got != 0 {
		t.Fatalf("Remaining on pending = %s", got)
	}
}

func TestScopeKeyAndCovers(t *testing.T) {
	a := Grant{Scope: []string{"EEG", "Lab Results"}}
	b := Grant{Scope: []string{"lab results", " eeg"}}

	if a.ScopeKey() != b.ScopeKey() {
		t.Fatalf("scope keys differ: %q vs %q", a.ScopeKey(), b.ScopeKey())
	}
	if !a.Covers(" lab results ") || a.Covers("MRI") {
		t.Fatalf("unexpected Covers result")
	}
}
