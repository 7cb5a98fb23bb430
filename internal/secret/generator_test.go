package secret

import (
	"strings"
	"testing"
)

func TestRandomPolicyGenerate(t *testing.T) {
	hosts := []string{"host1", "host2", "host3", "host4", "host5"}

	p := &RandomPolicy{Account: "Administrator", MinLen: 14, MaxLen: 25}
	creds, err := p.Generate(hosts)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(creds) != len(hosts) {
		t.Fatalf("got %d credentials, want %d", len(creds), len(hosts))
	}

	for i, c := range creds {
		if c.Host != hosts[i] {
			t.Errorf("credential %d bound to %q, want %q", i, c.Host, hosts[i])
		}
		if c.Account != "Administrator" {
			t.Errorf("credential %d account = %q, want Administrator", i, c.Account)
		}
		if c.Method != MethodRandom {
			t.Errorf("credential %d method = %q, want %q", i, c.Method, MethodRandom)
		}
		if len(c.Secret) < 14 || len(c.Secret) > 25 {
			t.Errorf("secret for %s has length %d, want within [14, 25]", c.Host, len(c.Secret))
		}
	}
}

func TestRandomPolicyFixedLength(t *testing.T) {
	p := &RandomPolicy{Account: "svc", MinLen: 8, MaxLen: 8}
	creds, err := p.Generate([]string{"h1", "h2"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	for _, c := range creds {
		if len(c.Secret) != 8 {
			t.Errorf("secret for %s has length %d, want exactly 8", c.Host, len(c.Secret))
		}
	}
}

func TestRandomPolicyComposition(t *testing.T) {
	p := &RandomPolicy{Account: "svc", MinLen: 16, MaxLen: 16}
	creds, err := p.Generate([]string{"h1", "h2", "h3", "h4", "h5", "h6", "h7", "h8"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	for _, c := range creds {
		for name, class := range map[string]string{
			"lowercase": classLower,
			"uppercase": classUpper,
			"digit":     classDigit,
			"symbol":    classSymbol,
		} {
			if !strings.ContainsAny(c.Secret, class) {
				t.Errorf("secret for %s lacks a %s character", c.Host, name)
			}
		}
	}
}

func TestRandomPolicyIndependence(t *testing.T) {
	// With 20-char secrets a collision between two hosts means the
	// generator is broken, not unlucky.
	p := &RandomPolicy{Account: "svc", MinLen: 20, MaxLen: 20}
	creds, err := p.Generate([]string{"h1", "h2"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if creds[0].Secret == creds[1].Secret {
		t.Errorf("hosts received the same random secret %q", creds[0].Secret)
	}
}

func TestRandomPolicyInvalidBounds(t *testing.T) {
	tests := []struct {
		name   string
		minLen int
		maxLen int
	}{
		{"zero min", 0, 10},
		{"max below min", 14, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &RandomPolicy{Account: "svc", MinLen: tt.minLen, MaxLen: tt.maxLen}
			if _, err := p.Generate([]string{"h1"}); err == nil {
				t.Errorf("expected error for bounds [%d, %d]", tt.minLen, tt.maxLen)
			}
		})
	}
}

func TestSaltedPolicyGenerate(t *testing.T) {
	tests := []struct {
		name      string
		direction Direction
		want      []string
	}{
		{"prepend", DirectionPrepend, []string{"h1Secret1", "h2Secret1"}},
		{"append", DirectionAppend, []string{"Secret1h1", "Secret1h2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &SaltedPolicy{Account: "Administrator", Base: "Secret1", Direction: tt.direction}
			creds, err := p.Generate([]string{"H1", "H2"})
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}

			if len(creds) != 2 {
				t.Fatalf("got %d credentials, want 2", len(creds))
			}
			for i, c := range creds {
				if c.Secret != tt.want[i] {
					t.Errorf("secret for %s = %q, want %q", c.Host, c.Secret, tt.want[i])
				}
				if c.Method != MethodSalted {
					t.Errorf("method = %q, want %q", c.Method, MethodSalted)
				}
			}
		})
	}
}

func TestSaltedPolicyValidation(t *testing.T) {
	tests := []struct {
		name   string
		policy SaltedPolicy
	}{
		{"empty base", SaltedPolicy{Account: "a", Direction: DirectionPrepend}},
		{"bad direction", SaltedPolicy{Account: "a", Base: "x", Direction: "sideways"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.policy.Generate([]string{"h1"}); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestVerify(t *testing.T) {
	hosts := []string{"h1", "h2"}

	good := []Credential{{Host: "h1"}, {Host: "h2"}}
	if err := Verify(good, hosts); err != nil {
		t.Errorf("Verify rejected a valid credential set: %v", err)
	}

	short := []Credential{{Host: "h1"}}
	if err := Verify(short, hosts); err == nil {
		t.Error("Verify accepted a short credential set")
	}

	misbound := []Credential{{Host: "h2"}, {Host: "h1"}}
	if err := Verify(misbound, hosts); err == nil {
		t.Error("Verify accepted credentials bound to the wrong hosts")
	}
}
