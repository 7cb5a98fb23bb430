package rotate

import (
	"context"
	"strings"
	"testing"
)

type scriptedRunner struct {
	replies []string
	scripts []string
}

func (r *scriptedRunner) Run(_, script string) (string, error) {
	r.scripts = append(r.scripts, script)
	out := "OK"
	if len(r.replies) > 0 {
		out = r.replies[0]
		r.replies = r.replies[1:]
	}
	return out, nil
}

func TestWinRMProviderFullCycle(t *testing.T) {
	runner := &scriptedRunner{}
	p := &WinRMProvider{Runner: runner}
	ctx := context.Background()

	h, err := p.Resolve(ctx, "Administrator", "h1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if h.Host != "h1" || h.Account != "Administrator" {
		t.Errorf("handle = %+v", h)
	}

	if err := p.SetSecret(ctx, h, "newpass"); err != nil {
		t.Fatalf("SetSecret failed: %v", err)
	}
	if err := p.Commit(ctx, h); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if len(runner.scripts) != 3 {
		t.Fatalf("ran %d scripts, want 3", len(runner.scripts))
	}
	if !strings.Contains(runner.scripts[0], "[ADSI]::Exists") {
		t.Errorf("resolve script = %q", runner.scripts[0])
	}
	if !strings.Contains(runner.scripts[1], "SetPassword('newpass')") {
		t.Errorf("set-secret script = %q", runner.scripts[1])
	}
	if !strings.Contains(runner.scripts[2], "SetInfo()") {
		t.Errorf("commit script = %q", runner.scripts[2])
	}
}

func TestWinRMProviderMissingAccount(t *testing.T) {
	p := &WinRMProvider{Runner: &scriptedRunner{replies: []string{"MISSING"}}}
	if _, err := p.Resolve(context.Background(), "ghost", "h1"); err == nil {
		t.Error("missing account not surfaced")
	}
}

func TestWinRMProviderCommitWithoutStage(t *testing.T) {
	p := &WinRMProvider{Runner: &scriptedRunner{}}
	h := &Handle{Host: "h1", Account: "Administrator"}
	if err := p.Commit(context.Background(), h); err == nil {
		t.Error("commit without a staged secret accepted")
	}
}

func TestWinRMProviderQuotesSecrets(t *testing.T) {
	runner := &scriptedRunner{}
	p := &WinRMProvider{Runner: runner}
	h := &Handle{Host: "h1", Account: "Administrator"}

	if err := p.SetSecret(context.Background(), h, "it's'tricky"); err != nil {
		t.Fatalf("SetSecret failed: %v", err)
	}
	if !strings.Contains(runner.scripts[0], "it''s''tricky") {
		t.Errorf("secret not escaped for single-quoted string: %q", runner.scripts[0])
	}
}
