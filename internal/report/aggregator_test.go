package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashguard/hashguard/internal/dispatch"
)

func TestAggregate(t *testing.T) {
	results := []dispatch.Result{
		{Host: "h1", Status: dispatch.StatusSuccess, Detail: "rotated"},
		{Host: "h2", Status: dispatch.StatusFailure, Reason: "host unreachable"},
		{Host: "h3", Status: dispatch.StatusSuccess, Detail: "rotated"},
		{Host: "h4", Status: dispatch.StatusFailure, Reason: "commit failed"},
	}

	s := Aggregate(results)

	if got := len(s.SuccessHosts) + len(s.FailureHosts); got != len(results) {
		t.Fatalf("summary accounts for %d hosts, want %d", got, len(results))
	}
	if len(s.SuccessHosts) != 2 || len(s.FailureHosts) != 2 {
		t.Errorf("got %d successes and %d failures, want 2 and 2",
			len(s.SuccessHosts), len(s.FailureHosts))
	}
	if s.Reasons["h2"] != "host unreachable" {
		t.Errorf("reason for h2 = %q", s.Reasons["h2"])
	}
	if s.Reasons["h4"] != "commit failed" {
		t.Errorf("reason for h4 = %q", s.Reasons["h4"])
	}
}

func TestVerifyFailureArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FailureFileName)

	if err := os.WriteFile(path, []byte("h2\nh4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	matching := &Summary{FailureHosts: []string{"h2", "h4"}}
	if err := matching.VerifyFailureArtifact(path); err != nil {
		t.Errorf("consistent artifact rejected: %v", err)
	}

	mismatched := &Summary{FailureHosts: []string{"h2"}}
	if err := mismatched.VerifyFailureArtifact(path); err == nil {
		t.Error("inconsistent artifact accepted")
	}

	empty := &Summary{}
	emptyPath := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(emptyPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := empty.VerifyFailureArtifact(emptyPath); err != nil {
		t.Errorf("empty failure set with empty artifact rejected: %v", err)
	}
}
