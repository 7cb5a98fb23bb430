package detect

import (
	"testing"
	"time"
)

var now = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func testFilter() *Filter {
	f := NewFilter("CORP", 7*24*time.Hour)
	f.Now = func() time.Time { return now }
	return f
}

// evidence is a record that satisfies every condition; the table below
// breaks one condition at a time.
func evidence() Record {
	return Record{
		Host:         "host1",
		EventID:      4624,
		Timestamp:    now.Add(-time.Hour),
		LogonType:    LogonTypeNetwork,
		AuthPackage:  "NTLM",
		TargetDomain: "WORKGROUP",
		TargetUser:   "backdoor",
	}
}

func TestFilterMatch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Record)
		want   bool
	}{
		{"all conditions hold", func(r *Record) {}, true},
		{"failure event id", func(r *Record) { r.EventID = 4625 }, true},
		{"lowercase ntlm", func(r *Record) { r.AuthPackage = "ntlm" }, true},
		{"interactive logon", func(r *Record) { r.LogonType = LogonTypeInteractive }, false},
		{"kerberos package", func(r *Record) { r.AuthPackage = "Kerberos" }, false},
		{"local domain", func(r *Record) { r.TargetDomain = "CORP" }, false},
		{"local domain case-insensitive", func(r *Record) { r.TargetDomain = "corp" }, false},
		{"anonymous logon", func(r *Record) { r.TargetUser = "ANONYMOUS LOGON" }, false},
		{"anonymous logon lowercase", func(r *Record) { r.TargetUser = "anonymous logon" }, false},
		{"unrelated event id", func(r *Record) { r.EventID = 4688 }, false},
		{"older than window", func(r *Record) { r.Timestamp = now.Add(-8 * 24 * time.Hour) }, false},
		{"exactly at cutoff", func(r *Record) { r.Timestamp = now.Add(-7 * 24 * time.Hour) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := evidence()
			tt.mutate(&r)
			if got := testFilter().Match(r); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterCustomEventIDs(t *testing.T) {
	f := testFilter()
	f.SuccessID = 1000
	f.FailureID = 1001

	r := evidence()
	r.EventID = 4624
	if f.Match(r) {
		t.Error("default event id matched after remapping")
	}

	r.EventID = 1001
	if !f.Match(r) {
		t.Error("remapped event id did not match")
	}
}

func TestFilterApply(t *testing.T) {
	match := evidence()
	miss := evidence()
	miss.LogonType = LogonTypeInteractive

	events := testFilter().Apply([]Record{match, miss, match})
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for _, e := range events {
		if e.Host != "host1" || e.EventID != 4624 {
			t.Errorf("event carries host=%q id=%d", e.Host, e.EventID)
		}
	}
}

func TestSortEvents(t *testing.T) {
	events := []Event{
		{Host: "a", Timestamp: now.Add(-3 * time.Hour)},
		{Host: "b", Timestamp: now.Add(-1 * time.Hour)},
		{Host: "c", Timestamp: now.Add(-2 * time.Hour)},
	}

	SortEvents(events)

	want := []string{"b", "c", "a"}
	for i, e := range events {
		if e.Host != want[i] {
			t.Errorf("position %d holds %q, want %q", i, e.Host, want[i])
		}
	}
}
