package detect

import (
	"strings"
	"time"
)

// Filter decides whether a captured record matches pass-the-hash-style
// logon criteria. One Filter serves a whole batch; it carries no
// per-host state.
type Filter struct {
	// LocalDomain is the NetBIOS domain name of the fleet. Logons whose
	// target domain equals it are ordinary domain authentications.
	LocalDomain string

	// Window is the lookback period; records older than now-Window do
	// not match.
	Window time.Duration

	// SuccessID and FailureID are the event ids counted as evidence
	// (defaults 4624 and 4625).
	SuccessID int
	FailureID int

	// Now is the clock; tests substitute a fixed instant.
	Now func() time.Time
}

// NewFilter builds a filter with the standard event id mapping.
func NewFilter(localDomain string, window time.Duration) *Filter {
	return &Filter{
		LocalDomain: localDomain,
		Window:      window,
		SuccessID:   4624,
		FailureID:   4625,
		Now:         time.Now,
	}
}

// Match reports whether the record is PtH evidence. All conditions
// must hold: network logon over NTLM, target domain other than the
// local one, a real (non-anonymous) user, a success or failure logon
// event id, and a timestamp within the lookback window.
func (f *Filter) Match(r Record) bool {
	if r.LogonType != LogonTypeNetwork {
		return false
	}
	if !strings.EqualFold(r.AuthPackage, "NTLM") {
		return false
	}
	if strings.EqualFold(r.TargetDomain, f.LocalDomain) {
		return false
	}
	if strings.EqualFold(r.TargetUser, AnonymousLogonUser) {
		return false
	}
	if r.EventID != f.SuccessID && r.EventID != f.FailureID {
		return false
	}

	cutoff := f.Now().Add(-f.Window)
	if r.Timestamp.Before(cutoff) {
		return false
	}

	return true
}

// Apply runs the predicate over a host's records and returns the
// matches as events.
func (f *Filter) Apply(records []Record) []Event {
	var events []Event
	for _, r := range records {
		if !f.Match(r) {
			continue
		}
		events = append(events, Event{
			Host:      r.Host,
			OSVersion: r.OSVersion,
			Timestamp: r.Timestamp,
			EventID:   r.EventID,
			Message:   r.Message,
		})
	}
	return events
}
