// Package detect implements the pass-the-hash logon predicate and the
// per-host event retrieval it runs over.
package detect

import (
	"sort"
	"time"
)

// Logon type constants from the Windows security log.
const (
	LogonTypeInteractive = 2
	LogonTypeNetwork     = 3
)

// AnonymousLogonUser is the sentinel account name Windows stamps on
// anonymous network logons. Events for it are never PtH evidence.
const AnonymousLogonUser = "ANONYMOUS LOGON"

// Record is one captured security-log record, annotated by the
// querier with the host it came from.
type Record struct {
	Host         string    `json:"host"`
	OSVersion    string    `json:"os_version"`
	EventID      int       `json:"id"`
	Timestamp    time.Time `json:"-"`
	LogonType    int       `json:"logon_type"`
	AuthPackage  string    `json:"auth_package"`
	TargetDomain string    `json:"target_domain"`
	TargetUser   string    `json:"target_user"`
	Message      string    `json:"message"`
}

// Event is a record that matched the predicate. Read-only once
// produced.
type Event struct {
	Host      string    `json:"host"`
	OSVersion string    `json:"os_version"`
	Timestamp time.Time `json:"timestamp"`
	EventID   int       `json:"event_id"`
	Message   string    `json:"message"`
}

// SortEvents orders merged matches by timestamp, most recent first.
func SortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}
