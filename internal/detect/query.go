package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hashguard/hashguard/internal/remote"
)

// Querier retrieves captured security-log records from one host. It
// may fail on unreachable hosts; the caller treats that as a host-level
// diagnostic, not a batch failure.
type Querier interface {
	QueryEvents(ctx context.Context, host, channel string, windowSeconds int) ([]Record, error)
}

// WinRMQuerier retrieves records by running Get-WinEvent on the host
// over WinRM and parsing the JSON it emits.
type WinRMQuerier struct {
	Runner    remote.Runner
	SuccessID int
	FailureID int
}

// wireReply is the JSON shape the remote script emits.
type wireReply struct {
	OS     string          `json:"os"`
	Events json.RawMessage `json:"events"`
}

type wireRecord struct {
	ID           int    `json:"id"`
	Time         string `json:"time"`
	LogonType    int    `json:"logon_type"`
	AuthPackage  string `json:"auth_package"`
	TargetDomain string `json:"target_domain"`
	TargetUser   string `json:"target_user"`
	Message      string `json:"message"`
}

const queryScript = `$ids = @(%d, %d); ` +
	`$events = @(Get-WinEvent -FilterHashtable @{ LogName = '%s'; Id = $ids; StartTime = (Get-Date).AddSeconds(-%d) } -ErrorAction SilentlyContinue | ForEach-Object { ` +
	`$x = [xml]$_.ToXml(); $d = @{}; foreach ($e in $x.Event.EventData.Data) { $d[$e.Name] = $e.'#text' }; ` +
	`@{ id = $_.Id; time = $_.TimeCreated.ToUniversalTime().ToString('o'); ` +
	`logon_type = [int]$d['LogonType']; auth_package = [string]$d['AuthenticationPackageName']; ` +
	`target_domain = [string]$d['TargetDomainName']; target_user = [string]$d['TargetUserName']; ` +
	`message = ($_.Message -split [char]10)[0] } }); ` +
	`@{ os = (Get-CimInstance Win32_OperatingSystem).Caption; events = $events } | ConvertTo-Json -Compress -Depth 4`

// QueryEvents runs the retrieval script and returns one Record per
// captured log entry, each annotated with the host name and its OS
// caption.
func (q *WinRMQuerier) QueryEvents(ctx context.Context, host, channel string, windowSeconds int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	script := fmt.Sprintf(queryScript, q.SuccessID, q.FailureID, channel, windowSeconds)

	out, err := q.Runner.Run(host, script)
	if err != nil {
		return nil, fmt.Errorf("event query on %s failed: %w", host, err)
	}

	return parseReply(host, out)
}

// parseReply decodes the remote JSON. ConvertTo-Json collapses a
// single-element list to a bare object, so both shapes are accepted.
func parseReply(host, out string) ([]Record, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}

	var reply wireReply
	if err := json.Unmarshal([]byte(out), &reply); err != nil {
		return nil, fmt.Errorf("malformed event reply from %s: %w", host, err)
	}

	var wire []wireRecord
	if len(reply.Events) > 0 {
		if err := json.Unmarshal(reply.Events, &wire); err != nil {
			var single wireRecord
			if err := json.Unmarshal(reply.Events, &single); err != nil {
				return nil, fmt.Errorf("malformed event list from %s: %w", host, err)
			}
			wire = []wireRecord{single}
		}
	}

	records := make([]Record, 0, len(wire))
	for _, w := range wire {
		ts, err := time.Parse(time.RFC3339Nano, w.Time)
		if err != nil {
			return nil, fmt.Errorf("malformed event timestamp %q from %s: %w", w.Time, host, err)
		}
		records = append(records, Record{
			Host:         host,
			OSVersion:    reply.OS,
			EventID:      w.ID,
			Timestamp:    ts,
			LogonType:    w.LogonType,
			AuthPackage:  w.AuthPackage,
			TargetDomain: w.TargetDomain,
			TargetUser:   w.TargetUser,
			Message:      w.Message,
		})
	}

	return records, nil
}
