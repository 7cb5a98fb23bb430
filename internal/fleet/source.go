package fleet

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hashguard/hashguard/internal/remote"
)

// Source produces the ordered list of member host names a batch
// targets. Implementations must exclude directory-authority machines.
type Source interface {
	ListMemberHosts(ctx context.Context) ([]string, error)
}

// FileSource reads host names from a plain text file, one per line.
// Blank lines and '#' comments are skipped; duplicates are dropped
// while preserving first-seen order.
type FileSource struct {
	Path string
}

// ListMemberHosts reads and validates the host list file. An empty or
// unreadable file is a fatal precondition: the batch must not start.
func (s *FileSource) ListMemberHosts(_ context.Context) ([]string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open host list: %w", err)
	}
	defer f.Close()

	seen := make(map[string]bool)
	var hosts []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key := strings.ToLower(line)
		if seen[key] {
			continue
		}
		seen[key] = true
		hosts = append(hosts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read host list: %w", err)
	}

	if len(hosts) == 0 {
		return nil, fmt.Errorf("host list %s contains no hosts", s.Path)
	}

	return hosts, nil
}

// DomainEnumerator lists domain member computers by querying a domain
// controller over WinRM. Domain controllers themselves (primary group
// 516, read-only DCs 521) are excluded from the result.
type DomainEnumerator struct {
	Controller string
	Runner     remote.Runner
	Logger     *slog.Logger
}

const listMembersScript = `Get-ADComputer -Filter * -Properties PrimaryGroupID | ` +
	`Where-Object { $_.PrimaryGroupID -ne 516 -and $_.PrimaryGroupID -ne 521 } | ` +
	`Select-Object -ExpandProperty Name`

// ListMemberHosts queries the controller and returns one name per
// member computer.
func (e *DomainEnumerator) ListMemberHosts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := e.Runner.Run(e.Controller, listMembersScript)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate domain members via %s: %w", e.Controller, err)
	}

	var hosts []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		hosts = append(hosts, name)
	}

	if len(hosts) == 0 {
		return nil, fmt.Errorf("domain controller %s returned no member hosts", e.Controller)
	}

	e.Logger.Info("domain members enumerated",
		"controller", e.Controller,
		"host_count", len(hosts),
	)

	return hosts, nil
}
