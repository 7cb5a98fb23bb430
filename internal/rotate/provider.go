// Package rotate sets new secrets on local accounts across fleet
// hosts, one attempt per host per batch.
package rotate

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashguard/hashguard/internal/remote"
)

// Handle references a resolved local account on one host. The staged
// secret lives only inside the handle until Commit applies it.
type Handle struct {
	Host    string
	Account string

	staged string
}

// Provider resolves local accounts and applies new secrets. All three
// steps may fail independently; every failure is per-host.
type Provider interface {
	Resolve(ctx context.Context, account, host string) (*Handle, error)
	SetSecret(ctx context.Context, h *Handle, value string) error
	Commit(ctx context.Context, h *Handle) error
}

// WinRMProvider manipulates local accounts through the WinNT ADSI
// provider over WinRM.
type WinRMProvider struct {
	Runner remote.Runner
}

// Resolve checks that the named local account exists on the host.
func (p *WinRMProvider) Resolve(ctx context.Context, account, host string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	script := fmt.Sprintf(
		`if ([ADSI]::Exists('WinNT://./%s,user')) { 'OK' } else { 'MISSING' }`,
		psQuote(account),
	)

	out, err := p.Runner.Run(host, script)
	if err != nil {
		return nil, fmt.Errorf("account lookup on %s failed: %w", host, err)
	}
	if strings.TrimSpace(out) != "OK" {
		return nil, fmt.Errorf("account %q not found on %s", account, host)
	}

	return &Handle{Host: host, Account: account}, nil
}

// SetSecret pushes the new password to the resolved account. The value
// is also staged on the handle so Commit can flush the property cache.
func (p *WinRMProvider) SetSecret(ctx context.Context, h *Handle, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	script := fmt.Sprintf(
		`$u = [adsi]'WinNT://./%s,user'; $u.SetPassword('%s')`,
		psQuote(h.Account), psQuote(value),
	)

	if _, err := p.Runner.Run(h.Host, script); err != nil {
		return fmt.Errorf("set-secret on %s failed: %w", h.Host, err)
	}

	h.staged = value
	return nil
}

// Commit flushes the account object so the new secret sticks.
func (p *WinRMProvider) Commit(ctx context.Context, h *Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.staged == "" {
		return fmt.Errorf("commit on %s without a staged secret", h.Host)
	}

	script := fmt.Sprintf(
		`$u = [adsi]'WinNT://./%s,user'; $u.SetInfo()`,
		psQuote(h.Account),
	)

	if _, err := p.Runner.Run(h.Host, script); err != nil {
		return fmt.Errorf("commit on %s failed: %w", h.Host, err)
	}

	return nil
}

// psQuote escapes a value for a single-quoted PowerShell string.
func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
