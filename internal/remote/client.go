// Package remote wraps the WinRM transport used for every operation
// hashguard performs against a fleet host.
package remote

import (
	"fmt"
	"strings"
	"time"

	"github.com/masterzen/winrm"
)

// Credentials holds the administrative identity used to open WinRM
// sessions on fleet hosts.
type Credentials struct {
	Username string
	Password string
	Domain   string
	UseHTTPS bool
}

// Client wraps the WinRM client for executing PowerShell commands.
type Client struct {
	client *winrm.Client
	target string
}

// NewClient creates a WinRM client for the target host.
// - If domain is empty, uses Basic Auth
// - If domain is provided, uses NTLM Auth
// - If use_https is true, uses HTTPS endpoint (typically port 5986)
func NewClient(target string, port int, creds Credentials, timeout time.Duration) (*Client, error) {
	endpoint := winrm.NewEndpoint(
		target,
		port,
		creds.UseHTTPS,
		true, // insecure - skip certificate verification
		nil,  // CA certificate
		nil,  // client certificate
		nil,  // client key
		timeout,
	)

	var client *winrm.Client
	var err error

	if creds.Domain != "" {
		// NTLM authentication with domain
		params := winrm.DefaultParameters
		params.TransportDecorator = func() winrm.Transporter {
			return &winrm.ClientNTLM{}
		}
		client, err = winrm.NewClientWithParameters(
			endpoint,
			fmt.Sprintf("%s\\%s", creds.Domain, creds.Username),
			creds.Password,
			params,
		)
	} else {
		// Basic authentication
		client, err = winrm.NewClient(endpoint, creds.Username, creds.Password)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create WinRM client: %w", err)
	}

	return &Client{
		client: client,
		target: target,
	}, nil
}

// RunPowerShell executes a PowerShell command and returns the stdout output.
func (c *Client) RunPowerShell(script string) (string, error) {
	psCmd := fmt.Sprintf("powershell.exe -NoProfile -NonInteractive -Command \"%s\"",
		strings.ReplaceAll(script, "\"", "`\""))

	stdout, stderr, exitCode, err := c.client.RunWithString(psCmd, "")
	if err != nil {
		return "", fmt.Errorf("WinRM execution failed: %w", err)
	}

	if exitCode != 0 {
		return "", fmt.Errorf("PowerShell command failed (exit code %d): %s", exitCode, stderr)
	}

	return strings.TrimSpace(stdout), nil
}

// Target returns the target hostname/IP.
func (c *Client) Target() string {
	return c.target
}

// Factory opens WinRM sessions with a fixed credential set and port.
// It keeps per-host client construction out of the call sites.
type Factory struct {
	Port    int
	Creds   Credentials
	Timeout time.Duration
}

// Open creates a client for the given host.
func (f *Factory) Open(host string) (*Client, error) {
	return NewClient(host, f.Port, f.Creds, f.Timeout)
}

// Runner abstracts remote script execution on one host. The WinRM
// factory satisfies it in production; tests substitute stubs.
type Runner interface {
	Run(host, script string) (string, error)
}

// Run opens a session to host and executes the script. WinRM
// connections are per-request, so there is nothing to close.
func (f *Factory) Run(host, script string) (string, error) {
	client, err := f.Open(host)
	if err != nil {
		return "", err
	}
	return client.RunPowerShell(script)
}
