package fleet

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
	"golang.org/x/crypto/ssh"

	"github.com/hashguard/hashguard/internal/remote"
)

// Prober answers reachability and OS-family questions about hosts
// before a batch is dispatched.
type Prober struct {
	WinRMPort     int
	SSHPort       int
	SNMPPort      int
	SNMPCommunity string
	Timeout       time.Duration
	FastTimeout   time.Duration
	WinRM         remote.Runner
	Logger        *slog.Logger
}

// IsAlive performs a TCP SYN probe against the WinRM port. Fast mode
// shortens the dial timeout for interactive use.
func (p *Prober) IsAlive(host string, fast bool) bool {
	timeout := p.Timeout
	if fast {
		timeout = p.FastTimeout
	}

	target := net.JoinHostPort(host, fmt.Sprintf("%d", p.WinRMPort))
	conn, err := net.DialTimeout("tcp", target, timeout)
	if err != nil {
		p.Logger.Debug("liveness probe failed", "host", host, "target", target, "error", err)
		return false
	}
	conn.Close()
	return true
}

// Fingerprint classifies the OS family of a host. A host that answers
// a WinRM command is windows; a host that completes (or at least
// reaches authentication in) an SSH handshake is unix; a host that
// answers an SNMP sysDescr request is network gear. Anything else is
// unknown. Only windows hosts support detection and rotation.
func (p *Prober) Fingerprint(host string) Family {
	if _, err := p.WinRM.Run(host, "hostname"); err == nil {
		return FamilyWindows
	}

	if p.sshAnswers(host) {
		return FamilyUnix
	}

	if p.snmpAnswers(host) {
		return FamilyNetwork
	}

	return FamilyUnknown
}

// sshAnswers reports whether an SSH server responds on the host. The
// handshake is attempted without usable credentials; reaching the
// authentication exchange is enough to prove the family.
func (p *Prober) sshAnswers(host string) bool {
	config := &ssh.ClientConfig{
		User:            "hashguard-probe",
		Auth:            []ssh.AuthMethod{ssh.Password("")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         p.Timeout,
	}

	address := net.JoinHostPort(host, fmt.Sprintf("%d", p.SSHPort))
	client, err := ssh.Dial("tcp", address, config)
	if err == nil {
		client.Close()
		return true
	}

	// An auth rejection still means sshd spoke the protocol.
	return strings.Contains(err.Error(), "unable to authenticate")
}

// snmpAnswers reports whether the host answers a sysDescr GetRequest.
func (p *Prober) snmpAnswers(host string) bool {
	g := &gosnmp.GoSNMP{
		Target:    host,
		Port:      uint16(p.SNMPPort),
		Version:   gosnmp.Version2c,
		Community: p.SNMPCommunity,
		Timeout:   p.Timeout,
	}

	if err := g.Connect(); err != nil {
		return false
	}
	defer g.Conn.Close()

	result, err := g.Get([]string{"1.3.6.1.2.1.1.1.0"})
	return err == nil && len(result.Variables) > 0
}

// probeWorkers bounds concurrent probes during annotation.
const probeWorkers = 32

// Annotate probes every named host and returns annotated Host values
// in the input order. Unreachable hosts keep FamilyUnknown; probing a
// dead host's family would only burn timeouts.
func (p *Prober) Annotate(names []string, fast bool) []Host {
	hosts := make([]Host, len(names))

	sem := make(chan struct{}, probeWorkers)
	var wg sync.WaitGroup

	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			h := Host{Name: name, OSFamily: FamilyUnknown}
			if p.IsAlive(name, fast) {
				h.Alive = true
				h.OSFamily = p.Fingerprint(name)
			}
			hosts[i] = h
		}(i, name)
	}

	wg.Wait()

	alive, unavailable := Partition(hosts)
	p.Logger.Info("fleet probed",
		"total", len(hosts),
		"alive", len(alive),
		"unavailable", len(unavailable),
	)

	return hosts
}
