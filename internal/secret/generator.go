// Package secret produces per-host secret material for rotation
// batches under the random and salted policies.
package secret

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Method identifies the generation policy a credential came from.
type Method string

const (
	MethodRandom Method = "random"
	MethodSalted Method = "salted"
)

// Direction controls where the host component goes in a salted
// secret. Chosen once per batch, never per host.
type Direction string

const (
	DirectionPrepend Direction = "prepend"
	DirectionAppend  Direction = "append"
)

// Credential is the secret material generated for one host. It is
// handed to exactly one rotation task and written to the success
// artifact on success; it is never logged anywhere else.
type Credential struct {
	Host    string
	Account string
	Secret  string
	Method  Method
}

// Generator produces one credential per target host.
type Generator interface {
	Generate(hosts []string) ([]Credential, error)
}

// Verify enforces the generator post-condition: exactly one credential
// per target host, in host order. A violation is fatal and must abort
// the batch before any task is dispatched.
func Verify(creds []Credential, hosts []string) error {
	if len(creds) != len(hosts) {
		return fmt.Errorf("generated %d credentials for %d target hosts", len(creds), len(hosts))
	}
	for i, c := range creds {
		if c.Host != hosts[i] {
			return fmt.Errorf("credential %d is for host %q, want %q", i, c.Host, hosts[i])
		}
	}
	return nil
}

// Character classes for the random composition policy.
const (
	classLower  = "abcdefghijklmnopqrstuvwxyz"
	classUpper  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	classDigit  = "0123456789"
	classSymbol = "!#$%&*+-=?@^_"
)

// RandomPolicy draws each host's secret independently from the
// environment's secure RNG. Length is uniform in [MinLen, MaxLen]
// inclusive, and when length permits the secret contains at least one
// character from every class.
type RandomPolicy struct {
	Account string
	MinLen  int
	MaxLen  int
}

// Generate produces one independent random credential per host.
func (p *RandomPolicy) Generate(hosts []string) ([]Credential, error) {
	if p.MinLen < 1 || p.MaxLen < p.MinLen {
		return nil, fmt.Errorf("invalid length bounds [%d, %d]", p.MinLen, p.MaxLen)
	}

	creds := make([]Credential, 0, len(hosts))
	for _, host := range hosts {
		length, err := randomInt(p.MaxLen - p.MinLen + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to draw secret length: %w", err)
		}
		length += p.MinLen

		value, err := randomSecret(length)
		if err != nil {
			return nil, fmt.Errorf("failed to generate secret for %s: %w", host, err)
		}

		creds = append(creds, Credential{
			Host:    host,
			Account: p.Account,
			Secret:  value,
			Method:  MethodRandom,
		})
	}

	return creds, nil
}

// randomSecret draws length characters honoring the composition
// policy: one from each class first (when length allows), the rest
// from the full alphabet, then a secure shuffle.
func randomSecret(length int) (string, error) {
	classes := []string{classLower, classUpper, classDigit, classSymbol}
	alphabet := strings.Join(classes, "")

	buf := make([]byte, 0, length)

	if length >= len(classes) {
		for _, class := range classes {
			i, err := randomInt(len(class))
			if err != nil {
				return "", err
			}
			buf = append(buf, class[i])
		}
	}

	for len(buf) < length {
		i, err := randomInt(len(alphabet))
		if err != nil {
			return "", err
		}
		buf = append(buf, alphabet[i])
	}

	// Fisher-Yates so the mandated class characters do not sit at a
	// fixed prefix.
	for i := len(buf) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return "", err
		}
		buf[i], buf[j] = buf[j], buf[i]
	}

	return string(buf), nil
}

// randomInt returns a uniform value in [0, n) from crypto/rand.
func randomInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// SaltedPolicy derives every host's secret from one operator-supplied
// base secret. The lower-cased host name is combined with the base in
// the batch-wide direction; only the host component varies.
type SaltedPolicy struct {
	Account   string
	Base      string
	Direction Direction
}

// Generate derives one credential per host from the shared base.
func (p *SaltedPolicy) Generate(hosts []string) ([]Credential, error) {
	if p.Base == "" {
		return nil, fmt.Errorf("salted policy requires a base secret")
	}
	if p.Direction != DirectionPrepend && p.Direction != DirectionAppend {
		return nil, fmt.Errorf("invalid salt direction %q", p.Direction)
	}

	creds := make([]Credential, 0, len(hosts))
	for _, host := range hosts {
		salt := strings.ToLower(host)

		var value string
		if p.Direction == DirectionPrepend {
			value = salt + p.Base
		} else {
			value = p.Base + salt
		}

		creds = append(creds, Credential{
			Host:    host,
			Account: p.Account,
			Secret:  value,
			Method:  MethodSalted,
		})
	}

	return creds, nil
}
