// Package validator checks one set of credentials against a live service.
//
// A validation is a single attempt: connect, negotiate, authenticate and, for
// SMTP with a recipient, submit a short test message. Every failure comes
// back as an *Error whose Kind tells timeouts, rejected credentials and
// transport problems apart. Each call is bounded by Config.Timeout, so an
// unreachable host fails instead of stalling the caller.
package validator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tastythames/credcheck/internal/inventory"
)

// Validator performs one handshake against target.
type Validator interface {
	Validate(ctx context.Context, target inventory.Target) error
}

// RecipientSetter is implemented by validators that can deliver a test
// message to a caller supplied address.
type RecipientSetter interface {
	WithRecipient(addr string) Validator
}

// Func adapts a function to the Validator interface.
type Func func(ctx context.Context, target inventory.Target) error

func (f Func) Validate(ctx context.Context, target inventory.Target) error {
	return f(ctx, target)
}

type Config struct {
	Timeout time.Duration
	// AllowPlain permits SMTP authentication on a connection without STARTTLS.
	AllowPlain bool
	// KnownHosts is an OpenSSH known_hosts file. Empty disables host key checks.
	KnownHosts string
	// HeloName is sent in EHLO; defaults to "localhost".
	HeloName string
}

const DefaultTimeout = 10 * time.Second

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// New returns the validator for protocol ("smtp" or "ssh").
func New(protocol string, cfg Config) (Validator, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "smtp", "":
		return NewSMTP(cfg), nil
	case "ssh":
		return NewSSH(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, protocol)
	}
}
