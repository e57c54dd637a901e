package validator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/tastythames/credcheck/internal/inventory"
)

// SSH validates password credentials with an SSH handshake. No session is
// opened; a completed authentication is a success.
type SSH struct {
	cfg     Config
	hostKey ssh.HostKeyCallback
}

var _ Validator = (*SSH)(nil)

func NewSSH(cfg Config) (*SSH, error) {
	hk := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		var err error
		hk, err = knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
	}
	return &SSH{cfg: cfg, hostKey: hk}, nil
}

func (s *SSH) Validate(ctx context.Context, t inventory.Target) error {
	if t.Username == "" {
		return &Error{Kind: KindAuth, Err: errors.New("ssh user is empty")}
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.timeout())
	defer cancel()

	addr := net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	password := t.Secret

	sshCfg := &ssh.ClientConfig{
		User:            t.Username,
		HostKeyCallback: s.hostKey,
		Timeout:         s.cfg.timeout(),
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		},
	}

	// Dial with context so it won't hang forever.
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return classify(KindTransport, err)
	}
	defer conn.Close()

	// ssh handshake can still hang without deadlines
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	cconn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		return classify(KindHandshake, err)
	}
	client := ssh.NewClient(cconn, chans, reqs)
	_ = client.Close()
	return nil
}
