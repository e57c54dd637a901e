package validator

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tastythames/credcheck/internal/inventory"
)

const testSubject = "Hello, test email!"

// SMTP validates submission credentials: STARTTLS, AUTH and, when a
// recipient is set, one test message.
type SMTP struct {
	cfg       Config
	recipient string
	tlsConfig *tls.Config
}

var (
	_ Validator       = (*SMTP)(nil)
	_ RecipientSetter = (*SMTP)(nil)
)

func NewSMTP(cfg Config) *SMTP {
	return &SMTP{cfg: cfg}
}

// WithRecipient returns a copy of s that sends its test message to addr.
func (s *SMTP) WithRecipient(addr string) Validator {
	cp := *s
	cp.recipient = strings.TrimSpace(addr)
	return &cp
}

// WithTLSConfig returns a copy of s using base for STARTTLS. ServerName is
// filled in per target when empty.
func (s *SMTP) WithTLSConfig(base *tls.Config) *SMTP {
	cp := *s
	cp.tlsConfig = base
	return &cp
}

func (s *SMTP) Validate(ctx context.Context, t inventory.Target) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.timeout())
	defer cancel()

	addr := net.JoinHostPort(t.Host, strconv.Itoa(t.Port))

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return classify(KindTransport, err)
	}
	defer conn.Close()

	// smtp.Client has no context support; the deadline bounds every read and write.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, t.Host)
	if err != nil {
		return classify(KindHandshake, err)
	}
	defer c.Close()

	helo := s.cfg.HeloName
	if helo == "" {
		helo = "localhost"
	}
	if err := c.Hello(helo); err != nil {
		return classify(KindHandshake, err)
	}

	encrypted := false
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(s.tlsFor(t.Host)); err != nil {
			return classify(KindHandshake, fmt.Errorf("starttls: %w", err))
		}
		encrypted = true
	}
	if !encrypted && !s.cfg.AllowPlain {
		return &Error{Kind: KindHandshake, Err: errors.New("server does not offer STARTTLS")}
	}

	if t.Username != "" {
		auth, err := pickAuth(c, t.Username, t.Secret)
		if err != nil {
			return classify(KindAuth, err)
		}
		if err := c.Auth(auth); err != nil {
			return classify(KindAuth, err)
		}
	}

	if s.recipient != "" {
		if err := s.send(c, t); err != nil {
			return classify(KindDelivery, err)
		}
	}

	if err := c.Quit(); err != nil {
		return classify(KindTransport, fmt.Errorf("quit: %w", err))
	}
	return nil
}

func (s *SMTP) tlsFor(host string) *tls.Config {
	var cfg *tls.Config
	if s.tlsConfig != nil {
		cfg = s.tlsConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

func (s *SMTP) send(c *smtp.Client, t inventory.Target) error {
	from := t.Username
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(s.recipient); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(testMessage(from, s.recipient, t.Host)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}
	return nil
}

func testMessage(from, to, host string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Reply-To: %s\r\n", from)
	fmt.Fprintf(&b, "Subject: %s\r\n", testSubject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", uuid.NewString(), host)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(testSubject + "\r\n")
	return []byte(b.String())
}

// pickAuth prefers PLAIN and falls back to LOGIN.
func pickAuth(c *smtp.Client, user, secret string) (smtp.Auth, error) {
	ok, params := c.Extension("AUTH")
	if !ok {
		return nil, errors.New("server does not support AUTH")
	}
	mechs := strings.Fields(strings.ToUpper(params))
	for _, m := range mechs {
		if m == "PLAIN" {
			return plainAuth{user: user, secret: secret}, nil
		}
	}
	for _, m := range mechs {
		if m == "LOGIN" {
			return &loginAuth{user: user, secret: secret}, nil
		}
	}
	return nil, fmt.Errorf("no supported AUTH mechanism in %q", params)
}

// plainAuth is RFC 4616 PLAIN. smtp.PlainAuth refuses non-TLS connections to
// remote hosts, which AllowPlain has to permit, so the TLS policy is enforced
// in Validate instead.
type plainAuth struct {
	user, secret string
}

func (a plainAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return "PLAIN", []byte("\x00" + a.user + "\x00" + a.secret), nil
}

func (a plainAuth) Next(_ []byte, more bool) ([]byte, error) {
	if more {
		return nil, errors.New("unexpected server challenge")
	}
	return nil, nil
}

type loginAuth struct {
	user, secret string
	step         int
}

func (a *loginAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	a.step = 0
	return "LOGIN", nil, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	a.step++
	prompt := strings.ToLower(strings.TrimSpace(string(fromServer)))
	switch {
	case strings.HasPrefix(prompt, "username"):
		return []byte(a.user), nil
	case strings.HasPrefix(prompt, "password"):
		return []byte(a.secret), nil
	case a.step == 1:
		return []byte(a.user), nil
	case a.step == 2:
		return []byte(a.secret), nil
	default:
		return nil, fmt.Errorf("unexpected LOGIN challenge %q", fromServer)
	}
}
