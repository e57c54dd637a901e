package validator_test

import (
	"bufio"
	"encoding/base64"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tastythames/credcheck/internal/inventory"
	"github.com/tastythames/credcheck/internal/validator"
)

// fakeSMTP is a minimal plaintext submission server.
type fakeSMTP struct {
	ln       net.Listener
	user     string
	secret   string
	mechs    string
	silent   bool
	mu       sync.Mutex
	messages []string
}

func newFakeSMTP(t *testing.T, user, secret string, opts ...func(*fakeSMTP)) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSMTP{ln: ln, user: user, secret: secret, mechs: "PLAIN LOGIN"}
	for _, o := range opts {
		o(s)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSMTP) target(user, secret string) inventory.Target {
	addr := s.ln.Addr().(*net.TCPAddr)
	return inventory.Target{ID: "#T1", Host: "127.0.0.1", Port: addr.Port, Username: user, Secret: secret}
}

func (s *fakeSMTP) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	if s.silent {
		_, _ = bufio.NewReader(conn).ReadString('\n')
		return
	}
	r := bufio.NewReader(conn)
	w := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }
	w("220 fake ESMTP")

	var data strings.Builder
	inData := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if inData {
			if line == "." {
				inData = false
				s.mu.Lock()
				s.messages = append(s.messages, data.String())
				s.mu.Unlock()
				w("250 queued")
				continue
			}
			data.WriteString(line + "\n")
			continue
		}
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			w("250-fake")
			w("250 AUTH " + s.mechs)
		case strings.HasPrefix(cmd, "AUTH PLAIN "):
			raw, _ := base64.StdEncoding.DecodeString(strings.TrimSpace(line[len("AUTH PLAIN "):]))
			parts := strings.Split(string(raw), "\x00")
			if len(parts) == 3 && parts[1] == s.user && parts[2] == s.secret {
				w("235 2.7.0 Authentication successful")
			} else {
				w("535 5.7.8 Authentication credentials invalid")
			}
		case cmd == "AUTH LOGIN":
			w("334 " + base64.StdEncoding.EncodeToString([]byte("Username:")))
			u, _ := r.ReadString('\n')
			w("334 " + base64.StdEncoding.EncodeToString([]byte("Password:")))
			p, _ := r.ReadString('\n')
			user, _ := base64.StdEncoding.DecodeString(strings.TrimSpace(u))
			pass, _ := base64.StdEncoding.DecodeString(strings.TrimSpace(p))
			if string(user) == s.user && string(pass) == s.secret {
				w("235 2.7.0 Authentication successful")
			} else {
				w("535 5.7.8 Authentication credentials invalid")
			}
		case strings.HasPrefix(cmd, "MAIL FROM:"), strings.HasPrefix(cmd, "RCPT TO:"):
			w("250 ok")
		case cmd == "DATA":
			inData = true
			data.Reset()
			w("354 go ahead")
		case cmd == "QUIT":
			w("221 bye")
			return
		default:
			w("501 unknown")
		}
	}
}

func (s *fakeSMTP) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func plainCfg() validator.Config {
	return validator.Config{Timeout: 2 * time.Second, AllowPlain: true}
}

func TestSMTP(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		mechs    string
		user     string
		secret   string
		kind     validator.Kind
	}{
		{"plain ok", "PLAIN LOGIN", "bob", "hunter2", ""},
		{"plain bad password", "PLAIN LOGIN", "bob", "wrong", validator.KindAuth},
		{"login ok", "LOGIN", "bob", "hunter2", ""},
		{"login bad user", "LOGIN", "alice", "hunter2", validator.KindAuth},
		{"no mechanism", "CRAM-MD5", "bob", "hunter2", validator.KindAuth},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			srv := newFakeSMTP(t, "bob", "hunter2", func(s *fakeSMTP) { s.mechs = tt.mechs })

			err := validator.NewSMTP(plainCfg()).Validate(t.Context(), srv.target(tt.user, tt.secret))
			if tt.kind == "" {
				require.NoError(t, err)
				return
			}
			var verr *validator.Error
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tt.kind, verr.Kind)
		})
	}
}

func TestSMTPRequiresTLS(t *testing.T) {
	t.Parallel()
	srv := newFakeSMTP(t, "bob", "hunter2")

	err := validator.NewSMTP(validator.Config{Timeout: 2 * time.Second}).
		Validate(t.Context(), srv.target("bob", "hunter2"))
	var verr *validator.Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, validator.KindHandshake, verr.Kind)
	require.EqualError(t, err, "handshake: server does not offer STARTTLS")
}

func TestSMTPSendsTestMessage(t *testing.T) {
	t.Parallel()
	srv := newFakeSMTP(t, "bob@example.com", "hunter2")

	v := validator.NewSMTP(plainCfg()).WithRecipient("alice@example.com")
	require.NoError(t, v.Validate(t.Context(), srv.target("bob@example.com", "hunter2")))

	msgs := srv.received()
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0], "From: bob@example.com\n")
	require.Contains(t, msgs[0], "To: alice@example.com\n")
	require.Contains(t, msgs[0], "Reply-To: bob@example.com\n")
	require.Contains(t, msgs[0], "Subject: Hello, test email!\n")
}

func TestSMTPTimeout(t *testing.T) {
	t.Parallel()
	srv := newFakeSMTP(t, "bob", "hunter2", func(s *fakeSMTP) { s.silent = true })

	cfg := plainCfg()
	cfg.Timeout = 200 * time.Millisecond
	start := time.Now()
	err := validator.NewSMTP(cfg).Validate(t.Context(), srv.target("bob", "hunter2"))
	require.Less(t, time.Since(start), 2*time.Second)

	var verr *validator.Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, validator.KindTimeout, verr.Kind)
}

func TestSMTPConnectionRefused(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	err = validator.NewSMTP(plainCfg()).Validate(t.Context(), inventory.Target{
		ID: "#X", Host: "127.0.0.1", Port: port, Username: "u", Secret: "p",
	})
	var verr *validator.Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, validator.KindTransport, verr.Kind)
	require.Contains(t, validator.Reason(err), "transport: dial tcp 127.0.0.1:"+strconv.Itoa(port))
}
