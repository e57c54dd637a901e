package main

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-format", "text"))
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestTargetsCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "credcheck.db")

	out, err := run(t, "targets", "add", "--database", db, "--id", "#AB12", "--host", "smtp.example.com", "--user", "bob", "--secret", "hunter2")
	require.NoError(t, err)
	require.Contains(t, out, "added #AB12")

	inv := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(inv, []byte(`targets:
  - id: "#CD34"
    host: mail.example.org
    port: 465
    username: alice
    secret: s3cret
`), 0o600))
	out, err = run(t, "targets", "import", inv, "--database", db)
	require.NoError(t, err)
	require.Contains(t, out, "imported 1 targets")

	out, err = run(t, "targets", "list", "--database", db)
	require.NoError(t, err)
	require.Contains(t, out, "#AB12")
	require.Contains(t, out, "smtp.example.com")
	require.Contains(t, out, "587")
	require.Contains(t, out, "#CD34")
	require.NotContains(t, out, "hunter2")

	_, err = run(t, "targets", "rm", "#AB12", "--database", db)
	require.NoError(t, err)
	_, err = run(t, "targets", "rm", "#AB12", "--database", db)
	require.ErrorContains(t, err, "target not found")
}

func TestCheckReportsFailures(t *testing.T) {
	// a port with nothing listening
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	inv := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(inv, fmt.Appendf(nil, `targets:
  - id: "#0001"
    host: 127.0.0.1
    port: %d
    username: u
    secret: p
`, port), 0o600))

	out, err := run(t, "check", "--inventory", inv, "--timeout", "2s")
	require.NoError(t, err)
	require.Contains(t, out, "Please wait while we test 1 targets.")
	require.Contains(t, out, "Failed using target #0001")
	require.Contains(t, out, "Finished testing all targets.")
	require.Contains(t, out, "0/1 ok")
}

func TestCheckNoTargets(t *testing.T) {
	inv := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(inv, []byte("targets: []\n"), 0o600))

	out, err := run(t, "check", "--inventory", inv)
	require.NoError(t, err)
	require.Contains(t, out, "No targets available.")
}

func TestInvalidConfig(t *testing.T) {
	_, err := run(t, "targets", "list", "--protocol", "ftp")
	require.ErrorContains(t, err, "unsupported protocol")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "credcheck")
}
