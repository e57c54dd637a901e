package inventory

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Target is one set of credentials to validate. It is never mutated once
// listed for a run.
type Target struct {
	ID       string `yaml:"id"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Secret   string `yaml:"secret"`
}

// Address returns host:port.
func (t Target) Address() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// Lister returns the targets for one run. An empty result is not an error.
type Lister interface {
	List(ctx context.Context) ([]Target, error)
}

type Inventory struct {
	Targets []Target `yaml:"targets"`
}

// DefaultPort returns the conventional port of protocol, 0 if unknown.
func DefaultPort(protocol string) int {
	switch strings.ToLower(protocol) {
	case "smtp":
		return 587
	case "ssh":
		return 22
	default:
		return 0
	}
}

// idSpace namespaces the ids derived from a target's address and user.
var idSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("credcheck:target"))

// StableID derives an id in the "#1A2B3C4D" form from host, port and user,
// so an inventory entry without an id keeps it across reloads.
func StableID(t Target) string {
	key := fmt.Sprintf("%s:%d:%s", strings.ToLower(t.Host), t.Port, t.Username)
	u := uuid.NewSHA1(idSpace, []byte(key))
	return "#" + strings.ToUpper(strings.ReplaceAll(u.String(), "-", "")[:8])
}

func Load(path, protocol string) (*Inventory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	return Parse(b, protocol)
}

func Parse(b []byte, protocol string) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(b, &inv); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}

	// normalize defaults
	seen := make(map[string]int, len(inv.Targets))
	for i := range inv.Targets {
		t := &inv.Targets[i]
		t.Host = strings.TrimSpace(t.Host)
		if t.Host == "" {
			return nil, fmt.Errorf("target %d: host is empty", i)
		}
		if t.Port == 0 {
			t.Port = DefaultPort(protocol)
		}
		if t.Port <= 0 || t.Port > 65535 {
			name := t.ID
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, fmt.Errorf("target %s: invalid port %d", name, t.Port)
		}
		if t.ID == "" {
			t.ID = StableID(*t)
		}
		if j, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("target %d: duplicate id %s (first used by target %d)", i, t.ID, j)
		}
		seen[t.ID] = i
	}

	return &inv, nil
}

// FileLister reads the inventory file on every List call, so edits apply to
// the next run without a restart.
type FileLister struct {
	Path     string
	Protocol string
}

func (l FileLister) List(_ context.Context) ([]Target, error) {
	inv, err := Load(l.Path, l.Protocol)
	if err != nil {
		return nil, err
	}
	return inv.Targets, nil
}
