// Package notify delivers short text messages to a user.
//
// Delivery is best effort. Callers on the validation path go through an
// Outbox, which never blocks them and swallows delivery errors after logging
// them. The ntfy implementation publishes each owner's messages to their own
// topic; the log implementation is used when no ntfy server is configured.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const userAgent = "credcheck/0.1"

// Notifier emits one message to owner.
type Notifier interface {
	Notify(ctx context.Context, owner, text string) error
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, owner, text string) error

func (f Func) Notify(ctx context.Context, owner, text string) error {
	return f(ctx, owner, text)
}

// Log writes messages to a slog logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, owner, text string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notify", "owner", owner, "text", text)
	return nil
}

// Ntfy publishes to <BaseURL>/<TopicPrefix><owner>.
type Ntfy struct {
	baseURL string
	prefix  string
	title   string
	client  *http.Client
}

type NtfyConfig struct {
	BaseURL     string
	TopicPrefix string
	Title       string
	Timeout     time.Duration
}

func NewNtfy(cfg NtfyConfig) *Ntfy {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	title := cfg.Title
	if title == "" {
		title = "credcheck"
	}
	return &Ntfy{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		prefix:  cfg.TopicPrefix,
		title:   title,
		client:  &http.Client{Timeout: timeout},
	}
}

// New returns an ntfy notifier when cfg.BaseURL is set and a log notifier
// otherwise.
func New(cfg NtfyConfig, logger *slog.Logger) Notifier {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return Log{Logger: logger}
	}
	return NewNtfy(cfg)
}

func (n *Ntfy) Notify(ctx context.Context, owner, text string) error {
	endpoint := n.baseURL + "/" + url.PathEscape(n.prefix+owner)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", n.title)
	req.Header.Set("Tags", "credcheck")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
