package validator

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"unicode/utf8"
)

// Kind is the coarse category of a failed validation.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindAuth      Kind = "auth"
	KindHandshake Kind = "handshake"
	KindTransport Kind = "transport"
	KindDelivery  Kind = "delivery"
)

// ErrUnsupportedProtocol is returned by New for an unknown protocol name.
var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// Error is returned by validators for any per-target failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

const maxReason = 120

// Reason renders err as the short reason shown to users.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var s string
	var verr *Error
	if errors.As(err, &verr) {
		s = verr.Error()
	} else {
		s = err.Error()
	}
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxReason {
		cut := maxReason - 3
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

// classify wraps err into an *Error. Timeouts win over the stage kind.
func classify(stage Kind, err error) error {
	if err == nil {
		return nil
	}
	var verr *Error
	if errors.As(err, &verr) {
		return err
	}
	if isTimeout(err) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	if stage == KindAuth || isAuthRejection(err) {
		return &Error{Kind: KindAuth, Err: err}
	}
	return &Error{Kind: stage, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func isAuthRejection(err error) bool {
	var terr *textproto.Error
	if errors.As(err, &terr) {
		switch terr.Code {
		case 530, 534, 535, 538:
			return true
		}
	}
	return strings.Contains(err.Error(), "unable to authenticate")
}
