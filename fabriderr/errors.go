// Package fabriderr defines the error kinds shared across the fabric's
// packages (signaling, peer, endpoint, store) so callers can branch on
// failure class without depending on the package that produced it.
package fabriderr

import (
	"errors"
	"fmt"
)

// Kind classifies a fabric error for propagation-policy decisions.
type Kind int

const (
	// KindPeerRegistration: signaling refused or timed out during registration.
	KindPeerRegistration Kind = iota
	// KindPeerUnknown: no such peer registered with the signaling server.
	KindPeerUnknown
	// KindPeerTimeout: handshake or request deadline expired.
	KindPeerTimeout
	// KindPeerBackpressure: outbound queue saturated.
	KindPeerBackpressure
	// KindChannelError: transport failed mid-request.
	KindChannelError
	// KindSerialization: undecodable frame.
	KindSerialization
	// KindNotFound: object absent (not an error above GET).
	KindNotFound
	// KindConfig: persisted configuration invalid.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindPeerRegistration:
		return "PeerRegistration"
	case KindPeerUnknown:
		return "PeerUnknown"
	case KindPeerTimeout:
		return "PeerTimeout"
	case KindPeerBackpressure:
		return "PeerBackpressure"
	case KindChannelError:
		return "ChannelError"
	case KindSerialization:
		return "Serialization"
	case KindNotFound:
		return "NotFound"
	case KindConfig:
		return "Config"
	default:
		return "Unknown"
	}
}

// Error is a fabric error tagged with a Kind, so it can be matched with
// errors.As without string comparison.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Msg, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap creates an Error of the given kind wrapping a lower-level cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err is a fabric Error of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}
