package api

import (
	"fmt"

	"github.com/juju/errors"
)

// Kind classifies request failures so the supervisor can choose between
// re-authentication and termination without string matching.
type Kind uint8

const (
	KindInvalid Kind = iota
	// KindNetwork: transport-level failure, no response at all.
	KindNetwork
	// KindRejected: server answered with non-success status.
	KindRejected
	// KindTokenInvalid: authorization-class rejection (401/403) of a
	// token-bearing request; session can be re-established.
	KindTokenInvalid
	// KindMalformed: success status but the expected field is missing or
	// the body does not parse.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNetwork:
		return "network"
	case KindRejected:
		return "rejected"
	case KindTokenInvalid:
		return "token-invalid"
	case KindMalformed:
		return "malformed"
	}
	return fmt.Sprintf("unknown:%d", uint8(k))
}

type Error struct {
	Kind   Kind
	Op     string // challenge, respond, connect, poll
	Status int    // HTTP status for KindRejected/KindTokenInvalid
	Body   string // response body text for KindRejected/KindTokenInvalid
	Cause  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindRejected, KindTokenInvalid:
		return fmt.Sprintf("api %s: HTTP %d: %s", e.Op, e.Status, e.Body)
	case KindMalformed:
		return fmt.Sprintf("api %s: malformed response: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("api %s: request failed: %v", e.Op, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf unwraps juju annotations and returns the error's Kind,
// KindInvalid for foreign errors.
func KindOf(err error) Kind {
	if e, ok := errors.Cause(err).(*Error); ok {
		return e.Kind
	}
	return KindInvalid
}
