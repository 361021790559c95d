// Package tele reports agent status to an MQTT broker: session state
// transitions and error messages. Publish-only and best-effort; the
// command path stays on the control server long-poll.
package tele

import (
	"context"

	tele_config "github.com/shadeworks/shaded/internal/tele/config"
	"github.com/shadeworks/shaded/log2"
)

type State byte

const (
	State_Invalid State = iota
	State_Boot
	State_Nominal
	State_Reauth
	State_Problem
	State_Shutdown
)

func (s State) String() string {
	switch s {
	case State_Invalid:
		return "invalid"
	case State_Boot:
		return "boot"
	case State_Nominal:
		return "nominal"
	case State_Reauth:
		return "reauth"
	case State_Problem:
		return "problem"
	case State_Shutdown:
		return "shutdown"
	}
	return "unknown"
}

// Teler contract:
// - Init() fails only with invalid config, network issues ignored
// - State/Error never block on the network, messages go out in background
// - status messages may be lost
type Teler interface {
	Init(ctx context.Context, log *log2.Log, c tele_config.Config) error
	Close()
	State(State)
	Error(error)
}

type Noop struct{}

var _ Teler = Noop{} // compile-time interface test

func (Noop) Init(context.Context, *log2.Log, tele_config.Config) error { return nil }

func (Noop) Close() {}

func (Noop) State(State) {}

func (Noop) Error(error) {}
