// Package agent owns the session lifecycle: authenticate, bind the
// notification channel, poll for commands, and decide what each failure
// means. The api client never retries; all policy lives here.
package agent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/shadeworks/shaded/internal/api"
	"github.com/shadeworks/shaded/internal/hardware/servo"
	"github.com/shadeworks/shaded/internal/tele"
	"github.com/shadeworks/shaded/log2"
)

const DefaultPacingDelay = 1 * time.Second

type State uint32

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateBound
	StatePolling
	StateReAuthenticating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateBound:
		return "bound"
	case StatePolling:
		return "polling"
	case StateReAuthenticating:
		return "re-authenticating"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

type Options struct {
	API      *api.Client
	Actuator servo.Actuator
	Log      *log2.Log
	// Alive is stopped to request shutdown; a new one is created when nil.
	Alive *alive.Alive
	// Tele defaults to tele.Noop{}.
	Tele tele.Teler
	// PacingDelay between poll cycles, default 1s.
	PacingDelay time.Duration
	// OnAngle forwards successful actuator moves, see Dispatcher.
	OnAngle func(deg int)
}

type Supervisor struct {
	opt      Options
	dispatch Dispatcher
	state    uint32 // atomic State, observable from other goroutines
	sess     Session
}

func NewSupervisor(opt Options) (*Supervisor, error) {
	if opt.API == nil {
		return nil, errors.NotValidf("code error supervisor API=nil")
	}
	if opt.Actuator == nil {
		return nil, errors.NotValidf("code error supervisor Actuator=nil")
	}
	if opt.Alive == nil {
		opt.Alive = alive.NewAlive()
	}
	if opt.Tele == nil {
		opt.Tele = tele.Noop{}
	}
	if opt.PacingDelay == 0 {
		opt.PacingDelay = DefaultPacingDelay
	}
	s := &Supervisor{opt: opt}
	s.dispatch = Dispatcher{
		Actuator: opt.Actuator,
		Log:      opt.Log,
		OnAngle:  opt.OnAngle,
	}
	return s, nil
}

func (s *Supervisor) State() State { return State(atomic.LoadUint32(&s.state)) }

func (s *Supervisor) Alive() *alive.Alive { return s.opt.Alive }

// Stop requests a clean shutdown; Run returns nil.
func (s *Supervisor) Stop() { s.opt.Alive.Stop() }

// Run drives the session until a fatal error (returned) or Stop/ctx
// cancel (returns nil). Strictly sequential: one poll, one dispatch,
// one pacing delay per cycle.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.opt.Alive.StopChan():
			cancel()
		case <-done:
		}
	}()

	s.opt.Tele.State(tele.State_Boot)
	sess, err := s.handshake(ctx)
	if err != nil {
		return s.terminate(ctx, err)
	}
	s.sess = sess
	s.opt.Log.Debugf("auth token=%s channel=%s", s.sess.Token, s.sess.ChannelID)

	for {
		if s.stopping(ctx) {
			return s.terminate(ctx, nil)
		}
		s.setState(StatePolling)
		msg, ok, err := s.opt.API.Poll(ctx, s.sess.Token, s.sess.ChannelID)
		if err != nil {
			if api.KindOf(err) == api.KindTokenInvalid {
				s.opt.Log.Infof("session token rejected, re-authenticating")
				s.setState(StateReAuthenticating)
				s.opt.Tele.State(tele.State_Reauth)
				if sess, err = s.handshake(ctx); err != nil {
					return s.terminate(ctx, err)
				}
				s.sess = sess
				continue
			}
			return s.terminate(ctx, errors.Annotate(err, "poll"))
		}
		if ok {
			s.dispatch.Dispatch(msg)
		}
		if err := s.sleep(ctx, s.opt.PacingDelay); err != nil {
			return s.terminate(ctx, nil)
		}
	}
}

// handshake runs authenticate + channel bind; the session is complete
// or absent, never partial.
func (s *Supervisor) handshake(ctx context.Context) (Session, error) {
	s.setState(StateAuthenticating)
	token, err := s.opt.API.Authenticate(ctx)
	if err != nil {
		return Session{}, errors.Annotate(err, "authenticate")
	}
	channel, err := s.opt.API.Connect(ctx, token)
	if err != nil {
		return Session{}, errors.Annotate(err, "bind channel")
	}
	s.setState(StateBound)
	s.opt.Tele.State(tele.State_Nominal)
	return Session{Token: token, ChannelID: channel}, nil
}

// terminate folds the stop-vs-fatal decision: interrupted work is a
// clean shutdown whatever error the aborted call returned.
func (s *Supervisor) terminate(ctx context.Context, err error) error {
	s.setState(StateTerminated)
	if err == nil || s.stopping(ctx) {
		s.opt.Log.Infof("supervisor stopped")
		s.opt.Tele.State(tele.State_Shutdown)
		return nil
	}
	s.opt.Tele.State(tele.State_Problem)
	return err
}

func (s *Supervisor) stopping(ctx context.Context) bool {
	return ctx.Err() != nil || !s.opt.Alive.IsRunning()
}

func (s *Supervisor) setState(new State) {
	old := State(atomic.SwapUint32(&s.state, uint32(new)))
	if old != new {
		s.opt.Log.Debugf("supervisor state %s -> %s", old, new)
	}
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return context.Canceled
	case <-s.opt.Alive.StopChan():
		return context.Canceled
	}
}
