package agent

import (
	"github.com/shadeworks/shaded/internal/hardware/servo"
	"github.com/shadeworks/shaded/log2"
)

// Action is a command string the control server may deliver. Anything
// else is reported and dropped.
type Action string

const (
	ActionOpen  Action = "open"
	ActionClose Action = "close"
)

func parseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionOpen:
		return ActionOpen, true
	case ActionClose:
		return ActionClose, true
	}
	return "", false
}

// Dispatcher turns received command strings into actuator calls.
// Consumes commands only; never touches session or credentials.
type Dispatcher struct {
	Actuator servo.Actuator
	Log      *log2.Log
	// OnAngle is called after a successful actuator move, used for
	// position persistence. Optional.
	OnAngle func(deg int)
}

// Dispatch executes raw: exactly one actuator call for a valid command,
// none for unknown or empty ones. Never fatal.
func (d *Dispatcher) Dispatch(raw string) {
	action, ok := parseAction(raw)
	if !ok {
		d.Log.Errorf("dispatch: unknown action=%q", raw)
		return
	}
	var angle int
	var status string
	switch action {
	case ActionOpen:
		angle, status = servo.AngleOpen, "opened"
	case ActionClose:
		angle, status = servo.AngleClosed, "closed"
	}
	if err := d.Actuator.SetAngle(angle); err != nil {
		d.Log.Errorf("dispatch: action=%s servo err=%v", action, err)
		return
	}
	d.Log.Infof("status: %s", status)
	if d.OnAngle != nil {
		d.OnAngle(angle)
	}
}
