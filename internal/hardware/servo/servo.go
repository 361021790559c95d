// Package servo drives the sunshade positioning motor over GPIO.
// Hobby servo on a single line: 50Hz software PWM, pulse width selects
// the angle, then the line is left low so the motor does not hum.
package servo

import (
	"strconv"
	"time"

	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"

	"github.com/shadeworks/shaded/log2"
)

const (
	AngleClosed = 0
	AngleOpen   = 180
	AngleMax    = 180
)

const (
	pwmPeriod   = 20 * time.Millisecond // 50Hz
	settleDelay = 500 * time.Millisecond
)

// Actuator is what the command dispatcher talks to. Hardware servo in
// production, Mock in tests and on development machines.
type Actuator interface {
	SetAngle(deg int) error
}

type Config struct {
	Enable  bool   `hcl:"enable"`
	PinChip string `hcl:"pin_chip"`
	Pin     string `hcl:"pin"`
}

type Servo struct {
	log     *log2.Log
	pinChip gpio.Chiper
	lines   gpio.Lineser
	set     gpio.LineSetFunc
}

var _ Actuator = &Servo{}

func NewServo(conf Config, log *log2.Log) (*Servo, error) {
	pin, err := strconv.ParseUint(conf.Pin, 10, 32)
	if err != nil {
		return nil, errors.Annotatef(err, "servo pin must be number pin=%s", conf.Pin)
	}
	s := &Servo{log: log}
	s.pinChip, err = gpio.Open(conf.PinChip, "shaded-servo")
	if err != nil {
		return nil, errors.Annotatef(err, "servo open chip=%s", conf.PinChip)
	}
	s.lines, err = s.pinChip.OpenLines(
		gpio.GPIOHANDLE_REQUEST_OUTPUT, "shaded-servo",
		uint32(pin),
	)
	if err != nil {
		return nil, errors.Annotatef(err, "servo open line=%d", pin)
	}
	s.set = s.lines.SetFunc(uint32(pin))
	return s, nil
}

// SetAngle pulses the line for settleDelay so the horn reaches deg, then
// stops the signal. Blocks for the whole settle time.
func (s *Servo) SetAngle(deg int) error {
	high, err := pulseWidth(deg)
	if err != nil {
		return err
	}
	s.log.Debugf("servo angle=%d pulse=%s", deg, high)
	deadline := time.Now().Add(settleDelay)
	for time.Now().Before(deadline) {
		s.set(1)
		s.lines.Flush() //nolint:errcheck
		time.Sleep(high)
		s.set(0)
		s.lines.Flush() //nolint:errcheck
		time.Sleep(pwmPeriod - high)
	}
	return nil
}

// duty% = 2 + deg/18, of a 20ms period; 0deg=0.4ms .. 180deg=2.4ms pulse
func pulseWidth(deg int) (time.Duration, error) {
	if deg < 0 || deg > AngleMax {
		return 0, errors.NotValidf("servo angle=%d out of [0,%d]", deg, AngleMax)
	}
	dutyPercent := 2 + float64(deg)/18
	return time.Duration(dutyPercent / 100 * float64(pwmPeriod)), nil
}
