package servo

import (
	"sync"

	"github.com/shadeworks/shaded/log2"
)

// Mock records SetAngle calls. Stands in for hardware in tests and when
// hardware.servo.enable=false.
type Mock struct {
	Log *log2.Log
	Err error // returned by SetAngle when set

	mu    sync.Mutex
	calls []int
}

var _ Actuator = &Mock{}

func NewMock(log *log2.Log) *Mock { return &Mock{Log: log} }

func (m *Mock) SetAngle(deg int) error {
	if _, err := pulseWidth(deg); err != nil {
		return err
	}
	m.mu.Lock()
	m.calls = append(m.calls, deg)
	m.mu.Unlock()
	m.Log.Infof("mock servo angle=%d", deg)
	return m.Err
}

func (m *Mock) Calls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.calls...)
}
