package agent

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/juju/errors"
)

const positionVersion = 1

// Position remembers the last commanded shade angle across restarts.
// Implements persist.Stater.
type Position struct {
	angle uint32 // atomic
}

func (p *Position) Angle() int       { return int(atomic.LoadUint32(&p.angle)) }
func (p *Position) SetAngle(deg int) { atomic.StoreUint32(&p.angle, uint32(deg)) }

func (p *Position) MarshalBinary() ([]byte, error) {
	b := make([]byte, 5)
	b[0] = positionVersion
	binary.BigEndian.PutUint32(b[1:], atomic.LoadUint32(&p.angle))
	return b, nil
}

func (p *Position) UnmarshalBinary(b []byte) error {
	if len(b) != 5 {
		return errors.NotValidf("position: invalid length=%d", len(b))
	}
	if b[0] != positionVersion {
		return errors.NotValidf("position: unknown version=%d", b[0])
	}
	atomic.StoreUint32(&p.angle, binary.BigEndian.Uint32(b[1:]))
	return nil
}
