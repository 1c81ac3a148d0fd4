// Package sim fabricates the reports a healthy Back-UPS would produce, for
// running the bridge without hardware.
package sim

import (
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/seagrayinc/upsbridge/internal/transfer"
)

// Conn satisfies the scheduler's connection interface, so the decode and
// merge path runs unchanged against synthetic data.
type Conn struct {
	mu  sync.Mutex
	rng *rand.Rand

	charge     float64
	battVolts  float64
	inputVolts float64
	load       float64

	pushStatus bool
}

// NewConn seeds the simulator. seed 0 means time-seeded.
func NewConn(seed int64) *Conn {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Conn{
		rng:        rand.New(rand.NewSource(seed)),
		charge:     95,
		battVolts:  13.6,
		inputVolts: 120,
		load:       18,
	}
}

// step drifts the simulated electrical state a little each cycle.
func (c *Conn) step() {
	c.charge += c.rng.Float64()*0.4 - 0.1
	c.charge = clamp(c.charge, 20, 100)
	c.battVolts = clamp(c.battVolts+c.rng.Float64()*0.04-0.02, 11.0, 13.8)
	c.inputVolts = clamp(c.inputVolts+c.rng.Float64()*1.2-0.6, 108, 128)
	c.load = clamp(c.load+c.rng.Float64()*2-1, 0, 60)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// runtime estimates seconds of battery left from charge and load.
func (c *Conn) runtime() uint16 {
	base := c.charge * 40
	if c.load > 0 {
		base = base * 20 / c.load
	}
	return uint16(clamp(base, 60, 28800))
}

// ReadPushedReport behaves like the interrupt endpoint of a stable UPS:
// most reads time out, and status or charge reports arrive occasionally.
func (c *Conn) ReadPushedReport(time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step()

	if c.rng.Intn(4) != 0 {
		return nil, transfer.ErrTimeout
	}

	c.pushStatus = !c.pushStatus
	if c.pushStatus {
		// Online, charging.
		return []byte{0x16, 0x05}, nil
	}
	rt := c.runtime()
	return []byte{0x0C, byte(c.charge), byte(rt), byte(rt >> 8)}, nil
}

// RequestFeatureReport serves the subset of reports the simulated hardware
// implements; the rest stall like a real device would.
func (c *Conn) RequestFeatureReport(reportID byte, _ time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch reportID {
	case 0x03: // chemistry: lead-acid
		return []byte{reportID, 1}, nil
	case 0x08:
		return u16Report(reportID, 1200), nil
	case 0x09:
		return u16Report(reportID, uint16(c.battVolts*100)), nil
	case 0x0F:
		return []byte{reportID, 30}, nil
	case 0x10: // beeper enabled
		return []byte{reportID, 1}, nil
	case 0x11:
		return []byte{reportID, 10}, nil
	case 0x18: // last self-test passed
		return []byte{reportID, 1}, nil
	case 0x24:
		return u16Report(reportID, 120), nil
	case 0x30:
		return []byte{reportID, 120}, nil
	case 0x31:
		return u16Report(reportID, uint16(c.inputVolts)), nil
	case 0x32:
		return u16Report(reportID, 88), nil
	case 0x33:
		return u16Report(reportID, 139), nil
	case 0x35: // medium sensitivity
		return []byte{reportID, 1}, nil
	case 0x50:
		return []byte{reportID, byte(c.load)}, nil
	case 0x52:
		return u16Report(reportID, 330), nil
	default:
		return nil, transfer.ErrStall
	}
}

func u16Report(id byte, v uint16) []byte {
	out := []byte{id, 0, 0}
	binary.LittleEndian.PutUint16(out[1:], v)
	return out
}
