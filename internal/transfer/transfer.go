// Package transfer serializes USB transfers against the attached UPS and
// maps their completion statuses onto caller-visible errors.
package transfer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seagrayinc/upsbridge/internal/hid"
	"github.com/seagrayinc/upsbridge/internal/observability"
	"github.com/seagrayinc/upsbridge/internal/session"
)

var (
	// ErrNoDevice means no UPS is attached, or it went away mid-transfer.
	ErrNoDevice = errors.New("transfer: no device attached")
	// ErrTimeout means the transfer did not complete within the caller's bound.
	ErrTimeout = errors.New("transfer: timed out")
	// ErrStall means the device rejected the request, typically a report id
	// this firmware revision does not implement.
	ErrStall = errors.New("transfer: report not supported by device")
)

const (
	// Back-UPS reports fit comfortably in one low-speed packet, but the
	// buffer is sized for the largest descriptor-declared report.
	reportSize = 64

	pollInterval = 10 * time.Millisecond

	// HID GET_REPORT over the control pipe.
	getReportRequestType = 0xA1
	getReportRequest     = 0x01
	reportTypeFeature    = 3
)

type txState int

const (
	stateSubmitted txState = iota
	stateCompleted
	stateReleased
)

// op tracks one in-flight transfer. Its buffer is only returned to the pool
// once the completion callback has run; the host side may still be writing
// into it until then, even after the caller has given up.
type op struct {
	t     *hid.Transfer
	state txState
	done  chan struct{}
}

func (o *op) markCompleted() {
	o.state = stateCompleted
	close(o.done)
}

// Coordinator owns the single-transfer-at-a-time discipline the Back-UPS
// needs. Pushed interrupt reads and feature report requests share one mutex,
// so at most one transfer is ever on the wire.
type Coordinator struct {
	host    hid.Host
	tracker *session.Tracker
	metrics *observability.Metrics
	log     *slog.Logger
	mu      sync.Mutex
	bufs    sync.Pool
	iface   uint16
}

func NewCoordinator(host hid.Host, tracker *session.Tracker, metrics *observability.Metrics, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		host:    host,
		tracker: tracker,
		metrics: metrics,
		log:     log,
		bufs: sync.Pool{New: func() any {
			b := make([]byte, reportSize)
			return &b
		}},
	}
}

// ReadPushedReport blocks for up to timeout waiting for the device to push
// an interrupt-IN report. The returned slice starts with the report id.
func (c *Coordinator) ReadPushedReport(timeout time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.session()
	if sess == nil {
		c.metrics.ObserveTransfer("interrupt", "no_device")
		return nil, ErrNoDevice
	}

	buf := c.bufs.Get().(*[]byte)
	o := &op{
		t: &hid.Transfer{
			Device:  sess.Device,
			Timeout: timeout,
			Data:    (*buf)[:reportSize],
		},
		done: make(chan struct{}),
	}
	data, err := c.run(o, c.host.SubmitInterrupt, false, timeout)
	c.bufs.Put(buf)
	c.metrics.ObserveTransfer("interrupt", outcome(err))
	return data, err
}

// RequestFeatureReport fetches one feature report over the control pipe via
// HID GET_REPORT. The returned slice starts with the report id.
func (c *Coordinator) RequestFeatureReport(reportID byte, timeout time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.session()
	if sess == nil {
		c.metrics.ObserveTransfer("feature", "no_device")
		return nil, ErrNoDevice
	}

	buf := c.bufs.Get().(*[]byte)
	o := &op{
		t: &hid.Transfer{
			Device: sess.Device,
			Setup: &hid.SetupPacket{
				RequestType: getReportRequestType,
				Request:     getReportRequest,
				Value:       reportTypeFeature<<8 | uint16(reportID),
				Index:       c.iface,
				Length:      reportSize,
			},
			Timeout: timeout,
			Data:    (*buf)[:reportSize],
		},
		done: make(chan struct{}),
	}
	data, err := c.run(o, c.host.SubmitControl, true, timeout)
	c.bufs.Put(buf)
	c.metrics.ObserveTransfer("feature", outcome(err))
	return data, err
}

// session pumps both event channels once before consulting the tracker, so
// attach and detach are noticed even while no transfer is in flight.
func (c *Coordinator) session() *session.Session {
	c.pump(true)
	return c.tracker.Current()
}

// run submits the transfer and pumps events until completion. Control
// transfers are executed by the host pump, so pumpHost must be set for them;
// interrupt completions arrive through the client pump alone.
func (c *Coordinator) run(o *op, submit func(*hid.Transfer) error, pumpHost bool, timeout time.Duration) ([]byte, error) {
	o.t.Done = func(*hid.Transfer) { o.markCompleted() }

	if err := submit(o.t); err != nil {
		// Never reached the wire, so the buffer is ours to reclaim.
		o.state = stateReleased
		return nil, fmt.Errorf("submit: %w", err)
	}

	for waited := time.Duration(0); waited < timeout; waited += pollInterval {
		c.pump(pumpHost)
		select {
		case <-o.done:
			return c.finish(o)
		default:
		}
	}

	// The caller's budget is spent, but the host side still owns the buffer
	// until the completion callback fires. Releasing early would hand the
	// pool a buffer a late completion can scribble over.
	c.log.Warn("transfer overran its deadline, waiting for completion",
		"timeout", timeout)
	for {
		c.pump(pumpHost)
		select {
		case <-o.done:
			if _, err := c.finish(o); err != nil && !errors.Is(err, ErrTimeout) {
				return nil, err
			}
			return nil, ErrTimeout
		default:
		}
		time.Sleep(pollInterval)
	}
}

func (c *Coordinator) pump(pumpHost bool) {
	if pumpHost {
		if err := c.host.HandleHostEvents(pollInterval / 2); err != nil {
			c.log.Debug("host event pump", "err", err)
		}
	}
	if err := c.host.HandleClientEvents(pollInterval / 2); err != nil {
		c.log.Debug("client event pump", "err", err)
	}
}

// finish translates an observed completion into the caller-visible result
// and releases the transfer.
func (c *Coordinator) finish(o *op) ([]byte, error) {
	if o.state != stateCompleted {
		return nil, fmt.Errorf("transfer released in state %d before completion", o.state)
	}
	defer func() { o.state = stateReleased }()

	switch o.t.Status {
	case hid.TransferCompleted:
		out := make([]byte, o.t.Actual)
		copy(out, o.t.Data[:o.t.Actual])
		return out, nil
	case hid.TransferStall:
		return nil, ErrStall
	case hid.TransferTimedOut:
		return nil, ErrTimeout
	case hid.TransferNoDevice:
		return nil, ErrNoDevice
	default:
		return nil, fmt.Errorf("transfer failed: %s", o.t.Status)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrStall):
		return "stall"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNoDevice):
		return "no_device"
	default:
		return "error"
	}
}
