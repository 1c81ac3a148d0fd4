package hid

import (
	"errors"
	"sync"
	"time"
)

// MockDevice is an in-memory device handle for tests.
type MockDevice struct {
	DevicePath string
	Vendor     uint16
	Product    uint16

	mu      sync.Mutex
	claimed bool
	closed  bool
}

func (d *MockDevice) Path() string      { return d.DevicePath }
func (d *MockDevice) VendorID() uint16  { return d.Vendor }
func (d *MockDevice) ProductID() uint16 { return d.Product }

func (d *MockDevice) Claim() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("hid: claim on closed device")
	}
	d.claimed = true
	return nil
}

func (d *MockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.claimed = false
	d.closed = true
	return nil
}

func (d *MockDevice) Claimed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.claimed
}

func (d *MockDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type pendingInterrupt struct {
	t        *Transfer
	deadline time.Time
}

// MockHost is an in-memory Host that reproduces the platform's completion
// model: interrupt transfers finish as soon as scripted data exists and the
// client pump runs, while control transfers execute only inside the host
// pump and then surface through the client pump.
type MockHost struct {
	mu      sync.Mutex
	onEvent func(Event)

	devices map[string]*MockDevice
	Opens   int

	interruptQ [][]byte
	feature    map[byte][]byte
	stalled    map[byte]bool

	pending  []pendingInterrupt
	hostQ    []*Transfer
	executed []*Transfer

	// Hold parks finished transfers until ReleaseHeld; used to exercise the
	// late-completion path.
	Hold bool
	held []*Transfer

	active    int
	MaxActive int
}

func NewMockHost() *MockHost {
	return &MockHost{
		devices: make(map[string]*MockDevice),
		feature: make(map[byte][]byte),
		stalled: make(map[byte]bool),
	}
}

// AddDevice registers a device that Open can return.
func (h *MockHost) AddDevice(d *MockDevice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.devices[d.DevicePath] = d
}

// Attach delivers an attach event for a registered device.
func (h *MockHost) Attach(path string) {
	h.deliver(Event{Kind: EventAttached, Path: path})
}

// Detach delivers a detach event.
func (h *MockHost) Detach(path string) {
	h.deliver(Event{Kind: EventDetached, Path: path})
}

func (h *MockHost) deliver(ev Event) {
	h.mu.Lock()
	onEvent := h.onEvent
	h.mu.Unlock()
	if onEvent != nil {
		onEvent(ev)
	}
}

// PushReport scripts one pushed (interrupt) report, report id first.
func (h *MockHost) PushReport(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interruptQ = append(h.interruptQ, data)
}

// SetFeature scripts the payload returned for a feature report id.
func (h *MockHost) SetFeature(id byte, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.feature[id] = data
}

// Stall marks a feature report id as rejected by the device.
func (h *MockHost) Stall(id byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stalled[id] = true
}

// ReleaseHeld lets parked completions through on the next client pump.
func (h *MockHost) ReleaseHeld() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.executed = append(h.executed, h.held...)
	h.held = nil
	h.Hold = false
}

func (h *MockHost) Start(onEvent func(Event)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onEvent = onEvent
	return nil
}

func (h *MockHost) Open(path string) (Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.devices[path]
	if !ok {
		return nil, errors.New("hid: no such device")
	}
	h.Opens++
	return d, nil
}

func (h *MockHost) SubmitInterrupt(t *Transfer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.track()
	if len(h.interruptQ) > 0 {
		data := h.interruptQ[0]
		h.interruptQ = h.interruptQ[1:]
		t.Actual = copy(t.Data, data)
		t.Status = TransferCompleted
		h.finish(t)
		return nil
	}
	h.pending = append(h.pending, pendingInterrupt{t: t, deadline: time.Now().Add(t.Timeout)})
	return nil
}

func (h *MockHost) SubmitControl(t *Transfer) error {
	if t.Setup == nil {
		return errors.New("hid: control transfer without setup packet")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.track()
	h.hostQ = append(h.hostQ, t)
	return nil
}

// HandleHostEvents executes queued control transfers. Completions still
// need a client pump pass to reach their callbacks.
func (h *MockHost) HandleHostEvents(time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range h.hostQ {
		id := byte(t.Setup.Value & 0xFF)
		data, ok := h.feature[id]
		switch {
		case h.stalled[id] || !ok:
			t.Status = TransferStall
		default:
			t.Data[0] = id
			t.Actual = copy(t.Data[1:], data) + 1
			t.Status = TransferCompleted
		}
		h.finish(t)
	}
	h.hostQ = nil
	return nil
}

// HandleClientEvents times out expired interrupt transfers and fires
// completion callbacks for everything finished.
func (h *MockHost) HandleClientEvents(time.Duration) error {
	h.mu.Lock()
	now := time.Now()
	keep := h.pending[:0]
	for _, p := range h.pending {
		if now.After(p.deadline) {
			p.t.Status = TransferTimedOut
			h.finish(p.t)
			continue
		}
		keep = append(keep, p)
	}
	h.pending = keep

	fire := h.executed
	h.executed = nil
	h.active -= len(fire)
	h.mu.Unlock()

	for _, t := range fire {
		if t.Done != nil {
			t.Done(t)
		}
	}
	return nil
}

func (h *MockHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onEvent = nil
	return nil
}

func (h *MockHost) track() {
	h.active++
	if h.active > h.MaxActive {
		h.MaxActive = h.active
	}
}

func (h *MockHost) finish(t *Transfer) {
	if h.Hold {
		h.held = append(h.held, t)
		return
	}
	h.executed = append(h.executed, t)
}
