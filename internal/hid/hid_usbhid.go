//go:build !windows

package hid

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/karalabe/usb"
	usbhid "rafaelmartins.com/p/usbhid"
)

// scanInterval rate-limits hotplug enumeration inside the host event pump.
const scanInterval = time.Second

// USBHost is the production Host backend. Report I/O goes through usbhid;
// hotplug detection enumerates the bus with karalabe/usb from the host event
// pump, so attach/detach events surface only while that pump is serviced.
type USBHost struct {
	mu       sync.Mutex
	onEvent  func(Event)
	present  map[string]bool
	lastScan time.Time

	controlQ chan *Transfer
	doneQ    chan *Transfer

	// orphans holds reads that finished after their transfer had already
	// timed out; the next interrupt submit consumes them so no pushed
	// report is lost.
	orphans chan readResult
}

type readResult struct {
	rid byte
	buf []byte
	err error
}

func NewUSBHost() *USBHost {
	return &USBHost{
		present:  make(map[string]bool),
		controlQ: make(chan *Transfer, 8),
		doneQ:    make(chan *Transfer, 8),
		orphans:  make(chan readResult, 4),
	}
}

func (h *USBHost) Start(onEvent func(Event)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.onEvent != nil {
		return errors.New("hid: host already started")
	}
	h.onEvent = onEvent
	return nil
}

func (h *USBHost) Open(path string) (Device, error) {
	d, err := usbhid.Get(func(dev *usbhid.Device) bool {
		return dev.Path() == path
	}, true, false)
	if err != nil {
		return nil, fmt.Errorf("hid: open %s: %w", path, err)
	}
	return &usbDevice{d: d}, nil
}

type usbDevice struct {
	d       *usbhid.Device
	claimed bool
}

func (d *usbDevice) Path() string      { return d.d.Path() }
func (d *usbDevice) VendorID() uint16  { return d.d.VendorId() }
func (d *usbDevice) ProductID() uint16 { return d.d.ProductId() }

func (d *usbDevice) Claim() error {
	// usbhid detaches the kernel driver and claims the interface as part of
	// Get; record the state so Close can log a still-claimed handle.
	d.claimed = true
	return nil
}

func (d *usbDevice) Close() error {
	d.claimed = false
	return d.d.Close()
}

// SubmitInterrupt starts the interrupt-IN read in the background. The read
// blocks inside usbhid until the device pushes a report or the handle dies,
// so the transfer's timeout is enforced here: past it the transfer completes
// as TransferTimedOut and the still-running read is parked as an orphan.
// The completion surfaces through the client event pump.
func (h *USBHost) SubmitInterrupt(t *Transfer) error {
	dev, ok := t.Device.(*usbDevice)
	if !ok || dev == nil {
		return errors.New("hid: interrupt transfer without device")
	}
	go func() {
		select {
		case r := <-h.orphans:
			finishRead(t, r.rid, r.buf, r.err)
			h.doneQ <- t
			return
		default:
		}

		res := make(chan readResult, 1)
		go func() {
			rid, buf, err := dev.d.GetInputReport()
			res <- readResult{rid: rid, buf: buf, err: err}
		}()

		timeout := t.Timeout
		if timeout <= 0 {
			timeout = time.Second
		}
		tm := time.NewTimer(timeout)
		select {
		case r := <-res:
			tm.Stop()
			finishRead(t, r.rid, r.buf, r.err)
		case <-tm.C:
			t.Status = TransferTimedOut
			go func() {
				r := <-res
				if r.err != nil {
					return
				}
				select {
				case h.orphans <- r:
				default:
					slog.Debug("dropping orphaned report",
						slog.Int("id", int(r.rid)))
				}
			}()
		}
		h.doneQ <- t
	}()
	return nil
}

// SubmitControl queues the transfer for execution by the host event pump.
func (h *USBHost) SubmitControl(t *Transfer) error {
	if t.Setup == nil {
		return errors.New("hid: control transfer without setup packet")
	}
	if _, ok := t.Device.(*usbDevice); !ok {
		return errors.New("hid: control transfer without device")
	}
	select {
	case h.controlQ <- t:
		return nil
	default:
		return errors.New("hid: control queue full")
	}
}

func (h *USBHost) HandleHostEvents(wait time.Duration) error {
	worked := false
	for {
		select {
		case t := <-h.controlQ:
			h.runControl(t)
			worked = true
			continue
		default:
		}
		break
	}
	if h.scanDue() {
		h.scan()
		worked = true
	}
	if !worked && wait > 0 {
		time.Sleep(wait)
	}
	return nil
}

func (h *USBHost) HandleClientEvents(wait time.Duration) error {
	// Block up to wait for the first completion, then drain whatever else
	// has already finished.
	if wait > 0 {
		tm := time.NewTimer(wait)
		select {
		case t := <-h.doneQ:
			tm.Stop()
			if t.Done != nil {
				t.Done(t)
			}
		case <-tm.C:
			return nil
		}
	}
	for {
		select {
		case t := <-h.doneQ:
			if t.Done != nil {
				t.Done(t)
			}
		default:
			return nil
		}
	}
}

func (h *USBHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onEvent = nil
	return nil
}

func (h *USBHost) runControl(t *Transfer) {
	dev := t.Device.(*usbDevice)
	rid := byte(t.Setup.Value & 0xFF)
	buf, err := dev.d.GetFeatureReport(rid)
	finishRead(t, rid, buf, err)
	h.doneQ <- t
}

// finishRead maps a usbhid read result onto the transfer. The first data
// byte carries the report id, matching the wire layout of interrupt reports.
func finishRead(t *Transfer, rid byte, buf []byte, err error) {
	switch {
	case err == nil:
		if len(t.Data) > 0 {
			t.Data[0] = rid
			n := copy(t.Data[1:], buf)
			t.Actual = n + 1
		}
		t.Status = TransferCompleted
	case errors.Is(err, syscall.EPIPE):
		t.Status = TransferStall
	case errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.EIO):
		t.Status = TransferNoDevice
	default:
		slog.Debug("transfer failed", slog.Any("error", err))
		t.Status = TransferError
	}
}

func (h *USBHost) scanDue() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Since(h.lastScan) >= scanInterval
}

// scan diffs the enumerated bus against the last pass and synthesizes
// attach/detach events for the registered sink.
func (h *USBHost) scan() {
	infos, err := usb.Enumerate(0, 0)
	if err != nil {
		slog.Debug("usb enumerate failed", slog.Any("error", err))
		return
	}

	h.mu.Lock()
	onEvent := h.onEvent
	h.lastScan = time.Now()

	seen := make(map[string]bool, len(infos))
	var events []Event
	for _, info := range infos {
		seen[info.Path] = true
		if !h.present[info.Path] {
			events = append(events, Event{Kind: EventAttached, Path: info.Path})
		}
	}
	for path := range h.present {
		if !seen[path] {
			events = append(events, Event{Kind: EventDetached, Path: path})
		}
	}
	h.present = seen
	h.mu.Unlock()

	if onEvent == nil {
		return
	}
	for _, ev := range events {
		onEvent(ev)
	}
}
