// Package session tracks the attach/detach lifecycle of the one matching
// UPS device.
package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/seagrayinc/upsbridge/internal/hid"
)

// Session is an open, claimed handle to the tracked device. It lives from a
// matching attach to the corresponding detach and is never reused; a
// reattach always builds a fresh one.
type Session struct {
	Path   string
	Device hid.Device
}

// Tracker owns the current session. HandleEvent is the only writer; it runs
// on the platform's event-delivery path. Other goroutines read through
// Current and must treat a vanished session as a normal race.
type Tracker struct {
	host hid.Host
	vid  uint16
	pid  uint16

	mu      sync.Mutex
	current *Session
}

func NewTracker(host hid.Host, vid, pid uint16) *Tracker {
	return &Tracker{host: host, vid: vid, pid: pid}
}

// HandleEvent processes one attach or detach notification.
func (t *Tracker) HandleEvent(ev hid.Event) {
	switch ev.Kind {
	case hid.EventAttached:
		t.attach(ev.Path)
	case hid.EventDetached:
		t.detach(ev.Path)
	}
}

func (t *Tracker) attach(path string) {
	dev, err := t.host.Open(path)
	if err != nil {
		slog.Debug("open attached device failed", slog.String("path", path), slog.Any("error", err))
		return
	}

	if dev.VendorID() != t.vid || dev.ProductID() != t.pid {
		// Not ours: close immediately, no other side effects.
		_ = dev.Close()
		return
	}

	if err := dev.Claim(); err != nil {
		slog.Warn("claim HID interface failed", slog.String("path", path), slog.Any("error", err))
		_ = dev.Close()
		return
	}

	slog.Info("UPS attached",
		slog.String("path", path),
		slog.String("id", fmt.Sprintf("%04X:%04X", dev.VendorID(), dev.ProductID())))

	t.mu.Lock()
	old := t.current
	t.current = &Session{Path: path, Device: dev}
	t.mu.Unlock()

	if old != nil {
		// Should not happen with a single device, but never leak a handle.
		_ = old.Device.Close()
	}
}

func (t *Tracker) detach(path string) {
	t.mu.Lock()
	cur := t.current
	if cur == nil || cur.Path != path {
		t.mu.Unlock()
		return
	}
	t.current = nil
	t.mu.Unlock()

	slog.Info("UPS detached", slog.String("path", path))
	_ = cur.Device.Close()
}

// Current returns the live session, or nil when no matching device is
// attached.
func (t *Tracker) Current() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Connected reports whether a matching device is attached.
func (t *Tracker) Connected() bool {
	return t.Current() != nil
}
