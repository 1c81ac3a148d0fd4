package session

import (
	"testing"

	"github.com/seagrayinc/upsbridge/internal/apchid"
	"github.com/seagrayinc/upsbridge/internal/hid"
)

func newTracker(h *hid.MockHost) *Tracker {
	t := NewTracker(h, apchid.APCVendorID, apchid.BackUPSPID)
	_ = h.Start(t.HandleEvent)
	return t
}

func TestAttachMatchingDevice(t *testing.T) {
	host := hid.NewMockHost()
	ups := &hid.MockDevice{DevicePath: "1-1", Vendor: apchid.APCVendorID, Product: apchid.BackUPSPID}
	host.AddDevice(ups)

	tr := newTracker(host)
	host.Attach("1-1")

	s := tr.Current()
	if s == nil || s.Path != "1-1" {
		t.Fatalf("session: %+v", s)
	}
	if !ups.Claimed() {
		t.Fatal("HID interface not claimed")
	}
	if !tr.Connected() {
		t.Fatal("tracker not connected")
	}
}

func TestAttachForeignDeviceIsClosed(t *testing.T) {
	host := hid.NewMockHost()
	kb := &hid.MockDevice{DevicePath: "1-2", Vendor: 0x046D, Product: 0xC31C}
	host.AddDevice(kb)

	tr := newTracker(host)
	host.Attach("1-2")

	if tr.Connected() {
		t.Fatal("foreign device created a session")
	}
	if !kb.Closed() {
		t.Fatal("foreign device handle not closed")
	}
	if kb.Claimed() {
		t.Fatal("foreign device interface claimed")
	}
}

func TestDetachClearsSession(t *testing.T) {
	host := hid.NewMockHost()
	ups := &hid.MockDevice{DevicePath: "1-1", Vendor: apchid.APCVendorID, Product: apchid.BackUPSPID}
	host.AddDevice(ups)

	tr := newTracker(host)
	host.Attach("1-1")
	host.Detach("1-1")

	if tr.Connected() {
		t.Fatal("session survived detach")
	}
	if !ups.Closed() {
		t.Fatal("device handle not closed on detach")
	}
}

func TestDetachOfUnknownPathIsIgnored(t *testing.T) {
	host := hid.NewMockHost()
	ups := &hid.MockDevice{DevicePath: "1-1", Vendor: apchid.APCVendorID, Product: apchid.BackUPSPID}
	host.AddDevice(ups)

	tr := newTracker(host)
	host.Attach("1-1")
	host.Detach("2-7")

	if !tr.Connected() {
		t.Fatal("unrelated detach cleared the session")
	}
}

func TestReattachBuildsFreshSession(t *testing.T) {
	host := hid.NewMockHost()
	ups := &hid.MockDevice{DevicePath: "1-1", Vendor: apchid.APCVendorID, Product: apchid.BackUPSPID}
	host.AddDevice(ups)

	tr := newTracker(host)
	host.Attach("1-1")
	first := tr.Current()
	host.Detach("1-1")

	// Reattach with a fresh handle, as the platform would deliver.
	again := &hid.MockDevice{DevicePath: "1-1", Vendor: apchid.APCVendorID, Product: apchid.BackUPSPID}
	host.AddDevice(again)
	host.Attach("1-1")

	second := tr.Current()
	if second == nil {
		t.Fatal("no session after reattach")
	}
	if second == first {
		t.Fatal("session reused across detach/reattach")
	}
	if host.Opens != 2 {
		t.Fatalf("opens: %d", host.Opens)
	}
}
