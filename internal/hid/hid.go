package hid

import "time"

// EventKind distinguishes the two notifications the host platform delivers.
type EventKind int

const (
	EventAttached EventKind = iota
	EventDetached
)

// Event is an attach or detach notification. Path identifies the device on
// the host platform; Host.Open turns it into a handle.
type Event struct {
	Kind EventKind
	Path string
}

// Device represents an opened handle to a HID device. The descriptor fields
// are readable before the interface is claimed.
type Device interface {
	Path() string
	VendorID() uint16
	ProductID() uint16
	Claim() error // claim the single HID interface
	Close() error
}

// TransferStatus is the terminal outcome of a submitted transfer.
type TransferStatus int

const (
	TransferPending TransferStatus = iota
	TransferCompleted
	TransferTimedOut
	TransferStall
	TransferNoDevice
	TransferError
)

func (s TransferStatus) String() string {
	switch s {
	case TransferPending:
		return "pending"
	case TransferCompleted:
		return "completed"
	case TransferTimedOut:
		return "timed_out"
	case TransferStall:
		return "stall"
	case TransferNoDevice:
		return "no_device"
	default:
		return "error"
	}
}

// SetupPacket is the 8-byte setup stage of a control transfer.
type SetupPacket struct {
	RequestType byte
	Request     byte
	Value       uint16
	Index       uint16
	Length      uint16
}

// Transfer describes one interrupt-IN or control operation. The host writes
// Status and Actual and then invokes Done exactly once; Data must not be
// released or reused until Done has been observed.
type Transfer struct {
	Device  Device
	Setup   *SetupPacket // nil for interrupt-IN
	Timeout time.Duration
	Data    []byte
	Actual  int
	Status  TransferStatus
	Done    func(*Transfer)
}

// Host is the USB host platform this package abstracts over. Submitted
// transfers complete asynchronously: completion callbacks fire only from
// HandleClientEvents, and control transfers additionally make progress only
// while HandleHostEvents is being serviced. Attach/detach events are
// likewise delivered from HandleHostEvents.
type Host interface {
	// Start registers the device event sink. It must be called before the
	// event pumps are serviced.
	Start(onEvent func(Event)) error

	Open(path string) (Device, error)

	SubmitInterrupt(t *Transfer) error
	SubmitControl(t *Transfer) error

	// HandleHostEvents drives library-level work: hotplug detection and
	// execution of submitted control transfers.
	HandleHostEvents(wait time.Duration) error

	// HandleClientEvents delivers completion callbacks for finished
	// transfers.
	HandleClientEvents(wait time.Duration) error

	Close() error
}
