package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seagrayinc/upsbridge/internal/apchid"
	"github.com/seagrayinc/upsbridge/internal/state"
	"github.com/seagrayinc/upsbridge/internal/transfer"
)

type fakeConn struct {
	pushed   [][]byte
	pushErr  error
	features map[byte][]byte
	featErr  map[byte]error

	reads    int
	requests int
}

func (f *fakeConn) ReadPushedReport(time.Duration) ([]byte, error) {
	f.reads++
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	if len(f.pushed) == 0 {
		return nil, transfer.ErrTimeout
	}
	d := f.pushed[0]
	f.pushed = f.pushed[1:]
	return d, nil
}

func (f *fakeConn) RequestFeatureReport(id byte, _ time.Duration) ([]byte, error) {
	f.requests++
	if err, ok := f.featErr[id]; ok {
		return nil, err
	}
	if d, ok := f.features[id]; ok {
		return d, nil
	}
	return nil, transfer.ErrStall
}

func newScheduler(conn *fakeConn) (*Scheduler, *state.Store) {
	store := state.NewStore()
	return NewScheduler(conn, store, nil, nil, Config{SweepEvery: 5}), store
}

func TestPollOnceMergesPushedReport(t *testing.T) {
	conn := &fakeConn{pushed: [][]byte{{0x0C, 100, 0x10, 0x0E}}}
	s, store := newScheduler(conn)

	s.PollOnce(context.Background())

	snap := store.Snapshot()
	if !snap.Valid {
		t.Fatal("snapshot not valid after merge")
	}
	if snap.BatteryCharge != 100 {
		t.Errorf("BatteryCharge = %v, want 100", snap.BatteryCharge)
	}
	if snap.BatteryRuntime != 3600 {
		t.Errorf("BatteryRuntime = %v, want 3600", snap.BatteryRuntime)
	}
}

func TestSweepCadence(t *testing.T) {
	conn := &fakeConn{}
	s, _ := newScheduler(conn)
	ctx := context.Background()

	perSweep := len(apchid.SweepOrder)
	for i := 0; i < 11; i++ {
		s.PollOnce(ctx)
	}
	// Sweeps on cycles 0, 5 and 10; every cycle does one pushed read.
	if want := 3 * perSweep; conn.requests != want {
		t.Errorf("feature requests = %d, want %d", conn.requests, want)
	}
	if conn.reads != 11 {
		t.Errorf("pushed reads = %d, want 11", conn.reads)
	}
}

func TestSweepFailuresIndependent(t *testing.T) {
	conn := &fakeConn{
		features: map[byte][]byte{
			0x31: {0x31, 0x78, 0x00},
		},
		featErr: map[byte]error{
			0x30: errors.New("transfer failed: error"),
			0x09: transfer.ErrTimeout,
		},
	}
	s, store := newScheduler(conn)

	s.PollOnce(context.Background())

	if conn.requests != len(apchid.SweepOrder) {
		t.Errorf("sweep stopped early: %d of %d requests",
			conn.requests, len(apchid.SweepOrder))
	}
	if got := store.Snapshot().InputVoltage; got != 120 {
		t.Errorf("InputVoltage = %v, want 120", got)
	}
}

func TestSweepAbandonedWithoutDevice(t *testing.T) {
	conn := &fakeConn{
		featErr: map[byte]error{apchid.SweepOrder[0]: transfer.ErrNoDevice},
		pushErr: transfer.ErrNoDevice,
	}
	s, store := newScheduler(conn)

	s.PollOnce(context.Background())

	if conn.requests != 1 {
		t.Errorf("requests = %d, want 1", conn.requests)
	}
	if store.Snapshot().Valid {
		t.Error("snapshot became valid without any decode")
	}
}

func TestErrorsDoNotInvalidate(t *testing.T) {
	conn := &fakeConn{pushed: [][]byte{{0x16, 0x01}}}
	s, store := newScheduler(conn)
	ctx := context.Background()

	s.PollOnce(ctx)
	if got := store.Snapshot().StatusString; got != "OL" {
		t.Fatalf("StatusString = %q, want OL", got)
	}

	conn.pushErr = errors.New("transfer failed: error")
	s.PollOnce(ctx)

	snap := store.Snapshot()
	if !snap.Valid || snap.StatusString != "OL" {
		t.Errorf("error cycle disturbed snapshot: valid=%v status=%q",
			snap.Valid, snap.StatusString)
	}
}

func TestDiagnosticReportNotMerged(t *testing.T) {
	conn := &fakeConn{pushed: [][]byte{{0x0E, 0x64, 0x00}}}
	s, store := newScheduler(conn)

	s.PollOnce(context.Background())

	if store.Snapshot().Valid {
		t.Error("diagnostic-only report must not touch the snapshot")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	conn := &fakeConn{}
	s, _ := newScheduler(conn)
	s.cfg.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
