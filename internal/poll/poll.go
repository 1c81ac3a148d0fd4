// Package poll drives the acquisition cadence: a pushed-report read every
// cycle and a full feature report sweep every sweepEvery cycles.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/seagrayinc/upsbridge/internal/apchid"
	"github.com/seagrayinc/upsbridge/internal/observability"
	"github.com/seagrayinc/upsbridge/internal/state"
	"github.com/seagrayinc/upsbridge/internal/transfer"
)

// Conn is the slice of the transfer coordinator the scheduler needs.
type Conn interface {
	ReadPushedReport(timeout time.Duration) ([]byte, error)
	RequestFeatureReport(reportID byte, timeout time.Duration) ([]byte, error)
}

type Config struct {
	// Interval is the cycle cadence.
	Interval time.Duration
	// ReadTimeout bounds the per-cycle pushed-report wait.
	ReadTimeout time.Duration
	// FeatureTimeout bounds each GET_REPORT during a sweep.
	FeatureTimeout time.Duration
	// SweepEvery runs the feature sweep on the first cycle and every
	// SweepEvery cycles after that.
	SweepEvery int
	// SweepPause spaces consecutive sweep requests out so the UPS's slow
	// endpoint is not hammered.
	SweepPause time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 500 * time.Millisecond
	}
	if c.FeatureTimeout <= 0 {
		c.FeatureTimeout = time.Second
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 20
	}
	if c.SweepPause < 0 {
		c.SweepPause = 0
	}
}

// Scheduler is the sole writer of the metrics store. Decode failures and
// transfer errors are logged and counted; none of them stops the loop or
// touches previously stored data.
type Scheduler struct {
	conn    Conn
	store   *state.Store
	metrics *observability.Metrics
	log     *slog.Logger
	cfg     Config
	cycle   uint64
}

func NewScheduler(conn Conn, store *state.Store, metrics *observability.Metrics, log *slog.Logger, cfg Config) *Scheduler {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{conn: conn, store: store, metrics: metrics, log: log, cfg: cfg}
}

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		s.PollOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce runs one acquisition cycle.
func (s *Scheduler) PollOnce(ctx context.Context) {
	if s.cycle%uint64(s.cfg.SweepEvery) == 0 {
		s.sweep(ctx)
	}
	s.cycle++
	s.readPushed()
}

func (s *Scheduler) readPushed() {
	data, err := s.conn.ReadPushedReport(s.cfg.ReadTimeout)
	switch {
	case err == nil:
		s.apply(data)
	case errors.Is(err, transfer.ErrTimeout):
		// Quiet bus; the UPS only pushes on change.
	case errors.Is(err, transfer.ErrNoDevice):
		s.log.Debug("pushed read skipped, no device")
	default:
		s.log.Warn("pushed read failed", "err", err)
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	for _, id := range apchid.SweepOrder {
		if ctx.Err() != nil {
			return
		}
		data, err := s.conn.RequestFeatureReport(id, s.cfg.FeatureTimeout)
		switch {
		case err == nil:
			s.apply(data)
		case errors.Is(err, transfer.ErrStall):
			s.log.Debug("feature report not supported",
				"report", apchid.ReportName(id))
		case errors.Is(err, transfer.ErrNoDevice):
			s.log.Debug("sweep abandoned, no device")
			return
		default:
			s.log.Warn("feature report failed",
				"report", apchid.ReportName(id), "err", err)
		}
		if s.cfg.SweepPause > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.SweepPause):
			}
		}
	}
	s.metrics.SweepDone()
}

func (s *Scheduler) apply(data []byte) {
	if len(data) == 0 {
		s.metrics.ObserveDecode("empty")
		return
	}
	id := data[0]
	updates := apchid.Decode(id, data)
	if len(updates) == 0 {
		s.log.Debug("report not merged",
			"report", apchid.ReportName(id), "raw", fmt.Sprintf("% X", data))
		s.metrics.ObserveDecode("skipped")
		return
	}
	s.store.Apply(updates)
	s.metrics.ObserveDecode("ok")
}
