package shipper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/weathermesh/weathermesh/pkg/types"
)

// Putter uploads one reading and returns the aggregator's status code.
type Putter interface {
	Put(ctx context.Context, r types.Reading) (int, error)
}

// Shipper keeps one station's reading fresh on the aggregator.
type Shipper struct {
	put      Putter
	interval time.Duration
	buf      chan types.Reading

	sent   atomic.Uint64
	failed atomic.Uint64
}

// New creates a Shipper that re-sends every interval. A non-positive interval
// disables periodic re-sends.
func New(p Putter, interval time.Duration) *Shipper {
	return &Shipper{
		put:      p,
		interval: interval,
		buf:      make(chan types.Reading, 1),
	}
}

// Ship queues r for upload, replacing any reading not yet sent.
func (s *Shipper) Ship(r types.Reading) {
	for {
		select {
		case s.buf <- r:
			return
		default:
		}
		select {
		case <-s.buf:
			slog.Debug("shipper: replaced pending reading", "station", r.ID())
		default:
		}
	}
}

// Run uploads shipped readings until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var latest types.Reading
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-s.buf:
			latest = r
			s.send(ctx, latest)
		case <-tick:
			if latest != nil {
				s.send(ctx, latest)
			}
		}
	}
}

// Stats returns the number of successful and failed uploads.
func (s *Shipper) Stats() (sent, failed uint64) {
	return s.sent.Load(), s.failed.Load()
}

func (s *Shipper) send(ctx context.Context, r types.Reading) {
	code, err := s.put.Put(ctx, r)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.failed.Add(1)
		slog.Error("shipper: upload failed, will retry next interval",
			"station", r.ID(), "status", code, "err", err, "retry_in", s.interval)
		return
	}
	s.sent.Add(1)
	slog.Info("shipper: reading delivered", "station", r.ID(), "status", code)
}
