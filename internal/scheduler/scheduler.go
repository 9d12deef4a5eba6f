// Package scheduler triggers snapshot passes at a fixed minute of every hour.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/checkpoint"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/logging"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/snapshot"
)

// DefaultPollInterval is how long the scheduler sleeps while the gate is closed.
const DefaultPollInterval = 20 * time.Second

// State is the scheduler's current state.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Running:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

// Gate reports whether a pass may start at t.
type Gate func(t time.Time) bool

// MinuteGate opens during the given minute of every hour.
func MinuteGate(minute int) Gate {
	return func(t time.Time) bool {
		return t.Minute() == minute
	}
}

// Runner runs one snapshot pass.
type Runner interface {
	RunPass(ctx context.Context, at time.Time) (*snapshot.PassSummary, error)
}

// Config configures a Scheduler.
type Config struct {
	Gate         Gate
	PollInterval time.Duration
	Location     *time.Location
	Now          func() time.Time
	Checkpoint   checkpoint.Manager
}

// Scheduler polls the clock and runs at most one pass per snapshot slot.
type Scheduler struct {
	runner     Runner
	gate       Gate
	poll       time.Duration
	loc        *time.Location
	now        func() time.Time
	checkpoint checkpoint.Manager
	state      atomic.Int32
	lastSlot   string
	skipLogged string
	log        *slog.Logger
}

// New creates a scheduler. Zero config fields fall back to minute 3, a 20s
// poll, the local time zone, time.Now and no checkpoint.
func New(runner Runner, cfg Config) *Scheduler {
	s := &Scheduler{
		runner:     runner,
		gate:       cfg.Gate,
		poll:       cfg.PollInterval,
		loc:        cfg.Location,
		now:        cfg.Now,
		checkpoint: cfg.Checkpoint,
		log:        logging.Component("scheduler"),
	}
	if s.gate == nil {
		s.gate = MinuteGate(3)
	}
	if s.poll <= 0 {
		s.poll = DefaultPollInterval
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// State returns the current state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Run loops until ctx is cancelled. Pass failures are logged and the loop
// continues; it returns ctx.Err() on shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	s.seed(ctx)
	s.log.Info("scheduler started", "poll_interval", s.poll, "location", s.loc.String(), "last_slot", s.lastSlot)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := s.tick(ctx, s.now().In(s.loc)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("snapshot pass failed", "error", err)
		}

		timer := time.NewTimer(s.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// seed restores the last completed slot so a restart inside the gate
// minute does not repeat a pass.
func (s *Scheduler) seed(ctx context.Context) {
	if s.checkpoint == nil {
		return
	}
	cp, err := s.checkpoint.Load(ctx)
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNoCheckpoint) {
			s.log.Warn("failed to load checkpoint", "error", err)
		}
		return
	}
	s.lastSlot = cp.LastSnapshotID
}

// tick runs a pass when the gate is open and the slot of now has not been
// attempted yet. It reports whether a pass ran.
func (s *Scheduler) tick(ctx context.Context, now time.Time) (bool, error) {
	if !s.gate(now) {
		return false, nil
	}
	slot := snapshot.Identifier(now)
	if slot == s.lastSlot {
		if s.skipLogged != slot {
			s.log.Info("slot already attempted, waiting for next hour", "slot", slot)
			s.skipLogged = slot
		}
		return false, nil
	}
	// A failed pass also consumes its slot; the next chance is the next hour.
	s.lastSlot = slot

	s.state.Store(int32(Running))
	summary, err := s.runner.RunPass(ctx, now)
	s.state.Store(int32(Idle))
	if err != nil {
		return true, err
	}

	s.saveCheckpoint(ctx, summary)
	return true, nil
}

func (s *Scheduler) saveCheckpoint(ctx context.Context, summary *snapshot.PassSummary) {
	if s.checkpoint == nil || summary == nil {
		return
	}
	cp := &checkpoint.Checkpoint{
		LastSnapshotID: summary.SnapshotID,
		LastPass: &checkpoint.PassInfo{
			CorrelationID: summary.CorrelationID,
			Datasets:      summary.Datasets,
			Records:       summary.Records,
			StartedAt:     summary.StartedAt,
			Duration:      summary.Duration,
		},
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.checkpoint.Save(context.WithoutCancel(ctx), cp); err != nil {
		s.log.Warn("failed to save checkpoint", "error", err)
	}
}
