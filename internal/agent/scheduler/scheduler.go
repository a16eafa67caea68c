// Package scheduler implements the agent's cooperative scheduler (§4.6):
// a small set of independent work units (authentication, update poll,
// optionally inventory) each fire on their own interval or on an
// explicit Trigger, but never run concurrently with one another — the
// whole point of a single-threaded agent with no per-work-unit locking.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"

	"github.com/edgeupdate/agent/internal/agent/agenterrors"
	"github.com/edgeupdate/agent/internal/agent/platform"
	"github.com/edgeupdate/agent/pkg/log"
	"github.com/edgeupdate/agent/pkg/ringbuffer"
)

// historySize bounds how many recent work-unit outcomes Outcomes retains.
const historySize = 32

// Outcome records one completed work unit execution, kept for
// diagnostics (e.g. a status command inspecting recent agent activity).
type Outcome struct {
	Unit string
	Err  error
	At   time.Time
}

type unit struct {
	name     string
	interval time.Duration
	execute  func(ctx context.Context) error
	trigger  chan struct{}
	done     chan struct{}
}

// Scheduler runs a fixed set of named work units, serialized: at most
// one unit's Execute function is running at any instant. Register every
// work unit before calling Run; Run blocks until ctx is done.
type Scheduler struct {
	mu       sync.Mutex
	units    []*unit
	events   chan *unit
	history  *ringbuffer.RingBuffer[Outcome]
	log      *log.PrefixLogger
	platform platform.Hooks
}

// New returns a Scheduler. hooks may be nil, in which case work units
// run with no network bring-up/release around them. logger may be nil.
func New(hooks platform.Hooks, logger *log.PrefixLogger) *Scheduler {
	if logger == nil {
		logger = log.NewPrefixLogger("scheduler")
	}
	return &Scheduler{
		events:   make(chan *unit, 8),
		history:  ringbuffer.NewRingBuffer[Outcome](historySize),
		log:      logger,
		platform: hooks,
	}
}

// Register adds a named work unit. interval is how often it fires on
// its own; an interval of zero or less disables periodic firing for
// this unit entirely, but Trigger still works — matching the
// "negative interval disables periodic firing" config contract.
// Register must be called before Run.
func (s *Scheduler) Register(name string, interval time.Duration, execute func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = append(s.units, &unit{
		name:     name,
		interval: interval,
		execute:  execute,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}, 1),
	})
}

// Trigger requests an out-of-band run of the named work unit at the
// next opportunity. It never blocks: a trigger already pending for that
// unit is coalesced into a single run, and an unknown name is a no-op.
func (s *Scheduler) Trigger(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.units {
		if u.name != name {
			continue
		}
		select {
		case u.trigger <- struct{}{}:
		default:
		}
		return
	}
}

// History returns recent work-unit outcomes, oldest first, without
// blocking; it drains (and so consumes) whatever has accumulated.
func (s *Scheduler) History() []Outcome {
	var out []Outcome
	for {
		v, ok, err := s.history.TryPop()
		if err != nil || !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

// Run starts every registered work unit's own timer goroutine and
// serializes their executions through a single event loop until ctx is
// done.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	units := append([]*unit(nil), s.units...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, u := range units {
		wg.Add(1)
		go func(u *unit) {
			defer wg.Done()
			s.driveUnit(ctx, u)
		}(u)
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case u := <-s.events:
			s.runOnce(ctx, u)
			select {
			case u.done <- struct{}{}:
			default:
			}
		}
	}
}

// driveUnit waits for u's interval to elapse or an explicit trigger,
// hands the unit to the event loop, then waits for that run to finish
// before arming the next wait — so a slow work unit's own interval is
// measured from when it finished, not when it started. The periodic
// timer comes from a wait.BackoffManager rather than a bare time.Timer,
// matching the teacher's polling idiom (e.g. deviceexporter.Manager.Run).
func (s *Scheduler) driveUnit(ctx context.Context, u *unit) {
	var backoff wait.BackoffManager
	if u.interval > 0 {
		backoff = wait.NewJitteredBackoffManager(u.interval, 0, nil)
	}

	for {
		var timer clock.Timer
		var timerC <-chan time.Time
		if backoff != nil {
			timer = backoff.Backoff()
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-timerC:
		case <-u.trigger:
			if timer != nil {
				timer.Stop()
			}
		}

		select {
		case <-ctx.Done():
			return
		case s.events <- u:
		}

		select {
		case <-ctx.Done():
			return
		case <-u.done:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, u *unit) {
	if s.platform != nil {
		if err := s.platform.NetworkConnect(ctx); err != nil {
			s.log.WithField("unit", u.name).WithError(err).Warnf("network connect failed, skipping run")
			s.recordOutcome(u.name, err)
			return
		}
		defer s.platform.NetworkRelease(ctx)
	}

	err := u.execute(ctx)
	if err != nil && !errors.Is(err, agenterrors.ErrNoUpdate) {
		s.log.WithField("unit", u.name).WithError(err).Warnf("work unit failed")
	}
	s.recordOutcome(u.name, err)
}

func (s *Scheduler) recordOutcome(name string, err error) {
	_ = s.history.Push(Outcome{Unit: name, Err: err, At: time.Now()})
}
