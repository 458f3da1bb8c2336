package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tickd/internal/eventbus"
	"tickd/internal/notify"
	"tickd/internal/storage"
	"tickd/internal/timer"
	logx "tickd/pkg/logx"
)

// errNoTransition aborts a registry update when the timer already reached a
// terminal status (the countdown lost a race with a caller mutation, or vice
// versa).
var errNoTransition = errors.New("no transition")

type Service struct {
	cfg   Config
	log   logx.Logger
	bus   eventbus.Bus // optional
	reg   *timer.Registry
	queue *notify.Queue

	now func() time.Time

	mu       sync.Mutex
	runtimes map[string]*runtime

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// progress throttles countdown tick logging across all timers.
	progress *rate.Limiter
}

// New wires the scheduler. store and bus may be nil.
func New(cfg Config, store storage.Store, queue *notify.Queue, bus eventbus.Bus, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	if queue == nil {
		queue = notify.NewQueue(0, log)
	}
	reg := timer.NewRegistry(timer.RegistryConfig{
		MaxDuration:  cfg.MaxDuration,
		TombstoneTTL: cfg.TombstoneTTL,
	}, store, log)
	return &Service{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		reg:      reg,
		queue:    queue,
		now:      time.Now,
		runtimes: map[string]*runtime{},
		stopCh:   make(chan struct{}),
		progress: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Registry exposes the underlying table for introspection and tests.
func (s *Service) Registry() *timer.Registry { return s.reg }

// Queue exposes the notification queue drained at agent turn boundaries.
func (s *Service) Queue() *notify.Queue { return s.queue }

// Start restores persisted timers (if a store is configured) and resumes
// their countdowns against the original deadlines.
func (s *Service) Start(ctx context.Context) error {
	restored, err := s.reg.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore timers: %w", err)
	}
	for _, snap := range restored {
		s.spawn(snap.ID)
		s.log.Info("timer restored",
			logx.String("id", snap.ID),
			logx.String("status", string(snap.Status)),
			logx.Duration("remaining", snap.Remaining))
	}
	s.log.Info("scheduler started", logx.Int("timers", len(restored)))
	return nil
}

// Shutdown signals every countdown goroutine to exit and waits for them,
// bounded by ctx. Timers are not stopped in the registry/store, so a
// persistence-backed deployment can restore them on the next start.
func (s *Service) Shutdown(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stopCh) })

	// Wake blocked Run calls so callers are not stuck through shutdown.
	s.mu.Lock()
	rts := make([]*runtime, 0, len(s.runtimes))
	for _, rt := range s.runtimes {
		rts = append(rts, rt)
	}
	s.mu.Unlock()
	for _, rt := range rts {
		rt.poke()
		rt.broadcast()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		// countdown goroutines finish in background
		s.log.Warn("scheduler stop timed out; countdowns exiting in background")
	}
}

// spawn registers the per-timer runtime and launches its countdown goroutine.
func (s *Service) spawn(id string) *runtime {
	s.mu.Lock()
	if rt, ok := s.runtimes[id]; ok {
		s.mu.Unlock()
		return rt
	}
	rt := newRuntime(id)
	s.runtimes[id] = rt
	s.mu.Unlock()

	s.wg.Add(1)
	go s.countdown(rt)
	return rt
}

func (s *Service) runtime(id string) *runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runtimes[id]
}

// countdown owns one timer's clock. It sleeps until the next decision point
// (completion deadline or pause window end) and re-reads state whenever it is
// poked, so caller mutations take effect immediately.
func (s *Service) countdown(rt *runtime) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in timer countdown",
				logx.String("id", rt.id),
				logx.Any("panic", r),
				logx.Stack(logx.StackTrace(3, 16)))
			s.failTimer(rt.id, fmt.Sprint(r))
		}
		s.finish(rt)
	}()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		snap, err := s.reg.Get(rt.id)
		if err != nil {
			// Removed (stopped or reaped); nothing left to count.
			return
		}

		switch snap.Status {
		case timer.StatusCompleted, timer.StatusStopped:
			return

		case timer.StatusPaused:
			wait := snap.PauseUntil.Sub(s.now())
			if wait <= 0 {
				s.autoResume(rt.id)
				continue
			}
			s.sleep(rt, wait)

		default: // running or background
			if snap.Remaining <= 0 {
				s.complete(rt)
				return
			}
			if s.progress.Allow() {
				s.log.Debug("timer ticking",
					logx.String("id", rt.id),
					logx.String("status", string(snap.Status)),
					logx.Duration("remaining", snap.Remaining))
			}
			s.sleep(rt, snap.Remaining)
		}
	}
}

// sleep blocks until d elapses, the runtime is poked, or the service stops.
// The caller re-reads state afterwards either way.
func (s *Service) sleep(rt *runtime, d time.Duration) {
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-tmr.C:
	case <-rt.kick:
	case <-s.stopCh:
	}
}

// complete finalizes a countdown that reached zero. Whoever wins the lock
// decides; a concurrent Stop makes this a no-op.
func (s *Service) complete(rt *runtime) {
	var detached bool
	snap, err := s.reg.Update(rt.id, func(now time.Time, st *timer.State) error {
		if st.Status.Terminal() {
			return errNoTransition
		}
		detached = st.Detached
		st.Status = timer.StatusCompleted
		return nil
	})
	if err != nil {
		return
	}

	if detached {
		// Caller already walked away: the queue is the delivery channel,
		// so the registry record can go immediately.
		s.queue.Enqueue(notify.Event{
			TimerID:     snap.ID,
			Reason:      snap.Reason,
			Mission:     snap.Mission,
			Total:       snap.Total,
			Elapsed:     snap.Elapsed,
			CompletedAt: s.now(),
		})
		rt.setFinal(snap)
		s.reg.Remove(snap.ID)
		s.log.Info("background timer completed; notification queued",
			logx.String("id", snap.ID),
			logx.Duration("total", snap.Total))
	} else {
		// Attached completion is observed synchronously by the blocked
		// Run (or the next Read); no notification.
		s.log.Debug("timer completed", logx.String("id", snap.ID), logx.Duration("total", snap.Total))
	}

	s.publish(eventbus.TimerCompleted, snap, "")
	rt.broadcast()
}

// failTimer contains a countdown panic: the timer transitions to stopped and
// the unexpected terminal state is surfaced on the caller's next read.
func (s *Service) failTimer(id, cause string) {
	snap, err := s.reg.Update(id, func(now time.Time, st *timer.State) error {
		if st.Status.Terminal() {
			return errNoTransition
		}
		st.Status = timer.StatusStopped
		st.TerminationReason = "internal error: " + cause
		return nil
	})
	if err != nil {
		return
	}
	s.publish(eventbus.TimerStopped, snap, "countdown panic")
	if rt := s.runtime(id); rt != nil {
		rt.setFinal(snap)
		rt.broadcast()
	}
}

// finish tears down the runtime after its countdown goroutine exits.
func (s *Service) finish(rt *runtime) {
	close(rt.done)
	s.mu.Lock()
	delete(s.runtimes, rt.id)
	s.mu.Unlock()
}

// reap tombstones a terminal record once its state has been reported to the
// caller (completed timers stay readable until first observation).
func (s *Service) reap(snap timer.Snapshot) {
	if !snap.Status.Terminal() {
		return
	}
	if rt := s.runtime(snap.ID); rt != nil {
		rt.setFinal(snap)
	}
	s.reg.Remove(snap.ID)
}

func (s *Service) publish(typ string, snap timer.Snapshot, note string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: TimerEvent{
		ID:          snap.ID,
		Status:      string(snap.Status),
		Purpose:     snap.Purpose(),
		RemainingMS: snap.Remaining.Milliseconds(),
		Note:        note,
	}})
}
