package scheduler

import (
	"context"
	"fmt"
	"time"

	"tickd/internal/eventbus"
	"tickd/internal/timer"
	logx "tickd/pkg/logx"
)

// Run creates a timer or continues an existing one, then blocks the caller
// for at most min(yield, remaining). The returned TimedOut flag tells the
// caller whether the timer is still outstanding.
//
// Stop, Cancel and Pause issued concurrently wake the blocked call
// immediately instead of letting it wait out the yield timeout.
func (s *Service) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if req.Reason != "" && req.Mission != "" {
		id := req.ID
		if id == "" {
			id = "(new)"
		}
		return RunResult{}, fmt.Errorf("timer %s: %w", id, timer.ErrAmbiguousPurpose)
	}
	if req.Yield < 0 {
		return RunResult{}, fmt.Errorf("%w: yield timeout must be >= 0, got %s", timer.ErrInvalidDuration, req.Yield)
	}
	yield := req.Yield
	if yield == 0 {
		yield = s.cfg.DefaultYield
	}

	var snap timer.Snapshot
	var err error
	if req.ID == "" {
		snap, err = s.reg.Create(req.Total, req.Reason, req.Mission)
		if err != nil {
			return RunResult{}, err
		}
		s.spawn(snap.ID)
		s.publish(eventbus.TimerCreated, snap, "")
		s.log.Info("timer created",
			logx.String("id", snap.ID),
			logx.Duration("total", snap.Total),
			logx.String("purpose", snap.Purpose()))
	} else {
		if err = s.reg.ValidateDuration(req.Total); err != nil {
			return RunResult{}, fmt.Errorf("timer %s: %w", req.ID, err)
		}
		reattached := false
		snap, err = s.reg.Update(req.ID, func(now time.Time, st *timer.State) error {
			if st.Status.Terminal() {
				return fmt.Errorf("timer %s: %w (already %s)", st.ID, timer.ErrNotActive, st.Status)
			}
			if req.Reason != "" {
				st.Reason, st.Mission = req.Reason, ""
			}
			if req.Mission != "" {
				st.Mission, st.Reason = req.Mission, ""
			}
			// Re-attach a detached timer when the caller starts waiting on
			// it again.
			if st.Status == timer.StatusBackground {
				st.Status = timer.StatusRunning
				st.Detached = false
				reattached = true
			}
			// The requested duration becomes the new remaining time.
			st.Total = st.Elapsed(now) + req.Total
			st.LastCheckedAt = now
			return nil
		})
		if err != nil {
			return RunResult{}, err
		}
		if rt := s.runtime(req.ID); rt != nil {
			rt.poke()
		} else {
			s.spawn(req.ID)
		}
		note := ""
		if reattached {
			note = "re-attached"
		}
		s.publish(eventbus.TimerContinued, snap, note)
	}

	final, timedOut, err := s.wait(ctx, snap.ID, yield)
	if err != nil {
		return RunResult{ID: snap.ID}, err
	}
	return RunResult{ID: snap.ID, TimedOut: timedOut, State: final}, nil
}

// wait blocks until the yield window elapses, the timer turns terminal, or a
// caller mutation interrupts the wait.
func (s *Service) wait(ctx context.Context, id string, yield time.Duration) (timer.Snapshot, bool, error) {
	rt := s.runtime(id)

	snap, err := s.reg.Get(id)
	if err != nil {
		return s.waitMiss(rt, err)
	}
	if snap.Status.Terminal() {
		s.reap(snap)
		return snap, false, nil
	}

	wait := yield
	// While paused the countdown does not consume remaining time, so only
	// the yield window bounds the block.
	if snap.Status != timer.StatusPaused && snap.Remaining < wait {
		wait = snap.Remaining
	}
	if wait < 0 {
		wait = 0
	}

	var doneCh, wakeCh <-chan struct{}
	if rt != nil {
		doneCh = rt.done
		wakeCh = rt.waitCh()
	}

	tmr := time.NewTimer(wait)
	defer tmr.Stop()
	select {
	case <-tmr.C:
	case <-doneCh:
	case <-wakeCh:
	case <-s.stopCh:
	case <-ctx.Done():
		return snap, true, ctx.Err()
	}

	after, err := s.reg.Get(id)
	if err != nil {
		return s.waitMiss(rt, err)
	}
	// If the deadline passed but the countdown goroutine has not finalized
	// yet, give it a moment so the caller observes the completion.
	if !after.Status.Terminal() && after.Remaining <= 0 && rt != nil {
		grace := time.NewTimer(50 * time.Millisecond)
		select {
		case <-rt.done:
		case <-grace.C:
		}
		grace.Stop()
		if again, err2 := s.reg.Get(id); err2 == nil {
			after = again
		} else {
			return s.waitMiss(rt, err2)
		}
	}
	if after.Status.Terminal() {
		s.reap(after)
		return after, false, nil
	}
	return after, true, nil
}

// waitMiss resolves a registry miss during a wait: the timer may have been
// finalized and tombstoned while we slept, in which case the runtime still
// carries its terminal snapshot.
func (s *Service) waitMiss(rt *runtime, err error) (timer.Snapshot, bool, error) {
	if rt != nil {
		if fin, ok := rt.finalSnap(); ok {
			return fin, false, nil
		}
	}
	return timer.Snapshot{}, false, err
}

// Read is a pure query; its only side effect is refreshing LastCheckedAt.
// Observing a terminal state tombstones the record.
func (s *Service) Read(id string) (timer.Snapshot, error) {
	snap, err := s.reg.Update(id, func(now time.Time, st *timer.State) error {
		st.LastCheckedAt = now
		return nil
	})
	if err != nil {
		return timer.Snapshot{}, err
	}
	if snap.Status.Terminal() {
		s.reap(snap)
	}
	return snap, nil
}

// ReadAll returns all live timers, oldest first.
func (s *Service) ReadAll() []timer.Snapshot {
	list := s.reg.List()
	for i := range list {
		refreshed, err := s.reg.Update(list[i].ID, func(now time.Time, st *timer.State) error {
			st.LastCheckedAt = now
			return nil
		})
		if err == nil {
			list[i] = refreshed
		}
		if list[i].Status.Terminal() {
			s.reap(list[i])
		}
	}
	return list
}

// Stop terminates a timer immediately and permanently. No notification is
// produced, regardless of any prior cancel.
func (s *Service) Stop(id, reason string) error {
	snap, err := s.reg.Update(id, func(now time.Time, st *timer.State) error {
		if st.Status.Terminal() {
			return fmt.Errorf("timer %s: %w (already %s)", st.ID, timer.ErrNotActive, st.Status)
		}
		st.Status = timer.StatusStopped
		st.TerminationReason = reason
		return nil
	})
	if err != nil {
		return err
	}

	if rt := s.runtime(id); rt != nil {
		rt.setFinal(snap)
		rt.poke()
		rt.broadcast()
	}
	s.reg.Remove(id)
	s.publish(eventbus.TimerStopped, snap, "")
	s.log.Info("timer stopped", logx.String("id", id), logx.String("reason", reason))
	return nil
}

// Cancel detaches the caller: the countdown keeps running unattended and its
// eventual completion is delivered through the notification queue. The timer
// is not destroyed.
func (s *Service) Cancel(id, reason string) error {
	snap, err := s.reg.Update(id, func(now time.Time, st *timer.State) error {
		if st.Status.Terminal() {
			return fmt.Errorf("timer %s: %w (already %s)", st.ID, timer.ErrNotActive, st.Status)
		}
		st.Detached = true
		// A paused timer stays paused; it continues in background once
		// the pause window ends.
		if st.Status == timer.StatusRunning {
			st.Status = timer.StatusBackground
		}
		st.TerminationReason = reason
		return nil
	})
	if err != nil {
		return err
	}

	if rt := s.runtime(id); rt != nil {
		rt.poke()
		rt.broadcast() // the caller's blocked wait returns immediately
	}
	s.publish(eventbus.TimerDetached, snap, "")
	s.log.Info("timer detached to background",
		logx.String("id", id),
		logx.Duration("remaining", snap.Remaining),
		logx.String("reason", reason))
	return nil
}

// Pause freezes the countdown for pauseDuration (an automatic resume is
// scheduled). Pausing an already-paused timer only updates the reason.
func (s *Service) Pause(id string, pauseDuration time.Duration, reason string) error {
	if err := s.reg.ValidateDuration(pauseDuration); err != nil {
		return fmt.Errorf("timer %s: pause duration: %w", id, err)
	}
	alreadyPaused := false
	snap, err := s.reg.Update(id, func(now time.Time, st *timer.State) error {
		if st.Status.Terminal() {
			return fmt.Errorf("timer %s: %w (already %s)", st.ID, timer.ErrNotActive, st.Status)
		}
		if st.Status == timer.StatusPaused {
			alreadyPaused = true
			st.TerminationReason = reason
			return nil
		}
		st.PausedAt = now
		st.PauseUntil = now.Add(pauseDuration)
		st.Status = timer.StatusPaused
		st.TerminationReason = reason
		return nil
	})
	if err != nil {
		return err
	}
	if alreadyPaused {
		return nil
	}

	if rt := s.runtime(id); rt != nil {
		rt.poke()
		rt.broadcast()
	}
	s.publish(eventbus.TimerPaused, snap, "")
	s.log.Info("timer paused",
		logx.String("id", id),
		logx.Time("until", snap.PauseUntil),
		logx.String("reason", reason))
	return nil
}

// Resume unfreezes a paused timer early; the elapsed accounting excludes the
// paused interval. Resuming a timer that is not paused is a no-op.
func (s *Service) Resume(id, reason string) error {
	return s.resume(id, reason, false)
}

// autoResume fires when a pause window elapses without a manual resume.
func (s *Service) autoResume(id string) {
	_ = s.resume(id, "pause window elapsed", true)
}

func (s *Service) resume(id, reason string, auto bool) error {
	resumed := false
	snap, err := s.reg.Update(id, func(now time.Time, st *timer.State) error {
		if st.Status.Terminal() {
			return fmt.Errorf("timer %s: %w (already %s)", st.ID, timer.ErrNotActive, st.Status)
		}
		if st.Status != timer.StatusPaused {
			if reason != "" {
				st.TerminationReason = reason
			}
			return nil
		}
		st.PausedFor += now.Sub(st.PausedAt)
		st.PausedAt = time.Time{}
		st.PauseUntil = time.Time{}
		// Resume restores the mode the timer was in before the pause.
		if st.Detached {
			st.Status = timer.StatusBackground
		} else {
			st.Status = timer.StatusRunning
		}
		st.TerminationReason = reason
		resumed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !resumed {
		return nil
	}

	if rt := s.runtime(id); rt != nil {
		rt.poke()
	}
	note := ""
	if auto {
		note = "auto"
	}
	s.publish(eventbus.TimerResumed, snap, note)
	s.log.Info("timer resumed",
		logx.String("id", id),
		logx.Bool("auto", auto),
		logx.Duration("remaining", snap.Remaining))
	return nil
}
