package scheduler

// SnapshotState returns a copy of the scheduler's observable state for
// introspection: live timers plus notification queue pressure. It does not
// refresh LastCheckedAt and never reaps, so it is safe for diagnostics.
func (s *Service) SnapshotState() Snapshot {
	return Snapshot{
		Timers:        s.reg.List(),
		Pending:       s.queue.Len(),
		DroppedEvents: s.queue.Dropped(),
	}
}
