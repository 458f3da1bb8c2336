package notify

import (
	"fmt"
	"strings"
)

// injectionHeader labels drained notifications as system-originated so the
// agent can tell them apart from its own prior output.
const injectionHeader = "[system] Timer notifications"

// FormatForInjection drains the queue and renders all pending events into a
// single agent-readable block. It returns ("", false) when nothing is
// pending, so callers can prepend the block to the next turn only when one
// exists.
func (q *Queue) FormatForInjection() (string, bool) {
	events := q.DrainAll()
	if len(events) == 0 {
		return "", false
	}
	return FormatEvents(events), true
}

// FormatEvents renders already-drained events. Exposed separately so callers
// that need the raw events can drain first and format later.
func FormatEvents(events []Event) string {
	if len(events) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d):\n", injectionHeader, len(events))
	for _, e := range events {
		b.WriteString("- timer ")
		b.WriteString(e.TimerID)
		switch {
		case e.Reason != "":
			fmt.Fprintf(&b, " (reason: %s)", e.Reason)
		case e.Mission != "":
			fmt.Fprintf(&b, " (mission: %s)", e.Mission)
		}
		fmt.Fprintf(&b, " completed after %s of %s", e.Elapsed.Round(0), e.Total)
		if e.Mission != "" {
			b.WriteString("; perform the scheduled task now")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
