package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"tickd/internal/scheduler"
	"tickd/internal/timer"
)

// RunREPL drives the facade from stdin, one command per line, and stands in
// for the agent loop: pending notifications are drained and printed at every
// prompt boundary, exactly once.
//
// Commands:
//
//	run <total> [id=<id>] [yield=<dur>] [reason=<text>|mission=<text>]
//	read [id]
//	stop <id> [reason...]
//	cancel <id> [reason...]
//	pause <id> <duration> [reason...]
//	resume <id> [reason...]
//	snapshot
//	quit
func (a *App) RunREPL(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		// Turn boundary: deliver queued notifications before the prompt.
		if block, ok := a.queue.FormatForInjection(); ok {
			fmt.Fprintln(out, block)
		}
		fmt.Fprint(out, "tickd> ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" {
			return nil
		}
		if err := a.dispatch(ctx, out, args[0], args[1:]); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	}
}

func (a *App) dispatch(ctx context.Context, out io.Writer, cmd string, args []string) error {
	switch cmd {
	case "run":
		return a.cmdRun(ctx, out, args)

	case "read":
		if len(args) == 0 {
			for _, snap := range a.sched.ReadAll() {
				fmt.Fprintln(out, formatSnap(snap))
			}
			return nil
		}
		snap, err := a.sched.Read(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, formatSnap(snap))
		return nil

	case "stop":
		if len(args) == 0 {
			return errors.New("usage: stop <id> [reason...]")
		}
		return a.sched.Stop(args[0], strings.Join(args[1:], " "))

	case "cancel":
		if len(args) == 0 {
			return errors.New("usage: cancel <id> [reason...]")
		}
		return a.sched.Cancel(args[0], strings.Join(args[1:], " "))

	case "pause":
		if len(args) < 2 {
			return errors.New("usage: pause <id> <duration> [reason...]")
		}
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("bad duration %q: %w", args[1], err)
		}
		return a.sched.Pause(args[0], d, strings.Join(args[2:], " "))

	case "resume":
		if len(args) == 0 {
			return errors.New("usage: resume <id> [reason...]")
		}
		return a.sched.Resume(args[0], strings.Join(args[1:], " "))

	case "snapshot":
		snap := a.sched.SnapshotState()
		fmt.Fprintf(out, "timers=%d pending_notifications=%d dropped=%d\n",
			len(snap.Timers), snap.Pending, snap.DroppedEvents)
		for _, t := range snap.Timers {
			fmt.Fprintln(out, " ", formatSnap(t))
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *App) cmdRun(ctx context.Context, out io.Writer, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: run <total> [id=<id>] [yield=<dur>] [reason=<text>|mission=<text>]")
	}
	total, err := time.ParseDuration(args[0])
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", args[0], err)
	}

	req := scheduler.RunRequest{Total: total}
	for _, arg := range args[1:] {
		key, val, found := strings.Cut(arg, "=")
		if !found {
			return fmt.Errorf("bad argument %q (want key=value)", arg)
		}
		switch key {
		case "id":
			req.ID = val
		case "yield":
			y, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("bad yield %q: %w", val, err)
			}
			req.Yield = y
		case "reason":
			req.Reason = val
		case "mission":
			req.Mission = val
		default:
			return fmt.Errorf("unknown argument %q", key)
		}
	}

	res, err := a.sched.Run(ctx, req)
	if err != nil {
		return err
	}
	if res.TimedOut {
		fmt.Fprintf(out, "yielded: %s\n", formatSnap(res.State))
	} else {
		fmt.Fprintf(out, "done: %s\n", formatSnap(res.State))
	}
	return nil
}

func formatSnap(s timer.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s/%s", s.ID, s.Status, s.Elapsed.Truncate(time.Millisecond), s.Total)
	if p := s.Purpose(); p != "" {
		fmt.Fprintf(&b, " (%s)", p)
	}
	if s.Status == timer.StatusPaused && !s.PauseUntil.IsZero() {
		fmt.Fprintf(&b, " paused-until=%s", s.PauseUntil.Format(time.TimeOnly))
	}
	return b.String()
}
