package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Action is what the server should do after Run returns.
type Action int

const (
	// ActionNone means Run ended because its context did.
	ActionNone Action = iota
	// ActionExit requests shutdown keeping persisted state.
	ActionExit
	// ActionExitPurge requests shutdown and removal of persisted state.
	ActionExitPurge
)

func (a Action) String() string {
	switch a {
	case ActionExit:
		return "exit"
	case ActionExitPurge:
		return "exit -r"
	default:
		return "none"
	}
}

// Stations lists live station ids.
type Stations interface {
	StationIDs() []string
}

// MetricsWriter renders metrics as text.
type MetricsWriter interface {
	WriteText(w io.Writer) error
}

// Console executes commands read from in and writes their output to out.
type Console struct {
	in       io.Reader
	out      io.Writer
	stations Stations
	metrics  MetricsWriter
}

// New creates a Console.
func New(in io.Reader, out io.Writer, st Stations, m MetricsWriter) *Console {
	return &Console{in: in, out: out, stations: st, metrics: m}
}

// Run reads commands until an exit command arrives or ctx is cancelled.
func (c *Console) Run(ctx context.Context) (Action, error) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			slog.Warn("console: read stdin failed", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ActionNone, nil
		case line, ok := <-lines:
			if !ok {
				slog.Info("console: stdin closed, commands disabled")
				lines = nil // blocks forever; wait for ctx
				continue
			}
			if a, err := c.exec(line); err != nil {
				return ActionNone, err
			} else if a != ActionNone {
				return a, nil
			}
		}
	}
}

// exec runs one command line.
func (c *Console) exec(line string) (Action, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ActionNone, nil
	}
	switch {
	case len(fields) == 1 && fields[0] == "exit":
		return ActionExit, nil
	case len(fields) == 2 && fields[0] == "exit" && fields[1] == "-r":
		return ActionExitPurge, nil
	case len(fields) == 1 && fields[0] == "stats":
		if err := c.metrics.WriteText(c.out); err != nil {
			return ActionNone, fmt.Errorf("console: stats: %w", err)
		}
	case len(fields) == 1 && fields[0] == "stations":
		ids := c.stations.StationIDs()
		if len(ids) == 0 {
			fmt.Fprintln(c.out, "no live stations")
		}
		for _, id := range ids {
			fmt.Fprintln(c.out, id)
		}
	default:
		fmt.Fprintf(c.out, "unknown command %q (try: exit, exit -r, stats, stations)\n", line)
	}
	return ActionNone, nil
}
