package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weathermesh/weathermesh/content/internal/shipper"
	"github.com/weathermesh/weathermesh/content/internal/source"
	"github.com/weathermesh/weathermesh/pkg/client"
)

const userAgent = "ATOMClient/1/0"

type options struct {
	interval time.Duration
	once     bool
	watch    bool
	attempts int
	logLevel string
}

func main() {
	fs := flag.NewFlagSet("weathermesh-content", flag.ExitOnError)
	var opts options
	fs.DurationVar(&opts.interval, "interval", 10*time.Second, "re-send period; 0 disables periodic re-sends")
	fs.BoolVar(&opts.once, "once", false, "send the file once and exit")
	fs.BoolVar(&opts.watch, "watch", true, "re-send when the file changes")
	fs.IntVar(&opts.attempts, "attempts", client.DefaultAttempts, "tries per upload")
	fs.StringVar(&opts.logLevel, "log-level", "info", "debug|info|warn|error")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: weathermesh-content [flags] <server> <file> [flags]\n")
		fs.PrintDefaults()
	}

	args, err := parseArgs(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		os.Exit(2)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q\n", opts.logLevel)
		os.Exit(2)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	addr, err := client.ParseAddr(args[0])
	if err != nil {
		slog.Error("bad server address", "err", err)
		os.Exit(2)
	}
	path := args[1]

	slog.Info("weathermesh-content starting",
		"server", addr.String(),
		"file", path,
		"interval", opts.interval,
		"once", opts.once,
	)

	if err := run(addr, path, opts); err != nil {
		slog.Error("weathermesh-content stopped", "err", err)
		os.Exit(1)
	}
}

// parseArgs accepts flags before, between or after the two positional
// arguments.
func parseArgs(fs *flag.FlagSet, argv []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(argv); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			break
		}
		pos = append(pos, fs.Arg(0))
		argv = fs.Args()[1:]
	}
	if len(pos) != 2 {
		return nil, fmt.Errorf("expected <server> and <file>, got %d arguments", len(pos))
	}
	return pos, nil
}

func run(addr client.Addr, path string, opts options) error {
	r, err := source.Load(path)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := client.New(addr, client.WithUserAgent(userAgent), client.WithAttempts(opts.attempts))

	if opts.once {
		code, err := c.Put(ctx, r)
		if err != nil {
			return err
		}
		slog.Info("reading delivered", "station", r.ID(), "status", code, "lamport_time", c.Clock().Current())
		return nil
	}

	ship := shipper.New(c, opts.interval)
	ship.Ship(r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ship.Run(gctx)
		return nil
	})
	if opts.watch {
		g.Go(func() error {
			if err := source.Watch(gctx, path, ship.Ship); err != nil {
				slog.Warn("source: file watch disabled", "err", err)
			}
			return nil
		})
	}

	err = g.Wait()
	sent, failed := ship.Stats()
	slog.Info("weathermesh-content shutting down", "sent", sent, "failed", failed)
	return err
}
