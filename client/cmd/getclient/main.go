package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/weathermesh/weathermesh/client/internal/printer"
	"github.com/weathermesh/weathermesh/pkg/client"
	"github.com/weathermesh/weathermesh/pkg/types"
)

func main() {
	attempts := flag.Int("attempts", client.DefaultAttempts, "tries per request")
	logLevel := flag.String("log-level", "warn", "debug|info|warn|error")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <server> [station]\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "server: http://name.domain:port | http://name:port | name:port")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		os.Exit(2)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q\n", *logLevel)
		os.Exit(2)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	addr, err := client.ParseAddr(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := client.New(addr, client.WithAttempts(*attempts))
	if err := run(ctx, c, flag.Arg(1), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Getter fetches readings keyed by station id.
type Getter interface {
	Get(ctx context.Context, id string) (map[string]types.Reading, error)
}

func run(ctx context.Context, g Getter, station string, out io.Writer) error {
	readings, err := g.Get(ctx, station)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			if station == "" {
				return errors.New("no weather data available")
			}
			return fmt.Errorf("no weather data for station %s", station)
		}
		return err
	}
	return printer.Print(out, readings)
}
