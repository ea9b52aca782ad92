package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/nxtsensors/cmd/nxtsensors/console"
	"github.com/mklimuk/nxtsensors/publish"
)

// polling gives up after this many failed reads in a row
const maxFailures = 5

type publisher interface {
	Publish(ctx context.Context, topic string, reading any) error
}

type poller struct {
	interval  time.Duration
	count     int
	out       io.Writer
	publisher publisher
}

// pollReadings calls read every interval and prints each reading on one line
// prefixed by topic. It stops after count reads (never when count is 0), when
// ctx is done or when reads keep failing.
func pollReadings[T any](ctx context.Context, p poller, topic string, read func(context.Context) (T, error)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	failures := 0
	for i := 0; p.count == 0 || i < p.count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		reading, err := read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			console.Errorf("%s: %s", topic, console.Red(err))
			if failures >= maxFailures {
				return fmt.Errorf("%d reads failed in a row: %w", failures, err)
			}
			continue
		}
		failures = 0
		line, err := formatReading(reading)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(p.out, "%s %s\n", console.Cyan(topic), line)
		if p.publisher == nil {
			continue
		}
		if err := p.publisher.Publish(ctx, topic, reading); err != nil {
			slog.Warn("could not publish reading", "topic", topic, "error", err)
		}
	}
	return nil
}

// formatReading renders a reading as single line YAML.
func formatReading(reading any) (string, error) {
	var node yaml.Node
	if err := node.Encode(reading); err != nil {
		return "", fmt.Errorf("could not encode reading: %w", err)
	}
	flow(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return "", fmt.Errorf("could not encode reading: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func flow(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = yaml.FlowStyle
	}
	for _, c := range n.Content {
		flow(c)
	}
}

// poll runs the polling loop of a command until interrupted, publishing to
// the rig's MQTT broker when one is set.
func poll[T any](c *cli.Context, s *session, topic string, read func(context.Context) (T, error)) error {
	ctx, stop := signal.NotifyContext(commandContext(c), os.Interrupt)
	defer stop()
	p := poller{interval: s.rig.Interval, count: c.Int("count"), out: console.Output()}
	if s.rig.MQTT != "" {
		m, err := publish.NewMQTT(s.rig.MQTT, publish.WithRetain(c.Bool("retain")))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if err := m.Connect(ctx); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer func() { _ = m.Close() }()
		p.publisher = m
	}
	if err := pollReadings(ctx, p, topic, read); err != nil {
		return console.Exit(1, "%s: %s", topic, console.Red(err))
	}
	return nil
}

var pollFlags = []cli.Flag{
	&cli.DurationFlag{
		Name:    "interval",
		Aliases: []string{"i"},
		Usage:   "time between reads",
		Value:   defaultInterval,
	},
	&cli.IntFlag{
		Name:    "count",
		Aliases: []string{"n"},
		Usage:   "stop after this many reads, 0 polls until interrupted",
	},
	&cli.StringFlag{
		Name:  "mqtt",
		Usage: "publish readings to an MQTT broker, e.g. mqtt://broker:1883/robots/nxt1",
	},
	&cli.BoolFlag{
		Name:  "retain",
		Usage: "ask the broker to retain the last reading",
	},
}

func withPollFlags(flags ...cli.Flag) []cli.Flag {
	return append(append([]cli.Flag{}, pollFlags...), flags...)
}
