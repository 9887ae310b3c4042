package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/itohio/aqnode/pkg/config"
	"github.com/itohio/aqnode/pkg/network"
	"github.com/itohio/aqnode/pkg/node"
	"github.com/itohio/aqnode/pkg/pm25"
	"github.com/itohio/aqnode/pkg/retry"
	"github.com/itohio/aqnode/pkg/sample"
	"github.com/itohio/aqnode/pkg/schedule"
	"github.com/itohio/aqnode/pkg/status"
	"github.com/itohio/aqnode/pkg/telemetry"
	"github.com/itohio/aqnode/pkg/wallclock"
)

func main() {
	var (
		portFlag      = flag.String("p", "", "Serial port override for the first sensor (e.g., /dev/ttyUSB0)")
		configFlag    = flag.String("config", "config.yaml", "Configuration file path")
		envFlag       = flag.String("env", ".env", "Secrets file loaded into the environment")
		mockFlag      = flag.Bool("mock", false, "Use simulated sensors and network instead of hardware")
		logLevelFlag  = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
		listPortsFlag = flag.Bool("list-ports", false, "List available serial ports and exit")
		saveFlag      = flag.Bool("save-config", false, "Write the effective configuration (without secrets) and exit")
	)
	flag.Parse()

	if *listPortsFlag {
		ports, err := pm25.Ports()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return
	}

	if err := config.LoadEnv(*envFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load secrets: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *saveFlag {
		if err := cfg.Save(*configFlag); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	// Override the first sensor port if provided via command line
	if *portFlag != "" && len(cfg.Sensors) > 0 {
		cfg.Sensors[0].Port = *portFlag
	}
	if *logLevelFlag != "" {
		cfg.Log.Level = *logLevelFlag
	}

	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid environment: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(*mockFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mockFlag, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("stopped", "error", err)
		os.Exit(1)
	}
	log.Info("shut down")
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      lvl,
		TimeFormat: time.DateTime,
	})), nil
}

// run wires the node and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config, mock bool, log *slog.Logger) error {
	clock := wallclock.Real{}

	sources, err := openSources(cfg, mock, clock, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sources {
			if err := s.Close(); err != nil {
				log.Warn("failed to close sensor", "channel", s.Channel(), "error", err)
			}
		}
	}()

	sampleSources := make([]sample.Source, len(sources))
	for i, s := range sources {
		sampleSources[i] = s
	}
	sampler := sample.New(sampleSources, cfg.Sampling.Window, cfg.Sampling.PollInterval, clock, log.With("component", "sampler"))

	backoff := &retry.ExponentialBackoff{
		MinInterval: cfg.Network.RetryMin,
		MaxInterval: cfg.Network.RetryMax,
		Clock:       clock,
		Logger:      log.With("component", "retry"),
	}
	creds := network.Credentials{SSID: cfg.Network.SSID, Password: cfg.Network.Password}

	var (
		adapter   network.Adapter
		publisher telemetry.Publisher
		times     telemetry.TimeSource
		feeds     = node.Feeds{
			Raw:      cfg.Telemetry.Feeds.Raw,
			AQI:      cfg.Telemetry.Feeds.AQI,
			Category: cfg.Telemetry.Feeds.Category,
		}
	)

	if mock && cfg.Telemetry.Username == "" {
		log.Info("running offline with simulated network")
		adapter = network.NewMock(-50, nil)
		publisher = telemetry.NewConsole(log)
		times = telemetry.NewLocalTime(clock)
	} else {
		aio := telemetry.NewAIO(cfg.Telemetry.BaseURL, cfg.Telemetry.Username, cfg.Telemetry.Key, cfg.Telemetry.Timeout, log)
		times, publisher = aio, aio

		if mock {
			adapter = network.NewMock(-50, nil)
		} else {
			host := network.NewHost(cfg.Network.Interface, log.With("component", "network"))
			host.OnReset(aio.CloseIdleConnections)
			adapter = host

			if cfg.Telemetry.Transport == config.TransportMQTT {
				mqtt := telemetry.NewMQTT(cfg.Telemetry.Broker, cfg.Telemetry.Username, cfg.Telemetry.Key, cfg.Telemetry.ClientID, log)
				defer mqtt.Close()
				host.OnReset(mqtt.Reset)
				publisher = mqtt
			}
		}

		if err := network.Connect(ctx, adapter, creds, backoff); err != nil {
			return err
		}
		if feeds, err = resolveFeeds(ctx, aio, feeds, backoff); err != nil {
			return err
		}
	}

	loop := node.New(node.Options{
		TimeSource:  times,
		Sampler:     sampler,
		Publisher:   publisher,
		Network:     adapter,
		Credentials: creds,
		Feeds:       feeds,
		Location:    location(cfg.Location),
		Scheduler:   schedule.New(cfg.Publish.IntervalMinutes),
		Backoff:     backoff,
		Sleep:       cfg.Publish.LoopSleep,
		Clock:       clock,
		Logger:      log.With("component", "loop"),
	})

	if cfg.Status.Listen != "" {
		srv := status.New(cfg.Status.Listen)
		loop.OnUpdate(srv.Update)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error("status server stopped", "error", err)
			}
		}()
		log.Info("status endpoint", "listen", cfg.Status.Listen)
	}

	log.Info("starting",
		"sensors", len(sources),
		"interval_minutes", cfg.Publish.IntervalMinutes,
		"transport", cfg.Telemetry.Transport,
	)
	return loop.Run(ctx)
}

// location is the metadata attached to the raw and index values. It is
// always sent, including a position of 0,0 at sea level.
func location(c config.LocationConfig) *telemetry.Location {
	return &telemetry.Location{Lat: c.Latitude, Lon: c.Longitude, Ele: c.Elevation}
}

func openSources(cfg *config.Config, mock bool, clock wallclock.Clock, log *slog.Logger) ([]pm25.Source, error) {
	var sources []pm25.Source
	if mock {
		for i, base := range cfg.Mock.Base {
			sources = append(sources, pm25.NewMock(fmt.Sprintf("mock-%d", i+1), base, &cfg.Mock, clock))
		}
	} else {
		for _, s := range cfg.Sensors {
			sources = append(sources, pm25.New(s.Name, s.Port, s.BaudRate, s.ReadTimeout, log))
		}
	}

	for i, s := range sources {
		if err := s.Connect(); err != nil {
			for _, opened := range sources[:i] {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("failed to open sensor %s: %w", s.Channel(), err)
		}
		log.Info("found PM2.5 sensor", "channel", s.Channel())
	}
	return sources, nil
}

// resolveFeeds looks up (creating when missing) each feed and returns the
// keys assigned by the service.
func resolveFeeds(ctx context.Context, aio *telemetry.AIO, feeds node.Feeds, backoff *retry.ExponentialBackoff) (node.Feeds, error) {
	for _, key := range []*string{&feeds.Raw, &feeds.AQI, &feeds.Category} {
		err := backoff.Start(ctx, "get feed "+*key, func(ctx context.Context) (bool, error) {
			feed, err := aio.GetFeed(ctx, *key)
			if err != nil {
				return errors.Is(err, telemetry.ErrRetryable), err
			}
			if feed.Key != "" {
				*key = feed.Key
			}
			return false, nil
		})
		if err != nil {
			return node.Feeds{}, err
		}
	}
	return feeds, nil
}
