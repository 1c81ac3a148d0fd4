package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seagrayinc/upsbridge/internal/config"
	"github.com/seagrayinc/upsbridge/internal/hid"
	"github.com/seagrayinc/upsbridge/internal/observability"
	"github.com/seagrayinc/upsbridge/internal/poll"
	"github.com/seagrayinc/upsbridge/internal/publish"
	"github.com/seagrayinc/upsbridge/internal/session"
	"github.com/seagrayinc/upsbridge/internal/sim"
	"github.com/seagrayinc/upsbridge/internal/state"
	"github.com/seagrayinc/upsbridge/internal/transfer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config.yaml; defaults apply when empty")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM, syscall.SIGINT,
	)
	defer stop()

	store := state.NewStore()
	metrics := observability.New(func() float64 { return store.Age().Seconds() })

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
	go func() {
		log.Info("metrics listening", "addr", cfg.Metrics.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	conn, cleanup := buildConn(cfg, metrics, log)
	defer cleanup()

	if cfg.MQTT.Broker != "" {
		sink, err := publish.NewMQTTSink(
			cfg.MQTT.Broker, cfg.MQTT.ClientID,
			cfg.MQTT.Username, cfg.MQTT.Password, log,
		)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer sink.Close()

		pub := publish.NewPublisher(sink, store, log, publish.Options{
			DeviceID:        cfg.MQTT.DeviceID,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			Interval:        ms(cfg.MQTT.PublishIntervalMs),
		})
		go func() {
			if err := pub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("publisher stopped", "err", err)
			}
		}()
	}

	sched := poll.NewScheduler(conn, store, metrics, log, poll.Config{
		Interval:       ms(cfg.Poll.IntervalMs),
		ReadTimeout:    ms(cfg.Poll.ReadTimeoutMs),
		FeatureTimeout: ms(cfg.Poll.FeatureTimeoutMs),
		SweepEvery:     cfg.Poll.SweepEvery,
		SweepPause:     ms(cfg.Poll.SweepPauseMs),
	})
	log.Info("acquisition starting",
		"device", fmt.Sprintf("%04X:%04X", cfg.Device.VendorID, cfg.Device.ProductID),
		"interval", ms(cfg.Poll.IntervalMs))

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutting down")
	return nil
}

// buildConn wires the USB acquisition path, falling back to the simulator
// when the host cannot start or simulation is forced.
func buildConn(cfg *config.Config, metrics *observability.Metrics, log *slog.Logger) (poll.Conn, func()) {
	if cfg.Device.Simulate {
		log.Info("running against simulated hardware")
		metrics.SetConnected(true)
		return sim.NewConn(0), func() {}
	}

	host := hid.NewUSBHost()
	tracker := session.NewTracker(host, cfg.Device.VendorID, cfg.Device.ProductID)
	err := host.Start(func(ev hid.Event) {
		tracker.HandleEvent(ev)
		metrics.SetConnected(tracker.Connected())
	})
	if err != nil {
		log.Warn("usb host unavailable, falling back to simulator", "err", err)
		metrics.SetConnected(true)
		return sim.NewConn(0), func() {}
	}
	return transfer.NewCoordinator(host, tracker, metrics, log), func() { _ = host.Close() }
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
