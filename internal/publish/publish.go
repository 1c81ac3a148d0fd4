// Package publish pushes the decoded snapshot to MQTT with Home Assistant
// discovery metadata.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/seagrayinc/upsbridge/internal/apchid"
	"github.com/seagrayinc/upsbridge/internal/state"
)

// Sink is the transport the publisher writes to. The production sink is an
// MQTT client; tests use an in-memory one.
type Sink interface {
	Publish(topic string, retained bool, payload []byte) error
	Close()
}

type Options struct {
	// DeviceID scopes every topic and unique_id, e.g. "apc_ups".
	DeviceID string
	// DiscoveryPrefix is Home Assistant's discovery root, normally
	// "homeassistant".
	DiscoveryPrefix string
	// Interval is the state publish cadence.
	Interval time.Duration
}

// Publisher periodically publishes the snapshot's sensors as individual
// state topics. Discovery configs go out once, retained, before the first
// state publish.
type Publisher struct {
	sink  Sink
	store *state.Store
	log   *slog.Logger
	opts  Options
}

func NewPublisher(sink Sink, store *state.Store, log *slog.Logger, opts Options) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	return &Publisher{sink: sink, store: store, log: log, opts: opts}
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

type discoveryConfig struct {
	Name        string          `json:"name"`
	UniqueID    string          `json:"unique_id"`
	StateTopic  string          `json:"state_topic"`
	Unit        string          `json:"unit_of_measurement,omitempty"`
	DeviceClass string          `json:"device_class,omitempty"`
	Device      discoveryDevice `json:"device"`
}

func (p *Publisher) configTopic(key string) string {
	return fmt.Sprintf("%s/sensor/%s/%s/config", p.opts.DiscoveryPrefix, p.opts.DeviceID, key)
}

func (p *Publisher) stateTopic(key string) string {
	return fmt.Sprintf("%s/sensor/%s/%s/state", p.opts.DiscoveryPrefix, p.opts.DeviceID, key)
}

// PublishDiscovery announces every sensor to Home Assistant. The configs
// are retained so the entities survive broker and HA restarts.
func (p *Publisher) PublishDiscovery() error {
	device := discoveryDevice{
		Identifiers:  []string{p.opts.DeviceID},
		Name:         "APC Back-UPS",
		Manufacturer: "American Power Conversion",
		Model:        "Back-UPS",
	}
	for _, f := range apchid.SensorOrder {
		s := apchid.Sensors[f]
		cfg := discoveryConfig{
			Name:        s.Name,
			UniqueID:    p.opts.DeviceID + "_" + s.Key,
			StateTopic:  p.stateTopic(s.Key),
			Unit:        s.Unit,
			DeviceClass: s.Class,
			Device:      device,
		}
		payload, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal discovery for %s: %w", s.Key, err)
		}
		if err := p.sink.Publish(p.configTopic(s.Key), true, payload); err != nil {
			return fmt.Errorf("publish discovery for %s: %w", s.Key, err)
		}
	}
	p.log.Info("published discovery configs", "sensors", len(apchid.SensorOrder))
	return nil
}

// zeroMeaningful lists numeric sensors where zero is a real reading rather
// than a never-reported field.
var zeroMeaningful = map[apchid.Field]bool{
	apchid.FieldBatteryCharge: true,
	apchid.FieldLoadPercent:   true,
	apchid.FieldShutdownTimer: true,
	apchid.FieldRebootTimer:   true,
}

// PublishState pushes one state message per populated sensor. Snapshots
// that never merged a decode are skipped entirely.
func (p *Publisher) PublishState(snap state.Snapshot) {
	if !snap.Valid {
		p.log.Debug("skipping state publish, no data yet")
		return
	}
	for _, f := range apchid.SensorOrder {
		s := apchid.Sensors[f]
		num, str, numeric := snap.Lookup(f)

		var payload string
		if numeric {
			if num == 0 && !zeroMeaningful[f] {
				continue
			}
			payload = strconv.FormatFloat(num, 'f', -1, 64)
		} else {
			if str == "" {
				continue
			}
			payload = str
		}
		if err := p.sink.Publish(p.stateTopic(s.Key), false, []byte(payload)); err != nil {
			p.log.Warn("state publish failed", "sensor", s.Key, "err", err)
		}
	}
}

// Run publishes discovery once, then states on every tick until ctx is
// cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.PublishDiscovery(); err != nil {
		return err
	}

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.PublishState(p.store.Snapshot())
		}
	}
}
