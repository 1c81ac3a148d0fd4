package publish

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

type mqttSink struct {
	c mqtt.Client
}

// NewMQTTSink connects to the broker and returns a Sink over it. The client
// reconnects on its own; publishes during an outage fail and are retried by
// the next publish cycle.
func NewMQTTSink(broker, clientID, username, password string, log *slog.Logger) (Sink, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt connection lost", "err", err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info("mqtt connected", "broker", broker)
		})
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		c.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return &mqttSink{c: c}, nil
}

func (s *mqttSink) Publish(topic string, retained bool, payload []byte) error {
	tok := s.c.Publish(topic, 0, retained, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return tok.Error()
}

func (s *mqttSink) Close() {
	s.c.Disconnect(250)
}
