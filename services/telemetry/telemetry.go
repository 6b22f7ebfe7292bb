// Package telemetry mirrors the controller's event stream onto MQTT for
// external dashboards. It is optional and strictly one-way; a broker
// outage never touches the scheduling core.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/KyleBrandon/irrigation-server/config"
	"github.com/KyleBrandon/irrigation-server/internal/bus"
	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 2 * time.Second

type Publisher struct {
	client mqtt.Client
	prefix string
}

// Start connects to the broker and bridges every bus event kind to a
// topic. A config without a broker URL disables telemetry and returns
// nil.
func Start(cfg config.MQTTConfig, events *bus.Bus) (*Publisher, error) {
	if cfg.BrokerURL == "" {
		slog.Info("telemetry disabled, no MQTT broker configured")
		return nil, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	p := &Publisher{
		client: mqtt.NewClient(opts),
		prefix: cfg.TopicPrefix,
	}

	connect := func() error {
		token := p.client.Connect()
		token.Wait()
		return token.Error()
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 1 * time.Minute
	if err := backoff.Retry(connect, policy); err != nil {
		return nil, fmt.Errorf("could not connect to MQTT broker %s: %w", cfg.BrokerURL, err)
	}

	p.subscribe(events)

	return p, nil
}

func (p *Publisher) Stop() {
	p.client.Disconnect(uint(publishTimeout.Milliseconds()))
}

func (p *Publisher) subscribe(events *bus.Bus) {
	bridge := func(kind bus.EventKind, topic string) {
		events.Subscribe(kind, func(event any) {
			p.publish(topic, event)
		})
	}

	bridge(bus.EventValveOpened, "valve/opened")
	bridge(bus.EventValveClosed, "valve/closed")
	bridge(bus.EventFlowSample, "flow/sample")
	bridge(bus.EventTankLevel, "tank/level")
	bridge(bus.EventAggregateLevel, "tank/aggregate")
	bridge(bus.EventLeakDetected, "leak/detected")
	bridge(bus.EventLeakCleared, "leak/cleared")
	bridge(bus.EventZoneStarted, "zone/started")
	bridge(bus.EventZoneStopped, "zone/stopped")
	bridge(bus.EventZoneReverted, "zone/reverted")
	bridge(bus.EventPowerChanged, "power/changed")
}

// publish is fire-and-forget; bus handlers must not block on the broker.
func (p *Publisher) publish(topic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal telemetry event", "topic", topic, "error", err)
		return
	}

	p.client.Publish(fmt.Sprintf("%s/%s", p.prefix, topic), 1, false, payload)
}
