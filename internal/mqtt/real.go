package mqtt

import (
	"fmt"
	"time"

	"github.com/KevinKickass/CorrectorMux/internal/config"
	"github.com/KevinKickass/CorrectorMux/internal/mux"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client      paho.Client
	stateTopic  string
	systemTopic string
}

// NewRealPublisher connects to the configured broker. The broker publishes
// a retained OFFLINE event if the connection is lost.
func NewRealPublisher(cfg config.MQTTConfig) (*RealPublisher, error) {
	systemTopic := cfg.Topic + SystemSuffix
	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventOffline})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(systemTopic, will, 1, true)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{
		client:      client,
		stateTopic:  cfg.Topic + StateSuffix,
		systemTopic: systemTopic,
	}, nil
}

// PublishSnapshot sends the supply state, retained so new subscribers see
// the latest state at once.
func (p *RealPublisher) PublishSnapshot(snap mux.Snapshot) error {
	payload, err := FormatSnapshot(snap, time.Now())
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0, retained
	token := p.client.Publish(p.stateTopic, 0, true, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 für Lifecycle-Events
	token := p.client.Publish(p.systemTopic, 1, true, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is connected to the broker.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
