// Package mqtt forwards engine events to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"omvstack.control/internal/core/domain"
	"omvstack.control/internal/core/logger"
	"omvstack.control/internal/core/ports"
)

const DefaultPrefix = "omvstack"

type messagePublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher consumes the event bus and publishes to MQTT
type Publisher struct {
	client messagePublisher
	conn   mqtt.Client
	bus    ports.EventBus
	prefix string
}

// NewPublisher connects to brokerURL.
func NewPublisher(bus ports.EventBus, brokerURL, clientPrefix string) (*Publisher, error) {
	if clientPrefix == "" {
		clientPrefix = DefaultPrefix
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("%s-server-%d", clientPrefix, time.Now().UnixNano()))
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	logger.Info("Connected to MQTT broker", "broker", brokerURL)
	return &Publisher{
		client: client,
		conn:   client,
		bus:    bus,
		prefix: DefaultPrefix,
	}, nil
}

// Start consumes events until ctx is done.
func (p *Publisher) Start(ctx context.Context) {
	go p.consume(ctx)
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Disconnect(250)
	}
}

func (p *Publisher) consume(ctx context.Context) {
	ch, err := p.bus.Subscribe(ctx)
	if err != nil {
		logger.Error("Failed to subscribe to events", "error", err)
		return
	}

	logger.Info("MQTT: started event consumer")

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			p.publish(event)
		}
	}
}

// publish sends every event to <prefix>/events/<type>. Status changes are also
// retained on <prefix>/status/<service> so new subscribers see the current
// state.
func (p *Publisher) publish(event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Warn("Failed to encode event", "type", event.Type, "error", err)
		return
	}

	p.client.Publish(fmt.Sprintf("%s/events/%s", p.prefix, event.Type), 0, false, data)

	if event.Type == domain.EventStatusChanged && event.Service != "" {
		topic := fmt.Sprintf("%s/status/%s", p.prefix, strings.ToLower(event.Service))
		p.client.Publish(topic, 1, true, data)
	}
}
