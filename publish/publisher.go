package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Xenon22pc/IR-Camera/htpa"
)

// DefaultTopic is the topic pattern used when none is configured.
const DefaultTopic = "thermal/{device_id}/stats"

// Publishing is the part of mqtt.Client a Publisher needs.
type Publishing interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Message is the JSON payload sent for each frame.
type Message struct {
	DeviceID string `json:"device_id"`
	htpa.Stats
}

// Publisher publishes frame statistics read from a channel.
type Publisher struct {
	client Publishing

	// Input channel, usually the one returned by htpa.Dev.SenseContinuous.
	Stats <-chan htpa.Stats

	topic    string
	deviceID string
	qos      byte
	timeout  time.Duration
}

// PublisherConfig holds configuration for the publisher
type PublisherConfig struct {
	Topic    string // e.g. "thermal/{device_id}/stats"
	DeviceID string
	QoS      byte
	// Timeout bounds the wait for each publish acknowledgement.
	Timeout time.Duration
}

// NewPublisher creates a publisher reading from stats.
func NewPublisher(client Publishing, config PublisherConfig, stats <-chan htpa.Stats) *Publisher {
	p := &Publisher{
		client:   client,
		Stats:    stats,
		topic:    config.Topic,
		deviceID: config.DeviceID,
		qos:      config.QoS,
		timeout:  config.Timeout,
	}
	if p.topic == "" {
		p.topic = DefaultTopic
	}
	if p.timeout <= 0 {
		p.timeout = 5 * time.Second
	}
	return p
}

// Start publishes until ctx is cancelled or the channel is closed.
func (p *Publisher) Start(ctx context.Context) {
	log.Println("MQTT publisher: starting")

	for {
		select {
		case <-ctx.Done():
			log.Println("MQTT publisher: context cancelled, shutting down")
			return

		case s, ok := <-p.Stats:
			if !ok {
				log.Println("MQTT publisher: stats channel closed, shutting down")
				return
			}
			if err := p.publish(s); err != nil {
				log.Printf("MQTT publisher: %v", err)
			}
		}
	}
}

func (p *Publisher) publish(s htpa.Stats) error {
	payload, err := json.Marshal(Message{DeviceID: p.deviceID, Stats: s})
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	topic := formatTopic(p.topic, p.deviceID)
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// formatTopic replaces {device_id} placeholder with actual device ID
func formatTopic(topicPattern, deviceID string) string {
	return strings.ReplaceAll(topicPattern, "{device_id}", deviceID)
}
