// Package mqtt publishes episode notifications to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/tphakala/threshcorder/internal/conf"
)

const componentMQTT = "mqtt"

// Client defines the MQTT operations used by the episode sink.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends payload to topic. It fails when the client is not
	// connected.
	Publish(ctx context.Context, topic string, payload []byte) error

	// IsConnected reports whether the client is currently connected.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // base topic; episodes go to Topic + "/episodes"
	Retain   bool
	QoS      byte

	ReconnectCooldown time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values.
func DefaultConfig() Config {
	return Config{
		Topic:             "threshcorder",
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// ConfigFromSettings applies settings over DefaultConfig.
func ConfigFromSettings(s *conf.MQTTSettings, clientID string) Config {
	cfg := DefaultConfig()
	cfg.Broker = s.Broker
	cfg.ClientID = clientID
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.Retain = s.Retain
	cfg.QoS = s.QoS
	if s.Topic != "" {
		cfg.Topic = s.Topic
	}
	return cfg
}
