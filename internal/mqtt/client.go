package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/threshcorder/internal/errors"
	"github.com/tphakala/threshcorder/internal/logger"
	"github.com/tphakala/threshcorder/internal/privacy"
)

// client implements the Client interface on paho.
type client struct {
	config          Config
	internalClient  paho.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	log             logger.Logger
}

// NewClient creates a new MQTT client with the provided configuration.
func NewClient(cfg Config) (Client, error) {
	if cfg.Broker == "" {
		return nil, errors.Newf("mqtt broker is not configured").
			Component(componentMQTT).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &client{
		config: cfg,
		log:    logger.Global().Module(componentMQTT),
	}, nil
}

// Connect resolves the broker host and connects. Reconnects after a lost
// connection are left to paho.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return connError(fmt.Errorf("connection attempt too recent, last attempt was %v ago", since))
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return connError(privacy.WrapError(fmt.Errorf("invalid broker URL: %w", err)))
	}
	if host := u.Hostname(); net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return connError(fmt.Errorf("failed to resolve hostname %s: %w", host, err))
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.internalClient = paho.NewClient(opts)

	token := c.internalClient.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return connError(fmt.Errorf("connection timeout"))
	}
	if err := token.Error(); err != nil {
		return connError(fmt.Errorf("connection error: %w", err))
	}
	return nil
}

// Publish sends payload to topic on the broker.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return publishError(fmt.Errorf("not connected to MQTT broker"), topic)
	}

	timeout := c.config.PublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	token := c.internalClient.Publish(topic, c.config.QoS, c.config.Retain, payload)
	if !token.WaitTimeout(timeout) {
		return publishError(fmt.Errorf("publish timeout"), topic)
	}
	if err := token.Error(); err != nil {
		return publishError(err, topic)
	}

	c.log.Debug("published", logger.String("topic", topic), logger.Int("bytes", len(payload)))
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	}
}

func (c *client) onConnect(paho.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", privacy.SanitizeURL(c.config.Broker)))
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warn("connection to MQTT broker lost",
		logger.String("broker", privacy.SanitizeURL(c.config.Broker)),
		logger.Error(err))
}

func connError(err error) error {
	return errors.New(err).
		Component(componentMQTT).
		Category(errors.CategoryMQTTConnection).
		Build()
}

func publishError(err error, topic string) error {
	return errors.New(err).
		Component(componentMQTT).
		Category(errors.CategoryMQTTPublish).
		Context("topic", topic).
		Build()
}
