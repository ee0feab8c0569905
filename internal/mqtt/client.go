// Package mqtt wraps the broker connection and the valve topic contract.
// The rest of the system speaks ValveID and Report; only this package
// knows the Shelly topic layout.
package mqtt

import (
	"fmt"
	"net/url"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"roomheat/internal/logger"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Handler receives one raw inbound message.
type Handler func(topic string, payload []byte)

// ClientAPI is the broker surface the dispatcher and listener need. It
// keeps a live broker out of unit tests.
type ClientAPI interface {
	Subscribe(topic string, h Handler) error
	Publish(topic string, payload []byte) error
	Close()
}

// Options configures the broker connection.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Client is the paho-backed broker connection.
type Client struct {
	cli paho.Client
	log *logger.Logger
}

// Connect dials the broker and blocks until the session is up or the
// connect timeout passes. Reconnects are automatic afterwards; paho
// replays subscriptions on reconnect.
func Connect(opts Options, log *logger.Logger) (*Client, error) {
	broker, err := normalizeBroker(opts.Broker)
	if err != nil {
		return nil, err
	}

	pahoOpts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(false)
	if opts.Username != "" {
		pahoOpts.SetUsername(opts.Username)
		pahoOpts.SetPassword(opts.Password)
	}
	pahoOpts.OnConnect = func(paho.Client) {
		log.Infow("mqtt connected", "broker", broker)
	}
	pahoOpts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warnw("mqtt connection lost", "err", err)
	}

	cli := paho.NewClient(pahoOpts)
	token := cli.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return &Client{cli: cli, log: log}, nil
}

// normalizeBroker maps the accepted URL schemes onto what paho expects.
func normalizeBroker(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("mqtt broker url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "mqtt", "tcp", "":
		return "tcp://" + u.Host, nil
	case "ssl", "tls", "mqtts":
		return "ssl://" + u.Host, nil
	case "ws", "wss":
		return u.Scheme + "://" + u.Host + u.Path, nil
	}
	return "", fmt.Errorf("mqtt broker url %q: unsupported scheme %q", raw, u.Scheme)
}

// Subscribe registers a handler for the topic filter. Messages are
// delivered on paho's router goroutines; handlers must hand work off
// quickly.
func (c *Client) Subscribe(topic string, h Handler) error {
	token := c.cli.Subscribe(topic, 0, func(_ paho.Client, msg paho.Message) {
		h(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt subscribe %q: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %q: %w", topic, err)
	}
	c.log.Infow("mqtt subscribed", "topic", topic)
	return nil
}

// Publish sends one message at QoS 0, not retained. Delivery to a
// sleeping valve is not assured here; the dispatcher's retry loop owns
// that.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.cli.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish %q: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %q: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker, allowing a short drain.
func (c *Client) Close() {
	c.cli.Disconnect(1000)
}
