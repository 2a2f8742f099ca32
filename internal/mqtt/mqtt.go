package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Publisher is the minimal surface the dispatcher needs.
// It enables unit testing without a live broker.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type Client struct {
	cli            mqtt.Client
	publishTimeout time.Duration
}

// Connect dials the broker. mqtt:// and tcp:// map to plain TCP, ssl:// and
// tls:// to TLS, ws:// and wss:// keep their path.
func Connect(brokerURL, clientID string, publishTimeout time.Duration) (*Client, error) {
	raw := strings.TrimSpace(brokerURL)
	if raw == "" {
		raw = "mqtt://mosquitto:1883"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}

	opts := mqtt.NewClientOptions()
	server := u.Host
	switch u.Scheme {
	case "mqtt", "tcp":
		server = "tcp://" + server
	case "ssl", "tls", "mqtts":
		server = "ssl://" + server
	case "ws", "wss":
		server = u.Scheme + "://" + server + u.Path
	default:
		return nil, fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	opts.AddBroker(server)

	if strings.TrimSpace(clientID) == "" {
		clientID = "feedback-service"
	}
	opts.SetClientID(clientID + "-" + time.Now().Format("150405.000"))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	if u.User != nil {
		pw, _ := u.User.Password()
		opts.SetUsername(u.User.Username())
		opts.SetPassword(pw)
	}
	if u.Scheme == "ssl" || u.Scheme == "tls" || u.Scheme == "mqtts" || u.Scheme == "wss" {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.OnConnect = func(_ mqtt.Client) { slog.Info("mqtt connected", "broker", server) }
	opts.OnConnectionLost = func(_ mqtt.Client, err error) { slog.Warn("mqtt connection lost", "error", err) }

	cli := mqtt.NewClient(opts)
	tok := cli.Connect()
	if ok := tok.WaitTimeout(15 * time.Second); !ok {
		// Connect keeps retrying in the background; publishes fail until it lands.
		slog.Warn("mqtt connect still pending", "broker", server)
	} else if err := tok.Error(); err != nil {
		return nil, err
	}

	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}
	return &Client{cli: cli, publishTimeout: publishTimeout}, nil
}

// Publish sends payload at QoS 0 without retain and waits at most the
// publish timeout for the client to hand it off.
func (c *Client) Publish(topic string, payload []byte) error {
	if !c.cli.IsConnectionOpen() {
		return errors.New("mqtt not connected")
	}
	t := c.cli.Publish(topic, 0, false, payload)
	if !t.WaitTimeout(c.publishTimeout) {
		return ErrPublishTimeout
	}
	return t.Error()
}

func (c *Client) Connected() bool {
	return c.cli.IsConnectionOpen()
}

func (c *Client) Close() {
	c.cli.Disconnect(250)
}
