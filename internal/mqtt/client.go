// Package mqtt wraps the Paho client with the small surface the bridge
// needs: connect with retry, publish, subscribe.
package mqtt

import (
	"fmt"
	"strings"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds, handed to Paho as-is
)

// Handler receives one subscribed message.
type Handler func(topic string, payload []byte)

// Client is a connected MQTT session.
type Client struct {
	log  *zap.Logger
	paho MQTT.Client
}

// NewClient builds a client for brokerURL. Credentials may be embedded in
// the URL as tcp://user:pw@host:port and are split out before dialing.
func NewClient(brokerURL, clientID string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	url, user, pw := splitCredentials(brokerURL)

	opts := MQTT.NewClientOptions()
	opts.AddBroker(url)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetOrderMatters(false)
	// Persist the session so subscriptions survive short disconnects.
	opts.SetCleanSession(false)
	opts.SetResumeSubs(true)
	if user != "" {
		opts.SetUsername(user)
	}
	if pw != "" {
		opts.SetPassword(pw)
	}
	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(MQTT.Client) {
		log.Info("mqtt connected", zap.String("broker", url))
	})

	return &Client{log: log, paho: MQTT.NewClient(opts)}
}

// Connect blocks until the first connection attempt resolves. With retry
// enabled Paho keeps trying in the background after a transient failure, so
// only option-level errors surface here.
func (c *Client) Connect() error {
	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.log.Warn("mqtt connect still pending, continuing in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Publish sends payload to topic at QoS 0.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.paho.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %q: %w", topic, err)
	}
	return nil
}

// Subscribe registers h for topic at QoS 0. Paho invokes h on its own
// goroutines.
func (c *Client) Subscribe(topic string, h Handler) error {
	token := c.paho.Subscribe(topic, 0, func(_ MQTT.Client, msg MQTT.Message) {
		h(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %q: %w", topic, err)
	}
	return nil
}

// Disconnect tears the connection down, allowing in-flight work to finish.
func (c *Client) Disconnect() {
	c.paho.Disconnect(disconnectQuiesce)
}

// splitCredentials pulls user:pw out of a broker URL of the form
// scheme://user:pw@host:port. URLs without an @ pass through unchanged.
func splitCredentials(brokerURL string) (url, user, pw string) {
	url = brokerURL
	if !strings.Contains(brokerURL, "@") {
		return url, "", ""
	}
	prefix := "tcp://"
	rest := brokerURL
	if idx := strings.Index(brokerURL, "://"); idx != -1 {
		prefix = brokerURL[:idx+3]
		rest = brokerURL[idx+3:]
	}
	creds, host, found := strings.Cut(rest, "@")
	if !found {
		return url, "", ""
	}
	user, pw, found = strings.Cut(creds, ":")
	if !found {
		user, pw = creds, ""
	}
	return prefix + host, user, pw
}
