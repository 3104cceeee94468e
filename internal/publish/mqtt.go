package publish

import (
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"cleanbot/internal/feature"
)

// connectTimeout bounds the initial broker handshake.
const connectTimeout = 10 * time.Second

// Options configures the MQTT feature publisher
type Options struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	DeviceID    string
}

// Publisher mirrors feature updates onto retained MQTT topics so external
// automations can consume them without talking to the gateway themselves.
type Publisher struct {
	client pahomqtt.Client
	opts   Options
	logger *zap.Logger
	sub    feature.Subscription
}

// Connect establishes a connection to the MQTT broker
func Connect(opts Options, logger *zap.Logger) (*Publisher, error) {
	if opts.ClientID == "" {
		opts.ClientID = "cleanbot-" + opts.DeviceID
	}

	clientOpts := pahomqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	client := pahomqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("timeout connecting to MQTT broker %s", opts.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	p := &Publisher{
		client: client,
		opts:   opts,
		logger: logger.Named("mqtt"),
	}
	p.logger.Info("Connected to MQTT broker", zap.String("broker", opts.BrokerURL))
	return p, nil
}

// newWithClient wires a publisher around an existing client, for tests.
func newWithClient(client pahomqtt.Client, opts Options, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, opts: opts, logger: logger.Named("mqtt")}
}

// Attach subscribes to the registry and mirrors every feature change
func (p *Publisher) Attach(registry *feature.Registry) {
	p.sub = registry.SubscribeAll(func(name, _, newValue string) {
		p.publish(name, newValue)
	})
}

func (p *Publisher) publish(name, value string) {
	topic := p.topic(name)
	token := p.client.Publish(topic, 1, true, value)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			p.logger.Warn("Publish failed",
				zap.String("topic", topic),
				zap.Error(err))
			return
		}
		p.logger.Debug("Feature published",
			zap.String("topic", topic),
			zap.String("value", value))
	}()
}

// topic builds the retained topic for one feature
func (p *Publisher) topic(name string) string {
	return fmt.Sprintf("%s/%s/%s", p.opts.TopicPrefix, p.opts.DeviceID, strings.ToLower(name))
}

// Close detaches from the registry and disconnects from the broker
func (p *Publisher) Close() {
	if p.sub != nil {
		p.sub.Unsubscribe()
		p.sub = nil
	}
	p.client.Disconnect(250)
	p.logger.Info("Disconnected from MQTT broker")
}
