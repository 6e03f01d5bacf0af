package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/benmeehan/varal-bridge/pkg/file"
)

// MQTTClient defines the interface for an MQTT client.
type MQTTClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// connectionClient is the subset of the paho client MqttService drives.
type connectionClient interface {
	MQTTClient
	IsConnectionOpen() bool
}

// Options configures the broker connection.
type Options struct {
	Broker            string        // Broker URL; mqtt:// and mqtts:// are accepted
	ClientID          string        // Client identifier presented to the broker
	CleanSession      bool          // Start every connection without stored session state
	ReconnectInterval time.Duration // Delay between connection attempts
	ConnectTimeout    time.Duration // How long Initialize waits for the first connection
	CACertificate     string        // Optional CA bundle for TLS brokers
}

type subscription struct {
	qos     byte
	handler mqtt.MessageHandler
}

// MqttService provides methods for MQTT operations. Subscriptions are
// remembered and replayed on every (re)connect, since a clean session drops
// them broker-side.
type MqttService struct {
	client     connectionClient
	fileClient file.FileOperations
	logger     zerolog.Logger

	mu            sync.Mutex
	subscriptions map[string]subscription
}

// NewMqttService creates a new MqttService instance.
func NewMqttService(fileClient file.FileOperations, logger zerolog.Logger) *MqttService {
	return &MqttService{
		fileClient:    fileClient,
		logger:        logger,
		subscriptions: make(map[string]subscription),
	}
}

// Initialize sets up the MQTT client and starts connecting. Connection
// failures are retried in the background every ReconnectInterval; Initialize
// only reports errors in the options themselves.
func (s *MqttService) Initialize(o Options) error {
	broker := BrokerURL(o.Broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(o.ClientID)
	opts.SetCleanSession(o.CleanSession)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(o.ReconnectInterval)
	opts.SetMaxReconnectInterval(o.ReconnectInterval)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn().Err(err).Str("broker", broker).Msg("MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		s.logger.Info().Str("broker", broker).Msg("Reconnecting to MQTT broker")
	})

	if o.CACertificate != "" {
		caCert, err := s.fileClient.ReadFileRaw(o.CACertificate)
		if err != nil {
			return fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return fmt.Errorf("failed to append CA certificate")
		}
		opts.SetTLSConfig(&tls.Config{RootCAs: caCertPool})
	}

	s.client = mqtt.NewClient(opts)

	token := s.Connect()
	if !token.WaitTimeout(o.ConnectTimeout) {
		s.logger.Warn().Str("broker", broker).Msg("MQTT broker not reachable yet, retrying in background")
		return nil
	}
	return token.Error()
}

// BrokerURL rewrites mqtt:// and mqtts:// schemes to the ones paho dials.
func BrokerURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "mqtt://"):
		return "tcp://" + strings.TrimPrefix(raw, "mqtt://")
	case strings.HasPrefix(raw, "mqtts://"):
		return "ssl://" + strings.TrimPrefix(raw, "mqtts://")
	}
	return raw
}

// onConnect replays remembered subscriptions on the fresh connection.
func (s *MqttService) onConnect(_ mqtt.Client) {
	s.logger.Info().Msg("Connected to MQTT broker")

	s.mu.Lock()
	subs := make(map[string]subscription, len(s.subscriptions))
	for topic, sub := range s.subscriptions {
		subs[topic] = sub
	}
	s.mu.Unlock()

	for topic, sub := range subs {
		token := s.client.Subscribe(topic, sub.qos, sub.handler)
		// Paho runs this handler on its own goroutine, so waiting is safe.
		token.Wait()
		if err := token.Error(); err != nil {
			s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
			continue
		}
		s.logger.Info().Str("topic", topic).Msg("Subscribed to MQTT topic")
	}
}

// Connect connects to the MQTT broker.
func (s *MqttService) Connect() mqtt.Token {
	return s.client.Connect()
}

// Publish sends a message to the specified topic.
func (s *MqttService) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return s.client.Publish(topic, qos, retained, payload)
}

// Subscribe remembers the subscription and, when connected, subscribes right
// away. While disconnected it returns a completed token and leaves the
// subscription to the next connect.
func (s *MqttService) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	s.mu.Lock()
	s.subscriptions[topic] = subscription{qos: qos, handler: callback}
	s.mu.Unlock()

	if !s.client.IsConnectionOpen() {
		s.logger.Info().Str("topic", topic).Msg("Not connected, subscription deferred until connect")
		return completedToken{}
	}
	return s.client.Subscribe(topic, qos, callback)
}

// Unsubscribe forgets and unsubscribes from the specified topics.
func (s *MqttService) Unsubscribe(topics ...string) mqtt.Token {
	s.mu.Lock()
	for _, topic := range topics {
		delete(s.subscriptions, topic)
	}
	s.mu.Unlock()

	if !s.client.IsConnectionOpen() {
		return completedToken{}
	}
	return s.client.Unsubscribe(topics...)
}

// Disconnect gracefully disconnects the MQTT client.
func (s *MqttService) Disconnect(quiesce uint) {
	s.client.Disconnect(quiesce)
}

// completedToken is a token that has already finished without error.
type completedToken struct{}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (completedToken) Wait() bool                     { return true }
func (completedToken) WaitTimeout(time.Duration) bool { return true }
func (completedToken) Done() <-chan struct{}          { return closedChan }
func (completedToken) Error() error                   { return nil }
