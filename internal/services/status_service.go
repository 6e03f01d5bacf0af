package services

import (
	"errors"
	"sync"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/benmeehan/varal-bridge/pkg/mqtt"
)

// StatusService subscribes to the shared topic and hands every message to a
// handler, normally the correlator.
type StatusService struct {
	// Configuration Fields
	topic string
	qos   int

	// Dependencies
	mqttClient mqtt.MQTTClient
	handler    MQTT.MessageHandler
	logger     zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewStatusService initializes a StatusService.
func NewStatusService(topic string, qos int, mqttClient mqtt.MQTTClient, handler MQTT.MessageHandler, logger zerolog.Logger) *StatusService {
	return &StatusService{
		topic:      topic,
		qos:        qos,
		mqttClient: mqttClient,
		handler:    handler,
		logger:     logger,
	}
}

// Start subscribes to the status topic.
func (ss *StatusService) Start() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.running {
		return errors.New("status service is already running")
	}

	ss.logger.Info().Str("topic", ss.topic).Msg("Starting StatusService and subscribing to MQTT topic")
	token := ss.mqttClient.Subscribe(ss.topic, byte(ss.qos), ss.handler)
	token.Wait()
	if err := token.Error(); err != nil {
		ss.logger.Error().Err(err).Str("topic", ss.topic).Msg("Failed to subscribe to MQTT topic")
		return err
	}

	ss.running = true
	return nil
}

// Stop unsubscribes from the status topic.
func (ss *StatusService) Stop() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.running {
		return errors.New("status service is not running")
	}

	token := ss.mqttClient.Unsubscribe(ss.topic)
	token.Wait()
	if err := token.Error(); err != nil {
		ss.logger.Error().Err(err).Str("topic", ss.topic).Msg("Failed to unsubscribe from MQTT topic")
		return err
	}

	ss.running = false
	ss.logger.Info().Msg("StatusService stopped successfully")
	return nil
}
