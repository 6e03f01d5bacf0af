package service_registry

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/benmeehan/varal-bridge/internal/constants"
	"github.com/benmeehan/varal-bridge/internal/correlator"
	"github.com/benmeehan/varal-bridge/internal/ratelimit"
	"github.com/benmeehan/varal-bridge/internal/services"
	"github.com/benmeehan/varal-bridge/internal/utils"
	"github.com/benmeehan/varal-bridge/pkg/mqtt"
)

// Service is a long-running component with an explicit lifecycle.
type Service interface {
	Start() error
	Stop() error
}

// ChatClient is the chat platform as the bridge uses it: a source of inbound
// updates and a sink for replies.
type ChatClient interface {
	services.UpdateSource
	services.ChatSender
}

// ServiceRegistry manages the lifecycle of the bridge services.
type ServiceRegistry struct {
	services    map[string]Service // Stores registered services
	serviceKeys []string           // Maintains order of service registration
	mqttClient  mqtt.MQTTClient
	chatClient  ChatClient
	correlator  *correlator.Correlator
	limiter     *ratelimit.Limiter
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, chatClient ChatClient, statusCorrelator *correlator.Correlator,
	limiter *ratelimit.Limiter, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]Service),
		mqttClient: mqttClient,
		chatClient: chatClient,
		correlator: statusCorrelator,
		limiter:    limiter,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// StartServices starts all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices builds and registers the bridge services from config.
// Status intake starts before chat intake so no request can wait on a topic
// nobody is listening to, and stops after it.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config) error {
	relay := services.NewRelayService(
		config.MQTT.Topic,
		constants.CommandQOS,
		config.StatusTimeout(),
		config.MotionInterval(),
		sr.mqttClient,
		sr.chatClient,
		sr.correlator,
		sr.limiter,
		sr.Logger.With().Str("service", "relay").Logger(),
	)

	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (Service, error)
	}{
		{
			name:    "status",
			enabled: true,
			constructor: func() (Service, error) {
				return services.NewStatusService(
					config.MQTT.Topic,
					constants.StatusQOS,
					sr.mqttClient,
					sr.correlator.HandleMessage,
					sr.Logger.With().Str("service", "status").Logger(),
				), nil
			},
		},
		{
			name:    "janitor",
			enabled: config.SweepInterval() > 0,
			constructor: func() (Service, error) {
				return services.NewJanitorService(
					config.SweepInterval(),
					config.SweepAge(),
					sr.limiter,
					sr.Logger.With().Str("service", "janitor").Logger(),
				), nil
			},
		},
		{
			name:    "chat",
			enabled: true,
			constructor: func() (Service, error) {
				if sr.chatClient == nil {
					return nil, errors.New("chat client is not configured")
				}
				return services.NewChatService(
					config.Relay.Workers,
					sr.chatClient,
					relay,
					sr.Logger.With().Str("service", "chat").Logger(),
				), nil
			},
		},
	}

	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
