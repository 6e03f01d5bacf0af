package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/benmeehan/varal-bridge/internal/constants"
	"github.com/benmeehan/varal-bridge/internal/correlator"
	"github.com/benmeehan/varal-bridge/internal/ratelimit"
	"github.com/benmeehan/varal-bridge/internal/service_registry"
	"github.com/benmeehan/varal-bridge/internal/utils"
	"github.com/benmeehan/varal-bridge/pkg/file"
	"github.com/benmeehan/varal-bridge/pkg/mqtt"
	"github.com/benmeehan/varal-bridge/pkg/telegram"
)

func main() {
	var configPath, logLevel string
	flagSet := pflag.NewFlagSet("varal-bridge", pflag.ExitOnError)
	flagSet.StringVar(&configPath, "config", "configs/config.yaml", "path to an optional YAML config file")
	flagSet.StringVar(&logLevel, "log-level", "", "override the configured log level")
	_ = flagSet.Parse(os.Args[1:])

	// Startup logger until the configured one exists
	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	fileClient := file.NewFileService()

	// Load configuration from file and environment
	config, err := utils.LoadConfig(configPath, fileClient)
	if err != nil {
		bootLog.Fatal().Err(err).Str("config", configPath).Msg("Failed to load configuration")
	}
	if logLevel != "" {
		config.Log.Level = logLevel
	}

	log, logCloser, err := utils.NewLogger(config.Log.Level, config.Log.File)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to set up logging")
	}
	defer logCloser.Close()

	// Generate a unique MQTT Client ID by appending a UUID
	clientID := config.MQTT.ClientID + "-" + uuid.New().String()
	log.Info().Str("client_id", clientID).Str("topic", config.MQTT.Topic).Msg("Using MQTT client")

	mqttClient := mqtt.NewMqttService(fileClient, log.With().Str("component", "mqtt").Logger())
	err = mqttClient.Initialize(mqtt.Options{
		Broker:            config.MQTT.URL,
		ClientID:          clientID,
		CleanSession:      true,
		ReconnectInterval: config.ReconnectInterval(),
		ConnectTimeout:    constants.DefaultConnectTimeout,
		CACertificate:     config.MQTT.CACertificate,
	})
	if err != nil {
		// The client keeps retrying on its own; a refused first attempt is not fatal.
		log.Error().Err(err).Msg("Initial MQTT connection failed")
	}

	chatClient, err := telegram.NewTelegramService(config.Telegram.Token, log.With().Str("component", "telegram").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram client")
	}

	statusCorrelator := correlator.NewCorrelator(log.With().Str("component", "correlator").Logger())
	limiter := ratelimit.NewLimiter()

	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, chatClient, statusCorrelator, limiter, log)
	if err := serviceRegistry.RegisterServices(config); err != nil {
		log.Fatal().Err(err).Msg("Failed to register services")
	}
	if err := serviceRegistry.StartServices(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stopCh

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		log.Warn().Err(err).Msg("Some services did not stop cleanly")
	}
	mqttClient.Disconnect(constants.DisconnectQuiesceMs)
}
