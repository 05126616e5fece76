package main

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smartclass/telemetry-server/internal/alarms"
	"github.com/smartclass/telemetry-server/internal/flow"
	"github.com/smartclass/telemetry-server/internal/health"
	"github.com/smartclass/telemetry-server/internal/hub"
	"github.com/smartclass/telemetry-server/internal/service_registry"
	"github.com/smartclass/telemetry-server/internal/storage"
	"github.com/smartclass/telemetry-server/internal/utils"
	"github.com/smartclass/telemetry-server/pkg/file"
	"github.com/smartclass/telemetry-server/pkg/mqtt"
)

func main() {
	// Set up structured logging with JSON output
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig("configs/config.yaml", fileClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Load the store CA certificate once. A configured but unreadable
	// CA is the one legitimate startup abort; everything past this
	// point self-heals.
	var storeTLS *tls.Config
	if config.Database.CACertificate != "" {
		caCert, err := fileClient.ReadFileRaw(config.Database.CACertificate)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read store CA certificate")
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			log.Fatal().Msg("Failed to parse store CA certificate")
		}
		storeTLS = &tls.Config{RootCAs: caCertPool, ServerName: config.Database.Host}
	}

	// The storage gateway owns the single store connection and its
	// reconnect state. Connect is asynchronous: the server comes up
	// and serves soft responses while the store is still connecting.
	gateway, err := storage.NewPostgresGateway(storage.Options{
		Host:             config.Database.Host,
		Port:             config.Database.Port,
		User:             config.Database.User,
		Password:         config.Database.Password,
		Database:         config.Database.Name,
		TLS:              storeTLS,
		ConnectTimeout:   config.Database.ConnectTimeout,
		QueryTimeout:     config.Database.QueryTimeout,
		ReconnectBackoff: config.Database.ReconnectBackoff,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure storage gateway")
	}
	gateway.Connect()

	// Notification hub with its broadcast worker pool
	pool := utils.NewWorkerPool(config.Hub.Workers)
	notificationHub := hub.NewHub(pool, config.Hub.SendBuffer, log)

	alarmRegistry := alarms.NewRegistry(notificationHub, log)
	gate := flow.NewGate()

	healthRegistry := health.NewRegistry()
	healthRegistry.Register(&health.CPUCollector{Logger: log})
	healthRegistry.Register(&health.MemoryCollector{Logger: log})
	healthRegistry.Register(&health.GoroutineCollector{Logger: log})

	// Initialize the MQTT ingestion bridge connection when enabled
	var mqttClient mqtt.MQTTClient
	if config.MQTT.Enabled {
		clientID := config.MQTT.ClientID + "-" + uuid.New().String()
		log.Info().Str("client_id", clientID).Msg("Using MQTT client ID")

		mqttService := mqtt.NewMqttService(fileClient)
		if err := mqttService.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
		mqttClient = mqttService
	}

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(
		gateway, notificationHub, alarmRegistry, gate, healthRegistry, mqttClient, log)

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
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Service shutdown reported errors")
	}
	notificationHub.Close()
	gateway.Close()
	if mqttClient != nil {
		mqttClient.Disconnect(250)
	}
}
