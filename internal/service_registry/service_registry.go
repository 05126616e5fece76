package service_registry

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/smartclass/telemetry-server/internal/alarms"
	"github.com/smartclass/telemetry-server/internal/api"
	"github.com/smartclass/telemetry-server/internal/flow"
	"github.com/smartclass/telemetry-server/internal/health"
	"github.com/smartclass/telemetry-server/internal/hub"
	"github.com/smartclass/telemetry-server/internal/services"
	"github.com/smartclass/telemetry-server/internal/storage"
	"github.com/smartclass/telemetry-server/internal/utils"
	"github.com/smartclass/telemetry-server/pkg/mqtt"
)

// ServiceRegistry manages the lifecycle of the server's long-running
// services.
type ServiceRegistry struct {
	services    map[string]services.Service
	serviceKeys []string

	gateway         storage.Gateway
	notificationHub *hub.Hub
	alarmRegistry   *alarms.Registry
	gate            *flow.Gate
	healthRegistry  *health.Registry
	mqttClient      mqtt.MQTTClient
	Logger          zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(gateway storage.Gateway, notificationHub *hub.Hub,
	alarmRegistry *alarms.Registry, gate *flow.Gate, healthRegistry *health.Registry,
	mqttClient mqtt.MQTTClient, logger zerolog.Logger) *ServiceRegistry {

	return &ServiceRegistry{
		services:        make(map[string]services.Service),
		gateway:         gateway,
		notificationHub: notificationHub,
		alarmRegistry:   alarmRegistry,
		gate:            gate,
		healthRegistry:  healthRegistry,
		mqttClient:      mqttClient,
		Logger:          logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc services.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// StartServices initiates all registered services in order.
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
			return err
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

// RegisterServices builds and registers the server's services from the
// configuration: the HTTP front (always), the retention sweeper
// (always) and the MQTT ingestion bridge (when enabled).
func (sr *ServiceRegistry) RegisterServices(config *utils.Config) error {
	handler := api.NewHandler(
		sr.gateway,
		sr.alarmRegistry,
		sr.gate,
		sr.notificationHub,
		sr.notificationHub,
		sr.healthRegistry,
		config.Telemetry.OfflineThreshold,
		config.Telemetry.RequireCO2,
		sr.Logger,
	)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.HandleFunc("GET /ws", sr.notificationHub.HandleWS)

	addr := net.JoinHostPort(config.Server.Host, strconv.Itoa(config.Server.Port))
	sr.RegisterService("http", services.NewHTTPService(addr, api.CORSMiddleware(mux), sr.Logger))

	sr.RegisterService("retention", services.NewRetentionService(
		sr.gateway,
		config.Retention.Interval,
		config.Retention.Horizon,
		sr.Logger,
	))

	if config.MQTT.Enabled {
		sr.RegisterService("mqtt_ingest", services.NewMQTTIngestService(
			config.MQTT.ReadingsTopic,
			config.MQTT.AlarmsTopic,
			config.MQTT.QOS,
			config.Telemetry.RequireCO2,
			sr.mqttClient,
			sr.gateway,
			sr.notificationHub,
			sr.alarmRegistry,
			sr.Logger,
		))
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", sr.serviceKeys)
	return nil
}
