package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/smartclass/telemetry-server/internal/alarms"
	"github.com/smartclass/telemetry-server/internal/models"
	"github.com/smartclass/telemetry-server/internal/storage"
	"github.com/smartclass/telemetry-server/pkg/mqtt"
)

// Notifier pushes new-data events to connected observers.
type Notifier interface {
	BroadcastNewData(room string)
}

// MQTTIngestService is the broker-side ingestion path: sensors that
// publish over MQTT instead of HTTP land in the same store and trigger
// the same notifications. Payloads share the HTTP validation rules.
type MQTTIngestService struct {
	readingsTopic string
	alarmsTopic   string
	qos           int
	requireCO2    bool

	mqttClient mqtt.MQTTClient
	gateway    storage.Gateway
	notifier   Notifier
	alarms     *alarms.Registry
	logger     zerolog.Logger

	running bool
}

// NewMQTTIngestService initializes a new MQTTIngestService.
func NewMQTTIngestService(readingsTopic, alarmsTopic string, qos int, requireCO2 bool,
	mqttClient mqtt.MQTTClient, gateway storage.Gateway, notifier Notifier,
	alarmRegistry *alarms.Registry, logger zerolog.Logger) *MQTTIngestService {

	return &MQTTIngestService{
		readingsTopic: readingsTopic,
		alarmsTopic:   alarmsTopic,
		qos:           qos,
		requireCO2:    requireCO2,
		mqttClient:    mqttClient,
		gateway:       gateway,
		notifier:      notifier,
		alarms:        alarmRegistry,
		logger:        logger,
	}
}

// Start subscribes to the readings and alarms topics.
func (s *MQTTIngestService) Start() error {
	if s.running {
		s.logger.Warn().Msg("MQTTIngestService is already running")
		return errors.New("mqtt ingest service is already running")
	}

	token := s.mqttClient.Subscribe(s.readingsTopic, byte(s.qos), s.handleReading)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}

	token = s.mqttClient.Subscribe(s.alarmsTopic, byte(s.qos), s.handleAlarm)
	if token.Wait() && token.Error() != nil {
		_ = s.mqttClient.Unsubscribe(s.readingsTopic)
		return token.Error()
	}

	s.running = true
	s.logger.Info().
		Str("readings_topic", s.readingsTopic).
		Str("alarms_topic", s.alarmsTopic).
		Msg("MQTTIngestService started successfully")
	return nil
}

// Stop unsubscribes from both topics.
func (s *MQTTIngestService) Stop() error {
	if !s.running {
		s.logger.Warn().Msg("MQTTIngestService is not running")
		return errors.New("mqtt ingest service is not running")
	}

	token := s.mqttClient.Unsubscribe(s.readingsTopic, s.alarmsTopic)
	token.Wait()

	s.running = false
	s.logger.Info().Msg("MQTTIngestService stopped successfully")
	return token.Error()
}

// handleReading validates and persists a published reading. Malformed
// payloads are dropped with a warning; there is no client error to
// return over MQTT.
func (s *MQTTIngestService) handleReading(client MQTT.Client, msg MQTT.Message) {
	var payload models.ReadingPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Dropping malformed reading payload")
		return
	}
	if err := payload.Validate(s.requireCO2); err != nil {
		s.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Dropping invalid reading payload")
		return
	}

	reading := payload.Reading(time.Now())
	if err := s.gateway.Insert(context.Background(), reading); err != nil {
		s.logger.Error().Err(err).Str("room", reading.Room).Msg("Published reading not persisted")
		return
	}

	s.notifier.BroadcastNewData(reading.Room)
}

// handleAlarm raises an alarm published by a sensor.
func (s *MQTTIngestService) handleAlarm(client MQTT.Client, msg MQTT.Message) {
	var payload models.AlarmPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Dropping malformed alarm payload")
		return
	}
	if payload.Room == "" || payload.Message == "" {
		s.logger.Warn().Str("topic", msg.Topic()).Msg("Dropping alarm payload with missing fields")
		return
	}

	s.alarms.Raise(payload.Room, payload.Message)
}
