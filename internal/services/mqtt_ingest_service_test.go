package services_test

import (
	"testing"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smartclass/telemetry-server/internal/alarms"
	"github.com/smartclass/telemetry-server/internal/models"
	"github.com/smartclass/telemetry-server/internal/services"
	"github.com/smartclass/telemetry-server/tests/mocks"
)

type mqttIngestFixture struct {
	service  *services.MQTTIngestService
	client   *mocks.MockMQTTClient
	gateway  *mocks.MockStorageGateway
	notifier *mocks.MockNotifier

	readingHandler MQTT.MessageHandler
	alarmHandler   MQTT.MessageHandler
}

func newMQTTIngestFixture(t *testing.T) *mqttIngestFixture {
	t.Helper()

	f := &mqttIngestFixture{
		client:   new(mocks.MockMQTTClient),
		gateway:  new(mocks.MockStorageGateway),
		notifier: new(mocks.MockNotifier),
	}

	registry := alarms.NewRegistry(f.notifier, zerolog.Nop())
	f.service = services.NewMQTTIngestService(
		"smartclass/readings", "smartclass/alarms", 1, false,
		f.client, f.gateway, f.notifier, registry, zerolog.Nop())

	okToken := new(mocks.MockToken)
	okToken.On("Wait").Return(true)
	okToken.On("Error").Return(nil)

	f.client.On("Subscribe", "smartclass/readings", byte(1), mock.Anything).
		Run(func(args mock.Arguments) {
			f.readingHandler = args.Get(2).(MQTT.MessageHandler)
		}).Return(okToken)
	f.client.On("Subscribe", "smartclass/alarms", byte(1), mock.Anything).
		Run(func(args mock.Arguments) {
			f.alarmHandler = args.Get(2).(MQTT.MessageHandler)
		}).Return(okToken)
	f.client.On("Unsubscribe", mock.Anything).Return(okToken)

	require.NoError(t, f.service.Start())
	require.NotNil(t, f.readingHandler)
	require.NotNil(t, f.alarmHandler)

	return f
}

// TestMQTTIngest_ValidReading verifies a published reading inserts one
// row and triggers the room-scoped notification.
func TestMQTTIngest_ValidReading(t *testing.T) {
	f := newMQTTIngestFixture(t)
	f.gateway.On("Insert", mock.Anything, mock.MatchedBy(func(r models.Reading) bool {
		return r.Room == "ClassA" && r.Temperature == 22
	})).Return(nil).Once()
	f.notifier.On("BroadcastNewData", "ClassA").Once()

	msg := mocks.NewMockMessage("smartclass/readings",
		[]byte(`{"room":"ClassA","temperature":22,"humidity":40}`))
	f.readingHandler(nil, msg)

	f.gateway.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

// TestMQTTIngest_InvalidReadingDropped verifies the bridge applies the
// same validation as the HTTP path and drops bad payloads.
func TestMQTTIngest_InvalidReadingDropped(t *testing.T) {
	f := newMQTTIngestFixture(t)

	f.readingHandler(nil, mocks.NewMockMessage("smartclass/readings",
		[]byte(`{"room":"ClassA","humidity":40}`)))
	f.readingHandler(nil, mocks.NewMockMessage("smartclass/readings",
		[]byte(`not json`)))

	f.gateway.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "BroadcastNewData", mock.Anything)
}

// TestMQTTIngest_AlarmRaised verifies alarm messages land in the
// registry and fan out.
func TestMQTTIngest_AlarmRaised(t *testing.T) {
	f := newMQTTIngestFixture(t)
	f.notifier.On("BroadcastAlarm", "ClassB", "CO2 high").Once()

	f.alarmHandler(nil, mocks.NewMockMessage("smartclass/alarms",
		[]byte(`{"room":"ClassB","message":"CO2 high"}`)))

	f.notifier.AssertExpectations(t)
}

// TestMQTTIngest_StartStopGuards tests the service lifecycle.
func TestMQTTIngest_StartStopGuards(t *testing.T) {
	f := newMQTTIngestFixture(t)

	err := f.service.Start()
	assert.Error(t, err)
	assert.Equal(t, "mqtt ingest service is already running", err.Error())

	assert.NoError(t, f.service.Stop())

	err = f.service.Stop()
	assert.Error(t, err)
	assert.Equal(t, "mqtt ingest service is not running", err.Error())
}
