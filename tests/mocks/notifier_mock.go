package mocks

import (
	"github.com/stretchr/testify/mock"
)

// MockNotifier is a mock implementation of the hub-facing notifier
// interfaces used by the API handler, the alarm registry and the MQTT
// ingestion bridge.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) BroadcastNewData(room string) {
	m.Called(room)
}

func (m *MockNotifier) BroadcastAlarm(room, message string) {
	m.Called(room, message)
}

func (m *MockNotifier) ObserverCount() int {
	args := m.Called()
	return args.Int(0)
}
