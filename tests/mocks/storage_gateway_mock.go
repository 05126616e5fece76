package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/smartclass/telemetry-server/internal/models"
)

// MockStorageGateway is a mock implementation of the storage.Gateway interface
type MockStorageGateway struct {
	mock.Mock
}

func (m *MockStorageGateway) Insert(ctx context.Context, reading models.Reading) error {
	args := m.Called(ctx, reading)
	return args.Error(0)
}

func (m *MockStorageGateway) LatestPerRoom(ctx context.Context) ([]models.Reading, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reading), args.Error(1)
}

func (m *MockStorageGateway) History(ctx context.Context, room string) ([]models.Reading, error) {
	args := m.Called(ctx, room)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reading), args.Error(1)
}

func (m *MockStorageGateway) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	args := m.Called(ctx, age)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorageGateway) Connected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockStorageGateway) Close() {
	m.Called()
}
