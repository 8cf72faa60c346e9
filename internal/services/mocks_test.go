package services

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"keyforge/internal/keys"
	"keyforge/pkg/contracts/domain"
	"keyforge/pkg/contracts/events"
)

// MockKeyManager is a mock for KeyManager
type MockKeyManager struct {
	mock.Mock
}

func (m *MockKeyManager) MintBatch(ctx context.Context, req keys.MintRequest) ([]domain.KeyRecord, error) {
	args := m.Called(ctx, req)
	recs, _ := args.Get(0).([]domain.KeyRecord)
	return recs, args.Error(1)
}

func (m *MockKeyManager) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockKeyManager) ResetHWID(ctx context.Context, id string) (domain.KeyRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.KeyRecord), args.Error(1)
}

func (m *MockKeyManager) Bind(ctx context.Context, id, hwid string) (keys.BindResult, error) {
	args := m.Called(ctx, id, hwid)
	return args.Get(0).(keys.BindResult), args.Error(1)
}

func (m *MockKeyManager) Revoke(ctx context.Context, id string) (domain.KeyRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.KeyRecord), args.Error(1)
}

func (m *MockKeyManager) Get(ctx context.Context, id string) (domain.KeyRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.KeyRecord), args.Error(1)
}

func (m *MockKeyManager) List(ctx context.Context, filter domain.KeyFilter) ([]domain.KeyRecord, error) {
	args := m.Called(ctx, filter)
	recs, _ := args.Get(0).([]domain.KeyRecord)
	return recs, args.Error(1)
}

func (m *MockKeyManager) CheckTime(ctx context.Context, id string) ([]domain.TimeInfo, error) {
	args := m.Called(ctx, id)
	infos, _ := args.Get(0).([]domain.TimeInfo)
	return infos, args.Error(1)
}

func (m *MockKeyManager) Stats(ctx context.Context) (domain.KeyStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.KeyStats), args.Error(1)
}

func (m *MockKeyManager) ExpireDue(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *MockKeyManager) Cleanup(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.KeyEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.KeyEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Events() []events.KeyEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.KeyEvent(nil), p.events...)
}
