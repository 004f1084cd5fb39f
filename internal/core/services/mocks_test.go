package services

import (
	"context"
	"errors"
	"sync"

	"omvstack.control/internal/core/domain"
)

type mockRunner struct {
	mu       sync.Mutex
	RunFunc  func(ctx context.Context, cmd domain.Command) (domain.CommandResult, error)
	binaries map[string]string
	calls    []domain.Command
}

func (m *mockRunner) Run(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, cmd)
	m.mu.Unlock()
	if m.RunFunc != nil {
		return m.RunFunc(ctx, cmd)
	}
	return domain.CommandResult{}, nil
}

func (m *mockRunner) LookPath(name string) (string, error) {
	if path, ok := m.binaries[name]; ok {
		return path, nil
	}
	return "", domain.ErrCommandNotFound
}

func (m *mockRunner) Calls() []domain.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Command(nil), m.calls...)
}

type mockBackend struct {
	StatusFunc func(ctx context.Context, project string) (domain.StackStatus, error)
	LogsFunc   func(ctx context.Context, stack domain.Stack, service string) (domain.LogOutput, error)
}

func (m *mockBackend) Status(ctx context.Context, project string) (domain.StackStatus, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, project)
	}
	return domain.StackStatus{Status: domain.StatusNotInstalled}, nil
}

func (m *mockBackend) Logs(ctx context.Context, stack domain.Stack, service string) (domain.LogOutput, error) {
	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, stack, service)
	}
	return domain.LogOutput{}, nil
}

type mockLock struct {
	mu      sync.Mutex
	holders map[string]string
	err     error
}

func newMockLock() *mockLock {
	return &mockLock{holders: make(map[string]string)}
}

func (m *mockLock) Acquire(ctx context.Context, key, owner string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.holders[key]; held {
		return false, nil
	}
	m.holders[key] = owner
	return true, nil
}

func (m *mockLock) Release(ctx context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holders[key] == owner {
		delete(m.holders, key)
	}
	return nil
}

func (m *mockLock) Holder(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holders[key], nil
}

type mockBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *mockBus) Publish(ctx context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockBus) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	return nil, errors.New("not supported")
}

func (m *mockBus) Events() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.events...)
}

type mockCallRepo struct {
	mu      sync.Mutex
	records []*domain.CallRecord
}

func (m *mockCallRepo) Create(ctx context.Context, record *domain.CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *mockCallRepo) ListCalls(ctx context.Context, service string, limit int) ([]*domain.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.CallRecord(nil), m.records...), nil
}

func (m *mockCallRepo) CountCalls(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

// stubService is a Service built from a method table.
type stubService struct {
	name    string
	methods map[string]Handler
}

func (s *stubService) Name() string                { return s.name }
func (s *stubService) Methods() map[string]Handler { return s.methods }
