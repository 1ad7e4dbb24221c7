package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/bbuddy/scan-relay-go/internal/model"
	"github.com/bbuddy/scan-relay-go/internal/repository"
	"github.com/bbuddy/scan-relay-go/internal/sse"
)

type mockBuddy struct {
	mock.Mock
}

func (m *mockBuddy) Scan(ctx context.Context, req ScanRequest) (*UpstreamResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UpstreamResponse), args.Error(1)
}

func (m *mockBuddy) GetMode(ctx context.Context) (*UpstreamResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UpstreamResponse), args.Error(1)
}

func (m *mockBuddy) SetMode(ctx context.Context, state int) (*UpstreamResponse, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UpstreamResponse), args.Error(1)
}

type mockScanRepo struct {
	mock.Mock
}

func (m *mockScanRepo) FindByID(ctx context.Context, id string) (*model.ScanEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScanEvent), args.Error(1)
}

func (m *mockScanRepo) FindRecent(ctx context.Context, limit, offset int) ([]model.ScanEvent, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScanEvent), args.Error(1)
}

func (m *mockScanRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockScanRepo) Create(ctx context.Context, params model.CreateScanEventParams) (*model.ScanEvent, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScanEvent), args.Error(1)
}

func (m *mockScanRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockScanRepo) WithTx(tx *sqlx.Tx) repository.ScanEventRepository {
	return m
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, event sse.Event) error {
	args := m.Called(ctx, topic, event)
	return args.Error(0)
}

type mockModeCache struct {
	mock.Mock
}

func (m *mockModeCache) Get(ctx context.Context) ([]byte, bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *mockModeCache) Set(ctx context.Context, body []byte, ttl time.Duration) error {
	args := m.Called(ctx, body, ttl)
	return args.Error(0)
}

func (m *mockModeCache) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
