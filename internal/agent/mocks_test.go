// File: internal/agent/mocks_test.go
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/apps"
	"github.com/xkilldash9x/droidpilot/internal/device"
	"github.com/xkilldash9x/droidpilot/internal/uitree"
)

// -- Device Mock --

type MockDevice struct {
	mock.Mock
}

func (m *MockDevice) Capture(ctx context.Context) (*device.Capture, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*device.Capture), args.Error(1)
}

func (m *MockDevice) Tap(ctx context.Context, x, y int) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *MockDevice) TypeText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockDevice) LaunchByPackage(ctx context.Context, pkg string) error {
	return m.Called(ctx, pkg).Error(0)
}

func (m *MockDevice) Swipe(ctx context.Context, from, to schemas.Point, d time.Duration) error {
	return m.Called(ctx, from, to, d).Error(0)
}

// MockDescribingDevice adds metadata and cleanup to MockDevice.
type MockDescribingDevice struct {
	MockDevice
}

func (m *MockDescribingDevice) Info(ctx context.Context) (device.Info, error) {
	args := m.Called(ctx)
	return args.Get(0).(device.Info), args.Error(1)
}

func (m *MockDescribingDevice) CleanApps(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Oracle Mock --

type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Plan(ctx context.Context, req PlanRequest) (Plan, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Plan), args.Error(1)
}

// -- Launcher Mock --

type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, item schemas.PlanItem, snap *uitree.Snapshot) (*apps.LaunchResult, error) {
	args := m.Called(ctx, item, snap)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apps.LaunchResult), args.Error(1)
}

// -- LLM Client Mock --

type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// -- In-memory store and artifacts --

type memStore struct {
	mu    sync.Mutex
	saves int
	last  *schemas.Episode
	err   error
}

func (s *memStore) SaveEpisode(_ context.Context, ep *schemas.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	cp := *ep
	cp.Data = append([]schemas.StepRecord(nil), ep.Data...)
	s.last = &cp
	return s.err
}

func (s *memStore) LoadEpisode(_ context.Context, id string) (*schemas.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, nil
}

func (s *memStore) ListEpisodes(context.Context, int) ([]schemas.EpisodeSummary, error) {
	return nil, nil
}

func (s *memStore) Close() error { return nil }

type memArtifacts struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (a *memArtifacts) WriteArtifact(_ context.Context, episodeID, name string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.files == nil {
		a.files = make(map[string][]byte)
	}
	a.files[episodeID+"/"+name] = data
	return name, nil
}
