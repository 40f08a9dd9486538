package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"fancontrol/internal/models"
	"fancontrol/internal/service"
)

// ---- Service Mocks ----

type mockAuth struct {
	subject        string
	parseErr       error
	lastParseToken string
}

func (m *mockAuth) ParseToken(token string) (string, error) {
	m.lastParseToken = token
	return m.subject, m.parseErr
}

// mockMonitoring returns states in order and then repeats the last one.
type mockMonitoring struct {
	mu     sync.Mutex
	states []models.ControllerState
	calls  int
	err    error
}

func (m *mockMonitoring) GetState(ctx context.Context) (models.ControllerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return models.ControllerState{}, m.err
	}
	if len(m.states) == 0 {
		return models.ControllerState{}, nil
	}
	i := m.calls - 1
	if i >= len(m.states) {
		i = len(m.states) - 1
	}
	return m.states[i], nil
}

type mockEventLog struct {
	resp     []models.ControlEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.ControlEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func ptr[T any](v T) *T { return &v }
