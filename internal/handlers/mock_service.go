package handlers

import (
	"context"
	"net/http"
	"time"

	"coop_door/internal/models"
	"coop_door/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockDoor struct {
	status models.DoorStatus
	err    error

	lastTarget string
	calls      []string
}

func (m *mockDoor) Recover(ctx context.Context) (models.DoorStatus, error) {
	m.calls = append(m.calls, "recover")
	return m.status, m.err
}
func (m *mockDoor) ClearFaults(ctx context.Context) (models.DoorStatus, error) {
	m.calls = append(m.calls, "clear_faults")
	return m.status, m.err
}
func (m *mockDoor) SetOverride(ctx context.Context, target string) (models.DoorStatus, error) {
	m.calls = append(m.calls, "set_override")
	m.lastTarget = target
	return m.status, m.err
}
func (m *mockDoor) ClearOverride(ctx context.Context) (models.DoorStatus, error) {
	m.calls = append(m.calls, "clear_override")
	return m.status, m.err
}

type mockMonitoring struct {
	status models.DoorStatus
	err    error
}

func (m *mockMonitoring) GetStatus(ctx context.Context) (models.DoorStatus, error) {
	return m.status, m.err
}

type mockEventLog struct {
	resp     []models.DoorEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.DoorEvent, error) {
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
