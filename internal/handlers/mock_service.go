package handlers

import (
	"context"
	"net/http"
	"time"

	"roomheat/internal/models"
	"roomheat/internal/service"

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

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockBookings struct {
	refreshRes   service.RefreshResult
	refreshErr   error
	snap         models.Snapshot
	refreshCalls int
}

func (m *mockBookings) Run(ctx context.Context, interval time.Duration) {}
func (m *mockBookings) Refresh(ctx context.Context) (service.RefreshResult, error) {
	m.refreshCalls++
	return m.refreshRes, m.refreshErr
}
func (m *mockBookings) Restore(ctx context.Context) error { return nil }
func (m *mockBookings) Current() models.Snapshot          { return m.snap }
func (m *mockBookings) BookingFor(room models.RoomID) (models.Booking, bool) {
	b, ok := m.snap.Bookings[room]
	return b, ok
}

type mockController struct {
	autoModeErr error
	forceErr    error
	syncErr     error
	retryN      int
	retryErr    error

	lastAutoRoom    models.RoomID
	lastAutoEnabled bool
	lastForceRoom   models.RoomID
	lastForceTarget float64
	lastSyncRoom    models.RoomID
	lastSyncTarget  float64
	evaluateCalls   int
	retryCalls      int
}

func (m *mockController) Run(ctx context.Context, tick time.Duration) {}
func (m *mockController) Evaluate(ctx context.Context)                { m.evaluateCalls++ }
func (m *mockController) Restore(ctx context.Context) error           { return nil }
func (m *mockController) SetAutoMode(ctx context.Context, room models.RoomID, enabled bool) error {
	m.lastAutoRoom = room
	m.lastAutoEnabled = enabled
	return m.autoModeErr
}
func (m *mockController) ForceTemperature(ctx context.Context, room models.RoomID, targetC float64) error {
	m.lastForceRoom = room
	m.lastForceTarget = targetC
	return m.forceErr
}
func (m *mockController) SyncValves(ctx context.Context, room models.RoomID, targetC float64) error {
	m.lastSyncRoom = room
	m.lastSyncTarget = targetC
	return m.syncErr
}
func (m *mockController) RetryUnresponsive(ctx context.Context) (int, error) {
	m.retryCalls++
	return m.retryN, m.retryErr
}

type mockHealth struct {
	summary models.HealthSummary
}

func (m *mockHealth) Run(ctx context.Context, sweep time.Duration) {}
func (m *mockHealth) Restore(ctx context.Context) error            { return nil }
func (m *mockHealth) Summary() models.HealthSummary                { return m.summary }

type mockMonitoring struct {
	rooms       []service.RoomStatus
	roomErr     error
	valves      []models.Valve
	lastRefresh time.Time

	lastRoomID models.RoomID
}

func (m *mockMonitoring) Rooms(ctx context.Context) []service.RoomStatus { return m.rooms }
func (m *mockMonitoring) Room(ctx context.Context, id models.RoomID) (service.RoomStatus, error) {
	m.lastRoomID = id
	if m.roomErr != nil {
		return service.RoomStatus{}, m.roomErr
	}
	for _, st := range m.rooms {
		if st.Room.ID == id {
			return st, nil
		}
	}
	return service.RoomStatus{}, service.ErrUnknownRoom
}
func (m *mockMonitoring) Valves(ctx context.Context) []models.Valve { return m.valves }
func (m *mockMonitoring) LastRefresh() time.Time                    { return m.lastRefresh }

type mockEventLog struct {
	resp      []models.RoomEvent
	err       error
	lastFrom  time.Time
	lastTo    time.Time
	lastRoom  models.RoomID
	lastType  string
	lastLimit int
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.RoomEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastRoom = f.Room
	m.lastType = f.Type
	m.lastLimit = f.Limit
	return m.resp, m.err
}
func (m *mockEventLog) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return 0, nil
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

// roomStatusFixture builds a plausible status for one room.
func roomStatusFixture(id models.RoomID, state models.RoomState) service.RoomStatus {
	return service.RoomStatus{
		Room: models.Room{
			ID:   id,
			Name: "Room " + string(id),
			Config: models.RoomConfig{
				AutoMode:      true,
				OccupiedTempC: 22,
				VacantTempC:   16,
				SyncEnabled:   true,
			},
			Valves: []models.ValveID{
				{Room: id, Location: models.LocationBedroom},
				{Room: id, Location: models.LocationBathroom},
			},
		},
		State:      state,
		ShouldHeat: state == models.StateHeatingUp || state == models.StateOccupied,
		TargetC:    22,
		Valves: []models.Valve{
			{ID: models.ValveID{Room: id, Location: models.LocationBedroom}, Online: true, Health: models.HealthHealthy},
			{ID: models.ValveID{Room: id, Location: models.LocationBathroom}, Online: true, Health: models.HealthHealthy},
		},
	}
}
