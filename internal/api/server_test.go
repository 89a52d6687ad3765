package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveroom/internal/metrics"
	"liveroom/pkg/interfaces"
	"liveroom/pkg/types"
)

type mockDirectory struct {
	mu        sync.Mutex
	users     map[string]*types.User
	healthErr error
}

func newMockDirectory(users ...*types.User) *mockDirectory {
	d := &mockDirectory{users: map[string]*types.User{}}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *mockDirectory) GetUser(ctx context.Context, userID string) (*types.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, interfaces.ErrUserNotFound
	}
	return u, nil
}

func (d *mockDirectory) UpsertUser(ctx context.Context, user *types.User) error {
	if err := user.Validate(); err != nil {
		return errors.Mark(err, interfaces.ErrInvalidArgument)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
	return nil
}

func (d *mockDirectory) DeleteUser(ctx context.Context, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, userID)
	return nil
}

func (d *mockDirectory) HealthCheck(ctx context.Context) error { return d.healthErr }
func (d *mockDirectory) Close() error                          { return nil }

type mockCollab struct {
	rooms map[string]*types.RoomSnapshot
	snap  types.SystemSnapshot
}

func (c *mockCollab) RoomSnapshot(roomID string) (*types.RoomSnapshot, bool) {
	r, ok := c.rooms[roomID]
	return r, ok
}

func (c *mockCollab) SystemSnapshot() types.SystemSnapshot { return c.snap }

func (c *mockCollab) StaleRooms(time.Duration) []types.RoomSnapshot { return nil }

type fixedStats struct{ conns, users int }

func (f fixedStats) Stats() (int, int) { return f.conns, f.users }

func newTestServer(dir *mockDirectory, adminToken string) *Server {
	collab := &mockCollab{
		rooms: map[string]*types.RoomSnapshot{
			"course:42": {ID: "course:42", Type: types.RoomTypeCourse, ResourceID: "42", ParticipantCount: 2},
		},
		snap: types.SystemSnapshot{
			ActiveSessions: 3,
			ActiveRooms:    1,
			RoomsByType:    map[types.RoomType]int{types.RoomTypeCourse: 1},
		},
	}
	return NewServer(Dependencies{
		Directory:   dir,
		Collab:      collab,
		Connections: fixedStats{conns: 3, users: 2},
		WebSocket: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		Metrics:    metrics.New(),
		AdminToken: adminToken,
	})
}

func do(t *testing.T, s *Server, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestServer_Health(t *testing.T) {
	dir := newMockDirectory()
	s := newTestServer(dir, "")

	rec := do(t, s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	health := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 3, health.Sessions)
	assert.Equal(t, 1, health.Rooms)
	assert.Equal(t, 3, health.Connections)

	dir.healthErr = errors.New("disk gone")
	rec = do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	health = decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "unhealthy", health.Status)
	assert.Contains(t, health.Directory, "disk gone")
}

func TestServer_Stats(t *testing.T) {
	s := newTestServer(newMockDirectory(), "")

	rec := do(t, s, http.MethodGet, "/api/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	snap := decodeBody[types.SystemSnapshot](t, rec)
	assert.Equal(t, 3, snap.ActiveSessions)
	assert.Equal(t, 1, snap.RoomsByType[types.RoomTypeCourse])
}

func TestServer_GetRoom(t *testing.T) {
	s := newTestServer(newMockDirectory(), "")

	rec := do(t, s, http.MethodGet, "/api/rooms/course:42", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	room := decodeBody[types.RoomSnapshot](t, rec)
	assert.Equal(t, "42", room.ResourceID)

	rec = do(t, s, http.MethodGet, "/api/rooms/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	errResp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, http.StatusNotFound, errResp.Code)
	assert.Equal(t, "Room not found", errResp.Message)
}

func TestServer_UserSyncDisabledWithoutToken(t *testing.T) {
	s := newTestServer(newMockDirectory(), "")

	rec := do(t, s, http.MethodGet, "/api/users/u1", "", map[string]string{AdminTokenHeader: ""})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, http.MethodPut, "/api/users/u1", `{}`, map[string]string{AdminTokenHeader: "anything"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_UserSync(t *testing.T) {
	dir := newMockDirectory()
	s := newTestServer(dir, "s3cret")
	admin := map[string]string{AdminTokenHeader: "s3cret", "Content-Type": "application/json"}

	t.Run("wrong token", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/users/u1", "", map[string]string{AdminTokenHeader: "guess"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing user", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/users/u1", "", admin)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("upsert then get", func(t *testing.T) {
		body := `{"name":"Ada","role":"instructor","establishmentId":"school-1"}`
		rec := do(t, s, http.MethodPut, "/api/users/u1", body, admin)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = do(t, s, http.MethodGet, "/api/users/u1", "", admin)
		require.Equal(t, http.StatusOK, rec.Code)
		user := decodeBody[types.User](t, rec)
		assert.Equal(t, types.User{ID: "u1", Name: "Ada", Role: "instructor", EstablishmentID: "school-1"}, user)
	})

	t.Run("invalid body", func(t *testing.T) {
		rec := do(t, s, http.MethodPut, "/api/users/u2", `{"name":`, admin)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, s, http.MethodPut, "/api/users/u2", `{"name":"","role":"student","establishmentId":"x"}`, admin)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := do(t, s, http.MethodDelete, "/api/users/u1", "", admin)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = do(t, s, http.MethodGet, "/api/users/u1", "", admin)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_MetricsAndWebSocketRoutes(t *testing.T) {
	s := newTestServer(newMockDirectory(), "")

	_ = do(t, s, http.MethodGet, "/api/stats", "", nil)

	rec := do(t, s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `liveroom_http_requests_total{method="GET",route="/api/stats",status="200"} 1`)

	rec = do(t, s, http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestServer_NotFoundAndMethod(t *testing.T) {
	s := newTestServer(newMockDirectory(), "")

	rec := do(t, s, http.MethodGet, "/api/sessions", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/stats", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", decodeBody[ErrorResponse](t, rec).Message)
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(newMockDirectory(), "")

	rec := do(t, s, http.MethodOptions, "/api/stats", "", map[string]string{
		"Origin":                        "https://lms.example.com",
		"Access-Control-Request-Method": "GET",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
