package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveroom/pkg/types"
)

func TestMetrics_Observer(t *testing.T) {
	m := New()

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive))

	m.RoomCreated(types.RoomTypeCourse)
	m.RoomCreated(types.RoomTypeCourse)
	m.RoomCreated(types.RoomTypeWhiteboard)
	m.RoomDeleted(types.RoomTypeCourse)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.roomsActive.WithLabelValues("course")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.roomsActive.WithLabelValues("whiteboard")))

	m.MessageRelayed("chat_message", 3)
	m.MessageRelayed("chat_message", 0)
	m.MessageRelayed("cursor_move", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesRelayed.WithLabelValues("chat_message")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.deliveries))

	m.MessageDropped("not_member")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesDropped.WithLabelValues("not_member")))

	m.SweepCompleted(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.roomsStale))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepRuns))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SessionOpened()
	require.NoError(t, m.WatchGauge("hub_queue_depth", "Pending hub events", func() float64 { return 7 }))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "liveroom_sessions_active 1")
	assert.Contains(t, body, "liveroom_hub_queue_depth 7")
	assert.Contains(t, body, "go_goroutines")
}

func TestMetrics_WatchGaugeDuplicate(t *testing.T) {
	m := New()
	require.NoError(t, m.WatchGauge("x", "x", func() float64 { return 0 }))
	assert.Error(t, m.WatchGauge("x", "x", func() float64 { return 0 }))
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/rooms/{roomID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "missing")
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/rooms/{roomID}", "404"))
	assert.Equal(t, 3.0, got)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpInFlight))

	count, err := testutil.GatherAndCount(m.registry, "liveroom_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMiddleware_RejectsHijackWithoutSupport(t *testing.T) {
	rec := &responseRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rec.Hijack()
	assert.True(t, err != nil && strings.Contains(err.Error(), "hijacking"))
}
