package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"liveroom/pkg/interfaces"
	"liveroom/pkg/types"
)

// AdminTokenHeader carries the shared secret for user sync endpoints.
const AdminTokenHeader = "X-Admin-Token"

// ConnectionStats reports live transport connections. *websocket.Registry
// implements it.
type ConnectionStats interface {
	Stats() (connections, users int)
}

// Dependencies of a Server. Metrics, WebSocket and Logger are optional.
type Dependencies struct {
	Directory   interfaces.UserDirectory
	Collab      interfaces.Introspector
	Connections ConnectionStats
	WebSocket   http.Handler
	// Metrics serves /metrics and wraps every route when set.
	Metrics        MetricsProvider
	AdminToken     string
	AllowedOrigins []string
	Logger         *zap.Logger
}

type MetricsProvider interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

// Server is the HTTP surface: health, introspection, user sync, metrics and
// the WebSocket endpoint. It holds no collaboration logic.
type Server struct {
	deps   Dependencies
	router chi.Router
	logger *zap.Logger
}

func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		router: chi.NewRouter(),
		logger: deps.Logger.Named("api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.deps.AllowedOrigins,
		AllowedMethods: []string{"GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", AdminTokenHeader},
		MaxAge:         86400,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, "Not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	r.Get("/health", s.healthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/stats", s.getStats)
		r.Get("/rooms/{roomID}", s.getRoom)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/", s.getUser)
			r.Put("/", s.putUser)
			r.Delete("/", s.deleteUser)
		})
	})

	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}
	if s.deps.WebSocket != nil {
		r.Method(http.MethodGet, "/ws", s.deps.WebSocket)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Directory   string    `json:"directory"`
	Sessions    int       `json:"sessions"`
	Rooms       int       `json:"rooms"`
	Connections int       `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// UserRequest is the body of PUT /api/users/{userID}. The ID comes from the
// path.
type UserRequest struct {
	Name            string `json:"name"`
	Role            string `json:"role"`
	EstablishmentID string `json:"establishmentId"`
}

// healthCheck returns 503 when the user directory cannot be reached, since
// no new connection can be admitted without it.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Directory: "healthy",
	}
	if err := s.deps.Directory.HealthCheck(ctx); err != nil {
		s.logger.Warn("directory health check failed", zap.Error(err))
		resp.Status = "unhealthy"
		resp.Directory = "error: " + err.Error()
	}

	snap := s.deps.Collab.SystemSnapshot()
	resp.Sessions = snap.ActiveSessions
	resp.Rooms = snap.ActiveRooms
	if s.deps.Connections != nil {
		resp.Connections, _ = s.deps.Connections.Stats()
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Collab.SystemSnapshot())
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	snap, ok := s.deps.Collab.RoomSnapshot(roomID)
	if !ok {
		s.sendError(w, "Room not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Directory.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.directoryError(w, err, "Failed to get user")
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) putUser(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	user := &types.User{
		ID:              chi.URLParam(r, "userID"),
		Name:            req.Name,
		Role:            req.Role,
		EstablishmentID: req.EstablishmentID,
	}
	if err := s.deps.Directory.UpsertUser(r.Context(), user); err != nil {
		s.directoryError(w, err, "Failed to save user")
		return
	}

	s.logger.Info("user synced",
		zap.String("user_id", user.ID),
		zap.String("establishment_id", user.EstablishmentID))
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Directory.DeleteUser(r.Context(), chi.URLParam(r, "userID")); err != nil {
		s.directoryError(w, err, "Failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) directoryError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, interfaces.ErrUserNotFound):
		s.sendError(w, "User not found", http.StatusNotFound)
	case errors.Is(err, interfaces.ErrInvalidArgument):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error(fallback, zap.Error(err))
		s.sendError(w, fallback, http.StatusInternalServerError)
	}
}

// requireAdmin rejects every request while no admin token is configured.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.AdminToken == "" {
			s.sendError(w, "User sync is disabled", http.StatusForbidden)
			return
		}
		got := r.Header.Get(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.deps.AdminToken)) != 1 {
			s.sendError(w, "Invalid admin token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}
