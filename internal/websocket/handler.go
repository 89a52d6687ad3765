package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"liveroom/pkg/interfaces"
	"liveroom/pkg/types"
)

// Authenticator resolves the user ID behind a handshake request.
type Authenticator interface {
	UserIDFromRequest(r *http.Request) (string, error)
}

// Core is the serialized entry point into the collaboration core.
// *hub.Hub implements it.
type Core interface {
	Connect(ctx context.Context, socket interfaces.Socket, user *types.User) (string, error)
	Route(ctx context.Context, socket interfaces.Socket, msg *types.InboundMessage) error
	Disconnect(ctx context.Context, socket interfaces.Socket) error
}

// Dependencies of a Handler. Limiter, Registry, Logger and OnDrop are optional.
type Dependencies struct {
	Auth      Authenticator
	Directory interfaces.UserDirectory
	Core      Core
	Limiter   *RateLimiter
	Registry  *Registry
	Logger    *zap.Logger
	// OnDrop is told why an inbound frame was discarded before routing.
	OnDrop func(reason string)
}

// Handler upgrades authenticated requests and pumps frames into the core.
type Handler struct {
	deps     Dependencies
	opts     Options
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHandler(deps Dependencies, opts Options) *Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.OnDrop == nil {
		deps.OnDrop = func(string) {}
	}
	opts = opts.withDefaults()

	return &Handler{
		deps: deps,
		opts: opts,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: opts.HandshakeTimeout,
			CheckOrigin:      opts.checkOrigin,
		},
		logger: deps.Logger.Named("websocket"),
	}
}

func (h *Handler) Registry() *Registry {
	return h.deps.Registry
}

// ServeHTTP authenticates before upgrading so rejected clients get a plain
// HTTP status.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.deps.Auth.UserIDFromRequest(r)
	if err != nil {
		h.logger.Debug("handshake rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, "invalid or missing access token", http.StatusUnauthorized)
		return
	}

	user, err := h.deps.Directory.GetUser(r.Context(), userID)
	switch {
	case errors.Is(err, interfaces.ErrUserNotFound):
		h.logger.Info("handshake for unknown user", zap.String("user_id", userID))
		http.Error(w, "user not found", http.StatusForbidden)
		return
	case err != nil:
		h.logger.Error("user directory lookup failed", zap.String("user_id", userID), zap.Error(err))
		http.Error(w, "user lookup failed", http.StatusInternalServerError)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.logger.Debug("upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	conn := newConnection(ws, user.ID, h.opts, h.logger)
	h.deps.Registry.Register(conn)

	sessionID, err := h.deps.Core.Connect(conn.ctx, conn, user)
	if err != nil {
		// A connect that was queued before conn.ctx ended can still open a
		// session, so the disconnect is queued behind it regardless.
		conn.logger.Error("failed to open session", zap.Error(err))
		h.teardown(conn, conn.logger)
		return
	}

	go h.readLoop(conn, sessionID)
}

// teardown queues the session's disconnect and releases the socket. The
// disconnect is not bounded by a timeout: it waits for queue space until it
// is accepted or the core stops.
func (h *Handler) teardown(conn *Connection, log *zap.Logger) {
	if err := h.deps.Core.Disconnect(context.Background(), conn); err != nil {
		log.Warn("failed to queue disconnect", zap.Error(err))
	}
	h.deps.Registry.Unregister(conn)
	_ = conn.Close()
}

// readLoop runs until the peer goes away, then disconnects the session
// exactly once.
func (h *Handler) readLoop(conn *Connection, sessionID string) {
	log := conn.logger.With(zap.String("session_id", sessionID))
	defer h.teardown(conn, log)

	conn.conn.SetReadLimit(h.opts.MaxMessageSize)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("connection closed unexpectedly", zap.Error(err))
			}
			return
		}
		if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if !h.deps.Limiter.Allow(conn.userID) {
			h.deps.OnDrop(types.ErrorCodeRateLimited)
			h.sendError(conn, types.ErrorCodeRateLimited, "too many messages, slow down")
			continue
		}

		var msg types.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			h.deps.OnDrop(types.ErrorCodeInvalidMessage)
			h.sendError(conn, types.ErrorCodeInvalidMessage, "frame is not a valid message envelope")
			continue
		}

		if err := h.deps.Core.Route(conn.ctx, conn, &msg); err != nil {
			log.Warn("failed to queue frame", zap.String("type", msg.Type), zap.Error(err))
			return
		}
	}
}

func (h *Handler) sendError(conn *Connection, code, message string) {
	frame, err := json.Marshal(types.Envelope{
		Type: types.EventError,
		Data: types.ErrorData{Code: code, Message: message},
	})
	if err != nil {
		return
	}
	_ = conn.Send(frame)
}
