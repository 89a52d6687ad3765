package app

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"liveroom/internal/api"
	"liveroom/internal/auth"
	"liveroom/internal/collab"
	"liveroom/internal/config"
	"liveroom/internal/database"
	"liveroom/internal/hub"
	"liveroom/internal/metrics"
	"liveroom/internal/sweep"
	"liveroom/internal/websocket"
)

// Application owns every long-lived component and their start/stop order.
type Application struct {
	config *config.Config
	logger *zap.Logger

	directory *database.Manager
	hub       *hub.Hub
	ws        *websocket.Handler
	sweeper   *sweep.Job
	server    *http.Server

	ready chan struct{}
	addr  string
}

// NewApplication builds components in dependency order:
// directory, metrics, collaboration core, hub, transport, API.
func NewApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	validator, err := auth.NewValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Leeway)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize token validator")
	}

	directory, err := database.NewManager(ctx, cfg.Database, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize user directory")
	}

	m := metrics.New()

	core := collab.NewManager(
		collab.WithLogger(logger),
		collab.WithObserver(m),
		collab.WithTenantEnforcement(cfg.Collab.EnforceTenant),
	)

	h := hub.NewHub(core, cfg.WebSocket.QueueSize, logger)
	limiter := websocket.NewRateLimiter(cfg.Limits.MessagesPerMinute, time.Minute)

	ws := websocket.NewHandler(websocket.Dependencies{
		Auth:      validator,
		Directory: directory,
		Core:      h,
		Limiter:   limiter,
		Registry:  websocket.NewRegistry(),
		Logger:    logger,
		OnDrop:    m.MessageDropped,
	}, websocket.Options{
		PingInterval:     cfg.WebSocket.PingInterval,
		ReadTimeout:      cfg.WebSocket.ReadTimeout,
		WriteTimeout:     cfg.WebSocket.WriteTimeout,
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		MaxMessageSize:   cfg.WebSocket.MaxMessageSize,
		BufferSize:       cfg.WebSocket.BufferSize,
		AllowedOrigins:   cfg.WebSocket.AllowedOrigins,
	})

	if err := registerGauges(m, h, ws.Registry()); err != nil {
		_ = directory.Close()
		return nil, err
	}

	apiServer := api.NewServer(api.Dependencies{
		Directory:      directory,
		Collab:         core,
		Connections:    ws.Registry(),
		WebSocket:      ws,
		Metrics:        m,
		AdminToken:     cfg.Auth.AdminToken,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	})

	return &Application{
		config:    cfg,
		logger:    logger.Named("app"),
		directory: directory,
		hub:       h,
		ws:        ws,
		sweeper:   sweep.NewJob(cfg.Sweep, core, limiter, m, logger),
		server: &http.Server{
			Addr:         net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
			Handler:      apiServer,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		},
		ready: make(chan struct{}),
	}, nil
}

func registerGauges(m *metrics.Metrics, h *hub.Hub, registry *websocket.Registry) error {
	if err := m.WatchGauge("hub_queue_depth", "Events waiting in the hub queue",
		func() float64 { return float64(h.Pending()) }); err != nil {
		return errors.Wrap(err, "register hub gauge")
	}
	if err := m.WatchGauge("websocket_connections", "Open WebSocket connections", func() float64 {
		conns, _ := registry.Stats()
		return float64(conns)
	}); err != nil {
		return errors.Wrap(err, "register connection gauge")
	}
	return nil
}

// Run serves until ctx is cancelled or the listener fails, then shuts every
// component down. Components are stopped even when serving fails.
func (app *Application) Run(ctx context.Context) error {
	// The hub outlives ctx so disconnects queued during shutdown still reach
	// the core.
	if err := app.hub.Start(context.WithoutCancel(ctx)); err != nil {
		return errors.Wrap(err, "failed to start hub")
	}
	if err := app.sweeper.Start(); err != nil {
		app.stopCore()
		return errors.Wrap(err, "failed to start sweeper")
	}

	ln, err := net.Listen("tcp", app.server.Addr)
	if err != nil {
		_ = app.sweeper.Stop(context.Background())
		app.stopCore()
		return errors.Wrapf(err, "failed to listen on %s", app.server.Addr)
	}
	app.addr = ln.Addr().String()
	close(app.ready)
	app.logger.Info("liveroom listening", zap.String("addr", app.addr))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "HTTP server error")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.shutdown()
	})

	err = g.Wait()
	app.stopCore()
	app.logger.Info("liveroom shutdown complete")
	return err
}

// Ready is closed once the listener is bound.
func (app *Application) Ready() <-chan struct{} {
	return app.ready
}

// Addr is the bound listen address. Valid after Ready.
func (app *Application) Addr() string {
	return app.addr
}

// shutdown stops intake: HTTP first, then the hijacked WebSocket
// connections the HTTP server does not track.
func (app *Application) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.HTTP.ShutdownTimeout)
	defer cancel()

	app.logger.Info("shutting down")
	err := app.server.Shutdown(ctx)
	if err != nil {
		app.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
	if cerr := app.ws.Registry().CloseAll(); cerr != nil {
		app.logger.Warn("closing WebSocket connections", zap.Error(cerr))
	}
	app.awaitDisconnects(ctx)
	if err := app.sweeper.Stop(ctx); err != nil {
		app.logger.Warn("sweeper shutdown error", zap.Error(err))
	}
	return err
}

// awaitDisconnects waits for every read loop to hand its disconnect to the
// hub so sessions leave their rooms before the hub stops.
func (app *Application) awaitDisconnects(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if conns, _ := app.ws.Registry().Stats(); conns == 0 {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// stopCore stops the hub and then closes the directory.
func (app *Application) stopCore() {
	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		app.logger.Warn("hub shutdown error", zap.Error(err))
	}
	if err := app.directory.Close(); err != nil {
		app.logger.Warn("directory shutdown error", zap.Error(err))
	}
}
