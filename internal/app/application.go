package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"readingroom/internal/api"
	"readingroom/internal/config"
	"readingroom/internal/database"
	"readingroom/internal/hub"
	"readingroom/internal/provider"
	"readingroom/internal/proxy"
	"readingroom/internal/router"
	"readingroom/internal/session"
	"readingroom/internal/websocket"
	dbconfig "readingroom/pkg/database"
	"readingroom/pkg/interfaces"
)

// Application coordinates all system components
type Application struct {
	config     *config.Config
	logger     *zap.SugaredLogger
	activity   *database.Manager // nil when disabled
	sessions   *session.Registry
	rooms      *websocket.Registry
	proxy      *proxy.Service
	hub        *hub.Hub
	router     *router.Router
	apiServer  *api.Server
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
}

// NewApplication creates a new application instance with all components initialized.
// Initialization follows dependency order:
// Activity log → Sessions → Rooms → Providers → Proxy → Hub → Router → HTTP
func NewApplication(cfg *config.Config, logger *zap.SugaredLogger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{config: cfg, logger: logger}

	// STEP 1: Optional activity log. Sessions never depend on it.
	var activity interfaces.ActivityLog
	if cfg.Activity.Enabled {
		manager, err := openActivityLog(cfg.Activity, logger)
		if err != nil {
			return nil, err
		}
		app.activity = manager
		activity = manager
	}

	// STEP 2: In-memory session registry
	app.sessions = session.NewRegistry(logger.Named("session"),
		session.WithTTL(cfg.Session.TTL.Std()),
		session.WithSweepInterval(cfg.Session.SweepInterval.Std()),
	)

	// STEP 3: Connection and room registry
	app.rooms = websocket.NewRegistry()

	// STEP 4: Provider proxy with both caches
	app.proxy = proxy.NewService(app.sessions, newProviders(cfg.Provider, logger), proxy.Config{
		SynthesisCacheSize:   cfg.Cache.SynthesisSize,
		TranslationCacheSize: cfg.Cache.TranslationSize,
		Timeout:              cfg.Provider.Timeout.Std(),
		SynthesisTimeout:     cfg.Provider.SynthesisTimeout.Std(),
	}, logger.Named("proxy"))

	// STEP 5: Hub owns session/room coordination
	app.hub = hub.NewHub(app.sessions, app.rooms, app.proxy, activity, logger.Named("hub"))

	// STEP 6: Router decodes websocket frames into hub calls
	app.router = router.NewRouter(app.hub, router.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst), logger.Named("router"))

	// STEP 7: HTTP surface
	app.apiServer = api.NewServer(api.Deps{
		Hub:         app.hub,
		Sessions:    app.sessions,
		Proxy:       app.proxy,
		Connections: app.rooms,
		Activity:    activity,
		Logger:      logger.Named("api"),
		Origins:     cfg.HTTP.AllowedOrigins,
	})
	wsHandler := websocket.NewHandler(app.rooms, app.router, websocket.Config{
		PingInterval:    cfg.WebSocket.PingInterval.Std(),
		ReadTimeout:     cfg.WebSocket.ReadTimeout.Std(),
		WriteTimeout:    cfg.WebSocket.WriteTimeout.Std(),
		BufferSize:      cfg.WebSocket.BufferSize,
		MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
	}, logger.Named("websocket"))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	mux.Handle("/", app.apiServer)

	app.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout.Std(),
		WriteTimeout: cfg.HTTP.WriteTimeout.Std(),
	}
	return app, nil
}

// openActivityLog makes sure the data directory exists before SQLite opens the file
func openActivityLog(cfg config.ActivityConfig, logger *zap.SugaredLogger) (*database.Manager, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create activity log directory: %w", err)
		}
	}
	dbCfg := dbconfig.DefaultConfig()
	dbCfg.DatabasePath = cfg.Path
	dbCfg.QueueSize = cfg.QueueSize

	manager, err := database.NewManager(dbCfg, logger.Named("activity"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize activity log: %w", err)
	}
	return manager, nil
}

// newProviders picks the gateway when configured, the deterministic stub otherwise
func newProviders(cfg config.ProviderConfig, logger *zap.SugaredLogger) proxy.Providers {
	if cfg.GatewayURL == "" {
		logger.Warnw("no provider gateway configured, using built-in stub providers")
		stub := provider.NewStub()
		return proxy.Providers{
			Synthesizer: stub,
			Translator:  stub,
			Simplifier:  stub,
			Transcriber: stub,
			Recognizer:  stub,
			Generator:   stub,
		}
	}
	// The client timeout backstops the per-call context deadlines
	gateway := provider.NewGateway(cfg.GatewayURL, cfg.SynthesisTimeout.Std()+5*time.Second)
	logger.Infow("provider gateway configured", "url", cfg.GatewayURL)
	return proxy.Providers{
		Synthesizer: gateway,
		Translator:  gateway,
		Simplifier:  gateway,
		Transcriber: gateway,
		Recognizer:  gateway,
		Generator:   gateway,
	}
}

// Start binds the listener and begins serving. It returns once the server accepts
// connections; serving continues in the background until Stop.
func (app *Application) Start(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return errors.New("application already started")
	}

	runCtx, cancel := context.WithCancel(context.Background())

	// STEP 1: Hub (and with it the session sweeper)
	if err := app.hub.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start hub: %w", err)
	}
	app.router.StartCleanup(runCtx, app.config.RateLimit.CleanupInterval.Std())

	// STEP 2: Bind before returning so callers know the port is live
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", app.httpServer.Addr)
	if err != nil {
		cancel()
		_ = app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener
	app.cancel = cancel

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Errorw("HTTP server error", "error", err)
		}
	}()

	app.logger.Infow("readingroom started", "addr", listener.Addr().String())
	return nil
}

// Stop gracefully shuts down in reverse dependency order: HTTP → connections → Hub → Activity log
func (app *Application) Stop(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	var errs []error
	if app.listener != nil {
		if err := app.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		// Hijacked websocket connections are not covered by Shutdown
		if n := app.rooms.CloseAll(); n > 0 {
			app.logger.Infow("closed websocket connections", "count", n)
		}
		// Closed connections cancel their approvals' provider calls
		app.router.Wait()
		if err := app.hub.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("hub stop: %w", err))
		}
		app.cancel()
		app.listener = nil
	}
	if app.activity != nil {
		if err := app.activity.Close(); err != nil {
			errs = append(errs, fmt.Errorf("activity log close: %w", err))
		}
	}

	app.logger.Infow("readingroom shutdown complete")
	return errors.Join(errs...)
}

// Addr returns the bound listener address, or the configured one before Start
func (app *Application) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the root handler for in-process tests
func (app *Application) Handler() http.Handler {
	return app.httpServer.Handler
}
