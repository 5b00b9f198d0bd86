// ABOUTME: Gateway orchestrator that owns the registry, broadcaster, trackers, and HTTP server
// ABOUTME: Manages listener setup, background tasks, and graceful shutdown

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/moltbot-gateway/internal/agent"
	"github.com/2389/moltbot-gateway/internal/auth"
	"github.com/2389/moltbot-gateway/internal/clients"
	"github.com/2389/moltbot-gateway/internal/config"
	"github.com/2389/moltbot-gateway/internal/dedupe"
	"github.com/2389/moltbot-gateway/internal/events"
	"github.com/2389/moltbot-gateway/internal/store"
)

// Version is reported in hello-ok and status payloads. The CLI overrides it
// with its build version.
var Version = "dev"

const (
	// DefaultTickInterval is the heartbeat tick period.
	DefaultTickInterval = 30 * time.Second
	// DefaultHealthInterval is the health snapshot refresh period.
	DefaultHealthInterval = 60 * time.Second
	// MaxPayloadBytes bounds a single inbound WebSocket frame.
	MaxPayloadBytes = 512 * 1024

	shutdownDrainWait = 250 * time.Millisecond
	shutdownReason    = "gateway shutting down"
)

// Gateway coordinates client connections, event distribution, and agent runs.
type Gateway struct {
	config      *config.Config
	store       store.Store
	authn       *auth.Authenticator
	registry    *clients.Registry
	broadcaster *events.Broadcaster
	presence    *events.PresenceTracker
	health      *events.HealthTracker
	dedupe      *dedupe.Cache
	runtime     agent.Runtime
	runs        *agent.RunTracker
	upgrader    websocket.Upgrader
	router      chi.Router
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	defaultAgentID   string
	maxBodyBytes     int64
	maxBufferedBytes int64
	tickInterval     time.Duration
	healthInterval   time.Duration

	// runCtx outlives individual requests so WebSocket-triggered runs keep
	// going after the reply; it is cancelled on shutdown.
	runCtx     context.Context
	cancelRuns context.CancelFunc

	tasksCancel context.CancelFunc
	tasksWG     sync.WaitGroup

	mu      sync.Mutex
	pending map[*clients.WSTransport]struct{}
	closing bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a Gateway from cfg. It opens the principal store and wires
// every component, but does not listen until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	authCfg := auth.AuthenticatorConfig{
		Token:        cfg.Auth.Token,
		PasswordHash: cfg.Auth.PasswordHash,
		Principals:   s,
		Logger:       logger,
	}
	if cfg.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		authCfg.Verifier = verifier
	}

	runtime, err := agent.NewRuntime(cfg.Agents.Runtime, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	g := newGateway(cfg, s, auth.NewAuthenticator(authCfg), runtime, logger)
	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
	}
	return g, nil
}

// newGateway assembles the in-memory components around an already open store.
func newGateway(cfg *config.Config, s store.Store, authn *auth.Authenticator, runtime agent.Runtime, logger *slog.Logger) *Gateway {
	registry := clients.NewRegistry(logger)
	runs := agent.NewRunTracker()

	maxBody := cfg.HTTP.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = config.DefaultMaxBodyBytes
	}
	defaultAgent := cfg.Agents.DefaultID
	if defaultAgent == "" {
		defaultAgent = "main"
	}

	runCtx, cancelRuns := context.WithCancel(context.Background())

	g := &Gateway{
		config:           cfg,
		store:            s,
		authn:            authn,
		registry:         registry,
		broadcaster:      events.NewBroadcaster(registry, events.DefaultMaxBufferedBytes, logger),
		presence:         events.NewPresenceTracker(),
		dedupe:           dedupe.New(dedupe.DefaultTTL, dedupe.DefaultMaxSize),
		runtime:          runtime,
		runs:             runs,
		upgrader:         makeUpgrader(cfg.Server.AllowedOrigins),
		logger:           logger.With("component", "gateway"),
		defaultAgentID:   defaultAgent,
		maxBodyBytes:     maxBody,
		maxBufferedBytes: events.DefaultMaxBufferedBytes,
		tickInterval:     DefaultTickInterval,
		healthInterval:   DefaultHealthInterval,
		runCtx:           runCtx,
		cancelRuns:       cancelRuns,
		pending:          make(map[*clients.WSTransport]struct{}),
	}
	g.health = events.NewHealthTracker(events.HealthProbe{
		Clients: registry.Len,
		Runs:    runs.Active,
	})

	registry.OnAdd(g.presenceJoined)
	registry.OnRemove(g.presenceLeft)

	g.router = g.buildRouter()
	return g
}

func (g *Gateway) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	// Unauthenticated probes
	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)

	// WebSocket control channel (auth happens in the connect handshake)
	r.Get("/ws", g.handleWebSocket)

	// OpenAI-compatible endpoint checks method before auth
	r.HandleFunc("/v1/chat/completions", g.handleChatCompletions)

	r.Group(func(r chi.Router) {
		r.Use(auth.HTTPAuthMiddleware(g.authn))
		r.Use(auth.RequireAdminHTTP())
		r.Get("/api/clients", g.handleListClients)
		r.Post("/api/events", g.handlePublishEvent)
	})

	return r
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Broadcast publishes an event to every authorized client. Channel
// adapters and schedulers use it as their single entry point.
func (g *Gateway) Broadcast(event string, payload any, opts events.BroadcastOptions) uint64 {
	return g.broadcaster.Broadcast(event, payload, opts)
}

// presenceJoined runs after a client is admitted to the registry.
func (g *Gateway) presenceJoined(c *clients.Client) {
	version := g.presence.Upsert(presenceEntry(c))
	g.broadcastPresence(version)
}

// presenceLeft runs after a client leaves the registry.
func (g *Gateway) presenceLeft(c *clients.Client) {
	version, removed := g.presence.Remove(c.ID)
	if !removed {
		return
	}
	g.broadcastPresence(version)
}

func (g *Gateway) broadcastPresence(version uint64) {
	list, _ := g.presence.Snapshot()
	g.broadcaster.Broadcast(events.EventPresence, events.PresencePayload{Presence: list}, events.BroadcastOptions{
		DropIfSlow:   true,
		StateVersion: &events.StateVersion{Presence: version, Health: g.health.Version()},
	})
}

func presenceEntry(c *clients.Client) events.PresenceEntry {
	e := events.PresenceEntry{
		ConnID:      c.ID,
		ClientID:    c.Info.ClientID,
		DisplayName: c.Info.DisplayName,
		Platform:    c.Info.Platform,
		Version:     c.Info.Version,
		Mode:        c.Info.Mode,
		Role:        c.Role(),
		ConnectedAt: c.ConnectedAt.UnixMilli(),
	}
	if c.Auth != nil {
		e.Scopes = c.Auth.Scopes
	}
	return e
}

func (g *Gateway) stateVersion() events.StateVersion {
	return events.StateVersion{Presence: g.presence.Version(), Health: g.health.Version()}
}

// isClosing reports whether shutdown has begun.
func (g *Gateway) isClosing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closing
}

// setupTCPListener creates a standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the HTTP listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// Run starts the HTTP server and background tasks and blocks until the
// context is canceled or the server fails. It always shuts down before
// returning.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	g.startTasks()

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "moltbot", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key or TS_AUTHKEY")
	}
	return authKey, nil
}

// setupTailscaleListener brings up a tsnet node and listens on it.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	if g.config.Server.HTTPAddr != "" {
		g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
	}

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	return g.createTailscaleHTTPListener(tsCfg)
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		g.logger.Info("enabling HTTPS with Tailscale certs on :443")
		ln, err := g.tsnetServer.Listen("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
		}
		lc, err := g.tsnetServer.LocalClient()
		if err != nil {
			_ = ln.Close()
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("getting tailscale local client: %w", err)
		}
		return tls.NewListener(ln, &tls.Config{
			GetCertificate: lc.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}), nil
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown announces the stop, closes every connection with 1001, stops
// background tasks, and releases the store. Calling it again returns the
// first result.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.shutdownErr = g.shutdown(ctx)
	})
	return g.shutdownErr
}

func (g *Gateway) shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway", "clients", g.registry.Len())

	g.mu.Lock()
	g.closing = true
	pending := make([]*clients.WSTransport, 0, len(g.pending))
	for tr := range g.pending {
		pending = append(pending, tr)
	}
	g.pending = make(map[*clients.WSTransport]struct{})
	g.mu.Unlock()

	g.stopTasks()

	g.broadcaster.Broadcast(events.EventShutdown, events.ShutdownPayload{Reason: shutdownReason}, events.BroadcastOptions{DropIfSlow: true})
	g.drainClients(ctx, shutdownDrainWait)

	for _, tr := range pending {
		_ = tr.Close(websocket.CloseGoingAway, shutdownReason)
	}
	g.registry.CloseAll(websocket.CloseGoingAway, shutdownReason)
	g.cancelRuns()

	var errs []error
	if g.httpServer != nil {
		errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	}
	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	g.dedupe.Close()
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// drainClients waits up to maxWait for queued frames to reach clients.
func (g *Gateway) drainClients(ctx context.Context, maxWait time.Duration) {
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		drained := true
		for _, c := range g.registry.Snapshot() {
			if c.BufferedBytes() > 0 {
				drained = false
				break
			}
		}
		if drained {
			return
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return
		case <-ctx.Done():
			return
		}
	}
}
