// ABOUTME: Gateway wiring the guest token service to an HTTP server
// ABOUTME: Builds the upstream client and signer from config and manages server lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/embed-gateway/internal/config"
	"github.com/2389/embed-gateway/internal/guesttoken"
	"github.com/2389/embed-gateway/internal/signer"
	"github.com/2389/embed-gateway/internal/upstream"
)

// Gateway serves guest tokens over HTTP.
type Gateway struct {
	config     *config.Config
	service    *guesttoken.Service
	keys       guesttoken.KeyMaterial
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Gateway from cfg. Key material is read once here; a
// missing key file leaves local mode unusable but does not stop startup.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	client, err := upstream.New(upstream.Config{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Upstream.Timeout,
		Logger:  logger.With("component", "upstream"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating upstream client: %w", err)
	}

	keys, err := signer.LoadKeyMaterial(cfg.Keys.PrivateKeyPath, cfg.Keys.KeyID)
	if err != nil {
		return nil, fmt.Errorf("loading key material: %w", err)
	}
	if keys.Present() {
		logger.Info("local signing enabled", "key_id", keys.KeyID, "private_key_path", cfg.Keys.PrivateKeyPath)
	} else {
		logger.Warn("local signing unavailable: private key or key id missing", "private_key_path", cfg.Keys.PrivateKeyPath)
	}

	svc := NewService(cfg, client, keys, logger)
	return newGateway(cfg, svc, keys, logger), nil
}

// NewService assembles the guest token service with one issuer per mode.
func NewService(cfg *config.Config, client *upstream.Client, keys guesttoken.KeyMaterial, logger *slog.Logger) *guesttoken.Service {
	remote := &guesttoken.RemoteIssuer{
		Credentials:   cfg.APICredentials(),
		Authenticator: client,
		Requester:     client,
	}
	local := &guesttoken.LocalIssuer{
		Keys: keys,
		Sign: signer.SignClaims,
	}
	return guesttoken.NewService(remote, local, logger.With("component", "guest-token"))
}

func newGateway(cfg *config.Config, svc *guesttoken.Service, keys guesttoken.KeyMaterial, logger *slog.Logger) *Gateway {
	gw := &Gateway{
		config:  cfg,
		service: svc,
		keys:    keys,
		logger:  logger.With("component", "gateway"),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw
}

// Handler returns the gateway's HTTP routes.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health endpoint - no auth required
	mux.HandleFunc("/health", g.handleHealth)

	mux.HandleFunc("/guest-token", g.handleGuestToken)
	mux.HandleFunc("/pem-key", g.handlePEMKey)
	mux.HandleFunc("/embed-config", g.handleEmbedConfig)

	return mux
}

// IssueToken issues a guest token for the configured dashboard and RLS rules.
func (g *Gateway) IssueToken(ctx context.Context, mode guesttoken.Mode) (string, error) {
	return g.service.Issue(ctx, mode, g.config.Target(), g.config.Embed.RLS)
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run with a caller-provided listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
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

// gracefulShutdown uses a fresh context since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.Server.ShutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server, letting in-flight requests finish.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")
	if err := g.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
