package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/CastPipe/internal/models"
	"github.com/BTreeMap/CastPipe/internal/store"
	"github.com/BTreeMap/CastPipe/internal/trace"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Poller is the subset of the poll loop the HTTP surface needs.
type Poller interface {
	Poll(ctx context.Context) models.PollResult
	EffectiveInterval(ctx context.Context) time.Duration
}

// Dispatcher routes one mention through the reply pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, m models.Mention) (bool, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr       string
	AdminToken string
	BotFID     int64
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAdminToken sets the shared secret required by /admin endpoints. An
// empty token disables them entirely.
func WithAdminToken(token string) Option {
	return func(o *Opts) { o.AdminToken = token }
}

// WithBotFID sets the bot's Farcaster ID, used to filter webhook events.
func WithBotFID(fid int64) Option {
	return func(o *Opts) { o.BotFID = fid }
}

// Server is the CastPipe HTTP server.
type Server struct {
	addr       string
	adminToken string
	botFID     int64
	poller     Poller
	dispatcher Dispatcher
	st         store.Store
	tracer     *trace.Tracer
	httpServer *http.Server
}

// NewServer creates an API server. tracer may be nil, in which case /traces
// serves an empty list.
func NewServer(p Poller, d Dispatcher, st store.Store, tracer *trace.Tracer, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		addr:       cfg.Addr,
		adminToken: cfg.AdminToken,
		botFID:     cfg.BotFID,
		poller:     p,
		dispatcher: d,
		st:         st,
		tracer:     tracer,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.healthHandler)
	mux.HandleFunc("/keepalive", s.keepaliveHandler)
	mux.HandleFunc("/poll", s.pollHandler)
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/traces", s.tracesHandler)
	mux.HandleFunc("/admin/poll-interval", s.pollIntervalHandler)
	return mux
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("Server.Run: listening", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
