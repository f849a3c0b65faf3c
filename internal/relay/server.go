package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bridge-ledger/internal/events"
	"bridge-ledger/internal/ledger"
	"bridge-ledger/internal/observability"
	"bridge-ledger/internal/storage"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	Addr    string
	Ledger  *ledger.Ledger
	Journal storage.JournalStore
	Hub     *events.Hub                // optional; enables /v1/events/ws
	Volume  storage.TransferEventStore // optional; enables volume queries
	Logger  zerolog.Logger
	Clock   func() time.Time
	MaxSkew time.Duration
}

// Server is the HTTP transport of one ledger.
type Server struct {
	ledger   *ledger.Ledger
	service  *Service
	journal  storage.JournalStore
	hub      *events.Hub
	volume   storage.TransferEventStore
	logger   zerolog.Logger
	auth     *authenticator
	router   *mux.Router
	http     *http.Server
	upgrader websocket.Upgrader
}

// NewServer creates a server. Call Start to listen or use Handler directly.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	s := &Server{
		ledger:  cfg.Ledger,
		service: NewService(cfg.Ledger, cfg.Logger),
		journal: cfg.Journal,
		hub:     cfg.Hub,
		volume:  cfg.Volume,
		logger:  cfg.Logger,
		auth:    newAuthenticator(cfg.Clock, cfg.MaxSkew),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/tokens", s.handleTokens).Methods(http.MethodGet)
	v1.HandleFunc("/tokens/{asset}", s.handleToken).Methods(http.MethodGet)
	v1.HandleFunc("/tokens/{asset}/volume", s.handleVolume).Methods(http.MethodGet)
	v1.HandleFunc("/assets/{asset}", s.handleAsset).Methods(http.MethodGet)
	v1.HandleFunc("/balances/{asset}/{holder}", s.handleBalance).Methods(http.MethodGet)
	v1.HandleFunc("/roles/{role}", s.handleHolders).Methods(http.MethodGet)
	v1.HandleFunc("/roles/{role}/{holder}", s.handleHasRole).Methods(http.MethodGet)
	v1.HandleFunc("/deposits/{id}", s.handleDeposit).Methods(http.MethodGet)
	v1.HandleFunc("/transfers", s.handlePending).Methods(http.MethodGet)
	v1.HandleFunc("/transfers/{id}", s.handleTransfer).Methods(http.MethodGet)
	v1.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	v1.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	v1.HandleFunc("/events/ws", s.handleStream).Methods(http.MethodGet)

	signed := v1.Methods(http.MethodPost).Subrouter()
	signed.Use(s.auth.middleware)
	signed.HandleFunc("/relay/mint", s.handleSubmitMint)
	signed.HandleFunc("/relay/release", s.handleSubmitRelease)
	signed.HandleFunc("/transfers/lock", s.handleLock)
	signed.HandleFunc("/transfers/burn", s.handleBurn)
	signed.HandleFunc("/transfers/{id}/finalize", s.handleFinalize)
	signed.HandleFunc("/transfers/{id}/refund", s.handleRefund)
	signed.HandleFunc("/admin/roles/grant", s.handleGrant)
	signed.HandleFunc("/admin/roles/revoke", s.handleRevoke)
	signed.HandleFunc("/admin/tokens/{asset}", s.handleConfigure)
	signed.HandleFunc("/admin/tokens/{asset}/disable", s.handleDisable)
	signed.HandleFunc("/admin/pause", s.handlePause)
	signed.HandleFunc("/admin/unpause", s.handleUnpause)
	signed.HandleFunc("/admin/fund", s.handleFund)
	signed.HandleFunc("/admin/emergency-withdraw", s.handleEmergencyWithdraw)
	signed.HandleFunc("/admin/threshold", s.handleThreshold)

	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Str("chain", s.ledger.ChainID()).Msg("relay server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return nil
}

// Stop ends stream subscriptions and shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.http.Shutdown(ctx)
}

// instrument records request latency by route template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		observability.RecordRelayRequest(route, strconv.Itoa(sw.status), time.Since(start).Seconds())
		s.logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", sw.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
