package rpc

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"escrowchain/core/runtime"
	"escrowchain/crypto"
)

const maxRequestBytes = 1 << 20 // 1 MiB

// Config captures the dependencies required to construct the server.
type Config struct {
	Runtime         *runtime.Runtime
	EscrowProgramID crypto.Address
	TokenProgramID  crypto.Address
	Logger          *slog.Logger
	RateLimit       RateLimit
}

// Server exposes transaction submission and escrow queries over HTTP.
type Server struct {
	runtime  *runtime.Runtime
	escrowID crypto.Address
	tokenID  crypto.Address
	logger   *slog.Logger
	limiter  *RateLimiter

	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		runtime:  cfg.Runtime,
		escrowID: cfg.EscrowProgramID,
		tokenID:  cfg.TokenProgramID,
		logger:   logger,
		limiter:  NewRateLimiter(cfg.RateLimit),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router wrapped in OpenTelemetry
// instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "escrowd.rpc")
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(logRequests(s.logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.Middleware)
		api.Post("/transactions", s.SubmitTransaction)
		api.Get("/accounts/{address}", s.GetAccount)
		api.Get("/escrows/{address}", s.GetEscrow)
		api.Get("/escrows/{address}/jobs/{authority}", s.GetJob)
		api.Get("/derive/escrow", s.DeriveEscrow)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, body ErrorView) {
	body.RequestID = RequestIDFromContext(r.Context())
	writeJSON(w, status, body)
}
