// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/riskgate/internal/app"
	"github.com/okian/riskgate/internal/domain/ensemble"
	"github.com/okian/riskgate/internal/domain/experts"
	"github.com/okian/riskgate/internal/domain/model"
	"github.com/okian/riskgate/pkg/logger"
	"golang.org/x/time/rate"
)

const defaultMaxBatch = 500

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Assess(ctx context.Context, in model.EnsembleInput) (model.EnsembleResult, error)
	AssessBatch(ctx context.Context, inputs []model.EnsembleInput) ([]service.BatchItem, error)
	AssessTrip(ctx context.Context, trip experts.Trip, basePremium float64) (model.EnsembleResult, error)
	Trend(ctx context.Context, driverID string) (model.TrendSnapshot, error)
	Tiers() []ensemble.Tier
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	assessmentHandler *AssessmentHandler
	driverHandler     *DriverHandler
	tierHandler       *TierHandler

	limiter *rate.Limiter
	log     logger.Logger
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	rps      float64
	burst    int
	maxBatch int
}

// WithRateLimit caps all business routes with one token bucket. A
// non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *serverOptions) {
		o.rps = rps
		o.burst = burst
	}
}

// WithMaxBatch caps the number of items accepted by the batch route.
func WithMaxBatch(n int) Option {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxBatch = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := serverOptions{maxBatch: defaultMaxBatch}
	for _, opt := range opts {
		opt(&o)
	}

	log := logger.Get().Named("api")
	s := &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		assessmentHandler: NewAssessmentHandler(deps, o.maxBatch, log),
		driverHandler:     NewDriverHandler(deps, log),
		tierHandler:       NewTierHandler(deps),
		log:               log,
	}
	if o.rps > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(o.rps), o.burst)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.Handle("GET /metrics", MetricsHandler())

	mux.HandleFunc("POST /v1/assessments", s.business(s.assessmentHandler.HandleAssess, "assessments"))
	mux.HandleFunc("POST /v1/assessments/batch", s.business(s.assessmentHandler.HandleBatch, "assessments_batch"))
	mux.HandleFunc("POST /v1/trips", s.business(s.assessmentHandler.HandleTrip, "trips"))
	mux.HandleFunc("GET /v1/drivers/{driver_id}/trend", s.business(s.driverHandler.HandleTrend, "driver_trend"))
	mux.HandleFunc("GET /v1/config/tiers", s.business(s.tierHandler.HandleTiers, "tiers"))
}

func (s *Server) business(h http.HandlerFunc, endpoint string) http.HandlerFunc {
	if s.limiter != nil {
		h = RateLimitMiddleware(h, s.limiter, endpoint)
	}
	return MetricsMiddleware(h, endpoint)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
