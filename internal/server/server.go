// Package server exposes the mint lifecycle over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"degenmint/internal/config"
	"degenmint/internal/hmacauth"
	"degenmint/internal/idempotency"
	"degenmint/internal/lifecycle"
	"degenmint/internal/metrics"
	"degenmint/internal/mintapi"
	"degenmint/internal/registry"
)

const (
	idempotencyHeader = "X-Idempotency-Key"
	requestIDHeader   = "X-Request-Id"
	maxBodyBytes      = 1 << 20
)

// Error bodies returned to clients.
const (
	msgWalletRequired   = "Wallet address is required"
	msgInvalidAction    = "Invalid action"
	msgInvalidRequestID = "Invalid request ID"
	msgInternal         = "Failed to process request"
	msgInvalidJSON      = "Invalid JSON payload"
	msgKeyReused        = "Idempotency key was already used for a different request"
	msgCreated          = "Please send payment to complete your inscription"
)

// Check is a named dependency check reported by /api/health.
type Check struct {
	Name string
	Ping func(context.Context) error
}

type Options struct {
	Metrics *metrics.Registry
	Logger  logrus.FieldLogger
	Checks  []Check
}

type Server struct {
	cfg        *config.AppConfig
	svc        *lifecycle.Service
	store      idempotency.Store
	hmac       *hmacauth.Verifier
	limiter    *rateLimiter
	metrics    *metrics.Registry
	logger     logrus.FieldLogger
	checks     []Check
	handler    http.Handler
	httpServer *http.Server
}

func NewServer(cfg *config.AppConfig, svc *lifecycle.Service, store idempotency.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "server")

	s := &Server{
		cfg:     cfg,
		svc:     svc,
		store:   store,
		metrics: opts.Metrics,
		logger:  logger,
		checks:  opts.Checks,
		hmac: &hmacauth.Verifier{
			Secret:  cfg.Auth.HMACSecret,
			MaxSkew: cfg.Auth.ClockSkew,
			Logger:  logger,
		},
	}

	if checker, ok := store.(interface{ Ping(context.Context) error }); ok {
		s.checks = append(s.checks, Check{Name: "idempotency_store", Ping: checker.Ping})
	}

	if cfg.RateLimit.Enabled {
		s.limiter = newRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)
	}
	protect := func(h http.Handler) http.Handler {
		h = s.hmac.Middleware(h)
		if s.limiter != nil {
			h = s.limiter.Wrap(h)
		}
		return h
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/mint", protect(http.HandlerFunc(s.handleMint)))
	mux.Handle("GET /api/mint/{id}", protect(http.HandlerFunc(s.handleStatus)))
	mux.Handle("GET /api/metrics", s.metrics.Handler())
	mux.HandleFunc("GET /api/health", s.handleHealth)

	s.handler = requestIDMiddleware(s.recoverMiddleware(mux))
	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// Handler is the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	s.logger.Infof("API listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln instead of the configured port.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Infof("API listening on %s", ln.Addr())
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	var payload mintapi.MintRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	if strings.TrimSpace(payload.WalletAddress) == "" {
		writeError(w, http.StatusBadRequest, msgWalletRequired)
		return
	}

	switch payload.Action {
	case "":
		s.handleCreate(w, r, payload, body)
	case mintapi.ActionVerify:
		s.handleVerify(w, r, payload)
	default:
		writeError(w, http.StatusBadRequest, msgInvalidAction)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, payload mintapi.MintRequest, body []byte) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if s.store == nil {
		key = ""
	}
	fingerprint := idempotency.Fingerprint(body)

	if key != "" {
		existing, err := idempotency.Lookup(ctx, s.store, key, fingerprint)
		switch {
		case errors.Is(err, idempotency.ErrKeyReused):
			writeError(w, http.StatusUnprocessableEntity, msgKeyReused)
			return
		case err != nil:
			s.logger.WithError(err).Warn("idempotency lookup failed")
		case existing != nil:
			s.metrics.IncReplay()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(existing.StatusCode)
			_, _ = w.Write(existing.Response)
			return
		}
	}

	req, err := s.svc.Create(ctx, payload.WalletAddress)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	b, err := json.Marshal(createResponse(req))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if key != "" {
		now := time.Now()
		record := idempotency.Record{
			StatusCode:  http.StatusOK,
			Response:    b,
			Fingerprint: fingerprint,
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.cfg.Service.IdempotencyWindow),
		}
		if err := s.store.Save(ctx, key, record); err != nil {
			s.logger.WithError(err).WithField("request_id", req.ID).Warn("idempotency save failed")
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func createResponse(req registry.Request) mintapi.CreateResponse {
	return mintapi.CreateResponse{
		Success:              true,
		RequestID:            req.ID,
		PaymentAddress:       req.PaymentAddress,
		RequiredAmountInSats: req.AmountSats,
		FeeRate:              req.FeeRate,
		AmountBreakdown:      breakdown(req),
		Message:              msgCreated,
	}
}

func breakdown(req registry.Request) mintapi.AmountBreakdown {
	return mintapi.AmountBreakdown{
		SendAmountSats:  req.Quote.SendAmountSats,
		FeeSats:         req.Quote.FeeSats,
		TotalAmountSats: req.Quote.TotalAmountSats,
		FeeRate:         req.Quote.FeeRate,
		EstimatedVBytes: req.Quote.EstimatedVBytes,
	}
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request, payload mintapi.MintRequest) {
	v, err := s.svc.Verify(r.Context(), lifecycle.VerifyInput{
		WalletAddress: payload.WalletAddress,
		RequestID:     payload.RequestID,
		PaymentTxID:   payload.PaymentTxID,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mintapi.VerifyResponse{
		Success:       true,
		Status:        string(v.Outcome),
		Message:       v.Message,
		InscriptionID: v.Request.InscriptionID,
		FailureReason: v.Request.FailureReason,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	req, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mintapi.StatusResponse{
		RequestID:      req.ID,
		WalletAddress:  req.WalletAddress,
		PaymentAddress: req.PaymentAddress,
		AmountSats:     req.AmountSats,
		FeeRate:        req.FeeRate,
		Breakdown:      breakdown(req),
		Status:         string(req.Status),
		PaymentTxID:    req.PaymentTxID,
		InscriptionID:  req.InscriptionID,
		FailureReason:  req.FailureReason,
		CreatedAt:      req.CreatedAt,
		UpdatedAt:      req.UpdatedAt,
	})
}

// writeServiceError maps the registry error taxonomy onto status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := s.logger.WithFields(logrus.Fields{
		"http_request_id": r.Header.Get(requestIDHeader),
		"path":            r.URL.Path,
	}).WithError(err)

	switch {
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, msgInvalidRequestID)
	case errors.Is(err, registry.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrInvalidTransition):
		logger.Warn("rejected status transition")
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrUpstreamUnavailable):
		logger.Error("upstream unavailable")
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("request failed")
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

type dependencyStatus struct {
	Connected bool    `json:"connected"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	deps := make(map[string]dependencyStatus, len(s.checks))
	for _, c := range s.checks {
		start := time.Now()
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.Ping(checkCtx)
		cancel()
		if err != nil {
			overallHealthy = false
			deps[c.Name] = dependencyStatus{Error: err.Error()}
			continue
		}
		deps[c.Name] = dependencyStatus{
			Connected: true,
			LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, struct {
		Status       string                      `json:"status"`
		Dependencies map[string]dependencyStatus `json:"dependencies"`
		QueueDepth   int                         `json:"queue_depth"`
	}{
		Status:       status,
		Dependencies: deps,
		QueueDepth:   s.svc.DeadLetterDepth(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, mintapi.ErrorResponse{Error: msg})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.WithFields(logrus.Fields{
					"http_request_id": r.Header.Get(requestIDHeader),
					"path":            r.URL.Path,
				}).Errorf("panic: %v", rec)
				writeError(w, http.StatusInternalServerError, msgInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
