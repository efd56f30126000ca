package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Kizaaaa/insurix/internal/core"
	"github.com/Kizaaaa/insurix/internal/observability"
	"github.com/Kizaaaa/insurix/internal/op"
	"github.com/Kizaaaa/insurix/internal/projection"
	"github.com/Kizaaaa/insurix/internal/query"
	"github.com/Kizaaaa/insurix/internal/state"
)

// PartyHeader identifies the caller on every mutating request. The
// engine authorizes against this identity; transport-level auth is the
// deployment's concern.
const PartyHeader = "X-Insurix-Party"

// Server serves the HTTP/JSON API: operation submission routed through
// the engine, reads served from projections.
type Server struct {
	httpServer *http.Server
	engine     *core.Engine
	queries    *query.QueryService
	db         *sql.DB
	health     *observability.HealthChecker
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Engine        *core.Engine
	QueryService  *query.QueryService
	DB            *sql.DB
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
}

func NewServer(addr string, deps *Deps) *Server {
	s := &Server{
		engine:  deps.Engine,
		queries: deps.QueryService,
		db:      deps.DB,
		health:  deps.HealthChecker,
		metrics: deps.Metrics,
		logger:  observability.NewLogger("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/policies", s.handlePurchase)
		r.Get("/policies/{policyID}", s.handleGetPolicy)
		r.Get("/policies/{policyID}/status", s.handleClaimStatus)
		r.Get("/policies/{policyID}/journal", s.handleJournalHistory)
		r.Post("/policies/{policyID}/claim", s.handleClaim)
		r.Post("/policies/{policyID}/cancel", s.handleCancel)

		r.Get("/holders/{holder}/policies", s.handleHolderPolicies)

		r.Post("/reports", s.handleReport)
		r.Post("/reports/batch", s.handleReportBatch)
		r.Get("/reports/{flightID}/{dayBucket}", s.handleGetReport)

		r.Get("/reserve", s.handleReserveStats)
		r.Post("/reserve/fund", s.handleFundReserve)
		r.Post("/reserve/withdraw", s.handleWithdrawReserve)

		r.Get("/params", s.handleGetParams)
		r.Put("/params", s.handleUpdateParams)
		r.Get("/tiers", s.handleGetTiers)
		r.Put("/tiers", s.handleUpdateTiers)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/oracles", s.handleAuthorizeOracle)
			r.Get("/oracles", s.handleListOracles)
			r.Get("/oracles/{oracle}", s.handleGetOracle)
			r.Delete("/oracles/{oracle}", s.handleRevokeOracle)
			r.Post("/pause", s.handlePause)
			r.Post("/unpause", s.handleUnpause)
			r.Post("/transfer", s.handleTransferAdmin)
			r.Get("/integrity", s.handleVerifyIntegrity)
			r.Post("/projections/rebuild", s.handleRebuildProjections)
		})
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Start runs the HTTP server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// instrument records request counts and latency per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if s.metrics != nil {
			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			s.metrics.QueryRequests.WithLabelValues(pattern, strconv.Itoa(ww.Status())).Inc()
			s.metrics.QueryDuration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
		}
	})
}

// --- request/response shapes ---

type purchaseRequest struct {
	RequestID string    `json:"request_id"`
	FlightID  string    `json:"flight_id"`
	Departure time.Time `json:"departure"`
	Premium   int64     `json:"premium"`
}

type reportRequest struct {
	MessageID    string `json:"message_id"`
	FlightID     string `json:"flight_id"`
	DayBucket    int64  `json:"day_bucket"`
	Status       string `json:"status"`
	DelayMinutes int64  `json:"delay_minutes"`
}

type reportBatchRequest struct {
	MessageID string `json:"message_id"`
	Reports   []struct {
		FlightID     string `json:"flight_id"`
		DayBucket    int64  `json:"day_bucket"`
		Status       string `json:"status"`
		DelayMinutes int64  `json:"delay_minutes"`
	} `json:"reports"`
}

type amountRequest struct {
	RequestID string `json:"request_id"`
	Amount    int64  `json:"amount"`
}

type paramsRequest struct {
	RequestID        string `json:"request_id"`
	MinPremium       int64  `json:"min_premium"`
	MaxPremium       int64  `json:"max_premium"`
	PayoutMultiplier int64  `json:"payout_multiplier"`
	MinLeadTimeSecs  int64  `json:"min_lead_time_secs"`
}

type tiersRequest struct {
	RequestID string `json:"request_id"`
	Tiers     []struct {
		MinDelayHours int64 `json:"min_delay_hours"`
		PayoutBps     int64 `json:"payout_bps"`
	} `json:"tiers"`
}

type partyRequest struct {
	RequestID string `json:"request_id"`
	Party     string `json:"party"`
}

type requestIDOnly struct {
	RequestID string `json:"request_id"`
}

type resultResponse struct {
	Sequence     int64              `json:"sequence"`
	PolicyID     uint64             `json:"policy_id,omitempty"`
	PayoutAmount int64              `json:"payout_amount,omitempty"`
	RefundAmount int64              `json:"refund_amount,omitempty"`
	Duplicate    bool               `json:"duplicate,omitempty"`
	Preview      *core.ClaimPreview `json:"preview,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- operation handlers ---

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req purchaseRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.engine.Execute(r.Context(), &op.PurchasePolicy{
		RequestID: s.requestID(req.RequestID),
		Holder:    caller,
		FlightID:  req.FlightID,
		Departure: req.Departure,
		Premium:   req.Premium,
	})
	s.writeResult(w, result, err, http.StatusCreated)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	policyID, ok := s.policyID(w, r)
	if !ok {
		return
	}

	var req requestIDOnly
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.engine.Execute(r.Context(), &op.ProcessClaim{
		RequestID: s.requestID(req.RequestID),
		Initiator: caller,
		PolicyID:  policyID,
	})
	s.writeResult(w, result, err, http.StatusOK)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	policyID, ok := s.policyID(w, r)
	if !ok {
		return
	}

	var req requestIDOnly
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.engine.Execute(r.Context(), &op.CancelPolicy{
		RequestID: s.requestID(req.RequestID),
		Initiator: caller,
		PolicyID:  policyID,
	})
	s.writeResult(w, result, err, http.StatusOK)
}

func (s *Server) handleClaimStatus(w http.ResponseWriter, r *http.Request) {
	// No party check: previews carry no authority
	policyID, ok := s.policyID(w, r)
	if !ok {
		return
	}

	result, err := s.engine.Execute(r.Context(), &op.CheckClaimStatus{
		RequestID: uuid.New(),
		Initiator: s.optionalCaller(r),
		PolicyID:  policyID,
	})
	s.writeResult(w, result, err, http.StatusOK)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req reportRequest
	if !s.decode(w, r, &req) {
		return
	}

	status, err := state.ParseFlightStatus(req.Status)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	messageID := req.MessageID
	if messageID == "" {
		messageID = uuid.New().String()
	}

	result, err := s.engine.Execute(r.Context(), &op.ReportFlightStatus{
		MessageID:    messageID,
		Reporter:     caller,
		FlightID:     req.FlightID,
		DayBucket:    req.DayBucket,
		Status:       status,
		DelayMinutes: req.DelayMinutes,
	})
	s.writeResult(w, result, err, http.StatusOK)
}

func (s *Server) handleReportBatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req reportBatchRequest
	if !s.decode(w, r, &req) {
		return
	}

	batch := &op.BatchReportFlightStatus{
		MessageID: req.MessageID,
		Reporter:  caller,
	}
	if batch.MessageID == "" {
		batch.MessageID = uuid.New().String()
	}
	for _, entry := range req.Reports {
		status, err := state.ParseFlightStatus(entry.Status)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		batch.FlightIDs = append(batch.FlightIDs, entry.FlightID)
		batch.DayBuckets = append(batch.DayBuckets, entry.DayBucket)
		batch.Statuses = append(batch.Statuses, status)
		batch.DelayMinutes = append(batch.DelayMinutes, entry.DelayMinutes)
	}

	result, err := s.engine.Execute(r.Context(), batch)
	s.writeResult(w, result, err, http.StatusOK)
}

func (s *Server) handleFundReserve(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req amountRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.engine.Execute(r.Context(), &op.FundReserve{
		RequestID: s.requestID(req.RequestID),
		Funder:    caller,
		Amount:    req.Amount,
	})
	s.writeResult(w, result, err, http.StatusOK)
}

func (s *Server) handleWithdrawReserve(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req amountRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.engine.Execute(r.Context(), &op.WithdrawReserve{
		RequestID: s.requestID(req.RequestID),
		Admin:     caller,
		Amount:    req.Amount,
	})
	s.writeResult(w, result, err, http.StatusOK)
}

func (s *Server) handleUpdateParams(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req paramsRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.engine.Execute(r.Context(), &op.UpdateParameters{
		RequestID:        s.requestID(req.RequestID),
		Admin:            caller,
		MinPremium:       req.MinPremium,
		MaxPremium:       req.MaxPremium,
		PayoutMultiplier: req.PayoutMultiplier,
		MinLeadTime:      time.Duration(req.MinLeadTimeSecs) * time.Second,
	})
	s.writeResult(w, result, err, http.StatusOK)
}

func (s *Server) handleUpdateTiers(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req tiersRequest
	if !s.decode(w, r, &req) {
		return
	}

	update := &op.UpdatePayoutTiers{
		RequestID: s.requestID(req.RequestID),
		Admin:     caller,
	}
	for _, t := range req.Tiers {
		update.Tiers = append(update.Tiers, state.PayoutTier{
			MinDelayHours: t.MinDelayHours,
			PayoutBps:     t.PayoutBps,
		})
	}

	result, err := s.engine.Execute(r.Context(), update)
	s.writeResult(w, result, err, http.StatusOK)
}

func (s *Server) handleAuthorizeOracle(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req partyRequest
	if !s.decode(w, r, &req) {
		return
	}

	oracle, err := uuid.Parse(req.Party)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid party: %w", err))
		return
	}

	result, err := s.engine.Execute(r.Context(), &op.AuthorizeOracle{
		RequestID: s.requestID(req.RequestID),
		Admin:     caller,
		Oracle:    oracle,
	})
	s.writeResult(w, result, err, http.StatusOK)
}

func (s *Server) handleRevokeOracle(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	oracle, err := uuid.Parse(chi.URLParam(r, "oracle"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid oracle id: %w", err))
		return
	}

	result, err := s.engine.Execute(r.Context(), &op.RevokeOracle{
		RequestID: uuid.New(),
		Admin:     caller,
		Oracle:    oracle,
	})
	s.writeResult(w, result, err, http.StatusOK)
}

func (s *Server) handleGetOracle(w http.ResponseWriter, r *http.Request) {
	oracle, err := uuid.Parse(chi.URLParam(r, "oracle"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid oracle id: %w", err))
		return
	}

	resp, err := s.queries.GetOracle(r.Context(), oracle.String())
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListOracles(w http.ResponseWriter, r *http.Request) {
	resp, err := s.queries.ListOracles(r.Context())
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	result, err := s.engine.Execute(r.Context(), &op.Pause{RequestID: uuid.New(), Admin: caller})
	s.writeResult(w, result, err, http.StatusOK)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	result, err := s.engine.Execute(r.Context(), &op.Unpause{RequestID: uuid.New(), Admin: caller})
	s.writeResult(w, result, err, http.StatusOK)
}

func (s *Server) handleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req partyRequest
	if !s.decode(w, r, &req) {
		return
	}

	newAdmin, err := uuid.Parse(req.Party)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid party: %w", err))
		return
	}

	result, err := s.engine.Execute(r.Context(), &op.TransferAdmin{
		RequestID: s.requestID(req.RequestID),
		Admin:     caller,
		NewAdmin:  newAdmin,
	})
	s.writeResult(w, result, err, http.StatusOK)
}

// --- read handlers ---

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	policyID, ok := s.policyID(w, r)
	if !ok {
		return
	}

	policy, err := s.queries.GetPolicy(r.Context(), policyID)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, policy)
}

func (s *Server) handleHolderPolicies(w http.ResponseWriter, r *http.Request) {
	holder, err := uuid.Parse(chi.URLParam(r, "holder"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid holder id: %w", err))
		return
	}

	var status *string
	if v := r.URL.Query().Get("status"); v != "" {
		status = &v
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	var afterID *uint64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid cursor %q", v))
			return
		}
		afterID = &n
	}

	policies, err := s.queries.GetPoliciesByHolder(r.Context(), holder, status, limit, afterID)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"policies": policies})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	flightID := chi.URLParam(r, "flightID")
	dayBucket, err := strconv.ParseInt(chi.URLParam(r, "dayBucket"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid day bucket: %w", err))
		return
	}

	report, err := s.queries.GetFlightReport(r.Context(), flightID, dayBucket)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReserveStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queries.GetReserveStats(r.Context())
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	params, err := s.queries.GetParameters(r.Context())
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, params)
}

func (s *Server) handleGetTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := s.queries.GetPayoutTiers(r.Context())
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tiers)
}

func (s *Server) handleJournalHistory(w http.ResponseWriter, r *http.Request) {
	policyID, ok := s.policyID(w, r)
	if !ok {
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	var afterSeq *int64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid cursor %q", v))
			return
		}
		afterSeq = &n
	}

	entries, err := s.queries.GetJournalHistory(r.Context(), policyID, limit, afterSeq)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"journals": entries})
}

func (s *Server) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRebuildProjections(w http.ResponseWriter, r *http.Request) {
	if err := projection.RebuildProjections(r.Context(), s.db); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

// --- helpers ---

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(PartyHeader)
	if raw == "" {
		s.writeError(w, http.StatusUnauthorized, fmt.Errorf("missing %s header", PartyHeader))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid %s header: %v", PartyHeader, err))
		return uuid.Nil, false
	}
	return id, true
}

// optionalCaller returns the party header when present, uuid.Nil
// otherwise. Only used for read previews.
func (s *Server) optionalCaller(r *http.Request) uuid.UUID {
	id, err := uuid.Parse(r.Header.Get(PartyHeader))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (s *Server) policyID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "policyID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid policy id: %w", err))
		return 0, false
	}
	return id, true
}

func (s *Server) requestID(raw string) uuid.UUID {
	if id, err := uuid.Parse(raw); err == nil {
		return id
	}
	return uuid.New()
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %v", err))
		return false
	}
	return true
}

func (s *Server) writeResult(w http.ResponseWriter, result *core.Result, err error, okStatus int) {
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	if result.Duplicate {
		okStatus = http.StatusOK
	}
	s.writeJSON(w, okStatus, resultResponse{
		Sequence:     result.Sequence,
		PolicyID:     result.PolicyID,
		PayoutAmount: result.PayoutAmount,
		RefundAmount: result.RefundAmount,
		Duplicate:    result.Duplicate,
		Preview:      result.Preview,
	})
}

// statusForError maps engine error classes onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrState):
		return http.StatusConflict
	case errors.Is(err, core.ErrResource):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrReentrancy):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrTransfer):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, query.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		s.logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("encode response")
	}
}
