// Package api exposes the registrar over HTTP. Ledger reads are public,
// mutations act as the account behind the caller's API key.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/regmarket/namereg/internal/core/domain"
	"github.com/regmarket/namereg/internal/core/ports"
)

// Handler handles HTTP requests for domain registration and trading.
type Handler struct {
	svc     ports.Registrar
	repo    ports.RegistryRepository
	limiter *RateLimiter
}

// NewHandler creates and returns a new Handler instance. limiter may be nil
// to disable rate limiting.
func NewHandler(svc ports.Registrar, repo ports.RegistryRepository, limiter *RateLimiter) *Handler {
	return &Handler{svc: svc, repo: repo, limiter: limiter}
}

// RegisterRoutes registers the API routes with the provided ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Public Routes
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)

	// Middleware
	auth := AuthMiddleware(h.repo)
	write := RequireRole(domain.RoleWriter, domain.RoleAdmin)
	admin := RequireRole(domain.RoleAdmin)

	// Public ledger reads, rate limited per client IP
	mux.Handle("GET /resolve/{name}", h.limit(http.HandlerFunc(h.ResolveName)))
	mux.Handle("GET /domains/{name}", h.limit(http.HandlerFunc(h.GetDomain)))
	mux.Handle("GET /domains", h.limit(http.HandlerFunc(h.ListDomains)))
	mux.Handle("GET /domains/{name}/events", h.limit(http.HandlerFunc(h.ListDomainEvents)))
	mux.Handle("GET /fees", h.limit(http.HandlerFunc(h.GetFees)))

	// Mutations act as the API key's account, rate limited per account
	mux.Handle("POST /domains", auth(write(h.limit(http.HandlerFunc(h.RegisterDomain)))))
	mux.Handle("POST /domains/{name}/renewals", auth(write(h.limit(http.HandlerFunc(h.RenewDomain)))))
	mux.Handle("PUT /domains/{name}/resolver", auth(write(h.limit(http.HandlerFunc(h.SetResolver)))))
	mux.Handle("POST /domains/{name}/bids", auth(write(h.limit(http.HandlerFunc(h.PlaceBid)))))
	mux.Handle("POST /domains/{name}/bids/accept", auth(write(h.limit(http.HandlerFunc(h.AcceptBid)))))
	mux.Handle("POST /domains/{name}/bids/reject", auth(write(h.limit(http.HandlerFunc(h.RejectBid)))))

	// Governance
	mux.Handle("PUT /admin/fees", auth(admin(http.HandlerFunc(h.SetFees))))
	mux.Handle("POST /admin/withdraw", auth(admin(http.HandlerFunc(h.Withdraw))))
}

func (h *Handler) limit(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return h.limiter.Middleware(next)
}

// Metrics handles Prometheus metrics scraping requests.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// HealthCheck handles health check requests.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	details := make(map[string]string)
	checks := h.svc.HealthCheck(r.Context())

	for name, checkErr := range checks {
		if checkErr != nil {
			status = "DEGRADED"
			details[name] = checkErr.Error()
		} else {
			details[name] = "OK"
		}
	}

	resp := map[string]interface{}{
		"status":  status,
		"details": details,
	}

	w.Header().Set("Content-Type", "application/json")
	if status == "DEGRADED" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("failed to encode health check response: %v", err)
	}
}

type registerRequest struct {
	Name    string         `json:"name"`
	Target  domain.Account `json:"target"`
	Payment uint64         `json:"payment"`
}

type renewRequest struct {
	Periods uint64 `json:"periods"`
	Payment uint64 `json:"payment"`
}

type resolverRequest struct {
	Target domain.Account `json:"target"`
}

type bidRequest struct {
	Amount uint64 `json:"amount"`
}

type withdrawRequest struct {
	To domain.Account `json:"to"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Required uint64 `json:"required,omitempty"`
}

// statusFor maps registrar failures onto HTTP statuses. Anything unmapped is
// an internal failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNameTooShort),
		errors.Is(err, domain.ErrFeeTooLow),
		errors.Is(err, domain.ErrInvalidFees):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotDomainOwner), errors.Is(err, domain.ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNoActiveBid):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDomainTaken), errors.Is(err, domain.ErrReentrantCall):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOutsideGrace):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var feeErr *domain.FeeTooLowError
	if errors.As(err, &feeErr) {
		resp.Required = feeErr.Required
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Printf("failed to encode error response: %v", encErr)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func callerAccount(r *http.Request) (domain.Account, bool) {
	account, ok := r.Context().Value(CtxAccount).(domain.Account)
	return account, ok && !account.IsZero()
}

func (h *Handler) RegisterDomain(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	caller, ok := callerAccount(r)
	if !ok {
		log.Printf("RegisterDomain: missing account in context")
		http.Error(w, "Unauthorized: missing account context", http.StatusUnauthorized)
		return
	}

	info, err := h.svc.Register(r.Context(), req.Name, req.Target, caller, req.Payment)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, info)
}

func (h *Handler) RenewDomain(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req renewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	caller, ok := callerAccount(r)
	if !ok {
		log.Printf("RenewDomain: missing account in context")
		http.Error(w, "Unauthorized: missing account context", http.StatusUnauthorized)
		return
	}

	info, err := h.svc.Renew(r.Context(), name, req.Periods, caller, req.Payment)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) SetResolver(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req resolverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	caller, ok := callerAccount(r)
	if !ok {
		log.Printf("SetResolver: missing account in context")
		http.Error(w, "Unauthorized: missing account context", http.StatusUnauthorized)
		return
	}

	if err := h.svc.SetResolver(r.Context(), name, req.Target, caller); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	caller, ok := callerAccount(r)
	if !ok {
		log.Printf("PlaceBid: missing account in context")
		http.Error(w, "Unauthorized: missing account context", http.StatusUnauthorized)
		return
	}

	bid, err := h.svc.PlaceBid(r.Context(), name, req.Amount, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bid)
}

func (h *Handler) AcceptBid(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	caller, ok := callerAccount(r)
	if !ok {
		log.Printf("AcceptBid: missing account in context")
		http.Error(w, "Unauthorized: missing account context", http.StatusUnauthorized)
		return
	}

	info, err := h.svc.AcceptBid(r.Context(), name, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) RejectBid(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	caller, ok := callerAccount(r)
	if !ok {
		log.Printf("RejectBid: missing account in context")
		http.Error(w, "Unauthorized: missing account context", http.StatusUnauthorized)
		return
	}

	if err := h.svc.RejectBid(r.Context(), name, caller); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ResolveName(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	target, err := h.svc.Resolve(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":   name,
		"target": target,
	})
}

func (h *Handler) GetDomain(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	info, err := h.svc.DomainInfo(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) ListDomains(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner query parameter required", http.StatusBadRequest)
		return
	}

	domains, err := h.svc.ListByOwner(r.Context(), domain.Account(owner))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domains)
}

func (h *Handler) ListDomainEvents(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	events, err := h.svc.Events(r.Context(), name, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) GetFees(w http.ResponseWriter, r *http.Request) {
	fees, err := h.svc.Fees(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fees)
}

func (h *Handler) SetFees(w http.ResponseWriter, r *http.Request) {
	var fees domain.Fees
	if err := json.NewDecoder(r.Body).Decode(&fees); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	caller, ok := callerAccount(r)
	if !ok {
		log.Printf("SetFees: missing account in context")
		http.Error(w, "Unauthorized: missing account context", http.StatusUnauthorized)
		return
	}

	if err := h.svc.SetFees(r.Context(), fees, caller); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	caller, ok := callerAccount(r)
	if !ok {
		log.Printf("Withdraw: missing account in context")
		http.Error(w, "Unauthorized: missing account context", http.StatusUnauthorized)
		return
	}

	swept, err := h.svc.Withdraw(r.Context(), req.To, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]uint64{"swept": swept})
}
