package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mdbxhq/mdbx-backend/internal/ledger"
	"github.com/mdbxhq/mdbx-backend/internal/middleware"
	"github.com/mdbxhq/mdbx-backend/internal/repository"
	"github.com/mdbxhq/mdbx-backend/internal/service"
)

// SignatureVerifier checks webhook payload signatures.
type SignatureVerifier interface {
	ValidSignature(body []byte, signature string) bool
}

type Handler struct {
	svc      *service.Service
	verifier SignatureVerifier
	adminID  int64
	log      *logrus.Logger
}

// NewHandler wires the HTTP layer. adminID restricts the interest trigger
// to the pool-account identity.
func NewHandler(svc *service.Service, verifier SignatureVerifier, adminID int64, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, verifier: verifier, adminID: adminID, log: log}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Errorf("Failed to encode response: %v", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, repository.ErrMemberNotFound), errors.Is(err, ledger.ErrMemberNotFound), errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrSettlementNotSuccessful):
		status = http.StatusPaymentRequired
	case errors.Is(err, service.ErrGateway):
		status = http.StatusBadGateway
	case errors.Is(err, ledger.ErrPoolAccountNotConfigured):
		// Server misconfiguration, not user-correctable.
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		h.log.Errorf("Request failed: %v", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) memberID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.MemberID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
	return id, ok
}

// Register handles member registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mobile           string `json:"mobile"`
		Email            string `json:"email"`
		Password         string `json:"password"`
		ContributionMode string `json:"contribution_mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, service.ErrValidation)
		return
	}
	member, err := h.svc.Register(r.Context(), req.Mobile, req.Email, req.Password, req.ContributionMode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, member)
}

// Login handles member authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mobile   string `json:"mobile"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, service.ErrValidation)
		return
	}
	token, err := h.svc.Login(r.Context(), req.Mobile, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// PreviewContribution answers what track a contribution would take today
func (h *Handler) PreviewContribution(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}
	preview, err := h.svc.ClassifyContribution(r.Context(), memberID, r.URL.Query().Get("track"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, preview)
}

// SubmitContribution handles a contribution request
func (h *Handler) SubmitContribution(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}
	var req service.ContributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, service.ErrValidation)
		return
	}
	result, err := h.svc.SubmitContribution(r.Context(), memberID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Pending != nil {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, result)
}

// VerifyPayment reconciles a settlement through an explicit verify call
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.memberID(w, r); !ok {
		return
	}
	rec, err := h.svc.ReconcileSettlement(r.Context(), r.URL.Query().Get("reference"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// PaymentWebhook reconciles a settlement delivered by the processor.
// Both delivery paths funnel into the same reconcile code path.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, service.ErrValidation)
		return
	}
	if h.verifier != nil && !h.verifier.ValidSignature(body, r.Header.Get("X-Paystack-Signature")) {
		h.log.Warnf("Webhook with invalid signature rejected")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil || event.Data.Reference == "" {
		h.writeError(w, service.ErrValidation)
		return
	}

	rec, err := h.svc.ReconcileSettlement(r.Context(), event.Data.Reference)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// Balances returns the authenticated member's balance snapshot
func (h *Handler) Balances(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}
	snapshot, err := h.svc.Balances(r.Context(), memberID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

// ExportData returns the member's data as XML for GDPR portability
func (h *Handler) ExportData(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.ExportMemberData(r.Context(), memberID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		h.log.Errorf("Failed to write export: %v", err)
	}
}

// EraseMember anonymizes the authenticated member
func (h *Handler) EraseMember(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}
	if err := h.svc.EraseMember(r.Context(), memberID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "erased"})
}

// ApplyInterest triggers an interest run; pool-account identity only
func (h *Handler) ApplyInterest(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}
	if memberID != h.adminID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	var req struct {
		RatePercent decimal.Decimal `json:"rate_percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, service.ErrValidation)
		return
	}
	result, err := h.svc.ApplyInterest(r.Context(), req.RatePercent)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
