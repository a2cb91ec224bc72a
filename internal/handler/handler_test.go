package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mdbxhq/mdbx-backend/internal/config"
	"github.com/mdbxhq/mdbx-backend/internal/ledger"
	"github.com/mdbxhq/mdbx-backend/internal/middleware"
	"github.com/mdbxhq/mdbx-backend/internal/models"
	"github.com/mdbxhq/mdbx-backend/internal/repository"
	"github.com/mdbxhq/mdbx-backend/internal/service"
)

const adminID = int64(99)

type fakeStore struct {
	members map[int64]*models.Member
	nextID  int64
}

func (s *fakeStore) CreateMember(ctx context.Context, m *models.Member) error {
	s.nextID++
	m.ID = s.nextID
	s.members[m.ID] = m
	return nil
}

func (s *fakeStore) FindMemberByMobile(ctx context.Context, mobile string) (*models.Member, error) {
	for _, m := range s.members {
		if m.Mobile == mobile {
			return m, nil
		}
	}
	return nil, repository.ErrMemberNotFound
}

func (s *fakeStore) FindMemberByID(ctx context.Context, id int64) (*models.Member, error) {
	if m, ok := s.members[id]; ok {
		return m, nil
	}
	return nil, repository.ErrMemberNotFound
}

func (s *fakeStore) AnonymizeMember(ctx context.Context, id int64) error {
	if m, ok := s.members[id]; ok {
		m.Anonymized = true
		return nil
	}
	return repository.ErrMemberNotFound
}

func (s *fakeStore) ContributionsByMember(ctx context.Context, memberID int64) ([]models.Contribution, error) {
	return nil, nil
}

func (s *fakeStore) AppendAudit(ctx context.Context, e *models.AuditEntry) error { return nil }

type fakeGateway struct {
	status *models.PaymentStatus
}

func (g *fakeGateway) Initialize(ctx context.Context, amount decimal.Decimal, metadata models.PaymentMetadata) (*models.PaymentSession, error) {
	return &models.PaymentSession{Reference: "ref-h", AuthorizationURL: "https://pay.example/ref-h"}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (*models.PaymentStatus, error) {
	return g.status, nil
}

// newTestRouter stands up the real routing/auth stack over a memory
// ledger with one registered member, and returns a valid bearer token.
func newTestRouter(t *testing.T, gateway service.PaymentGateway, wallet string) (*mux.Router, string) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := &config.Config{JWTSecret: "test-secret", AdminAccountID: adminID}

	store := &fakeStore{members: make(map[int64]*models.Member)}
	led := ledger.NewMemory(adminID)
	svc := service.NewService(store, led, gateway, nil, cfg, log)

	member := &models.Member{
		Mobile:           "2348012345678",
		ContributionMode: "all_pooled",
		RegisteredAt:     time.Now().AddDate(0, -1, 0),
	}
	if err := store.CreateMember(context.Background(), member); err != nil {
		t.Fatal(err)
	}
	d, err := decimal.NewFromString(wallet)
	if err != nil {
		t.Fatal(err)
	}
	led.SeedMember(member.ID, d)

	h := NewHandler(svc, nil, adminID, log)
	r := mux.NewRouter()
	r.HandleFunc("/payments/webhook", h.PaymentWebhook).Methods("POST")
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/contributions/preview", h.PreviewContribution).Methods("GET")
	authRouter.HandleFunc("/contributions", h.SubmitContribution).Methods("POST")
	authRouter.HandleFunc("/me/balances", h.Balances).Methods("GET")

	return r, signToken(t, cfg.JWTSecret, member.ID)
}

// signToken mints a bearer token the way Login does.
func signToken(t *testing.T, secret string, memberID int64) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", memberID),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func do(r *mux.Router, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoutesRequireAuth(t *testing.T) {
	r, _ := newTestRouter(t, &fakeGateway{}, "100")
	if w := do(r, "GET", "/contributions/preview", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without token", w.Code)
	}
	if w := do(r, "GET", "/contributions/preview", "not-a-token", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 with garbage token", w.Code)
	}
}

func TestPreviewAndSubmit(t *testing.T) {
	r, token := newTestRouter(t, &fakeGateway{}, "500")

	w := do(r, "GET", "/contributions/preview", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("preview status = %d, body %s", w.Code, w.Body)
	}
	var preview struct {
		Track string `json:"track"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &preview); err != nil {
		t.Fatal(err)
	}
	if preview.Track != "POOLED" {
		t.Fatalf("preview track = %q, want POOLED for all_pooled member", preview.Track)
	}

	body := []byte(`{"amount":"200","funding_method":"wallet"}`)
	w = do(r, "POST", "/contributions", token, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, body %s", w.Code, w.Body)
	}

	w = do(r, "GET", "/me/balances", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("balances status = %d", w.Code)
	}
	var snapshot struct {
		WalletBalance decimal.Decimal `json:"wallet_balance"`
		ICABalance    decimal.Decimal `json:"ica_balance"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &snapshot); err != nil {
		t.Fatal(err)
	}
	if !snapshot.WalletBalance.Equal(decimal.NewFromInt(300)) || !snapshot.ICABalance.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("balances = %s/%s, want 300/200", snapshot.WalletBalance, snapshot.ICABalance)
	}
}

func TestSubmitErrorMapping(t *testing.T) {
	r, token := newTestRouter(t, &fakeGateway{}, "100")

	w := do(r, "POST", "/contributions", token, []byte(`{"amount":"-5","funding_method":"wallet"}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("validation status = %d, want 400", w.Code)
	}
	w = do(r, "POST", "/contributions", token, []byte(`{"amount":"1000","funding_method":"wallet"}`))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("insufficient-funds status = %d, want 422", w.Code)
	}
}

func TestWebhookReconciles(t *testing.T) {
	gateway := &fakeGateway{status: &models.PaymentStatus{
		Settled:  true,
		Amount:   decimal.NewFromInt(150),
		Metadata: models.PaymentMetadata{MemberID: 1, Track: "POOLED"},
	}}
	r, _ := newTestRouter(t, gateway, "0")

	body := []byte(`{"event":"charge.success","data":{"reference":"ref-wh"}}`)
	w := do(r, "POST", "/payments/webhook", "", body)
	if w.Code != http.StatusOK {
		t.Fatalf("webhook status = %d, body %s", w.Code, w.Body)
	}
	// Redelivery is a success no-op.
	w = do(r, "POST", "/payments/webhook", "", body)
	if w.Code != http.StatusOK {
		t.Fatalf("webhook redelivery status = %d", w.Code)
	}

	w = do(r, "POST", "/payments/webhook", "", []byte(`{"event":"charge.success","data":{}}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("webhook without reference status = %d, want 400", w.Code)
	}
}
