package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mdbxhq/mdbx-backend/internal/config"
	"github.com/mdbxhq/mdbx-backend/internal/models"
)

var minorUnits = decimal.NewFromInt(100)

// Client talks to the payment processor's JSON API. Calls are bounded by
// the client timeout and never retried here; the caller decides what a
// failed initialization or verification means.
type Client struct {
	baseURL string
	secret  string
	client  *http.Client
	log     *logrus.Logger
}

// NewClient initializes a new payment processor client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.PaystackURL, "/"),
		secret:  cfg.PaystackSecret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

type initRequest struct {
	Amount    int64                  `json:"amount"`
	Reference string                 `json:"reference"`
	Metadata  models.PaymentMetadata `json:"metadata"`
}

type initResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status   string                 `json:"status"`
		Amount   int64                  `json:"amount"`
		Metadata models.PaymentMetadata `json:"metadata"`
	} `json:"data"`
}

// sendRequest performs one authenticated round trip and returns the body.
func (c *Client) sendRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %v", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}
	c.log.Debugf("Processor response for %s %s: %s", method, path, string(raw))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return raw, nil
}

// Initialize opens a payment session. The reference is generated here and
// the metadata rides along so the settlement callback can reconstruct the
// contribution without any local state.
func (c *Client) Initialize(ctx context.Context, amount decimal.Decimal, metadata models.PaymentMetadata) (*models.PaymentSession, error) {
	payload := initRequest{
		Amount:    amount.Mul(minorUnits).IntPart(),
		Reference: uuid.NewString(),
		Metadata:  metadata,
	}
	raw, err := c.sendRequest(ctx, http.MethodPost, "/transaction/initialize", payload)
	if err != nil {
		return nil, err
	}

	var parsed initResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}
	if !parsed.Status {
		return nil, fmt.Errorf("initialization rejected: %s", parsed.Message)
	}

	c.log.Infof("Payment session initialized: %s", parsed.Data.Reference)
	return &models.PaymentSession{
		Reference:        parsed.Data.Reference,
		AuthorizationURL: parsed.Data.AuthorizationURL,
	}, nil
}

// Verify asks the processor whether a reference has settled.
func (c *Client) Verify(ctx context.Context, reference string) (*models.PaymentStatus, error) {
	raw, err := c.sendRequest(ctx, http.MethodGet, "/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}

	var parsed verifyResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}
	if !parsed.Status {
		return nil, fmt.Errorf("verification rejected: %s", parsed.Message)
	}

	return &models.PaymentStatus{
		Settled:  parsed.Data.Status == "success",
		Amount:   decimal.NewFromInt(parsed.Data.Amount).Div(minorUnits),
		Metadata: parsed.Data.Metadata,
	}, nil
}

// ValidSignature checks the HMAC-SHA512 signature the processor sends on
// webhook deliveries.
func (c *Client) ValidSignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(c.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
