package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/eventloom/ticketpay/internal/domain"
	"github.com/eventloom/ticketpay/internal/observability"
)

// Client talks the Khalti e-payment protocol. It holds no business state;
// every call maps 1:1 onto one gateway request.
type Client struct {
	cfg    Config
	http   *http.Client
	logger observability.Logger
}

type Config struct {
	BaseURL    string
	SecretKey  string
	ReturnURL  string
	WebsiteURL string
	Timeout    time.Duration
}

func NewClient(cfg Config, logger observability.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type InitiateRequest struct {
	AmountPaisa       int64
	PurchaseOrderID   string
	PurchaseOrderName string
	Customer          *CustomerInfo
}

type Session struct {
	Pidx       string
	PaymentURL string
	ExpiresAt  time.Time
}

type Status string

const (
	StatusCompleted Status = "Completed"
	StatusPending   Status = "Pending"
	StatusInitiated Status = "Initiated"
	StatusRefunded  Status = "Refunded"
	StatusExpired   Status = "Expired"
	StatusCanceled  Status = "User canceled"
)

// Terminal reports whether the session can no longer complete.
func (s Status) Terminal() bool {
	switch s {
	case StatusRefunded, StatusExpired, StatusCanceled:
		return true
	}
	return false
}

// Verification is the gateway's authoritative view of one payment session.
// TotalAmount is the verified charge in paisa and overrides whatever the
// client originally asked to pay.
type Verification struct {
	Pidx            string `json:"pidx"`
	Status          Status `json:"status"`
	TotalAmount     int64  `json:"total_amount"`
	TransactionID   string `json:"transaction_id"`
	Fee             int64  `json:"fee"`
	Refunded        bool   `json:"refunded"`
	PurchaseOrderID string `json:"purchase_order_id"`
}

type initiatePayload struct {
	ReturnURL         string        `json:"return_url"`
	WebsiteURL        string        `json:"website_url"`
	Amount            int64         `json:"amount"`
	PurchaseOrderID   string        `json:"purchase_order_id"`
	PurchaseOrderName string        `json:"purchase_order_name"`
	CustomerInfo      *CustomerInfo `json:"customer_info,omitempty"`
}

type initiateResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
	ExpiresAt  string `json:"expires_at"`
}

// Initiate opens a new payment session. Every call creates a distinct
// session; the checkout layer is responsible for not calling it twice for
// the same order while one is live.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (Session, error) {
	payload := initiatePayload{
		ReturnURL:         c.cfg.ReturnURL,
		WebsiteURL:        c.cfg.WebsiteURL,
		Amount:            req.AmountPaisa,
		PurchaseOrderID:   req.PurchaseOrderID,
		PurchaseOrderName: req.PurchaseOrderName,
		CustomerInfo:      req.Customer,
	}

	var resp initiateResponse
	if err := c.post(ctx, "/epayment/initiate/", payload, &resp); err != nil {
		observability.GatewayRequests.WithLabelValues("initiate", "error").Inc()
		return Session{}, err
	}
	observability.GatewayRequests.WithLabelValues("initiate", "ok").Inc()

	expiresAt, err := time.Parse(time.RFC3339Nano, resp.ExpiresAt)
	if err != nil {
		// Non-fatal, the session is still usable without a local expiry.
		expiresAt = time.Time{}
	}
	return Session{Pidx: resp.Pidx, PaymentURL: resp.PaymentURL, ExpiresAt: expiresAt}, nil
}

// Lookup fetches the terminal status of a session. Transient failures come
// back as ErrGatewayUnavailable and are safe to retry from a poll or sweep.
func (c *Client) Lookup(ctx context.Context, pidx string) (Verification, error) {
	var v Verification
	if err := c.post(ctx, "/epayment/lookup/", map[string]string{"pidx": pidx}, &v); err != nil {
		observability.GatewayRequests.WithLabelValues("lookup", "error").Inc()
		return Verification{}, err
	}
	observability.GatewayRequests.WithLabelValues("lookup", "ok").Inc()
	return v, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	if c.cfg.SecretKey == "" {
		return errors.Wrap(domain.ErrGatewayRejected, "gateway secret key not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Key "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithField("path", path).Error("gateway request failed", err)
		return errors.Wrap(domain.ErrGatewayUnavailable, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(domain.ErrGatewayUnavailable, err.Error())
	}

	switch {
	case resp.StatusCode >= 500:
		c.logger.WithField("path", path).WithField("status", resp.StatusCode).Error("gateway 5xx", string(raw))
		return errors.Wrapf(domain.ErrGatewayUnavailable, "gateway returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		c.logger.WithField("path", path).WithField("status", resp.StatusCode).Warn("gateway rejected request", string(raw))
		return errors.Wrapf(domain.ErrGatewayRejected, "gateway returned %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(domain.ErrGatewayUnavailable, "malformed gateway response")
	}
	return nil
}
