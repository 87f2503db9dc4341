// Package momo talks to the MoMo payment gateway: it creates payment sessions
// and verifies the signed IPN callbacks.
package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type CreatePaymentRequest struct {
	OrderID   string
	Amount    int64
	OrderInfo string
	ExtraData string
}

type CreatePaymentResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
	ResultCode   int    `json:"resultCode"`
	PayURL       string `json:"payUrl"`
	Deeplink     string `json:"deeplink,omitempty"`
	QRCodeURL    string `json:"qrCodeUrl,omitempty"`
}

type createPaymentBody struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

// Gateway creates payment sessions. Checkout and top-up depend on this interface.
type Gateway interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (CreatePaymentResponse, error)
}

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	cfg  Config
	http HTTPDoer
}

var _ Gateway = (*Client)(nil)

func NewClient(cfg Config, doer HTTPDoer) *Client {
	if cfg.RequestType == "" {
		cfg.RequestType = "captureWallet"
	}
	if doer == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		doer = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, http: doer}
}

func (c *Client) Config() Config { return c.cfg }

func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (CreatePaymentResponse, error) {
	if c.cfg.Endpoint == "" || c.cfg.SecretKey == "" {
		return CreatePaymentResponse{}, ErrNotConfigured
	}
	requestID := uuid.NewString()
	body := createPaymentBody{
		PartnerCode: c.cfg.PartnerCode,
		AccessKey:   c.cfg.AccessKey,
		RequestID:   requestID,
		Amount:      req.Amount,
		OrderID:     req.OrderID,
		OrderInfo:   req.OrderInfo,
		RedirectURL: c.cfg.RedirectURL,
		IPNURL:      c.cfg.IPNURL,
		ExtraData:   req.ExtraData,
		RequestType: c.cfg.RequestType,
		Lang:        "vi",
		Signature:   Sign(c.cfg.SecretKey, createRaw(c.cfg, req, requestID)),
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return CreatePaymentResponse{}, fmt.Errorf("encoding error: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, &buf)
	if err != nil {
		return CreatePaymentResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return CreatePaymentResponse{}, ErrTimeout
		}
		return CreatePaymentResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CreatePaymentResponse{}, mapStatusToError(resp.StatusCode)
	}
	var out CreatePaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CreatePaymentResponse{}, fmt.Errorf("decoding error: %w", err)
	}
	if out.ResultCode != 0 || out.PayURL == "" {
		return out, fmt.Errorf("%w: %d %s", ErrRejected, out.ResultCode, out.Message)
	}
	return out, nil
}
