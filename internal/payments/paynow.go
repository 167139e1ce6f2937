package payments

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kudzaim/zimcart/internal/domain"
)

// callbackFields is the order the gateway concatenates values in when
// computing the callback hash. The hash field itself is excluded.
var callbackFields = []string{"reference", "paynowreference", "amount", "status", "pollurl"}

// initiateFields is the concatenation order for outbound initiate requests.
var initiateFields = []string{"id", "reference", "amount", "additionalinfo", "returnurl", "resulturl", "status"}

// Client talks to a Paynow-style payment gateway. Initiate returns the URL
// the buyer is redirected to; callbacks are validated with the shared
// integration key before any state change.
type Client struct {
	integrationID  string
	integrationKey string
	initiateURL    string
	returnURL      string
	resultURL      string
	devMode        bool
	httpClient     *http.Client
}

type ClientConfig struct {
	IntegrationID  string
	IntegrationKey string
	InitiateURL    string
	ReturnURL      string
	ResultURL      string
	// DevMode skips the remote initiate call and returns a synthetic
	// success redirect, for local development without gateway credentials.
	DevMode bool
}

func NewClient(cfg ClientConfig, httpClient *http.Client) *Client {
	return &Client{
		integrationID:  cfg.IntegrationID,
		integrationKey: cfg.IntegrationKey,
		initiateURL:    cfg.InitiateURL,
		returnURL:      cfg.ReturnURL,
		resultURL:      cfg.ResultURL,
		devMode:        cfg.DevMode,
		httpClient:     httpClient,
	}
}

type InitiateResult struct {
	RedirectURL string `json:"redirect_url"`
	PollURL     string `json:"poll_url,omitempty"`
}

// Initiate registers a pending payment with the gateway and returns the
// browser redirect URL.
func (c *Client) Initiate(ctx context.Context, orderID string, amount decimal.Decimal) (*InitiateResult, error) {
	if c.devMode {
		return &InitiateResult{
			RedirectURL: c.returnURL + "?reference=" + url.QueryEscape(orderID) + "&status=paid",
		}, nil
	}

	form := url.Values{}
	form.Set("id", c.integrationID)
	form.Set("reference", orderID)
	form.Set("amount", amount.StringFixed(2))
	form.Set("additionalinfo", "zimcart order "+orderID)
	form.Set("returnurl", c.returnURL)
	form.Set("resulturl", c.resultURL)
	form.Set("status", "Message")
	form.Set("hash", c.hash(form, initiateFields))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.initiateURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create initiate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("initiate payment: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read initiate response: %w", err)
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse initiate response: %w", err)
	}

	if !strings.EqualFold(values.Get("status"), "ok") {
		return nil, fmt.Errorf("gateway rejected initiate: %s", values.Get("error"))
	}

	return &InitiateResult{
		RedirectURL: values.Get("browserurl"),
		PollURL:     values.Get("pollurl"),
	}, nil
}

// Callback is a validated webhook payload from the gateway.
type Callback struct {
	Reference       string
	PaynowReference string
	Amount          decimal.Decimal
	Status          string
}

// VerifyCallback recomputes the hash over the posted fields and compares it
// with the one the gateway sent. A mismatch means the payload cannot be
// trusted and must cause no state change.
func (c *Client) VerifyCallback(values url.Values) (*Callback, error) {
	provided := values.Get("hash")
	if provided == "" {
		return nil, domain.ErrInvalidWebhookSignature
	}

	expected := c.hash(values, callbackFields)
	if subtle.ConstantTimeCompare([]byte(strings.ToUpper(provided)), []byte(expected)) != 1 {
		return nil, domain.ErrInvalidWebhookSignature
	}

	amount, err := decimal.NewFromString(values.Get("amount"))
	if err != nil {
		return nil, fmt.Errorf("parse callback amount: %w", err)
	}

	return &Callback{
		Reference:       values.Get("reference"),
		PaynowReference: values.Get("paynowreference"),
		Amount:          amount,
		Status:          values.Get("status"),
	}, nil
}

// SignCallback produces a valid hash for the given callback values. Exposed
// for the dev-mode flow and tests; production callbacks arrive pre-signed.
func (c *Client) SignCallback(values url.Values) string {
	return c.hash(values, callbackFields)
}

// hash is the gateway's signature scheme: SHA-512 over the field values
// concatenated in a fixed order with the integration key appended, hex
// encoded, uppercase.
func (c *Client) hash(values url.Values, fields []string) string {
	var b strings.Builder
	for _, field := range fields {
		b.WriteString(values.Get(field))
	}
	b.WriteString(c.integrationKey)

	sum := sha512.Sum512([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// paidStatuses are the gateway statuses that settle an order, compared
// case-insensitively. The gateway is not consistent about casing.
var paidStatuses = map[string]bool{
	"paid":              true,
	"awaiting delivery": true,
	"delivered":         true,
}

func (cb *Callback) Paid() bool {
	return paidStatuses[strings.ToLower(strings.TrimSpace(cb.Status))]
}

func (cb *Callback) Cancelled() bool {
	return strings.EqualFold(strings.TrimSpace(cb.Status), "cancelled")
}
