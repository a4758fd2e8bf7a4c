package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/keetontrades/membergate/app/models"
	"github.com/keetontrades/membergate/internal/pkg/env"
)

const defaultWhopAPIBaseURL = "https://api.whop.com/v1"

// WhopClient talks to the membership-marketplace platform. It is a stateless
// request/response wrapper: authentication, endpoint shapes and error mapping
// live here, retry policy does not.
type WhopClient struct {
	APIKey     string
	CompanyID  string
	APIBaseURL string

	HTTPClient *http.Client
}

type WhopCheckoutOptions struct {
	SuccessURL string
	CancelURL  string
}

type WhopCheckoutSession struct {
	CheckoutURL string `json:"checkout_url"`
}

type WhopProduct struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type WhopSubscription struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Status    string `json:"status"`
}

func NewWhopClientFromEnv() *WhopClient {
	return &WhopClient{
		APIKey:     strings.TrimSpace(env.GetEnv("WHOP_API_KEY", "whop_YOUR_API_KEY_HERE")),
		CompanyID:  strings.TrimSpace(env.GetEnv("WHOP_COMPANY_ID", "comp_YOUR_COMPANY_ID_HERE")),
		APIBaseURL: strings.TrimRight(env.GetEnv("WHOP_API_BASE_URL", defaultWhopAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// IsConfigured reports whether the client holds a real API key. Unconfigured
// clients fail fast with ErrNotConfigured instead of leaking the placeholder
// over the wire.
func (c *WhopClient) IsConfigured() bool {
	return IsConfiguredCredential(c.APIKey)
}

// CreateCheckout opens a hosted checkout for the given product and returns
// the redirect target. The purchase completes out-of-band and is reconciled
// later via a subscription event.
func (c *WhopClient) CreateCheckout(ctx context.Context, productID string, opts WhopCheckoutOptions) (*WhopCheckoutSession, error) {
	payload := map[string]string{
		"product_id":  strings.TrimSpace(productID),
		"company_id":  c.CompanyID,
		"success_url": opts.SuccessURL,
		"cancel_url":  opts.CancelURL,
	}
	var out WhopCheckoutSession
	if err := c.request(ctx, http.MethodPost, "/checkout", payload, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.CheckoutURL) == "" {
		return nil, &ProviderError{
			Provider: models.ProviderWhop,
			Kind:     ProviderErrFailure,
			Err:      errors.New("checkout response missing checkout_url"),
		}
	}
	return &out, nil
}

// GetProducts lists the company's products.
func (c *WhopClient) GetProducts(ctx context.Context) ([]WhopProduct, error) {
	var out []WhopProduct
	if err := c.request(ctx, http.MethodGet, "/products", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateAccess asks the platform whether the user currently holds the
// product.
func (c *WhopClient) ValidateAccess(ctx context.Context, userID, productID string) (bool, error) {
	path := fmt.Sprintf("/users/%s/access/%s", url.PathEscape(userID), url.PathEscape(productID))
	var out struct {
		HasAccess bool `json:"has_access"`
	}
	if err := c.request(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.HasAccess, nil
}

// GetUserSubscriptions lists the user's subscriptions on the platform.
func (c *WhopClient) GetUserSubscriptions(ctx context.Context, userID string) ([]WhopSubscription, error) {
	path := fmt.Sprintf("/users/%s/subscriptions", url.PathEscape(userID))
	var out []WhopSubscription
	if err := c.request(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WhopClient) request(ctx context.Context, method, path string, payload, out interface{}) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &ProviderError{Provider: models.ProviderWhop, Kind: ProviderErrUnreachable, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{
			Provider:   models.ProviderWhop,
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProviderError{Provider: models.ProviderWhop, Kind: ProviderErrFailure, Err: err}
	}
	return nil
}

func classifyStatus(status int) ProviderErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ProviderErrUnauthorized
	case status == http.StatusTooManyRequests:
		return ProviderErrRateLimited
	case status == http.StatusNotFound:
		return ProviderErrNotFound
	default:
		return ProviderErrFailure
	}
}
