package billing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/keetontrades/membergate/app/models"
	"github.com/keetontrades/membergate/internal/pkg/env"
)

// StripeClient wraps the card-payment processor. Card data never passes
// through this process: CreatePaymentMethod only ever sees the opaque token
// produced by the processor's client-side tokenization.
type StripeClient struct {
	secretKey string
	api       *client.API
}

type ProcessorSubscription struct {
	ID     string
	Status string
}

func NewStripeClientFromEnv() *StripeClient {
	return NewStripeClient(env.GetEnv("STRIPE_SECRET_KEY", "sk_test_YOUR_STRIPE_SECRET_KEY_HERE"))
}

func NewStripeClient(secretKey string) *StripeClient {
	c := &StripeClient{secretKey: strings.TrimSpace(secretKey)}
	if c.IsConfigured() {
		c.api = &client.API{}
		c.api.Init(c.secretKey, nil)
	}
	return c
}

// IsConfigured reports whether the client holds a real secret key.
func (c *StripeClient) IsConfigured() bool {
	return IsConfiguredCredential(c.secretKey)
}

// CreatePaymentMethod turns a client-side card token into a reusable payment
// method reference.
func (c *StripeClient) CreatePaymentMethod(ctx context.Context, cardToken string) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(cardToken) == "" {
		return "", errors.New("card token is required")
	}

	params := &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{
			Token: stripe.String(strings.TrimSpace(cardToken)),
		},
	}
	params.Context = ctx

	pm, err := c.api.PaymentMethods.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return pm.ID, nil
}

// CreateSubscription charges the payment method for the given price. The
// idempotency key guards against duplicate charges on client retry.
func (c *StripeClient) CreateSubscription(ctx context.Context, userID, email, paymentMethodID, priceID, idempotencyKey string) (*ProcessorSubscription, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	customerID, err := c.ensureCustomer(ctx, userID, email, paymentMethodID)
	if err != nil {
		return nil, err
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		DefaultPaymentMethod: stripe.String(paymentMethodID),
	}
	params.Context = ctx
	if strings.TrimSpace(idempotencyKey) != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	sub, err := c.api.Subscriptions.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return &ProcessorSubscription{ID: sub.ID, Status: string(sub.Status)}, nil
}

// ensureCustomer creates a processor customer carrying the internal user id
// in metadata so webhook payloads can be mapped back.
func (c *StripeClient) ensureCustomer(ctx context.Context, userID, email, paymentMethodID string) (string, error) {
	params := &stripe.CustomerParams{
		Email:         stripe.String(strings.TrimSpace(email)),
		PaymentMethod: stripe.String(paymentMethodID),
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
		Metadata: map[string]string{"user_id": userID},
	}
	params.Context = ctx

	cust, err := c.api.Customers.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return cust.ID, nil
}

func mapStripeError(err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		kind := ProviderErrFailure
		switch {
		case sErr.HTTPStatusCode == http.StatusUnauthorized || sErr.HTTPStatusCode == http.StatusForbidden:
			kind = ProviderErrUnauthorized
		case sErr.HTTPStatusCode == http.StatusTooManyRequests:
			kind = ProviderErrRateLimited
		case sErr.HTTPStatusCode == http.StatusNotFound || sErr.Code == stripe.ErrorCodeResourceMissing:
			kind = ProviderErrNotFound
		}
		return &ProviderError{
			Provider:   models.ProviderStripe,
			Kind:       kind,
			StatusCode: sErr.HTTPStatusCode,
			Body:       sErr.Msg,
			Err:        err,
		}
	}
	return &ProviderError{Provider: models.ProviderStripe, Kind: ProviderErrUnreachable, Err: err}
}

// ProviderCallTimeout returns the per-call deadline for provider requests.
func ProviderCallTimeout() time.Duration {
	secs := env.GetEnv("PROVIDER_TIMEOUT_SECONDS", "5")
	d, err := time.ParseDuration(secs + "s")
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}
