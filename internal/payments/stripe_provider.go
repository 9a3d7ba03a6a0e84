package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	// Intents overrides the PaymentIntents client, primarily for tests.
	Intents stripePaymentIntentAPI
}

// StripeProvider implements the Provider interface using Stripe Payment Intents.
// Card charges confirm synchronously; QR charges use the pix payment method
// and surface the scannable code from the intent's next action.
type StripeProvider struct {
	intents stripePaymentIntentAPI
	account string
	clock   func() time.Time
	logger  StripeLogger
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents: intents,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCharge creates and confirms a Payment Intent for the request.
func (p *StripeProvider) CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	if p == nil {
		return Charge{}, errors.New("stripe: provider is nil")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		Confirm:  stripe.Bool(true),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	switch req.Method {
	case MethodCard:
		if strings.TrimSpace(req.CardToken) == "" {
			return Charge{}, errors.New("stripe: card token is required")
		}
		params.PaymentMethod = stripe.String(req.CardToken)
		params.PaymentMethodTypes = stripe.StringSlice([]string{"card"})
	case MethodQR:
		params.PaymentMethodTypes = stripe.StringSlice([]string{"pix"})
		params.PaymentMethodData = &stripe.PaymentIntentPaymentMethodDataParams{
			Type: stripe.String("pix"),
		}
		if req.ExpiresIn > 0 {
			params.PaymentMethodOptions = &stripe.PaymentIntentPaymentMethodOptionsParams{
				Pix: &stripe.PaymentIntentPaymentMethodOptionsPixParams{
					ExpiresAfterSeconds: stripe.Int64(int64(req.ExpiresIn / time.Second)),
				},
			}
		}
		if email := strings.TrimSpace(req.PayerEmail); email != "" {
			params.ReceiptEmail = stripe.String(email)
		}
	default:
		return Charge{}, fmt.Errorf("stripe: unsupported charge method %q", req.Method)
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return Charge{}, fmt.Errorf("stripe: create charge: %w", err)
	}

	p.logger(ctx, "payments.stripe.charge.created", map[string]any{
		"paymentIntent": intent.ID,
		"status":        intent.Status,
		"method":        string(req.Method),
	})

	return p.stripeCharge(intent), nil
}

// LookupCharge retrieves the current state of a Payment Intent.
func (p *StripeProvider) LookupCharge(ctx context.Context, providerPaymentID string) (Charge, error) {
	if p == nil {
		return Charge{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.intents.Get(providerPaymentID, params)
	if err != nil {
		return Charge{}, fmt.Errorf("stripe: lookup charge: %w", err)
	}
	return p.stripeCharge(intent), nil
}

func (p *StripeProvider) stripeCharge(intent *stripe.PaymentIntent) Charge {
	if intent == nil {
		return Charge{}
	}

	status := StatusPending
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		status = StatusFailed
	}

	charge := Charge{
		Provider:          "stripe",
		ProviderPaymentID: intent.ID,
		Status:            status,
		Amount:            intent.Amount,
		Currency:          strings.ToUpper(string(intent.Currency)),
	}

	if next := intent.NextAction; next != nil && next.PixDisplayQRCode != nil {
		charge.QRCodeURL = next.PixDisplayQRCode.ImageURLPNG
		charge.QRCodeBase64 = next.PixDisplayQRCode.Data
		if next.PixDisplayQRCode.ExpiresAt != 0 {
			expires := time.Unix(next.PixDisplayQRCode.ExpiresAt, 0).UTC()
			charge.ExpiresAt = &expires
		}
	}

	raw := map[string]any{}
	if data, err := json.Marshal(intent); err == nil {
		_ = json.Unmarshal(data, &raw)
	} else {
		raw["payment_intent"] = intent
	}
	charge.Raw = raw
	return charge
}
