package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised charge states shared across providers.
type Status string

const (
	// StatusPending indicates the charge awaits payer action or provider confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the provider reports the charge as approved.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the provider declined the charge.
	StatusFailed Status = "failed"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// Method enumerates the charge kinds a provider must support.
type Method string

const (
	// MethodCard charges a tokenised card synchronously.
	MethodCard Method = "card"
	// MethodQR creates a scannable code the payer settles out of band.
	MethodQR Method = "qr"
)

// ChargeRequest captures the payload required to create a charge.
type ChargeRequest struct {
	Method Method
	// Amount is in the currency's minor units.
	Amount   int64
	Currency string
	// CardToken is the provider-issued card credential, card charges only.
	CardToken string
	// PayerEmail identifies the payer, required for QR charges.
	PayerEmail string
	// ExpiresIn bounds how long a QR charge stays scannable.
	ExpiresIn      time.Duration
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// Charge normalises provider-specific charge fields for storage.
type Charge struct {
	Provider          string
	ProviderPaymentID string
	Status            Status
	Amount            int64
	Currency          string
	// QRCodeURL and QRCodeBase64 are populated for QR charges only.
	QRCodeURL    string
	QRCodeBase64 string
	ExpiresAt    *time.Time
	Raw          map[string]any
}

// Provider defines the contract payment adapters implement.
type Provider interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)
	LookupCharge(ctx context.Context, providerPaymentID string) (Charge, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when no preference is given.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.TrimSpace(strings.ToLower(provider))
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{providers: copyMap}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolveProvider(preferred string) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if key := strings.TrimSpace(strings.ToLower(preferred)); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
	}
	if def := m.defaultProvider; def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateCharge delegates to the resolved provider.
func (m *Manager) CreateCharge(ctx context.Context, preferred string, req ChargeRequest) (Charge, error) {
	key, provider, err := m.resolveProvider(preferred)
	if err != nil {
		return Charge{}, err
	}
	charge, err := provider.CreateCharge(ctx, req)
	if err != nil {
		return Charge{}, err
	}
	charge.Provider = key
	return charge, nil
}

// LookupCharge delegates to the named provider.
func (m *Manager) LookupCharge(ctx context.Context, providerKey string, providerPaymentID string) (Charge, error) {
	key, provider, err := m.resolveProvider(providerKey)
	if err != nil {
		return Charge{}, err
	}
	charge, err := provider.LookupCharge(ctx, providerPaymentID)
	if err != nil {
		return Charge{}, err
	}
	charge.Provider = key
	return charge, nil
}
