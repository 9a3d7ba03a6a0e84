package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/localeats/api/internal/domain"
	pfirestore "github.com/localeats/api/internal/platform/firestore"
	"github.com/localeats/api/internal/repositories"
)

const paymentCollection = "payments"

// PaymentRepository persists local payment shadows in Firestore, keyed by
// payment id. Provider lookups go through an indexed query on the provider
// payment id.
type PaymentRepository struct {
	base     *pfirestore.BaseRepository[paymentDocument]
	provider *pfirestore.Provider
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{
		base:     pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection, nil, nil),
		provider: provider,
	}, nil
}

// Create persists a new payment shadow.
func (r *PaymentRepository) Create(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	id := strings.TrimSpace(payment.ID)
	if id == "" {
		return domain.Payment{}, errors.New("payment repository: payment id is required")
	}
	result, err := r.base.Create(ctx, id, encodePayment(payment))
	if err != nil {
		return domain.Payment{}, err
	}
	saved := payment
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// FindByID loads the payment for the given id.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return domain.Payment{}, errors.New("payment repository: payment id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	return decodePayment(doc)
}

// FindByProviderID resolves the payment a provider notification refers to.
// The provider key is optional; the provider payment id alone is unique in
// practice but scoping avoids cross-provider id collisions.
func (r *PaymentRepository) FindByProviderID(ctx context.Context, provider string, providerPaymentID string) (domain.Payment, error) {
	providerID := strings.TrimSpace(providerPaymentID)
	if providerID == "" {
		return domain.Payment{}, errors.New("payment repository: provider payment id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("providerPaymentId", "==", providerID)
		if key := strings.TrimSpace(provider); key != "" {
			q = q.Where("provider", "==", key)
		}
		return q.Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, pfirestore.NotFound("payments.byProviderId", notFoundf("no payment for provider id %s", providerID))
	}
	return decodePayment(docs[0])
}

// Update replaces the payment. The expected timestamp must match the
// document's last commit time or the write fails with a conflict.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment, expectedUpdatedAt *time.Time) (domain.Payment, error) {
	id := strings.TrimSpace(payment.ID)
	if id == "" {
		return domain.Payment{}, errors.New("payment repository: payment id is required")
	}

	doc := encodePayment(payment)
	if expectedUpdatedAt == nil || expectedUpdatedAt.IsZero() {
		result, err := r.base.Set(ctx, id, doc)
		if err != nil {
			return domain.Payment{}, err
		}
		saved := payment
		saved.UpdatedAt = result.UpdateTime
		return saved, nil
	}

	updates := []firestore.Update{
		{Path: "status", Value: doc.Status},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
	result, err := r.base.Update(ctx, id, updates, firestore.LastUpdateTime(expectedUpdatedAt.UTC()))
	if err != nil {
		return domain.Payment{}, err
	}
	saved := payment
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// ListDueExpirations returns unsettled QR payments whose expiration window
// elapsed before the given instant.
func (r *PaymentRepository) ListDueExpirations(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error) {
	if limit <= 0 {
		limit = 50
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(domain.PaymentStatusAwaiting)).
			Where("method", "==", string(domain.PaymentMethodPix)).
			Where("expiresAt", "<=", before.UTC()).
			OrderBy("expiresAt", firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	payments := make([]domain.Payment, 0, len(docs))
	for _, doc := range docs {
		payment, err := decodePayment(doc)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, nil
}

func encodePayment(payment domain.Payment) paymentDocument {
	createdAt := payment.CreatedAt.UTC()
	updatedAt := payment.UpdatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	doc := paymentDocument{
		ID:                strings.TrimSpace(payment.ID),
		OrderCode:         strings.TrimSpace(payment.OrderCode),
		Provider:          strings.TrimSpace(payment.Provider),
		ProviderPaymentID: strings.TrimSpace(payment.ProviderPaymentID),
		Method:            string(payment.Method),
		TransactionAmount: payment.TransactionAmount.String(),
		Description:       payment.Description,
		Status:            string(payment.Status),
		PayerEmail:        strings.TrimSpace(payment.PayerEmail),
		QRCodeURL:         payment.QRCodeURL,
		QRCodeBase64:      payment.QRCodeBase64,
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}
	if payment.ExpiresAt != nil {
		expires := payment.ExpiresAt.UTC()
		doc.ExpiresAt = &expires
	}
	return doc
}

func decodePayment(doc pfirestore.Document[paymentDocument]) (domain.Payment, error) {
	amount, err := parseDecimal(doc.Data.TransactionAmount, "transaction amount")
	if err != nil {
		return domain.Payment{}, err
	}

	payment := domain.Payment{
		ID:                firstNonEmpty(doc.Data.ID, doc.ID),
		OrderCode:         doc.Data.OrderCode,
		Provider:          doc.Data.Provider,
		ProviderPaymentID: doc.Data.ProviderPaymentID,
		Method:            domain.PaymentMethod(doc.Data.Method),
		TransactionAmount: amount,
		Description:       doc.Data.Description,
		Status:            domain.PaymentStatus(doc.Data.Status),
		PayerEmail:        doc.Data.PayerEmail,
		QRCodeURL:         doc.Data.QRCodeURL,
		QRCodeBase64:      doc.Data.QRCodeBase64,
		ExpiresAt:         doc.Data.ExpiresAt,
		CreatedAt:         doc.Data.CreatedAt,
		UpdatedAt:         latestTime(doc.UpdateTime, doc.Data.UpdatedAt),
	}
	return payment, nil
}

type paymentDocument struct {
	ID                string     `firestore:"id"`
	OrderCode         string     `firestore:"orderCode"`
	Provider          string     `firestore:"provider,omitempty"`
	ProviderPaymentID string     `firestore:"providerPaymentId,omitempty"`
	Method            string     `firestore:"method"`
	TransactionAmount string     `firestore:"transactionAmount"`
	Description       string     `firestore:"description,omitempty"`
	Status            string     `firestore:"status"`
	PayerEmail        string     `firestore:"payerEmail,omitempty"`
	QRCodeURL         string     `firestore:"qrCodeUrl,omitempty"`
	QRCodeBase64      string     `firestore:"qrCodeBase64,omitempty"`
	ExpiresAt         *time.Time `firestore:"expiresAt,omitempty"`
	CreatedAt         time.Time  `firestore:"createdAt"`
	UpdatedAt         time.Time  `firestore:"updatedAt"`
}
