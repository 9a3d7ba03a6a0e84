package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/localeats/api/internal/domain"
	pfirestore "github.com/localeats/api/internal/platform/firestore"
	"github.com/localeats/api/internal/platform/pagination"
	"github.com/localeats/api/internal/repositories"
)

const orderAuditCollection = "order_status_changes"

// OrderAuditRepository appends the immutable order status trail to Firestore.
type OrderAuditRepository struct {
	base     *pfirestore.BaseRepository[orderStatusChangeDocument]
	provider *pfirestore.Provider
}

var _ repositories.OrderAuditRepository = (*OrderAuditRepository)(nil)

// NewOrderAuditRepository constructs a Firestore-backed audit repository.
func NewOrderAuditRepository(provider *pfirestore.Provider) (*OrderAuditRepository, error) {
	if provider == nil {
		return nil, errors.New("order audit repository requires firestore provider")
	}
	return &OrderAuditRepository{
		base:     pfirestore.NewBaseRepository[orderStatusChangeDocument](provider, orderAuditCollection, nil, nil),
		provider: provider,
	}, nil
}

// Append records one status transition. Entries are never updated or deleted.
func (r *OrderAuditRepository) Append(ctx context.Context, change domain.OrderStatusChange) error {
	id := strings.TrimSpace(change.ID)
	if id == "" {
		return errors.New("order audit repository: change id is required")
	}
	createdAt := change.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.base.Create(ctx, id, orderStatusChangeDocument{
		ID:        id,
		OrderCode: strings.TrimSpace(change.OrderCode),
		From:      string(change.From),
		To:        string(change.To),
		Actor:     strings.TrimSpace(change.Actor),
		Reason:    strings.TrimSpace(change.Reason),
		CreatedAt: createdAt,
	})
	return err
}

// ListByOrder pages through the trail of one order, oldest first.
func (r *OrderAuditRepository) ListByOrder(ctx context.Context, orderCode string, pager domain.Pagination) (domain.CursorPage[domain.OrderStatusChange], error) {
	code := strings.TrimSpace(orderCode)
	if code == "" {
		return domain.CursorPage[domain.OrderStatusChange]{}, errors.New("order audit repository: order code is required")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	if pageSize > pagination.DefaultMaxPageSize {
		pageSize = pagination.DefaultMaxPageSize
	}

	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.OrderStatusChange]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("orderCode", "==", code).OrderBy("createdAt", firestore.Asc)
		if len(cursor.StartAfter) > 0 {
			q = q.StartAfter(reviveCursorValues(cursor.StartAfter)...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.OrderStatusChange]{}, err
	}

	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}

	changes := make([]domain.OrderStatusChange, 0, len(docs))
	for _, doc := range docs {
		changes = append(changes, domain.OrderStatusChange{
			ID:        firstNonEmpty(doc.Data.ID, doc.ID),
			OrderCode: doc.Data.OrderCode,
			From:      domain.OrderStatus(doc.Data.From),
			To:        domain.OrderStatus(doc.Data.To),
			Actor:     doc.Data.Actor,
			Reason:    doc.Data.Reason,
			CreatedAt: doc.Data.CreatedAt,
		})
	}

	page := domain.CursorPage[domain.OrderStatusChange]{Items: changes}
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt},
		})
		if err != nil {
			return domain.CursorPage[domain.OrderStatusChange]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

type orderStatusChangeDocument struct {
	ID        string    `firestore:"id"`
	OrderCode string    `firestore:"orderCode"`
	From      string    `firestore:"from"`
	To        string    `firestore:"to"`
	Actor     string    `firestore:"actor,omitempty"`
	Reason    string    `firestore:"reason,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}
