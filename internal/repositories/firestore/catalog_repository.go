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

const productCollection = "products"

// CatalogRepository reads the product catalog. This service never writes it;
// catalog administration lives elsewhere.
type CatalogRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository constructs a Firestore-backed catalog reader.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		base:     pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil),
		provider: provider,
	}, nil
}

// FindProductByCode resolves a product within a merchant's catalog.
func (r *CatalogRepository) FindProductByCode(ctx context.Context, merchantCode string, productCode string) (domain.Product, error) {
	merchant := strings.TrimSpace(merchantCode)
	code := strings.TrimSpace(productCode)
	if merchant == "" || code == "" {
		return domain.Product{}, errors.New("catalog repository: merchant and product codes are required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("merchantCode", "==", merchant).
			Where("code", "==", code).
			Limit(1)
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, pfirestore.NotFound("products.byCode", notFoundf("no product %s for merchant %s", code, merchant))
	}
	return decodeProduct(docs[0])
}

func decodeProduct(doc pfirestore.Document[productDocument]) (domain.Product, error) {
	price, err := parseDecimal(doc.Data.Price, "product price")
	if err != nil {
		return domain.Product{}, err
	}

	options := make([]domain.ProductOption, 0, len(doc.Data.Options))
	for _, opt := range doc.Data.Options {
		additional, err := parseDecimal(opt.AdditionalPrice, "product option price")
		if err != nil {
			return domain.Product{}, err
		}
		options = append(options, domain.ProductOption{
			Code:            opt.Code,
			Name:            opt.Name,
			AdditionalPrice: additional,
		})
	}
	if len(options) == 0 {
		options = nil
	}

	return domain.Product{
		Code:                   firstNonEmpty(doc.Data.Code, doc.ID),
		MerchantCode:           doc.Data.MerchantCode,
		Name:                   doc.Data.Name,
		Price:                  price,
		MinimumRequiredOptions: doc.Data.MinimumRequiredOptions,
		Options:                options,
		Stock:                  doc.Data.Stock,
	}, nil
}

type productDocument struct {
	Code                   string                  `firestore:"code"`
	MerchantCode           string                  `firestore:"merchantCode"`
	Name                   string                  `firestore:"name"`
	Price                  string                  `firestore:"price"`
	MinimumRequiredOptions int64                   `firestore:"minimumRequiredOptions"`
	Options                []productOptionDocument `firestore:"options,omitempty"`
	Stock                  int64                   `firestore:"stock"`
	UpdatedAt              time.Time               `firestore:"updatedAt,omitempty"`
}

type productOptionDocument struct {
	Code            string `firestore:"code"`
	Name            string `firestore:"name"`
	AdditionalPrice string `firestore:"additionalPrice"`
}
