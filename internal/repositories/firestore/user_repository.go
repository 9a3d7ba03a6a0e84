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

const userCollection = "users"

// UserRepository persists customer identities in Firestore, keyed by user id.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		base:     pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil),
		provider: provider,
	}, nil
}

// Create persists a new user.
func (r *UserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	id := strings.TrimSpace(user.ID)
	if id == "" {
		return domain.User{}, errors.New("user repository: user id is required")
	}
	result, err := r.base.Create(ctx, id, encodeUser(user))
	if err != nil {
		return domain.User{}, err
	}
	saved := user
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// FindByID loads the user for the given id.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return domain.User{}, errors.New("user repository: user id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return decodeUser(doc), nil
}

// FindByPhone resolves the anonymous-checkout identity key.
func (r *UserRepository) FindByPhone(ctx context.Context, phone string) (domain.User, error) {
	number := strings.TrimSpace(phone)
	if number == "" {
		return domain.User{}, errors.New("user repository: phone is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("phone", "==", number).Limit(1)
	})
	if err != nil {
		return domain.User{}, err
	}
	if len(docs) == 0 {
		return domain.User{}, pfirestore.NotFound("users.byPhone", notFoundf("no user for phone %s", number))
	}
	return decodeUser(docs[0]), nil
}

// Update replaces the user document.
func (r *UserRepository) Update(ctx context.Context, user domain.User) (domain.User, error) {
	id := strings.TrimSpace(user.ID)
	if id == "" {
		return domain.User{}, errors.New("user repository: user id is required")
	}
	result, err := r.base.Set(ctx, id, encodeUser(user))
	if err != nil {
		return domain.User{}, err
	}
	saved := user
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

func encodeUser(user domain.User) userDocument {
	createdAt := user.CreatedAt.UTC()
	updatedAt := user.UpdatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	return userDocument{
		ID:        strings.TrimSpace(user.ID),
		Name:      strings.TrimSpace(user.Name),
		Email:     strings.TrimSpace(user.Email),
		Phone:     strings.TrimSpace(user.Phone),
		Anonymous: user.Anonymous,
		Address: addressDocument{
			Street:     user.Address.Street,
			Number:     user.Address.Number,
			District:   user.Address.District,
			City:       user.Address.City,
			State:      user.Address.State,
			PostalCode: user.Address.PostalCode,
			Complement: user.Address.Complement,
		},
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func decodeUser(doc pfirestore.Document[userDocument]) domain.User {
	return domain.User{
		ID:        firstNonEmpty(doc.Data.ID, doc.ID),
		Name:      doc.Data.Name,
		Email:     doc.Data.Email,
		Phone:     doc.Data.Phone,
		Anonymous: doc.Data.Anonymous,
		Address: domain.Address{
			Street:     doc.Data.Address.Street,
			Number:     doc.Data.Address.Number,
			District:   doc.Data.Address.District,
			City:       doc.Data.Address.City,
			State:      doc.Data.Address.State,
			PostalCode: doc.Data.Address.PostalCode,
			Complement: doc.Data.Address.Complement,
		},
		CreatedAt: doc.Data.CreatedAt,
		UpdatedAt: latestTime(doc.UpdateTime, doc.Data.UpdatedAt),
	}
}

type userDocument struct {
	ID        string          `firestore:"id"`
	Name      string          `firestore:"name,omitempty"`
	Email     string          `firestore:"email,omitempty"`
	Phone     string          `firestore:"phone,omitempty"`
	Anonymous bool            `firestore:"anonymous"`
	Address   addressDocument `firestore:"address,omitempty"`
	CreatedAt time.Time       `firestore:"createdAt"`
	UpdatedAt time.Time       `firestore:"updatedAt"`
}

type addressDocument struct {
	Street     string `firestore:"street,omitempty"`
	Number     string `firestore:"number,omitempty"`
	District   string `firestore:"district,omitempty"`
	City       string `firestore:"city,omitempty"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Complement string `firestore:"complement,omitempty"`
}
