package listing

import "context"

// Store is the listing data store. Mutations scoped to a provider return
// apperror.ErrNotFound when the row does not exist or belongs to someone else.
type Store interface {
	Search(ctx context.Context, f Filter) ([]Listing, int, error)
	Get(ctx context.Context, id string) (*Listing, error)
	ByProvider(ctx context.Context, providerID string) ([]Listing, error)
	All(ctx context.Context) ([]Listing, error)
	Create(ctx context.Context, providerID string, req *CreateRequest) (*Listing, error)
	Update(ctx context.Context, id, providerID string, req *UpdateRequest) (*Listing, error)
	Delete(ctx context.Context, id, providerID string) error
	SetApproval(ctx context.Context, id string, approved bool) (*Listing, error)

	Reviews(ctx context.Context, listingID string) ([]Review, error)
	AddReview(ctx context.Context, listingID, reviewerID string, req *ReviewRequest) (*Review, error)

	Categories(ctx context.Context) ([]Category, error)
	Category(ctx context.Context, id string) (*Category, error)
	CreateCategory(ctx context.Context, req *CategoryRequest) (*Category, error)
	UpdateCategory(ctx context.Context, id string, req *CategoryRequest) (*Category, error)
	DeleteCategory(ctx context.Context, id string) error
	CategoryCounts(ctx context.Context) ([]CategoryCount, error)
}
