package listing

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"go-dalil/internal/apperror"
	"go-dalil/internal/query"
)

// listingKinds are the cached reads a listing or review write can change.
var listingKinds = []query.Kind{
	query.KindListings,
	query.KindListing,
	query.KindProviderListings,
	query.KindAdminListings,
	query.KindCategoryCounts,
}

type Service struct {
	store  Store
	cache  *query.Client
	logger *slog.Logger
}

func NewService(store Store, cache *query.Client) *Service {
	return &Service{store: store, cache: cache, logger: slog.Default()}
}

// List returns one page of listings, newest first.
func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	f = f.Normalize()
	return query.Fetch(ctx, s.cache, query.ListingsKey(f.CacheParam()), func(ctx context.Context) (*Page, error) {
		listings, total, err := s.store.Search(ctx, f)
		if err != nil {
			return nil, apperror.Remote(err)
		}
		for i := range listings {
			listings[i] = withSummary(listings[i])
		}
		return &Page{
			Data:        listings,
			Count:       total,
			TotalPages:  TotalPages(total, f.Limit),
			CurrentPage: f.Page,
		}, nil
	})
}

// Viewer is the caller a read is made for. The zero Viewer is anonymous.
type Viewer struct {
	Identity string
	Admin    bool
}

// CanSee reports whether v may read l. Listings awaiting or refused approval
// are visible only to their provider and to admins.
func (v Viewer) CanSee(l *Listing) bool {
	return l.IsApproved || v.Admin || (v.Identity != "" && v.Identity == l.ProviderID)
}

// Get returns a listing with its reviews, newest first. A listing v cannot
// see is reported as not found.
func (s *Service) Get(ctx context.Context, v Viewer, id string) (*Listing, error) {
	l, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !v.CanSee(l) {
		return nil, apperror.ErrNotFound.WithMessage("listing not found")
	}
	return l, nil
}

func (s *Service) get(ctx context.Context, id string) (*Listing, error) {
	return query.Fetch(ctx, s.cache, query.ListingKey(id), func(ctx context.Context) (*Listing, error) {
		var (
			l       *Listing
			reviews []Review
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			l, err = s.store.Get(gctx, id)
			return err
		})
		g.Go(func() (err error) {
			reviews, err = s.store.Reviews(gctx, id)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, apperror.Remote(err)
		}

		ratings := make([]int, len(reviews))
		for i, rv := range reviews {
			ratings[i] = rv.Rating
		}
		l.Ratings = ratings
		out := withSummary(*l)
		out.Reviews = reviews
		return &out, nil
	})
}

// ByProvider returns the listings of providerID that v can see.
func (s *Service) ByProvider(ctx context.Context, v Viewer, providerID string) ([]Listing, error) {
	if providerID == "" {
		return []Listing{}, nil
	}
	all, err := query.Fetch(ctx, s.cache, query.ProviderListingsKey(providerID), func(ctx context.Context) ([]Listing, error) {
		return s.fetchAll(ctx, func(ctx context.Context) ([]Listing, error) {
			return s.store.ByProvider(ctx, providerID)
		})
	})
	if err != nil {
		return nil, err
	}

	visible := make([]Listing, 0, len(all))
	for i := range all {
		if v.CanSee(&all[i]) {
			visible = append(visible, all[i])
		}
	}
	return visible, nil
}

// AdminList returns every listing regardless of approval.
func (s *Service) AdminList(ctx context.Context) ([]Listing, error) {
	return query.Fetch(ctx, s.cache, query.AdminListingsKey(), func(ctx context.Context) ([]Listing, error) {
		return s.fetchAll(ctx, s.store.All)
	})
}

func (s *Service) fetchAll(ctx context.Context, load func(context.Context) ([]Listing, error)) ([]Listing, error) {
	listings, err := load(ctx)
	if err != nil {
		return nil, apperror.Remote(err)
	}
	for i := range listings {
		listings[i] = withSummary(listings[i])
	}
	return listings, nil
}

// Create adds an unapproved listing owned by identity.
func (s *Service) Create(ctx context.Context, identity string, req *CreateRequest) (*Listing, error) {
	if identity == "" {
		return nil, apperror.ErrUnauthenticated
	}
	req.BusinessName = strings.TrimSpace(req.BusinessName)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Address = strings.TrimSpace(req.Address)
	switch {
	case req.BusinessName == "":
		return nil, apperror.ErrInvalidParams.WithMessage("business_name is required")
	case req.Phone == "":
		return nil, apperror.ErrInvalidParams.WithMessage("phone is required")
	case req.Address == "":
		return nil, apperror.ErrInvalidParams.WithMessage("address is required")
	}
	if err := validateCoordinates(req.Latitude, req.Longitude); err != nil {
		return nil, err
	}

	l, err := s.store.Create(ctx, identity, req)
	if err != nil {
		return nil, apperror.Remote(err)
	}
	s.logger.Info("Listing created", "listing_id", l.ID, "provider_id", identity)
	s.invalidateListings()
	out := withSummary(*l)
	return &out, nil
}

// Update changes a listing owned by identity.
func (s *Service) Update(ctx context.Context, identity, id string, req *UpdateRequest) (*Listing, error) {
	if identity == "" {
		return nil, apperror.ErrUnauthenticated
	}
	required := []struct {
		name  string
		value *string
	}{
		{"business_name", req.BusinessName},
		{"phone", req.Phone},
		{"address", req.Address},
	}
	for _, f := range required {
		if f.value == nil {
			continue
		}
		*f.value = strings.TrimSpace(*f.value)
		if *f.value == "" {
			return nil, apperror.ErrInvalidParams.WithMessage(f.name + " cannot be empty")
		}
	}
	if err := validateCoordinates(req.Latitude, req.Longitude); err != nil {
		return nil, err
	}

	l, err := s.store.Update(ctx, id, identity, req)
	if err != nil {
		return nil, apperror.Remote(err)
	}
	s.invalidateListings()
	out := withSummary(*l)
	return &out, nil
}

// Delete removes a listing owned by identity.
func (s *Service) Delete(ctx context.Context, identity, id string) error {
	if identity == "" {
		return apperror.ErrUnauthenticated
	}
	if err := s.store.Delete(ctx, id, identity); err != nil {
		return apperror.Remote(err)
	}
	s.logger.Info("Listing deleted", "listing_id", id, "provider_id", identity)
	s.invalidateListings()
	return nil
}

// SetApproval approves or rejects a listing. Callers must be moderators.
func (s *Service) SetApproval(ctx context.Context, id string, approved bool) (*Listing, error) {
	l, err := s.store.SetApproval(ctx, id, approved)
	if err != nil {
		return nil, apperror.Remote(err)
	}
	s.logger.Info("Listing moderated", "listing_id", id, "approved", approved)
	s.invalidateListings()
	out := withSummary(*l)
	return &out, nil
}

// AddReview rates a listing as identity. Providers cannot review their own listings.
func (s *Service) AddReview(ctx context.Context, identity, listingID string, req *ReviewRequest) (*Review, error) {
	if identity == "" {
		return nil, apperror.ErrUnauthenticated
	}
	if req.Rating < 1 || req.Rating > 5 {
		return nil, apperror.ErrInvalidParams.WithMessage("rating must be between 1 and 5")
	}
	if req.Comment != nil {
		c := strings.TrimSpace(*req.Comment)
		req.Comment = &c
		if c == "" {
			req.Comment = nil
		}
	}

	l, err := s.store.Get(ctx, listingID)
	if err != nil {
		return nil, apperror.Remote(err)
	}
	if l.ProviderID == identity {
		return nil, apperror.ErrForbidden.WithMessage("cannot review your own listing")
	}
	if !l.IsApproved {
		return nil, apperror.ErrNotFound.WithMessage("listing not found")
	}

	rv, err := s.store.AddReview(ctx, listingID, identity, req)
	if err != nil {
		return nil, apperror.Remote(err)
	}
	s.invalidateListings()
	return rv, nil
}

func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return query.Fetch(ctx, s.cache, query.CategoriesKey(), func(ctx context.Context) ([]Category, error) {
		categories, err := s.store.Categories(ctx)
		if err != nil {
			return nil, apperror.Remote(err)
		}
		return categories, nil
	})
}

func (s *Service) Category(ctx context.Context, id string) (*Category, error) {
	c, err := s.store.Category(ctx, id)
	if err != nil {
		return nil, apperror.Remote(err)
	}
	return c, nil
}

// CategoryCounts returns the number of approved listings per category.
func (s *Service) CategoryCounts(ctx context.Context) ([]CategoryCount, error) {
	return query.Fetch(ctx, s.cache, query.CategoryCountsKey(), func(ctx context.Context) ([]CategoryCount, error) {
		counts, err := s.store.CategoryCounts(ctx)
		if err != nil {
			return nil, apperror.Remote(err)
		}
		return counts, nil
	})
}

func (s *Service) CreateCategory(ctx context.Context, req *CategoryRequest) (*Category, error) {
	if err := normalizeCategory(req); err != nil {
		return nil, err
	}
	c, err := s.store.CreateCategory(ctx, req)
	if err != nil {
		return nil, apperror.Remote(err)
	}
	s.invalidateCategories()
	return c, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req *CategoryRequest) (*Category, error) {
	if err := normalizeCategory(req); err != nil {
		return nil, err
	}
	c, err := s.store.UpdateCategory(ctx, id, req)
	if err != nil {
		return nil, apperror.Remote(err)
	}
	s.invalidateCategories()
	return c, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return apperror.Remote(err)
	}
	s.invalidateCategories()
	return nil
}

func normalizeCategory(req *CategoryRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return apperror.ErrInvalidParams.WithMessage("category name is required")
	}
	return nil
}

func validateCoordinates(lat, lng *float64) error {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return apperror.ErrInvalidParams.WithMessage("latitude out of range")
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		return apperror.ErrInvalidParams.WithMessage("longitude out of range")
	}
	return nil
}

func (s *Service) invalidateListings() {
	s.cache.InvalidateKind(listingKinds...)
}

// Category changes reach listings through the joined category name.
func (s *Service) invalidateCategories() {
	s.cache.InvalidateKind(append([]query.Kind{query.KindCategories}, listingKinds...)...)
}
