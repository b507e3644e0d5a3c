package listing

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-dalil/internal/apperror"
)

var errStoreDown = errors.New("store unavailable")

type memStore struct {
	mu         sync.Mutex
	listings   map[string]*Listing
	reviews    map[string][]Review
	categories map[string]*Category
	clock      time.Time

	fail        error
	searchCalls int
	getCalls    int
}

func newMemStore() *memStore {
	return &memStore{
		listings:   make(map[string]*Listing),
		reviews:    make(map[string][]Review),
		categories: make(map[string]*Category),
		clock:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

// view returns a copy with ratings and category joined in.
func (m *memStore) view(l *Listing) Listing {
	out := *l
	out.Ratings = []int{}
	for _, rv := range m.reviews[l.ID] {
		out.Ratings = append(out.Ratings, rv.Rating)
	}
	if l.CategoryID != nil {
		if c, ok := m.categories[*l.CategoryID]; ok {
			out.Category = &CategoryRef{Name: c.Name, Icon: c.Icon}
		}
	}
	out.Provider = &Provider{ID: l.ProviderID}
	return out
}

func (m *memStore) sorted(keep func(*Listing) bool) []Listing {
	out := []Listing{}
	for _, l := range m.listings {
		if keep(l) {
			out = append(out, m.view(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memStore) Search(_ context.Context, f Filter) ([]Listing, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	if m.fail != nil {
		return nil, 0, m.fail
	}
	q := strings.ToLower(f.Search)
	all := m.sorted(func(l *Listing) bool {
		if f.OnlyApproved && !l.IsApproved {
			return false
		}
		if f.CategoryID != "" && (l.CategoryID == nil || *l.CategoryID != f.CategoryID) {
			return false
		}
		if q != "" {
			desc := ""
			if l.Description != nil {
				desc = *l.Description
			}
			hay := strings.ToLower(l.BusinessName + "\n" + desc + "\n" + l.Address)
			return strings.Contains(hay, q)
		}
		return true
	})
	total := len(all)
	start := min(f.Offset(), total)
	end := min(start+f.Limit, total)
	return all[start:end], total, nil
}

func (m *memStore) Get(_ context.Context, id string) (*Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.fail != nil {
		return nil, m.fail
	}
	l, ok := m.listings[id]
	if !ok {
		return nil, apperror.ErrNotFound.WithMessage("listing not found")
	}
	v := m.view(l)
	return &v, nil
}

func (m *memStore) ByProvider(_ context.Context, providerID string) ([]Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(l *Listing) bool { return l.ProviderID == providerID }), m.fail
}

func (m *memStore) All(context.Context) ([]Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(*Listing) bool { return true }), m.fail
}

func (m *memStore) Create(_ context.Context, providerID string, req *CreateRequest) (*Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	now := m.tick()
	images := req.Images
	if images == nil {
		images = []string{}
	}
	l := &Listing{
		ID:           uuid.NewString(),
		ProviderID:   providerID,
		CategoryID:   req.CategoryID,
		BusinessName: req.BusinessName,
		Description:  req.Description,
		Phone:        req.Phone,
		Email:        req.Email,
		Address:      req.Address,
		Images:       images,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.listings[l.ID] = l
	v := m.view(l)
	return &v, nil
}

func (m *memStore) Update(_ context.Context, id, providerID string, req *UpdateRequest) (*Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok || l.ProviderID != providerID {
		return nil, apperror.ErrNotFound.WithMessage("listing not found")
	}
	if req.BusinessName != nil {
		l.BusinessName = *req.BusinessName
	}
	if req.Description != nil {
		l.Description = req.Description
	}
	if req.Phone != nil {
		l.Phone = *req.Phone
	}
	if req.Address != nil {
		l.Address = *req.Address
	}
	if req.CategoryID != nil {
		l.CategoryID = req.CategoryID
	}
	if req.Images != nil {
		l.Images = *req.Images
	}
	l.UpdatedAt = m.tick()
	v := m.view(l)
	return &v, nil
}

func (m *memStore) Delete(_ context.Context, id, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok || l.ProviderID != providerID {
		return apperror.ErrNotFound.WithMessage("listing not found")
	}
	delete(m.listings, id)
	delete(m.reviews, id)
	return nil
}

func (m *memStore) SetApproval(_ context.Context, id string, approved bool) (*Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, apperror.ErrNotFound.WithMessage("listing not found")
	}
	l.IsApproved = approved
	v := m.view(l)
	return &v, nil
}

func (m *memStore) Reviews(_ context.Context, listingID string) ([]Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	out := []Review{}
	for i := len(m.reviews[listingID]) - 1; i >= 0; i-- {
		out = append(out, m.reviews[listingID][i])
	}
	return out, nil
}

func (m *memStore) AddReview(_ context.Context, listingID, reviewerID string, req *ReviewRequest) (*Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[listingID]; !ok {
		return nil, apperror.ErrNotFound.WithMessage("listing not found")
	}
	rv := Review{
		ID:         uuid.NewString(),
		ListingID:  listingID,
		ReviewerID: reviewerID,
		Rating:     req.Rating,
		Comment:    req.Comment,
		CreatedAt:  m.tick(),
		Reviewer:   &Provider{ID: reviewerID},
	}
	m.reviews[listingID] = append(m.reviews[listingID], rv)
	return &rv, nil
}

func (m *memStore) Categories(context.Context) ([]Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Category{}
	for _, c := range m.categories {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, m.fail
}

func (m *memStore) Category(_ context.Context, id string) (*Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, apperror.ErrNotFound.WithMessage("category not found")
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) CreateCategory(_ context.Context, req *CategoryRequest) (*Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.Name == req.Name {
			return nil, apperror.ErrInvalidParams.WithMessage("already exists")
		}
	}
	c := &Category{ID: uuid.NewString(), Name: req.Name, Icon: req.Icon, Description: req.Description, CreatedAt: m.tick()}
	m.categories[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *memStore) UpdateCategory(_ context.Context, id string, req *CategoryRequest) (*Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, apperror.ErrNotFound.WithMessage("category not found")
	}
	c.Name = req.Name
	if req.Icon != nil {
		c.Icon = req.Icon
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) DeleteCategory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[id]; !ok {
		return apperror.ErrNotFound.WithMessage("category not found")
	}
	delete(m.categories, id)
	for _, l := range m.listings {
		if l.CategoryID != nil && *l.CategoryID == id {
			l.CategoryID = nil
		}
	}
	return nil
}

func (m *memStore) CategoryCounts(context.Context) ([]CategoryCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, l := range m.listings {
		if l.IsApproved && l.CategoryID != nil {
			counts[*l.CategoryID]++
		}
	}
	out := []CategoryCount{}
	for id, n := range counts {
		out = append(out, CategoryCount{CategoryID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out, m.fail
}
