package listing

import (
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Icon        *string   `json:"icon"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// CategoryRef is the category data embedded in a listing.
type CategoryRef struct {
	Name string  `json:"name"`
	Icon *string `json:"icon"`
}

// Provider is the public profile data embedded in a listing or review.
type Provider struct {
	ID        string  `json:"id"`
	FullName  string  `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
	Phone     *string `json:"phone,omitempty"`
}

// Listing is one service offered by a provider. AverageRating and ReviewCount
// are computed from the listing's ratings on every read.
type Listing struct {
	ID           string       `json:"id"`
	ProviderID   string       `json:"provider_id"`
	CategoryID   *string      `json:"category_id"`
	BusinessName string       `json:"business_name"`
	Description  *string      `json:"description"`
	Phone        string       `json:"phone"`
	Email        *string      `json:"email"`
	Address      string       `json:"address"`
	Images       []string     `json:"images"`
	Latitude     *float64     `json:"latitude"`
	Longitude    *float64     `json:"longitude"`
	IsVerified   bool         `json:"is_verified"`
	IsApproved   bool         `json:"is_approved"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Category     *CategoryRef `json:"category"`
	Provider     *Provider    `json:"provider,omitempty"`

	AverageRating float64  `json:"average_rating"`
	ReviewCount   int      `json:"review_count"`
	Reviews       []Review `json:"reviews,omitempty"`

	// Ratings is loaded by the store and folded into the summary fields.
	Ratings []int `json:"-"`
}

type Review struct {
	ID         string    `json:"id"`
	ListingID  string    `json:"service_id"`
	ReviewerID string    `json:"reviewer_id"`
	Rating     int       `json:"rating"`
	Comment    *string   `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
	Reviewer   *Provider `json:"reviewer,omitempty"`
}

type CategoryCount struct {
	CategoryID string `json:"category_id"`
	Count      int    `json:"count"`
}

// Filter selects a page of listings.
type Filter struct {
	CategoryID   string
	Search       string
	Page         int
	Limit        int
	OnlyApproved bool
}

// Normalize applies defaults and bounds.
func (f Filter) Normalize() Filter {
	f.Search = strings.TrimSpace(f.Search)
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	return f
}

func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// CacheParam is the canonical encoding of a normalized filter.
func (f Filter) CacheParam() string {
	return strings.Join([]string{
		f.CategoryID,
		f.Search,
		strconv.Itoa(f.Page),
		strconv.Itoa(f.Limit),
		strconv.FormatBool(f.OnlyApproved),
	}, "|")
}

type Page struct {
	Data        []Listing `json:"data"`
	Count       int       `json:"count"`
	TotalPages  int       `json:"total_pages"`
	CurrentPage int       `json:"current_page"`
}

type CreateRequest struct {
	CategoryID   *string  `json:"category_id"`
	BusinessName string   `json:"business_name"`
	Description  *string  `json:"description"`
	Phone        string   `json:"phone"`
	Email        *string  `json:"email"`
	Address      string   `json:"address"`
	Images       []string `json:"images"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

// UpdateRequest changes only the fields that are set.
type UpdateRequest struct {
	CategoryID   *string   `json:"category_id"`
	BusinessName *string   `json:"business_name"`
	Description  *string   `json:"description"`
	Phone        *string   `json:"phone"`
	Email        *string   `json:"email"`
	Address      *string   `json:"address"`
	Images       *[]string `json:"images"`
	Latitude     *float64  `json:"latitude"`
	Longitude    *float64  `json:"longitude"`
}

type ReviewRequest struct {
	Rating  int     `json:"rating"`
	Comment *string `json:"comment"`
}

type CategoryRequest struct {
	Name        string  `json:"name"`
	Icon        *string `json:"icon"`
	Description *string `json:"description"`
}
