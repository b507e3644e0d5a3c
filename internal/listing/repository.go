package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-dalil/internal/apperror"
	"go-dalil/internal/realtime"
)

const (
	TableServices   = "services"
	TableReviews    = "reviews"
	TableCategories = "categories"
)

// PostgreSQL error codes the store translates.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresStore implements Store over PostgreSQL and announces every
// successful write on the change feed.
type PostgresStore struct {
	db     *pgxpool.Pool
	feed   realtime.Publisher
	logger *slog.Logger
}

func NewPostgresStore(db *pgxpool.Pool, feed realtime.Publisher) *PostgresStore {
	return &PostgresStore{db: db, feed: feed, logger: slog.Default()}
}

const listingSelect = `
	SELECT s.id, s.provider_id, s.category_id, s.business_name, s.description, s.phone, s.email,
		s.address, s.images, s.latitude, s.longitude, s.is_verified, s.is_approved,
		s.created_at, s.updated_at,
		c.name, c.icon,
		p.id, p.full_name, p.avatar_url, p.phone,
		COALESCE((SELECT array_agg(r.rating) FROM reviews r WHERE r.service_id = s.id), '{}')
	FROM services s
	JOIN profiles p ON p.id = s.provider_id
	LEFT JOIN categories c ON c.id = s.category_id`

func scanListing(row pgx.Row) (*Listing, error) {
	l := &Listing{Provider: &Provider{}}
	var categoryName, categoryIcon *string
	err := row.Scan(&l.ID, &l.ProviderID, &l.CategoryID, &l.BusinessName, &l.Description, &l.Phone, &l.Email,
		&l.Address, &l.Images, &l.Latitude, &l.Longitude, &l.IsVerified, &l.IsApproved,
		&l.CreatedAt, &l.UpdatedAt,
		&categoryName, &categoryIcon,
		&l.Provider.ID, &l.Provider.FullName, &l.Provider.AvatarURL, &l.Provider.Phone,
		&l.Ratings)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.ErrNotFound.WithMessage("listing not found")
		}
		return nil, err
	}
	if categoryName != nil {
		l.Category = &CategoryRef{Name: *categoryName, Icon: categoryIcon}
	}
	return l, nil
}

func collectListings(rows pgx.Rows) ([]Listing, error) {
	defer rows.Close()
	out := []Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// escapeLike quotes the LIKE metacharacters of a user search term.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *PostgresStore) Search(ctx context.Context, f Filter) ([]Listing, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.OnlyApproved {
		conds = append(conds, "s.is_approved")
	}
	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		conds = append(conds, fmt.Sprintf("s.category_id = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(s.business_name ILIKE $%d OR s.description ILIKE $%d OR s.address ILIKE $%d)", n, n, n))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM services s`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := listingSelect + where +
		fmt.Sprintf(" ORDER BY s.created_at DESC, s.id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := s.db.Query(ctx, query, append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	listings, err := collectListings(rows)
	if err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Listing, error) {
	return scanListing(s.db.QueryRow(ctx, listingSelect+` WHERE s.id = $1`, id))
}

func (s *PostgresStore) ByProvider(ctx context.Context, providerID string) ([]Listing, error) {
	rows, err := s.db.Query(ctx, listingSelect+` WHERE s.provider_id = $1 ORDER BY s.created_at DESC, s.id`, providerID)
	if err != nil {
		return nil, err
	}
	return collectListings(rows)
}

func (s *PostgresStore) All(ctx context.Context) ([]Listing, error) {
	rows, err := s.db.Query(ctx, listingSelect+` ORDER BY s.created_at DESC, s.id`)
	if err != nil {
		return nil, err
	}
	return collectListings(rows)
}

func (s *PostgresStore) Create(ctx context.Context, providerID string, req *CreateRequest) (*Listing, error) {
	query := `INSERT INTO services (provider_id, category_id, business_name, description, phone, email,
			address, images, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, '{}'::TEXT[]), $9, $10)
		RETURNING id`

	var id string
	err := s.db.QueryRow(ctx, query, providerID, req.CategoryID, req.BusinessName, req.Description, req.Phone,
		req.Email, req.Address, req.Images, req.Latitude, req.Longitude).Scan(&id)
	if err != nil {
		return nil, translate(err)
	}

	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, TableServices, realtime.EventInsert, listingRecord(l))
	return l, nil
}

func (s *PostgresStore) Update(ctx context.Context, id, providerID string, req *UpdateRequest) (*Listing, error) {
	query := `UPDATE services SET
			category_id = COALESCE($3, category_id),
			business_name = COALESCE($4, business_name),
			description = COALESCE($5, description),
			phone = COALESCE($6, phone),
			email = COALESCE($7, email),
			address = COALESCE($8, address),
			images = COALESCE($9, images),
			latitude = COALESCE($10, latitude),
			longitude = COALESCE($11, longitude),
			updated_at = now()
		WHERE id = $1 AND provider_id = $2
		RETURNING id`

	err := s.db.QueryRow(ctx, query, id, providerID, req.CategoryID, req.BusinessName, req.Description,
		req.Phone, req.Email, req.Address, req.Images, req.Latitude, req.Longitude).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.ErrNotFound.WithMessage("listing not found")
	}
	if err != nil {
		return nil, translate(err)
	}

	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, TableServices, realtime.EventUpdate, listingRecord(l))
	return l, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id, providerID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM services WHERE id = $1 AND provider_id = $2`, id, providerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrNotFound.WithMessage("listing not found")
	}
	s.publish(ctx, TableServices, realtime.EventDelete, map[string]any{"id": id, "provider_id": providerID})
	return nil
}

func (s *PostgresStore) SetApproval(ctx context.Context, id string, approved bool) (*Listing, error) {
	tag, err := s.db.Exec(ctx, `UPDATE services SET is_approved = $2, updated_at = now() WHERE id = $1`, id, approved)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, apperror.ErrNotFound.WithMessage("listing not found")
	}

	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, TableServices, realtime.EventUpdate, listingRecord(l))
	return l, nil
}

func (s *PostgresStore) Reviews(ctx context.Context, listingID string) ([]Review, error) {
	query := `
		SELECT r.id, r.service_id, r.reviewer_id, r.rating, r.comment, r.created_at,
			p.id, p.full_name, p.avatar_url
		FROM reviews r
		JOIN profiles p ON p.id = r.reviewer_id
		WHERE r.service_id = $1
		ORDER BY r.created_at DESC, r.id`

	rows, err := s.db.Query(ctx, query, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := []Review{}
	for rows.Next() {
		rv := Review{Reviewer: &Provider{}}
		if err := rows.Scan(&rv.ID, &rv.ListingID, &rv.ReviewerID, &rv.Rating, &rv.Comment, &rv.CreatedAt,
			&rv.Reviewer.ID, &rv.Reviewer.FullName, &rv.Reviewer.AvatarURL); err != nil {
			return nil, err
		}
		reviews = append(reviews, rv)
	}
	return reviews, rows.Err()
}

func (s *PostgresStore) AddReview(ctx context.Context, listingID, reviewerID string, req *ReviewRequest) (*Review, error) {
	query := `INSERT INTO reviews (service_id, reviewer_id, rating, comment)
		VALUES ($1, $2, $3, $4)
		RETURNING id, service_id, reviewer_id, rating, comment, created_at`

	rv := &Review{}
	err := s.db.QueryRow(ctx, query, listingID, reviewerID, req.Rating, req.Comment).
		Scan(&rv.ID, &rv.ListingID, &rv.ReviewerID, &rv.Rating, &rv.Comment, &rv.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, apperror.ErrNotFound.WithMessage("listing not found")
		}
		return nil, err
	}

	s.publish(ctx, TableReviews, realtime.EventInsert, map[string]any{
		"id":         rv.ID,
		"service_id": rv.ListingID,
		"rating":     rv.Rating,
	})
	return rv, nil
}

const categoryColumns = `id, name, icon, description, created_at`

func scanCategory(row pgx.Row) (*Category, error) {
	c := &Category{}
	if err := row.Scan(&c.ID, &c.Name, &c.Icon, &c.Description, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.ErrNotFound.WithMessage("category not found")
		}
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) Categories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Category(ctx context.Context, id string) (*Category, error) {
	return scanCategory(s.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
}

func (s *PostgresStore) CreateCategory(ctx context.Context, req *CategoryRequest) (*Category, error) {
	query := `INSERT INTO categories (name, icon, description) VALUES ($1, $2, $3) RETURNING ` + categoryColumns
	c, err := scanCategory(s.db.QueryRow(ctx, query, req.Name, req.Icon, req.Description))
	if err != nil {
		return nil, translate(err)
	}
	s.publish(ctx, TableCategories, realtime.EventInsert, map[string]any{"id": c.ID, "name": c.Name})
	return c, nil
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, id string, req *CategoryRequest) (*Category, error) {
	query := `UPDATE categories SET
			name = $2,
			icon = COALESCE($3, icon),
			description = COALESCE($4, description)
		WHERE id = $1
		RETURNING ` + categoryColumns
	c, err := scanCategory(s.db.QueryRow(ctx, query, id, req.Name, req.Icon, req.Description))
	if err != nil {
		return nil, translate(err)
	}
	s.publish(ctx, TableCategories, realtime.EventUpdate, map[string]any{"id": c.ID, "name": c.Name})
	return c, nil
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrNotFound.WithMessage("category not found")
	}
	s.publish(ctx, TableCategories, realtime.EventDelete, map[string]any{"id": id})
	return nil
}

func (s *PostgresStore) CategoryCounts(ctx context.Context) ([]CategoryCount, error) {
	query := `SELECT category_id, count(*) FROM services
		WHERE is_approved AND category_id IS NOT NULL
		GROUP BY category_id
		ORDER BY category_id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CategoryCount{}
	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.CategoryID, &cc.Count); err != nil {
			return nil, err
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// translate maps constraint violations caused by caller input onto
// InvalidParams; other errors are returned as they are.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return apperror.ErrInvalidParams.WithMessage("already exists").Wrap(err)
	case pgForeignKeyViolation:
		return apperror.ErrInvalidParams.WithMessage("referenced row does not exist").Wrap(err)
	}
	return err
}

func (s *PostgresStore) publish(ctx context.Context, table string, typ realtime.EventType, record map[string]any) {
	if s.feed == nil {
		return
	}
	c := realtime.Change{Table: table, Type: typ, Record: record, CommitAt: time.Now()}
	if err := s.feed.Publish(ctx, c); err != nil {
		s.logger.Warn("Failed to publish change", "table", table, "type", typ, "error", err)
	}
}

func listingRecord(l *Listing) map[string]any {
	return map[string]any{
		"id":          l.ID,
		"provider_id": l.ProviderID,
		"category_id": l.CategoryID,
		"is_approved": l.IsApproved,
	}
}
