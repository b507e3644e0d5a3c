package profile

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-dalil/internal/apperror"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const profileColumns = `id, user_id, full_name, phone, avatar_url, account_type, bio, address, is_verified, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	p := &Profile{}
	err := row.Scan(&p.ID, &p.UserID, &p.FullName, &p.Phone, &p.AvatarURL, &p.AccountType,
		&p.Bio, &p.Address, &p.IsVerified, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.ErrNotFound.WithMessage("profile not found")
		}
		return nil, err
	}
	return p, nil
}

// Create inserts the profile and grants the default user role in one transaction.
func (r *Repository) Create(ctx context.Context, userID string, req *CreateRequest) (*Profile, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO profiles (user_id, full_name, phone, account_type)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + profileColumns
	p, err := scanProfile(tx.QueryRow(ctx, query, userID, req.FullName, req.Phone, req.AccountType))
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, RoleUser,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repository) GetByUserID(ctx context.Context, userID string) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	return scanProfile(r.db.QueryRow(ctx, query, userID))
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return scanProfile(r.db.QueryRow(ctx, query, id))
}

func (r *Repository) Update(ctx context.Context, userID string, req *UpdateRequest) (*Profile, error) {
	query := `UPDATE profiles SET
			full_name  = COALESCE($2, full_name),
			phone      = COALESCE($3, phone),
			avatar_url = COALESCE($4, avatar_url),
			bio        = COALESCE($5, bio),
			address    = COALESCE($6, address),
			updated_at = now()
		WHERE user_id = $1
		RETURNING ` + profileColumns
	return scanProfile(r.db.QueryRow(ctx, query, userID, req.FullName, req.Phone, req.AvatarURL, req.Bio, req.Address))
}

func (r *Repository) Search(ctx context.Context, q string) ([]Profile, error) {
	// We limit to 10 to keep it fast
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE full_name ILIKE $1 ORDER BY full_name LIMIT 10`
	return r.list(ctx, query, "%"+q+"%")
}

// ListAll backs the admin dashboard, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at DESC`
	return r.list(ctx, query)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Profile, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := []Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func (r *Repository) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`,
		userID, role,
	).Scan(&exists)
	return exists, err
}
