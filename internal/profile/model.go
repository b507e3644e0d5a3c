package profile

import "time"

type AccountType string

const (
	AccountUser     AccountType = "user"
	AccountProvider AccountType = "provider"
)

const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleUser      = "user"
)

type Profile struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	FullName    string      `json:"full_name"`
	Phone       *string     `json:"phone"`
	AvatarURL   *string     `json:"avatar_url"`
	AccountType AccountType `json:"account_type"`
	Bio         *string     `json:"bio"`
	Address     *string     `json:"address"`
	IsVerified  bool        `json:"is_verified"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// CreateRequest completes sign-up: the identity platform owns the account,
// this service owns the profile attached to it.
type CreateRequest struct {
	FullName    string      `json:"full_name"`
	Phone       *string     `json:"phone"`
	AccountType AccountType `json:"account_type"`
}

// UpdateRequest carries only the fields being changed.
type UpdateRequest struct {
	FullName  *string `json:"full_name"`
	Phone     *string `json:"phone"`
	AvatarURL *string `json:"avatar_url"`
	Bio       *string `json:"bio"`
	Address   *string `json:"address"`
}
