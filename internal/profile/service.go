package profile

import (
	"context"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"go-dalil/internal/apperror"
	myMiddleware "go-dalil/internal/middleware"
)

type Store interface {
	Create(ctx context.Context, userID string, req *CreateRequest) (*Profile, error)
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
	GetByID(ctx context.Context, id string) (*Profile, error)
	Update(ctx context.Context, userID string, req *UpdateRequest) (*Profile, error)
	Search(ctx context.Context, q string) ([]Profile, error)
	ListAll(ctx context.Context) ([]Profile, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

type Service struct {
	repo      Store
	jwtSecret []byte
	issuer    string
	logger    *slog.Logger
}

// Claims are the access-token claims issued by the identity platform. The
// subject is the platform user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func NewService(repo Store, secret, issuer string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(secret),
		issuer:    issuer,
		logger:    slog.Default(),
	}
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, apperror.ErrUnauthenticated.WithMessage("invalid token").Wrap(err)
	}
	if claims.Subject == "" {
		return nil, apperror.ErrUnauthenticated.WithMessage("token has no subject")
	}
	return claims, nil
}

// Authenticate implements myMiddleware.Authenticator. A valid token without a
// profile yields a Principal with an empty ProfileID so the caller can still
// complete sign-up.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*myMiddleware.Principal, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	p := &myMiddleware.Principal{UserID: claims.Subject}
	prof, err := s.repo.GetByUserID(ctx, claims.Subject)
	switch {
	case err == nil:
		p.ProfileID = prof.ID
	case apperror.Is(err, apperror.ErrNotFound):
	default:
		return nil, apperror.Remote(err)
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, userID string, req *CreateRequest) (*Profile, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	if req.FullName == "" {
		return nil, apperror.ErrInvalidParams.WithMessage("full_name is required")
	}
	switch req.AccountType {
	case "":
		req.AccountType = AccountUser
	case AccountUser, AccountProvider:
	default:
		return nil, apperror.ErrInvalidParams.WithMessage("account_type must be user or provider")
	}

	p, err := s.repo.Create(ctx, userID, req)
	if err != nil {
		return nil, apperror.Remote(err)
	}
	s.logger.Info("Profile created", "profile_id", p.ID, "account_type", p.AccountType)
	return p, nil
}

func (s *Service) Me(ctx context.Context, userID string) (*Profile, error) {
	p, err := s.repo.GetByUserID(ctx, userID)
	return p, apperror.Remote(err)
}

func (s *Service) Get(ctx context.Context, id string) (*Profile, error) {
	p, err := s.repo.GetByID(ctx, id)
	return p, apperror.Remote(err)
}

func (s *Service) Update(ctx context.Context, userID string, req *UpdateRequest) (*Profile, error) {
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, apperror.ErrInvalidParams.WithMessage("full_name cannot be empty")
		}
		req.FullName = &name
	}
	p, err := s.repo.Update(ctx, userID, req)
	return p, apperror.Remote(err)
}

func (s *Service) Search(ctx context.Context, q string) ([]Profile, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []Profile{}, nil
	}
	profiles, err := s.repo.Search(ctx, q)
	return profiles, apperror.Remote(err)
}

func (s *Service) ListAll(ctx context.Context) ([]Profile, error) {
	profiles, err := s.repo.ListAll(ctx)
	return profiles, apperror.Remote(err)
}

func (s *Service) HasRole(ctx context.Context, userID, role string) (bool, error) {
	ok, err := s.repo.HasRole(ctx, userID, role)
	return ok, apperror.Remote(err)
}
