package listing

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"go-dalil/internal/apperror"
	myMiddleware "go-dalil/internal/middleware"
	"go-dalil/pkg/response"
)

type Handler struct {
	Service   *Service
	roles     myMiddleware.RoleChecker
	adminRole string
}

// NewHandler serves listings. roles decides which callers see listings that
// are not approved yet; a nil checker treats every caller as a non-admin.
func NewHandler(s *Service, roles myMiddleware.RoleChecker, adminRole string) *Handler {
	return &Handler{Service: s, roles: roles, adminRole: adminRole}
}

// viewer describes the caller of r. Public routes see an anonymous viewer
// unless an optional token was presented.
func (h *Handler) viewer(r *http.Request) (Viewer, error) {
	p, ok := myMiddleware.PrincipalFrom(r.Context())
	if !ok {
		return Viewer{}, nil
	}
	v := Viewer{Identity: p.ProfileID}
	if h.roles == nil {
		return v, nil
	}
	admin, err := h.roles.HasRole(r.Context(), p.UserID, h.adminRole)
	if err != nil {
		return Viewer{}, err
	}
	v.Admin = admin
	return v, nil
}

func pathID(r *http.Request, what string) (string, error) {
	id := chi.URLParam(r, "id")
	if err := uuid.Validate(id); err != nil {
		return "", apperror.ErrInvalidParams.WithMessage("invalid " + what + " id")
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.ErrInvalidParams.WithMessage(err.Error())
	}
	return nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ErrInvalidParams.WithMessage("invalid " + name)
	}
	return n, nil
}

// List serves GET /api/listings?category=&q=&page=&limit=. Only approved
// listings are visible here.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page")
	if err != nil {
		response.Error(w, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		response.Error(w, err)
		return
	}
	category := r.URL.Query().Get("category")
	if category != "" {
		if err := uuid.Validate(category); err != nil {
			response.ErrorWithMsg(w, apperror.ErrInvalidParams, "invalid category id")
			return
		}
	}

	result, err := h.Service.List(r.Context(), Filter{
		CategoryID:   category,
		Search:       r.URL.Query().Get("q"),
		Page:         page,
		Limit:        limit,
		OnlyApproved: true,
	})
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, result)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "listing")
	if err != nil {
		response.Error(w, err)
		return
	}
	v, err := h.viewer(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	l, err := h.Service.Get(r.Context(), v, id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, l)
}

func (h *Handler) ByProvider(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "provider")
	if err != nil {
		response.Error(w, err)
		return
	}
	v, err := h.viewer(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	listings, err := h.Service.ByProvider(r.Context(), v, id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, listings)
}

// Mine lists the caller's own listings, approved or not.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	identity := myMiddleware.Identity(r.Context())
	if identity == "" {
		response.Error(w, apperror.ErrUnauthenticated)
		return
	}
	listings, err := h.Service.ByProvider(r.Context(), Viewer{Identity: identity}, identity)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, listings)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	l, err := h.Service.Create(r.Context(), myMiddleware.Identity(r.Context()), &req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, l)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "listing")
	if err != nil {
		response.Error(w, err)
		return
	}
	var req UpdateRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	l, err := h.Service.Update(r.Context(), myMiddleware.Identity(r.Context()), id, &req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, l)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "listing")
	if err != nil {
		response.Error(w, err)
		return
	}
	if err := h.Service.Delete(r.Context(), myMiddleware.Identity(r.Context()), id); err != nil {
		response.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "listing")
	if err != nil {
		response.Error(w, err)
		return
	}
	var req ReviewRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	rv, err := h.Service.AddReview(r.Context(), myMiddleware.Identity(r.Context()), id, &req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, rv)
}

func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	listings, err := h.Service.AdminList(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, listings)
}

type approvalRequest struct {
	IsApproved *bool `json:"is_approved"`
}

func (h *Handler) SetApproval(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "listing")
	if err != nil {
		response.Error(w, err)
		return
	}
	var req approvalRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if req.IsApproved == nil {
		response.ErrorWithMsg(w, apperror.ErrInvalidParams, "is_approved is required")
		return
	}
	l, err := h.Service.SetApproval(r.Context(), id, *req.IsApproved)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, l)
}

func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Service.Categories(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, categories)
}

func (h *Handler) CategoryCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Service.CategoryCounts(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, counts)
}

func (h *Handler) Category(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "category")
	if err != nil {
		response.Error(w, err)
		return
	}
	c, err := h.Service.Category(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, c)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	c, err := h.Service.CreateCategory(r.Context(), &req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, c)
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "category")
	if err != nil {
		response.Error(w, err)
		return
	}
	var req CategoryRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	c, err := h.Service.UpdateCategory(r.Context(), id, &req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, c)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "category")
	if err != nil {
		response.Error(w, err)
		return
	}
	if err := h.Service.DeleteCategory(r.Context(), id); err != nil {
		response.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
