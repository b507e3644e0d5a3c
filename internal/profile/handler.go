package profile

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"go-dalil/internal/apperror"
	myMiddleware "go-dalil/internal/middleware"
	"go-dalil/pkg/response"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func principal(r *http.Request) (*myMiddleware.Principal, error) {
	p, ok := myMiddleware.PrincipalFrom(r.Context())
	if !ok {
		return nil, apperror.ErrUnauthenticated
	}
	return p, nil
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	prof, err := h.Service.Me(r.Context(), p.UserID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, prof)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.ErrorWithMsg(w, apperror.ErrInvalidParams, err.Error())
		return
	}
	prof, err := h.Service.Create(r.Context(), p.UserID, &req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, prof)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.ErrorWithMsg(w, apperror.ErrInvalidParams, err.Error())
		return
	}
	prof, err := h.Service.Update(r.Context(), p.UserID, &req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, prof)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := uuid.Validate(id); err != nil {
		response.ErrorWithMsg(w, apperror.ErrInvalidParams, "invalid profile id")
		return
	}
	prof, err := h.Service.Get(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, prof)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.Service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, profiles)
}

func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.Service.ListAll(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, profiles)
}
