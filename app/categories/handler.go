// Package categories implements the admin JSON API for product categories.
package categories

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/audit"
	"github.com/mytheresa/go-storefront/internal/errors"
	"github.com/mytheresa/go-storefront/internal/slug"
	"github.com/mytheresa/go-storefront/internal/validation"
	"github.com/mytheresa/go-storefront/internal/web"
	"github.com/mytheresa/go-storefront/models"
)

type CategoryResponse struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func toResponse(c models.Category) CategoryResponse {
	return CategoryResponse{Code: c.Code, Name: c.Name, Description: c.Description}
}

// CategoryInput is the body of create and update requests. An empty code is derived from the name.
type CategoryInput struct {
	Code        string `json:"code" validate:"max=100"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=2000"`
}

type CategoryProvider interface {
	GetAllCategories(ctx context.Context) ([]models.Category, error)
	GetByCode(ctx context.Context, code string) (*models.Category, error)
	CreateCategory(ctx context.Context, category *models.Category) error
	UpdateCategory(ctx context.Context, category *models.Category) error
	DeleteCategory(ctx context.Context, code string) error
}

type ActivityRecorder interface {
	Record(r *http.Request, action, target string, targetID uint, details string)
}

type CategoryHandler struct {
	repo      CategoryProvider
	validator *validation.Validator
	activity  ActivityRecorder
	log       *zap.Logger
}

func NewCategoryHandler(r CategoryProvider, v *validation.Validator, activity ActivityRecorder, log *zap.Logger) *CategoryHandler {
	return &CategoryHandler{repo: r, validator: v, activity: activity, log: log}
}

func (h *CategoryHandler) HandleGetAll(w http.ResponseWriter, r *http.Request) {
	categories, err := h.repo.GetAllCategories(r.Context())
	if err != nil {
		web.JSONError(w, h.log, errors.Internal("failed to fetch categories", err))
		return
	}

	response := make([]CategoryResponse, len(categories))
	for i, c := range categories {
		response[i] = toResponse(c)
	}
	web.JSON(w, http.StatusOK, response)
}

// decode reads and normalizes a CategoryInput.
func (h *CategoryHandler) decode(r *http.Request) (CategoryInput, error) {
	var input CategoryInput
	if err := web.DecodeJSON(r, &input); err != nil {
		return input, err
	}

	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	input.Code = strings.TrimSpace(input.Code)
	if err := h.validator.Validate(input); err != nil {
		return input, err
	}

	if input.Code == "" {
		input.Code = slug.Make(input.Name)
	}
	if input.Code == "" || slug.Make(input.Code) != input.Code {
		return input, errors.Validation("please correct the highlighted fields").WithDetails(map[string]string{
			"code": "must contain only lowercase letters, digits and hyphens",
		})
	}
	return input, nil
}

func (h *CategoryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	input, err := h.decode(r)
	if err != nil {
		web.JSONError(w, h.log, err)
		return
	}

	category := &models.Category{
		Code:        input.Code,
		Name:        input.Name,
		Description: input.Description,
	}
	if err := h.repo.CreateCategory(r.Context(), category); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			web.JSONError(w, h.log, errors.AlreadyExists("a category with this code already exists"))
			return
		}
		web.JSONError(w, h.log, errors.Internal("failed to create category", err))
		return
	}

	h.activity.Record(r, audit.ActionCreate, audit.TargetCategory, category.ID, category.Code)
	web.JSON(w, http.StatusCreated, toResponse(*category))
}

func (h *CategoryHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	category, err := h.repo.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		web.JSONError(w, h.log, lookupError(err))
		return
	}

	input, err := h.decode(r)
	if err != nil {
		web.JSONError(w, h.log, err)
		return
	}

	category.Code = input.Code
	category.Name = input.Name
	category.Description = input.Description
	if err := h.repo.UpdateCategory(r.Context(), category); err != nil {
		switch {
		case errors.Is(err, models.ErrDuplicate):
			web.JSONError(w, h.log, errors.AlreadyExists("a category with this code already exists"))
		case errors.Is(err, models.ErrCategoryNotFound):
			web.JSONError(w, h.log, errors.NotFound("category not found"))
		default:
			web.JSONError(w, h.log, errors.Internal("failed to update category", err))
		}
		return
	}

	h.activity.Record(r, audit.ActionUpdate, audit.TargetCategory, category.ID, category.Code)
	web.JSON(w, http.StatusOK, toResponse(*category))
}

func (h *CategoryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	category, err := h.repo.GetByCode(r.Context(), code)
	if err != nil {
		web.JSONError(w, h.log, lookupError(err))
		return
	}

	if err := h.repo.DeleteCategory(r.Context(), code); err != nil {
		web.JSONError(w, h.log, lookupError(err))
		return
	}

	h.activity.Record(r, audit.ActionDelete, audit.TargetCategory, category.ID, category.Code)
	w.WriteHeader(http.StatusNoContent)
}

func lookupError(err error) error {
	if errors.Is(err, models.ErrCategoryNotFound) {
		return errors.NotFound("category not found")
	}
	return errors.Internal("failed to load category", err)
}
