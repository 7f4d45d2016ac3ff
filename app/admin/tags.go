package admin

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/audit"
	"github.com/mytheresa/go-storefront/internal/errors"
	"github.com/mytheresa/go-storefront/internal/slug"
	"github.com/mytheresa/go-storefront/internal/validation"
	"github.com/mytheresa/go-storefront/internal/web"
	"github.com/mytheresa/go-storefront/models"
)

type TagResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func toTagResponse(t models.Tag) TagResponse {
	return TagResponse{ID: t.ID, Name: t.Name, Slug: t.Slug}
}

type TagInput struct {
	Name string `json:"name" validate:"required,max=50"`
}

// TagsHandler serves the admin tag API.
type TagsHandler struct {
	tags      TagStore
	sanitizer Sanitizer
	validator *validation.Validator
	activity  ActivityRecorder
	log       *zap.Logger
}

func NewTagsHandler(tags TagStore, sanitizer Sanitizer, v *validation.Validator, activity ActivityRecorder, log *zap.Logger) *TagsHandler {
	return &TagsHandler{tags: tags, sanitizer: sanitizer, validator: v, activity: activity, log: log}
}

func (h *TagsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	tags, err := h.tags.List(r.Context())
	if err != nil {
		web.JSONError(w, h.log, errors.Internal("failed to list tags", err))
		return
	}

	response := make([]TagResponse, len(tags))
	for i, t := range tags {
		response[i] = toTagResponse(t)
	}
	web.JSON(w, http.StatusOK, response)
}

func (h *TagsHandler) decode(r *http.Request) (models.Tag, error) {
	var input TagInput
	if err := web.DecodeJSON(r, &input); err != nil {
		return models.Tag{}, err
	}
	input.Name = h.sanitizer.StripTags(input.Name)
	if err := h.validator.Validate(input); err != nil {
		return models.Tag{}, err
	}

	tagSlug := slug.Make(input.Name)
	if tagSlug == "" {
		return models.Tag{}, errors.Validation("please correct the highlighted fields").WithDetails(map[string]string{
			"name": "must contain a letter or digit",
		})
	}
	return models.Tag{Name: input.Name, Slug: tagSlug}, nil
}

// HandleCreate creates a tag unless one with the same name exists, in which case that tag is
// returned with 200 instead of 201.
func (h *TagsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	input, err := h.decode(r)
	if err != nil {
		web.JSONError(w, h.log, err)
		return
	}

	tag, created, err := h.tags.FindOrCreate(r.Context(), &input)
	if err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			web.JSONError(w, h.log, errors.AlreadyExists("a tag with this slug already exists"))
			return
		}
		web.JSONError(w, h.log, errors.Internal("failed to create tag", err))
		return
	}

	if !created {
		web.JSON(w, http.StatusOK, toTagResponse(*tag))
		return
	}
	h.activity.Record(r, audit.ActionCreate, audit.TargetTag, tag.ID, tag.Name)
	web.JSON(w, http.StatusCreated, toTagResponse(*tag))
}

func (h *TagsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	tag, err := h.load(r)
	if err != nil {
		web.JSONError(w, h.log, err)
		return
	}

	input, err := h.decode(r)
	if err != nil {
		web.JSONError(w, h.log, err)
		return
	}

	previous := tag.Name
	tag.Name = input.Name
	tag.Slug = input.Slug
	if err := h.tags.Update(r.Context(), tag); err != nil {
		switch {
		case errors.Is(err, models.ErrDuplicate):
			web.JSONError(w, h.log, errors.AlreadyExists("a tag with this name already exists"))
		case errors.Is(err, models.ErrTagNotFound):
			web.JSONError(w, h.log, errors.NotFound("tag not found"))
		default:
			web.JSONError(w, h.log, errors.Internal("failed to update tag", err))
		}
		return
	}

	h.activity.Record(r, audit.ActionUpdate, audit.TargetTag, tag.ID, strings.Join([]string{previous, tag.Name}, " -> "))
	web.JSON(w, http.StatusOK, toTagResponse(*tag))
}

func (h *TagsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	tag, err := h.load(r)
	if err != nil {
		web.JSONError(w, h.log, err)
		return
	}

	if err := h.tags.Delete(r.Context(), tag.ID); err != nil {
		if errors.Is(err, models.ErrTagNotFound) {
			web.JSONError(w, h.log, errors.NotFound("tag not found"))
			return
		}
		web.JSONError(w, h.log, errors.Internal("failed to delete tag", err))
		return
	}

	h.activity.Record(r, audit.ActionDelete, audit.TargetTag, tag.ID, tag.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TagsHandler) load(r *http.Request) (*models.Tag, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, errors.NotFound("tag not found")
	}
	tag, err := h.tags.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrTagNotFound) {
			return nil, errors.NotFound("tag not found")
		}
		return nil, errors.Internal("failed to load tag", err)
	}
	return tag, nil
}
