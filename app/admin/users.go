package admin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/audit"
	"github.com/mytheresa/go-storefront/internal/errors"
	"github.com/mytheresa/go-storefront/internal/session"
	"github.com/mytheresa/go-storefront/internal/validation"
	"github.com/mytheresa/go-storefront/internal/web"
	"github.com/mytheresa/go-storefront/models"
)

const (
	msgSelfDemote = "you cannot remove your own admin role or deactivate your own account"
	msgSelfDelete = "you cannot delete your own account"
	msgLastAdmin  = "the last administrator cannot be demoted"
)

type UserStore interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	List(ctx context.Context, offset, limit int, filters models.UserFilters) ([]models.User, int64, error)
	CountAdmins(ctx context.Context) (int64, error)
	UpdateAccess(ctx context.Context, id uint, role string, active bool) error
	Delete(ctx context.Context, id uint) error
}

type UsersHandler struct {
	users     UserStore
	validator *validation.Validator
	activity  ActivityRecorder
	render    *web.Renderer
	log       *zap.Logger
}

func NewUsersHandler(users UserStore, v *validation.Validator, activity ActivityRecorder, render *web.Renderer, log *zap.Logger) *UsersHandler {
	return &UsersHandler{users: users, validator: v, activity: activity, render: render, log: log}
}

// AccessInput is the user edit form.
type AccessInput struct {
	Role     string `form:"role" validate:"required,oneof=user admin"`
	IsActive bool   `form:"is_active"`
}

type userList struct {
	Users  []models.User
	Search string
	Role   string
	Pager  web.Pager
}

func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	offset := queryOffset(r)
	filters := models.UserFilters{
		Search: strings.TrimSpace(r.URL.Query().Get("q")),
		Role:   r.URL.Query().Get("role"),
	}
	if filters.Role != models.RoleUser && filters.Role != models.RoleAdmin {
		filters.Role = ""
	}

	users, total, err := h.users.List(r.Context(), offset, pageSize, filters)
	if err != nil {
		h.render.Error(w, r, errors.Internal("failed to list users", err))
		return
	}

	h.render.HTML(w, r, http.StatusOK, "admin_users", web.View{
		Title: "Users",
		Data: userList{
			Users:  users,
			Search: filters.Search,
			Role:   filters.Role,
			Pager:  web.NewPager(r.URL, offset, pageSize, total),
		},
	})
}

func (h *UsersHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	user, err := h.load(r)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}

	form := url.Values{"role": {user.Role}}
	if user.IsActive {
		form.Set("is_active", "1")
	}
	h.render.HTML(w, r, http.StatusOK, "admin_user_form", web.View{
		Title: "Edit " + user.Username,
		Form:  form,
		Data:  user,
	})
}

func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, err := h.load(r)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}
	view := web.View{Title: "Edit " + user.Username, Data: user}
	if err := r.ParseForm(); err != nil {
		h.render.FormError(w, r, "admin_user_form", view, errors.Validation("invalid form submission"))
		return
	}

	input := AccessInput{
		Role:     r.PostFormValue("role"),
		IsActive: r.PostFormValue("is_active") != "",
	}
	if err := h.validator.Validate(input); err != nil {
		h.render.FormError(w, r, "admin_user_form", view, err)
		return
	}
	if err := h.checkAccessChange(r, user, input); err != nil {
		h.render.FormError(w, r, "admin_user_form", view, err)
		return
	}

	if err := h.users.UpdateAccess(r.Context(), user.ID, input.Role, input.IsActive); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			h.render.Error(w, r, errors.NotFound("user not found"))
			return
		}
		h.render.Error(w, r, errors.Internal("failed to update user", err))
		return
	}

	h.activity.Record(r, audit.ActionUpdate, audit.TargetUser, user.ID,
		fmt.Sprintf("%s: role=%s active=%t", user.Username, input.Role, input.IsActive))
	web.Redirect(w, r, "/admin/users", session.FlashSuccess, "User "+user.Username+" updated.")
}

// checkAccessChange refuses changes that would lock the acting admin out, or leave the site
// without an administrator.
func (h *UsersHandler) checkAccessChange(r *http.Request, user *models.User, input AccessInput) error {
	if admin := web.CurrentUser(r.Context()); admin != nil && admin.ID == user.ID {
		if input.Role != models.RoleAdmin || !input.IsActive {
			return errors.Forbidden(msgSelfDemote)
		}
	}

	if user.IsAdmin() && input.Role != models.RoleAdmin {
		admins, err := h.users.CountAdmins(r.Context())
		if err != nil {
			return errors.Internal("failed to count administrators", err)
		}
		if admins <= 1 {
			return errors.Conflict(msgLastAdmin)
		}
	}
	return nil
}

func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, err := h.load(r)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}
	if admin := web.CurrentUser(r.Context()); admin != nil && admin.ID == user.ID {
		web.Redirect(w, r, "/admin/users", session.FlashError, msgSelfDelete)
		return
	}

	if err := h.users.Delete(r.Context(), user.ID); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			h.render.Error(w, r, errors.NotFound("user not found"))
			return
		}
		h.render.Error(w, r, errors.Internal("failed to delete user", err))
		return
	}

	h.activity.Record(r, audit.ActionDelete, audit.TargetUser, user.ID, user.Username)
	web.Redirect(w, r, "/admin/users", session.FlashSuccess, "User "+user.Username+" deleted.")
}

func (h *UsersHandler) load(r *http.Request) (*models.User, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, errors.NotFound("user not found")
	}
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, errors.NotFound("user not found")
		}
		return nil, errors.Internal("failed to load user", err)
	}
	return user, nil
}

// ActivityStore reads the activity log.
type ActivityStore interface {
	Recent(ctx context.Context, offset, limit int) ([]models.ActivityLog, int64, error)
}

type ActivityHandler struct {
	entries ActivityStore
	render  *web.Renderer
}

func NewActivityHandler(entries ActivityStore, render *web.Renderer) *ActivityHandler {
	return &ActivityHandler{entries: entries, render: render}
}

type activityList struct {
	Entries []models.ActivityLog
	Pager   web.Pager
}

func (h *ActivityHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	offset := queryOffset(r)
	entries, total, err := h.entries.Recent(r.Context(), offset, pageSize)
	if err != nil {
		h.render.Error(w, r, errors.Internal("failed to load activity", err))
		return
	}

	h.render.HTML(w, r, http.StatusOK, "admin_activity", web.View{
		Title: "Activity",
		Data:  activityList{Entries: entries, Pager: web.NewPager(r.URL, offset, pageSize, total)},
	})
}
