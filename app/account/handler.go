// Package account serves the logged-in user's profile and password pages.
package account

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/app/auth"
	"github.com/mytheresa/go-storefront/internal/errors"
	"github.com/mytheresa/go-storefront/internal/session"
	"github.com/mytheresa/go-storefront/internal/validation"
	"github.com/mytheresa/go-storefront/internal/web"
	"github.com/mytheresa/go-storefront/models"
)

const page = "account"

type ProfileStore interface {
	SaveProfile(ctx context.Context, profile *models.UserProfile) error
}

type PasswordChanger interface {
	ChangePassword(ctx context.Context, userID uint, in auth.ChangePasswordInput) error
}

// Sanitizer removes markup from plain-text input.
type Sanitizer interface {
	StripTags(s string) string
}

// ProfileInput is the profile form. Every field is optional.
type ProfileInput struct {
	FirstName  string `form:"first_name" validate:"max=100"`
	LastName   string `form:"last_name" validate:"max=100"`
	Phone      string `form:"phone" validate:"max=30"`
	Address    string `form:"address" validate:"max=255"`
	City       string `form:"city" validate:"max=100"`
	PostalCode string `form:"postal_code" validate:"max=20"`
	Country    string `form:"country" validate:"max=100"`
}

type AccountHandler struct {
	profiles  ProfileStore
	passwords PasswordChanger
	sanitizer Sanitizer
	validator *validation.Validator
	render    *web.Renderer
	log       *zap.Logger
}

func NewAccountHandler(
	profiles ProfileStore,
	passwords PasswordChanger,
	sanitizer Sanitizer,
	v *validation.Validator,
	render *web.Renderer,
	log *zap.Logger,
) *AccountHandler {
	return &AccountHandler{
		profiles:  profiles,
		passwords: passwords,
		sanitizer: sanitizer,
		validator: v,
		render:    render,
		log:       log,
	}
}

// HandleShow renders the account page. It must run behind web.RequireLogin.
func (h *AccountHandler) HandleShow(w http.ResponseWriter, r *http.Request) {
	user := web.CurrentUser(r.Context())
	h.render.HTML(w, r, http.StatusOK, page, web.View{
		Title: "My account",
		Form:  profileValues(user.Profile),
	})
}

func (h *AccountHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user := web.CurrentUser(r.Context())
	view := web.View{Title: "My account"}
	if err := r.ParseForm(); err != nil {
		h.render.FormError(w, r, page, view, errors.Validation("invalid form submission"))
		return
	}

	input := ProfileInput{
		FirstName:  h.sanitizer.StripTags(r.PostFormValue("first_name")),
		LastName:   h.sanitizer.StripTags(r.PostFormValue("last_name")),
		Phone:      h.sanitizer.StripTags(r.PostFormValue("phone")),
		Address:    h.sanitizer.StripTags(r.PostFormValue("address")),
		City:       h.sanitizer.StripTags(r.PostFormValue("city")),
		PostalCode: h.sanitizer.StripTags(r.PostFormValue("postal_code")),
		Country:    h.sanitizer.StripTags(r.PostFormValue("country")),
	}
	if err := h.validator.Validate(input); err != nil {
		h.render.FormError(w, r, page, view, err)
		return
	}

	profile := &models.UserProfile{
		UserID:     user.ID,
		FirstName:  input.FirstName,
		LastName:   input.LastName,
		Phone:      input.Phone,
		Address:    input.Address,
		City:       input.City,
		PostalCode: input.PostalCode,
		Country:    input.Country,
	}
	if err := h.profiles.SaveProfile(r.Context(), profile); err != nil {
		h.render.Error(w, r, errors.Internal("failed to save profile", err))
		return
	}

	h.log.Info("profile updated", zap.Uint("user_id", user.ID))
	web.Redirect(w, r, "/account", session.FlashSuccess, "Your profile has been saved.")
}

func (h *AccountHandler) HandlePassword(w http.ResponseWriter, r *http.Request) {
	user := web.CurrentUser(r.Context())
	// The profile form keeps its stored values while the password form shows its errors.
	view := web.View{Title: "My account", Form: profileValues(user.Profile)}
	if err := r.ParseForm(); err != nil {
		h.render.FormError(w, r, page, view, errors.Validation("invalid form submission"))
		return
	}

	err := h.passwords.ChangePassword(r.Context(), user.ID, auth.ChangePasswordInput{
		CurrentPassword: r.PostFormValue("current_password"),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
	})
	if err != nil {
		if errors.HTTPStatus(err) >= http.StatusInternalServerError {
			h.render.Error(w, r, errors.Internal("failed to change password", err))
			return
		}
		h.render.FormError(w, r, page, view, err)
		return
	}

	web.Redirect(w, r, "/account", session.FlashSuccess, "Your password has been changed.")
}

func profileValues(p *models.UserProfile) url.Values {
	if p == nil {
		return url.Values{}
	}
	return url.Values{
		"first_name":  {p.FirstName},
		"last_name":   {p.LastName},
		"phone":       {p.Phone},
		"address":     {p.Address},
		"city":        {p.City},
		"postal_code": {p.PostalCode},
		"country":     {p.Country},
	}
}
