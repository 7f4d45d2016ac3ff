// Package contact handles the public contact form.
package contact

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/errors"
	"github.com/mytheresa/go-storefront/internal/mailer"
	"github.com/mytheresa/go-storefront/internal/ratelimit"
	"github.com/mytheresa/go-storefront/internal/recaptcha"
	"github.com/mytheresa/go-storefront/internal/session"
	"github.com/mytheresa/go-storefront/internal/validation"
	"github.com/mytheresa/go-storefront/internal/web"
	"github.com/mytheresa/go-storefront/models"
)

const page = "contact"

type MessageStore interface {
	Create(ctx context.Context, msg *models.ContactMessage) error
}

type Notifier interface {
	SendContact(ctx context.Context, form mailer.ContactForm) error
}

// Sanitizer removes markup from plain-text input.
type Sanitizer interface {
	StripTags(s string) string
}

type Input struct {
	Name    string `form:"name" validate:"required,max=100"`
	Email   string `form:"email" validate:"required,email,max=255"`
	Subject string `form:"subject" validate:"required,max=200"`
	Message string `form:"message" validate:"required,min=10,max=5000"`
}

type ContactHandler struct {
	messages  MessageStore
	notifier  Notifier
	captcha   recaptcha.Verifier
	sanitizer Sanitizer
	validator *validation.Validator
	render    *web.Renderer
	log       *zap.Logger
}

func NewContactHandler(
	messages MessageStore,
	notifier Notifier,
	captcha recaptcha.Verifier,
	sanitizer Sanitizer,
	v *validation.Validator,
	render *web.Renderer,
	log *zap.Logger,
) *ContactHandler {
	return &ContactHandler{
		messages:  messages,
		notifier:  notifier,
		captcha:   captcha,
		sanitizer: sanitizer,
		validator: v,
		render:    render,
		log:       log,
	}
}

// HandleForm shows the form, prefilled for logged-in users.
func (h *ContactHandler) HandleForm(w http.ResponseWriter, r *http.Request) {
	form := url.Values{}
	if user := web.CurrentUser(r.Context()); user != nil {
		form.Set("name", user.DisplayName())
		form.Set("email", user.Email)
	}
	h.render.HTML(w, r, http.StatusOK, page, web.View{Title: "Contact", Form: form})
}

// HandleSubmit stores the message and forwards it to the shop admin. A failed email is logged;
// the stored message is not lost.
func (h *ContactHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	view := web.View{Title: "Contact"}
	if err := r.ParseForm(); err != nil {
		h.render.FormError(w, r, page, view, errors.Validation("invalid form submission"))
		return
	}

	ip := ratelimit.ClientIP(r)
	if err := h.captcha.Verify(r.Context(), r.PostFormValue(recaptcha.FormField), ip); err != nil {
		h.render.FormError(w, r, page, view, err)
		return
	}

	input := Input{
		Name:    h.sanitizer.StripTags(r.PostFormValue("name")),
		Email:   h.sanitizer.StripTags(r.PostFormValue("email")),
		Subject: h.sanitizer.StripTags(r.PostFormValue("subject")),
		Message: h.sanitizer.StripTags(r.PostFormValue("message")),
	}
	if err := h.validator.Validate(input); err != nil {
		h.render.FormError(w, r, page, view, err)
		return
	}

	msg := &models.ContactMessage{
		Name:      input.Name,
		Email:     input.Email,
		Subject:   input.Subject,
		Message:   input.Message,
		IPAddress: ip,
	}
	if err := h.messages.Create(r.Context(), msg); err != nil {
		h.render.Error(w, r, errors.Internal("failed to store message", err))
		return
	}

	err := h.notifier.SendContact(r.Context(), mailer.ContactForm{
		Name:      msg.Name,
		Email:     msg.Email,
		Subject:   msg.Subject,
		Message:   msg.Message,
		IPAddress: msg.IPAddress,
	})
	if err != nil {
		h.log.Error("failed to forward contact message", zap.Uint("message_id", msg.ID), zap.Error(err))
	}

	web.Redirect(w, r, "/contact", session.FlashSuccess, "Thank you for your message. We will get back to you soon.")
}
