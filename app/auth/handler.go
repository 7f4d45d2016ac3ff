// Package auth implements registration, activation, login, remember-me and password resets.
package auth

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/errors"
	"github.com/mytheresa/go-storefront/internal/ratelimit"
	"github.com/mytheresa/go-storefront/internal/recaptcha"
	"github.com/mytheresa/go-storefront/internal/session"
	"github.com/mytheresa/go-storefront/internal/validation"
	"github.com/mytheresa/go-storefront/internal/web"
	"github.com/mytheresa/go-storefront/models"
)

type Authenticator interface {
	Register(ctx context.Context, in RegisterInput) (*models.User, error)
	Activate(ctx context.Context, code string) (*models.User, error)
	Login(ctx context.Context, in LoginInput) (*models.User, error)
	IssueRememberMe(ctx context.Context, userID uint) (string, error)
	AutoLogin(ctx context.Context, cookieValue string) (*models.User, string, error)
	Logout(ctx context.Context, userID uint) error
	RequestPasswordReset(ctx context.Context, in ForgotPasswordInput) error
	CheckResetToken(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, in ResetPasswordInput) error
}

// CookieConfig describes the remember-me cookie.
type CookieConfig struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

type AuthHandler struct {
	auth    Authenticator
	render  *web.Renderer
	captcha recaptcha.Verifier
	cookie  CookieConfig
	log     *zap.Logger
}

func NewAuthHandler(auth Authenticator, render *web.Renderer, captcha recaptcha.Verifier, cookie CookieConfig, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:    auth,
		render:  render,
		captcha: captcha,
		cookie:  cookie,
		log:     log,
	}
}

func (h *AuthHandler) HandleRegisterForm(w http.ResponseWriter, r *http.Request) {
	if web.CurrentUser(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render.HTML(w, r, http.StatusOK, "register", web.View{Title: "Register"})
}

func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	view := web.View{Title: "Register"}
	if err := r.ParseForm(); err != nil {
		h.render.FormError(w, r, "register", view, errors.Validation("invalid form submission"))
		return
	}

	if err := h.captcha.Verify(r.Context(), r.PostFormValue(recaptcha.FormField), ratelimit.ClientIP(r)); err != nil {
		h.render.FormError(w, r, "register", view, err)
		return
	}

	_, err := h.auth.Register(r.Context(), RegisterInput{
		Username:        r.PostFormValue("username"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
		FirstName:       r.PostFormValue("first_name"),
		LastName:        r.PostFormValue("last_name"),
	})
	if err != nil {
		h.render.FormError(w, r, "register", view, err)
		return
	}

	web.Redirect(w, r, "/login", session.FlashSuccess,
		"Registration successful. Please check your email to activate your account.")
}

func (h *AuthHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	_, err := h.auth.Activate(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		if errors.HTTPStatus(err) >= http.StatusInternalServerError {
			h.render.Error(w, r, err)
			return
		}
		h.render.HTML(w, r, errors.HTTPStatus(err), "message", web.View{
			Title: "Activation failed",
			Alert: errors.PublicMessage(err),
		})
		return
	}

	web.Redirect(w, r, "/login", session.FlashSuccess, "Your account is now active. You can log in.")
}

func (h *AuthHandler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	if web.CurrentUser(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render.HTML(w, r, http.StatusOK, "login", web.View{
		Title: "Log in",
		Form:  url.Values{"next": {r.URL.Query().Get("next")}},
	})
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	view := web.View{Title: "Log in"}
	if err := r.ParseForm(); err != nil {
		h.render.FormError(w, r, "login", view, errors.Validation("invalid form submission"))
		return
	}

	user, err := h.auth.Login(r.Context(), LoginInput{
		Login:    r.PostFormValue("login"),
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		h.render.FormError(w, r, "login", view, err)
		return
	}

	s := session.FromContext(r.Context())
	if err := s.Renew(); err != nil {
		h.render.Error(w, r, errors.Internal("failed to start session", err))
		return
	}
	s.SetUserID(user.ID)

	if r.PostFormValue("remember_me") != "" {
		value, err := h.auth.IssueRememberMe(r.Context(), user.ID)
		if err != nil {
			h.log.Error("failed to issue remember-me token", zap.Uint("user_id", user.ID), zap.Error(err))
		} else {
			h.setRememberMe(w, value)
		}
	}

	web.Redirect(w, r, web.SafeNext(r.PostFormValue("next"), "/"), session.FlashSuccess,
		"Welcome back, "+user.DisplayName()+"!")
}

func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if user := web.CurrentUser(r.Context()); user != nil {
		if err := h.auth.Logout(r.Context(), user.ID); err != nil {
			h.log.Error("failed to revoke remember-me tokens", zap.Uint("user_id", user.ID), zap.Error(err))
		}
	}

	if err := session.FromContext(r.Context()).Destroy(); err != nil {
		h.render.Error(w, r, errors.Internal("failed to end session", err))
		return
	}
	h.clearRememberMe(w)

	web.Redirect(w, r, "/", session.FlashInfo, "You have been logged out.")
}

func (h *AuthHandler) HandleForgotPasswordForm(w http.ResponseWriter, r *http.Request) {
	h.render.HTML(w, r, http.StatusOK, "forgot_password", web.View{Title: "Forgot password"})
}

func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	view := web.View{Title: "Forgot password"}
	if err := r.ParseForm(); err != nil {
		h.render.FormError(w, r, "forgot_password", view, errors.Validation("invalid form submission"))
		return
	}

	if err := h.captcha.Verify(r.Context(), r.PostFormValue(recaptcha.FormField), ratelimit.ClientIP(r)); err != nil {
		h.render.FormError(w, r, "forgot_password", view, err)
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), ForgotPasswordInput{Email: r.PostFormValue("email")}); err != nil {
		h.render.FormError(w, r, "forgot_password", view, err)
		return
	}

	web.Redirect(w, r, "/login", session.FlashInfo,
		"If an account exists for that address, a password reset link is on its way.")
}

func (h *AuthHandler) HandleResetPasswordForm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if err := h.auth.CheckResetToken(r.Context(), token); err != nil {
		h.resetFailed(w, r, err)
		return
	}
	h.render.HTML(w, r, http.StatusOK, "reset_password", web.View{
		Title: "Reset password",
		Form:  url.Values{"token": {token}},
	})
}

func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	view := web.View{Title: "Reset password"}
	if err := r.ParseForm(); err != nil {
		h.render.FormError(w, r, "reset_password", view, errors.Validation("invalid form submission"))
		return
	}

	err := h.auth.ResetPassword(r.Context(), ResetPasswordInput{
		Token:           r.PostFormValue("token"),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
	})
	if err != nil {
		if validation.FieldErrors(err) != nil {
			h.render.FormError(w, r, "reset_password", view, err)
			return
		}
		h.resetFailed(w, r, err)
		return
	}

	web.Redirect(w, r, "/login", session.FlashSuccess, "Your password has been changed. Please log in.")
}

func (h *AuthHandler) resetFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.HTTPStatus(err) >= http.StatusInternalServerError {
		h.render.Error(w, r, err)
		return
	}
	h.render.HTML(w, r, errors.HTTPStatus(err), "message", web.View{
		Title: "Password reset",
		Alert: errors.PublicMessage(err),
		Data:  "Request a new link from the forgot password page.",
	})
}

// RememberMe logs visitors in from a remember-me cookie when their session is anonymous. The
// cookie is rotated on every use and cleared when it is not accepted.
func (h *AuthHandler) RememberMe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := session.FromContext(r.Context())
		if s.UserID() != 0 {
			next.ServeHTTP(w, r)
			return
		}
		cookie, err := r.Cookie(h.cookie.Name)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, value, err := h.auth.AutoLogin(r.Context(), cookie.Value)
		if err != nil {
			if !errors.Is(err, errors.ErrUnauthorized) {
				h.log.Error("remember-me login failed", zap.Error(err))
			}
			h.clearRememberMe(w)
			next.ServeHTTP(w, r)
			return
		}

		if err := s.Renew(); err != nil {
			h.log.Error("failed to renew session", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		s.SetUserID(user.ID)
		h.setRememberMe(w, value)
		next.ServeHTTP(w, r)
	})
}

func (h *AuthHandler) setRememberMe(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(h.cookie.TTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRememberMe(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
