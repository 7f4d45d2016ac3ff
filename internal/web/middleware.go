package web

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/errors"
	"github.com/mytheresa/go-storefront/internal/security"
	"github.com/mytheresa/go-storefront/internal/session"
	"github.com/mytheresa/go-storefront/models"
)

// CSRFField and CSRFHeader carry the anti-forgery token on unsafe requests.
const (
	CSRFField  = "csrf_token"
	CSRFHeader = "X-CSRF-Token"
)

// UserLoader fetches the account behind a session.
type UserLoader interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// LoadUser resolves the session's user id into an active account and stores it on the request
// context. Sessions pointing at deleted or deactivated accounts are logged out.
func LoadUser(users UserLoader, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := session.FromContext(r.Context())
			id := s.UserID()
			if id == 0 {
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.GetByID(r.Context(), id)
			switch {
			case err == nil && user.IsActive:
				r = r.WithContext(WithUser(r.Context(), user))
			case err == nil || errors.Is(err, models.ErrUserNotFound):
				s.SetUserID(0)
			default:
				log.Error("failed to load session user", zap.Uint("user_id", id), zap.Error(err))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CSRF rejects unsafe requests that do not echo the session's token, or that come from another
// origin. The token is read from the csrf_token form field or the X-CSRF-Token header.
func CSRF(rd *Renderer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				next.ServeHTTP(w, r)
				return
			}

			if !sameOrigin(r) {
				rd.Error(w, r, errors.Forbidden("cross-origin request rejected"))
				return
			}

			expected, err := session.FromContext(r.Context()).CSRFToken()
			if err != nil {
				rd.Error(w, r, errors.Internal("failed to read csrf token", err))
				return
			}

			sent := r.Header.Get(CSRFHeader)
			if sent == "" {
				sent = r.PostFormValue(CSRFField)
			}
			if sent == "" || !security.Equal(sent, expected) {
				rd.Error(w, r, errors.Forbidden("invalid or missing CSRF token, please reload the page and try again"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// sameOrigin accepts requests whose Origin (or, failing that, Referer) names this host. Requests
// carrying neither header are left to the token check.
func sameOrigin(r *http.Request) bool {
	source := r.Header.Get("Origin")
	if source == "" {
		source = r.Header.Get("Referer")
	}
	if source == "" {
		return true
	}
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Host == r.Host
}

// RequireLogin sends anonymous visitors to the login page, or answers 401 on the API.
func RequireLogin(rd *Renderer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if CurrentUser(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}
			if IsAPI(r) {
				JSONError(w, rd.log, errors.Unauthorized("login required"))
				return
			}
			target := "/login?" + url.Values{"next": {r.URL.RequestURI()}}.Encode()
			Redirect(w, r, target, session.FlashInfo, "Please log in to continue.")
		})
	}
}

// RequireAdmin lets administrators through. Anyone else is sent home with a flash, or gets 403 on
// the API. Anonymous visitors are handled as by RequireLogin.
func RequireAdmin(rd *Renderer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return RequireLogin(rd)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if CurrentUser(r.Context()).IsAdmin() {
				next.ServeHTTP(w, r)
				return
			}
			if IsAPI(r) {
				JSONError(w, rd.log, errors.Forbidden("administrator access required"))
				return
			}
			Redirect(w, r, "/", session.FlashError, "You do not have access to that page.")
		}))
	}
}
