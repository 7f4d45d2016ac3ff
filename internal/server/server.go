// Package server assembles the storefront's chi router.
package server

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/app/account"
	"github.com/mytheresa/go-storefront/app/admin"
	"github.com/mytheresa/go-storefront/app/auth"
	"github.com/mytheresa/go-storefront/app/catalog"
	"github.com/mytheresa/go-storefront/app/categories"
	"github.com/mytheresa/go-storefront/app/contact"
	"github.com/mytheresa/go-storefront/internal/config"
	domain "github.com/mytheresa/go-storefront/internal/errors"
	"github.com/mytheresa/go-storefront/internal/logger"
	"github.com/mytheresa/go-storefront/internal/ratelimit"
	"github.com/mytheresa/go-storefront/internal/session"
	"github.com/mytheresa/go-storefront/internal/upload"
	"github.com/mytheresa/go-storefront/internal/web"
)

//go:embed static
var staticFS embed.FS

// formOverhead is the request body allowance on top of the largest accepted upload.
const formOverhead = 1 << 20

// Handlers groups the route handlers.
type Handlers struct {
	Auth       *auth.AuthHandler
	Catalog    *catalog.CatalogHandler
	Categories *categories.CategoryHandler
	Products   *admin.ProductsHandler
	Tags       *admin.TagsHandler
	Users      *admin.UsersHandler
	Activity   *admin.ActivityHandler
	Account    *account.AccountHandler
	Contact    *contact.ContactHandler
}

// Deps holds the middleware collaborators of the router.
type Deps struct {
	Sessions   *session.Manager
	Users      web.UserLoader
	Render     *web.Renderer
	Limiter    *ratelimit.KeyedRateLimiter
	CORS       config.CORSConfig
	UploadDir  string
	MaxUpload  int64
	Log        *zap.Logger
	// TrustProxy takes the client address from X-Forwarded-For or X-Real-IP.
	TrustProxy bool
}

// NewRouter wires every route. Requests pass through: request id, real ip (behind a trusted
// proxy only), logging, panic recovery, body limit, session, remember-me, current user, CSRF.
func NewRouter(h Handlers, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if d.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(logger.RequestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(d.MaxUpload + formOverhead))

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))
	r.Handle(upload.URLPrefix+"*", http.StripPrefix(upload.URLPrefix, http.FileServer(http.Dir(d.UploadDir))))

	r.Group(func(r chi.Router) {
		r.Use(d.Sessions.LoadAndSave)
		r.Use(h.Auth.RememberMe)
		r.Use(web.LoadUser(d.Users, d.Log))
		r.Use(web.CSRF(d.Render))

		throttled := ratelimit.Middleware(d.Limiter, d.Log, func(w http.ResponseWriter, r *http.Request) {
			d.Render.Error(w, r, domain.TooManyRequests("too many attempts, please wait a moment and try again"))
		})

		r.Get("/", h.Catalog.HandleHome)
		r.Get("/products", h.Catalog.HandleList)
		r.Get("/products/{code}", h.Catalog.HandleProduct)

		r.Get("/register", h.Auth.HandleRegisterForm)
		r.With(throttled).Post("/register", h.Auth.HandleRegister)
		r.Get("/activate", h.Auth.HandleActivate)
		r.Get("/login", h.Auth.HandleLoginForm)
		r.With(throttled).Post("/login", h.Auth.HandleLogin)
		r.Post("/logout", h.Auth.HandleLogout)
		r.Get("/forgot-password", h.Auth.HandleForgotPasswordForm)
		r.With(throttled).Post("/forgot-password", h.Auth.HandleForgotPassword)
		r.Get("/reset-password", h.Auth.HandleResetPasswordForm)
		r.With(throttled).Post("/reset-password", h.Auth.HandleResetPassword)

		r.Get("/contact", h.Contact.HandleForm)
		r.With(throttled).Post("/contact", h.Contact.HandleSubmit)

		r.Route("/account", func(r chi.Router) {
			r.Use(web.RequireLogin(d.Render))
			r.Get("/", h.Account.HandleShow)
			r.Post("/profile", h.Account.HandleProfile)
			r.Post("/password", h.Account.HandlePassword)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(web.RequireAdmin(d.Render))
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/admin/products", http.StatusSeeOther)
			})

			r.Get("/products", h.Products.HandleList)
			r.Get("/products/new", h.Products.HandleNew)
			r.Post("/products", h.Products.HandleCreate)
			r.Get("/products/{id}/edit", h.Products.HandleEdit)
			r.Post("/products/{id}", h.Products.HandleUpdate)
			r.Post("/products/{id}/delete", h.Products.HandleDelete)

			r.Get("/users", h.Users.HandleList)
			r.Get("/users/{id}/edit", h.Users.HandleEdit)
			r.Post("/users/{id}", h.Users.HandleUpdate)
			r.Post("/users/{id}/delete", h.Users.HandleDelete)

			r.Get("/activity", h.Activity.HandleList)
		})

		r.Route("/api", func(r chi.Router) {
			// Cross-origin callers may read the catalog. Writes stay same-origin through CSRF.
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: d.CORS.AllowedOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
				AllowedHeaders: []string{"Accept", "Content-Type"},
				MaxAge:         300,
			}))

			r.Get("/products", h.Catalog.HandleGet)
			r.Get("/products/{code}", h.Catalog.HandleGetProduct)
			r.Get("/categories", h.Catalog.HandleCategories)

			r.Group(func(r chi.Router) {
				r.Use(web.RequireAdmin(d.Render))
				r.Get("/admin/categories", h.Categories.HandleGetAll)
				r.Post("/admin/categories", h.Categories.HandleCreate)
				r.Put("/admin/categories/{code}", h.Categories.HandleUpdate)
				r.Delete("/admin/categories/{code}", h.Categories.HandleDelete)

				r.Get("/admin/tags", h.Tags.HandleList)
				r.Post("/admin/tags", h.Tags.HandleCreate)
				r.Put("/admin/tags/{id}", h.Tags.HandleUpdate)
				r.Delete("/admin/tags/{id}", h.Tags.HandleDelete)
			})
		})

		r.NotFound(d.Render.NotFound)
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			d.Render.Error(w, r, domain.NotFound("The page you are looking for does not exist."))
		})
	})

	return r
}
