package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"
	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/app/account"
	"github.com/mytheresa/go-storefront/app/admin"
	"github.com/mytheresa/go-storefront/app/auth"
	"github.com/mytheresa/go-storefront/app/catalog"
	"github.com/mytheresa/go-storefront/app/categories"
	"github.com/mytheresa/go-storefront/app/contact"
	"github.com/mytheresa/go-storefront/internal/audit"
	"github.com/mytheresa/go-storefront/internal/config"
	"github.com/mytheresa/go-storefront/internal/mailer"
	"github.com/mytheresa/go-storefront/internal/markup"
	"github.com/mytheresa/go-storefront/internal/ratelimit"
	"github.com/mytheresa/go-storefront/internal/recaptcha"
	"github.com/mytheresa/go-storefront/internal/server"
	"github.com/mytheresa/go-storefront/internal/session"
	"github.com/mytheresa/go-storefront/internal/upload"
	"github.com/mytheresa/go-storefront/internal/validation"
	"github.com/mytheresa/go-storefront/internal/web"
	"github.com/mytheresa/go-storefront/models"
)

func ProvideRenderer(i do.Injector) (*web.Renderer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*zap.Logger](i)

	return web.NewRenderer(web.RendererConfig{
		AppName:          cfg.App.Name,
		RecaptchaSiteKey: cfg.Recaptcha.SiteKey,
		Debug:            cfg.App.IsLocal(),
	}, log)
}

func ProvideSessionManager(i do.Injector) (*session.Manager, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*zap.Logger](i)

	return session.NewManager(do.MustInvoke[*models.SessionsRepository](i), session.Config{
		CookieName: cfg.Session.CookieName,
		Lifetime:   cfg.Session.Lifetime,
		Secure:     cfg.Session.Secure,
	}, log), nil
}

// ProvideHandlers builds every route handler.
func ProvideHandlers(i do.Injector) (server.Handlers, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*zap.Logger](i)

	users := do.MustInvoke[*models.UsersRepository](i)
	products := do.MustInvoke[*models.ProductsRepository](i)
	cats := do.MustInvoke[*models.CategoriesRepository](i)
	tags := do.MustInvoke[*models.TagsRepository](i)

	authService := do.MustInvoke[*auth.Service](i)
	render := do.MustInvoke[*web.Renderer](i)
	v := do.MustInvoke[*validation.Validator](i)
	md := do.MustInvoke[*markup.Renderer](i)
	activity := do.MustInvoke[*audit.Recorder](i)
	captcha := do.MustInvoke[*recaptcha.Client](i)

	return server.Handlers{
		Auth: auth.NewAuthHandler(authService, render, captcha, auth.CookieConfig{
			Name:   cfg.Auth.RememberMeCookie,
			TTL:    cfg.Auth.RememberMeTTL,
			Secure: cfg.Session.Secure,
		}, log.Named("auth")),
		Catalog:    catalog.NewCatalogHandler(products, cats, md, render, log.Named("catalog")),
		Categories: categories.NewCategoryHandler(cats, v, activity, log.Named("categories")),
		Products: admin.NewProductsHandler(
			products, cats, do.MustInvoke[*upload.Store](i), md, v, activity, render, log.Named("admin"),
		),
		Tags:     admin.NewTagsHandler(tags, md, v, activity, log.Named("admin")),
		Users:    admin.NewUsersHandler(users, v, activity, render, log.Named("admin")),
		Activity: admin.NewActivityHandler(do.MustInvoke[*models.ActivityRepository](i), render),
		Account:  account.NewAccountHandler(users, authService, md, v, render, log.Named("account")),
		Contact: contact.NewContactHandler(
			do.MustInvoke[*models.ContactRepository](i), do.MustInvoke[*mailer.Mailer](i), captcha, md, v, render, log.Named("contact"),
		),
	}, nil
}

// ProvideRouter provides the fully wired HTTP handler.
func ProvideRouter(i do.Injector) (http.Handler, error) {
	cfg := do.MustInvoke[*config.Config](i)
	images := do.MustInvoke[*upload.Store](i)

	return server.NewRouter(do.MustInvoke[server.Handlers](i), server.Deps{
		Sessions:   do.MustInvoke[*session.Manager](i),
		Users:      do.MustInvoke[*models.UsersRepository](i),
		Render:     do.MustInvoke[*web.Renderer](i),
		Limiter:    do.MustInvoke[*ratelimit.KeyedRateLimiter](i),
		CORS:       cfg.CORS,
		UploadDir:  images.Dir(),
		MaxUpload:  images.MaxBytes(),
		Log:        do.MustInvoke[*zap.Logger](i),
		TrustProxy: cfg.Server.TrustProxy,
	}), nil
}

// HTTPServerHandle wraps http.Server with shutdown capability.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.ShutdownerWithError.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer starts the HTTP server in the background.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*zap.Logger](i)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      do.MustInvoke[http.Handler](i),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
