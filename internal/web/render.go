package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/errors"
	"github.com/mytheresa/go-storefront/internal/session"
	"github.com/mytheresa/go-storefront/internal/validation"
)

//go:embed templates
var templateFS embed.FS

const layoutFile = "layout.html"

// RendererConfig holds values shared by every page.
type RendererConfig struct {
	AppName          string
	RecaptchaSiteKey string
	// Debug shows underlying errors on error pages. Only for local development.
	Debug bool
}

// Renderer renders embedded html/template pages through templ handlers.
type Renderer struct {
	pages map[string]*template.Template
	cfg   RendererConfig
	log   *zap.Logger
}

var funcs = template.FuncMap{
	"money": FormatPrice,
	"date": func(t time.Time) string {
		return t.Format("02 Jan 2006 15:04")
	},
	"datePtr": func(t *time.Time) string {
		if t == nil {
			return "never"
		}
		return t.Format("02 Jan 2006 15:04")
	},
	"add": func(a, b int) int { return a + b },
}

// NewRenderer parses the layout and every page template.
func NewRenderer(cfg RendererConfig, log *zap.Logger) (*Renderer, error) {
	layout, err := template.New(layoutFile).Funcs(funcs).ParseFS(templateFS, "templates/"+layoutFile, "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	pages := make(map[string]*template.Template, len(files))
	for _, file := range files {
		name := path.Base(file)
		if name == layoutFile {
			continue
		}
		t, err := template.Must(layout.Clone()).ParseFS(templateFS, file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		pages[strings.TrimSuffix(name, ".html")] = t
	}

	return &Renderer{pages: pages, cfg: cfg, log: log}, nil
}

// HTML renders page with status. The view is completed with the session's user, CSRF token and
// pending flashes.
func (rd *Renderer) HTML(w http.ResponseWriter, r *http.Request, status int, page string, v View) {
	t, ok := rd.pages[page]
	if !ok {
		rd.log.Error("unknown page template", zap.String("page", page))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	s := session.FromContext(r.Context())
	token, err := s.CSRFToken()
	if err != nil {
		rd.log.Error("failed to create csrf token", zap.Error(err))
	}

	v.AppName = rd.cfg.AppName
	v.RecaptchaSiteKey = rd.cfg.RecaptchaSiteKey
	v.Path = r.URL.Path
	v.User = CurrentUser(r.Context())
	v.CSRFToken = token
	v.Flashes = s.PopFlashes()
	v.Status = status

	templ.Handler(templ.FromGoHTML(t, v), templ.WithStatus(status)).ServeHTTP(w, r)
}

// Error renders err as an error page, or as JSON for API requests. Server errors are logged; in
// debug mode the underlying error is shown.
func (rd *Renderer) Error(w http.ResponseWriter, r *http.Request, err error) {
	if IsAPI(r) {
		JSONError(w, rd.log, err)
		return
	}

	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rd.log.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
	}

	v := View{
		Title: http.StatusText(status),
		Alert: errors.PublicMessage(err),
	}
	if rd.cfg.Debug {
		v.Debug = fmt.Sprintf("%+v", err)
	}
	rd.HTML(w, r, status, "error", v)
}

// FormError re-renders a form page with the submitted values and the error's field messages.
// Server errors go to Error instead.
func (rd *Renderer) FormError(w http.ResponseWriter, r *http.Request, page string, v View, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rd.Error(w, r, err)
		return
	}
	if v.Form == nil {
		v.Form = r.PostForm
	}
	v.Errors = validation.FieldErrors(err)
	v.Alert = errors.PublicMessage(err)
	rd.HTML(w, r, status, page, v)
}

// NotFound renders the 404 page.
func (rd *Renderer) NotFound(w http.ResponseWriter, r *http.Request) {
	rd.Error(w, r, errors.NotFound("The page you are looking for does not exist."))
}

// Redirect sends a 303 to target with a flash message.
func Redirect(w http.ResponseWriter, r *http.Request, target, kind, message string) {
	if message != "" {
		session.FromContext(r.Context()).AddFlash(kind, message)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// IsAPI reports whether r targets the JSON API.
func IsAPI(r *http.Request) bool {
	return r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/")
}

// SafeNext returns next when it is a local absolute path, fallback otherwise.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}
