package web

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mytheresa/go-storefront/internal/session"
	"github.com/mytheresa/go-storefront/models"
)

// View is the data every page template receives. Handlers fill Title, Data and, for forms, Form
// and Errors; the Renderer fills the rest.
type View struct {
	AppName          string
	Title            string
	Path             string
	User             *models.User
	CSRFToken        string
	RecaptchaSiteKey string
	Flashes          []session.Flash
	Alert            string
	Form             url.Values
	Errors           map[string]string
	Data             any
	Status           int
	Debug            string
}

// Value returns the submitted value of a form field.
func (v View) Value(field string) string {
	if v.Form == nil {
		return ""
	}
	return v.Form.Get(field)
}

// Error returns the validation message of a form field.
func (v View) Error(field string) string {
	return v.Errors[field]
}

// IsAdmin reports whether the viewer is an administrator.
func (v View) IsAdmin() bool {
	return v.User != nil && v.User.IsAdmin()
}

// Active reports whether the current path falls under prefix, for navigation highlighting.
func (v View) Active(prefix string) bool {
	if prefix == "/" {
		return v.Path == "/"
	}
	return v.Path == prefix || strings.HasPrefix(v.Path, prefix+"/")
}

var currencySymbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
}

// FormatPrice renders an amount for display, e.g. "€1,299.00".
func FormatPrice(amount decimal.Decimal, currency string) string {
	fixed := amount.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, d := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(d)
	}

	if symbol, ok := currencySymbols[currency]; ok {
		return fmt.Sprintf("%s%s%s.%s", sign, symbol, grouped.String(), frac)
	}
	return fmt.Sprintf("%s%s.%s %s", sign, grouped.String(), frac, currency)
}

// Pager describes one page of an offset/limit listing.
type Pager struct {
	Offset int
	Limit  int
	Total  int64
	base   url.URL
}

// NewPager builds a Pager whose links keep the other query parameters of u.
func NewPager(u *url.URL, offset, limit int, total int64) Pager {
	return Pager{Offset: offset, Limit: limit, Total: total, base: *u}
}

func (p Pager) HasPrev() bool { return p.Offset > 0 }
func (p Pager) HasNext() bool { return int64(p.Offset+p.Limit) < p.Total }

// Page returns the 1-based page number.
func (p Pager) Page() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

// Pages returns the number of pages, at least one.
func (p Pager) Pages() int {
	if p.Limit <= 0 || p.Total == 0 {
		return 1
	}
	return int((p.Total + int64(p.Limit) - 1) / int64(p.Limit))
}

func (p Pager) PrevURL() string { return p.url(max(p.Offset-p.Limit, 0)) }
func (p Pager) NextURL() string { return p.url(p.Offset + p.Limit) }

func (p Pager) url(offset int) string {
	u := p.base
	q := u.Query()
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(p.Limit))
	u.RawQuery = q.Encode()
	return u.RequestURI()
}
