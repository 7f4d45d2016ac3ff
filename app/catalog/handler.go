// Package catalog serves the public product listing and product pages, as HTML and JSON.
package catalog

import (
	"context"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/errors"
	"github.com/mytheresa/go-storefront/internal/web"
	"github.com/mytheresa/go-storefront/models"
)

const (
	defaultLimit = 10
	maxLimit     = 100
	homeProducts = 8
)

type Response struct {
	Total    int64     `json:"total"`
	Offset   int       `json:"offset"`
	Limit    int       `json:"limit"`
	Products []Product `json:"products"`
}

type Price struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Formatted string          `json:"formatted"`
}

func newPrice(amount decimal.Decimal, currency string) Price {
	return Price{Amount: amount, Currency: currency, Formatted: web.FormatPrice(amount, currency)}
}

type Category struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type Tag struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Product struct {
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	Price      Price      `json:"price"`
	Image      string     `json:"image,omitempty"`
	Categories []Category `json:"categories"`
	Tags       []Tag      `json:"tags"`
}

type Variant struct {
	Name  string `json:"name"`
	SKU   string `json:"sku"`
	Price Price  `json:"price"`
}

// ProductDetail is a single product with its variants and rendered description.
type ProductDetail struct {
	Product
	Stock           int           `json:"stock"`
	Description     string        `json:"description"`
	DescriptionHTML template.HTML `json:"description_html"`
	Variants        []Variant     `json:"variants"`
}

type ProductProvider interface {
	GetFilteredProducts(ctx context.Context, offset, limit int, filters models.ProductFilters) ([]models.Product, int64, error)
	GetByCode(ctx context.Context, code string) (*models.Product, error)
}

type CategoryLister interface {
	GetAllCategories(ctx context.Context) ([]models.Category, error)
}

// DescriptionRenderer turns a markdown description into safe HTML.
type DescriptionRenderer interface {
	Render(source string) (template.HTML, error)
}

type CatalogHandler struct {
	repo       ProductProvider
	categories CategoryLister
	markup     DescriptionRenderer
	render     *web.Renderer
	log        *zap.Logger
}

func NewCatalogHandler(r ProductProvider, categories CategoryLister, markup DescriptionRenderer, render *web.Renderer, log *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		repo:       r,
		categories: categories,
		markup:     markup,
		render:     render,
		log:        log,
	}
}

type listQuery struct {
	offset  int
	limit   int
	filters models.ProductFilters
	// priceLT echoes the submitted price_lt back into the filter form.
	priceLT string
}

// parseListQuery reads pagination and filters. Invalid values fall back to defaults; limit is
// clamped to 1..100.
func parseListQuery(r *http.Request) listQuery {
	q := r.URL.Query()
	lq := listQuery{limit: defaultLimit}

	if oStr := q.Get("offset"); oStr != "" {
		if o, err := strconv.Atoi(oStr); err == nil && o >= 0 {
			lq.offset = o
		}
	}

	if lStr := q.Get("limit"); lStr != "" {
		if l, err := strconv.Atoi(lStr); err == nil {
			lq.limit = min(max(l, 1), maxLimit)
		}
	}

	lq.filters = models.ProductFilters{
		CategoryCode: strings.TrimSpace(q.Get("category")),
		TagSlug:      strings.TrimSpace(q.Get("tag")),
		Search:       strings.TrimSpace(q.Get("q")),
		OnlyActive:   true,
	}
	if priceStr := q.Get("price_lt"); priceStr != "" {
		if val, err := strconv.ParseFloat(priceStr, 64); err == nil && val > 0 {
			lq.filters.PriceLessThan = &val
			lq.priceLT = priceStr
		}
	}
	return lq
}

func (h *CatalogHandler) list(r *http.Request, lq listQuery) ([]Product, int64, error) {
	res, total, err := h.repo.GetFilteredProducts(r.Context(), lq.offset, lq.limit, lq.filters)
	if err != nil {
		return nil, 0, errors.Internal("failed to get products", err)
	}

	products := make([]Product, len(res))
	for i, p := range res {
		products[i] = toProduct(p)
	}
	return products, total, nil
}

// HandleGet serves the JSON product listing.
func (h *CatalogHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	lq := parseListQuery(r)
	products, total, err := h.list(r, lq)
	if err != nil {
		web.JSONError(w, h.log, err)
		return
	}

	web.JSON(w, http.StatusOK, Response{
		Total:    total,
		Offset:   lq.offset,
		Limit:    lq.limit,
		Products: products,
	})
}

type listPage struct {
	Filters       models.ProductFilters
	PriceLessThan string
	Categories    []models.Category
	Products      []Product
	Pager         web.Pager
}

// HandleList renders the product listing page.
func (h *CatalogHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	lq := parseListQuery(r)
	products, total, err := h.list(r, lq)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}

	categories, err := h.categories.GetAllCategories(r.Context())
	if err != nil {
		h.log.Warn("failed to load categories", zap.Error(err))
	}

	h.render.HTML(w, r, http.StatusOK, "products", web.View{
		Title: "Products",
		Data: listPage{
			Filters:       lq.filters,
			PriceLessThan: lq.priceLT,
			Categories:    categories,
			Products:      products,
			Pager:         web.NewPager(r.URL, lq.offset, lq.limit, total),
		},
	})
}

// HandleHome renders the landing page with the newest products.
func (h *CatalogHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	products, _, err := h.repo.GetFilteredProducts(r.Context(), 0, homeProducts, models.ProductFilters{OnlyActive: true})
	if err != nil {
		h.render.Error(w, r, errors.Internal("failed to get products", err))
		return
	}
	h.render.HTML(w, r, http.StatusOK, "home", web.View{Data: products})
}

func (h *CatalogHandler) detail(r *http.Request) (*ProductDetail, error) {
	code := chi.URLParam(r, "code")
	if code == "" {
		return nil, errors.NotFound("product not found")
	}

	product, err := h.repo.GetByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, models.ErrProductNotFound) {
			return nil, errors.NotFound("product not found")
		}
		return nil, errors.Internal("failed to retrieve product", err)
	}
	// Inactive products are only visible in the admin.
	if !product.IsActive {
		return nil, errors.NotFound("product not found")
	}

	description, err := h.markup.Render(product.Description)
	if err != nil {
		return nil, errors.Internal("failed to render description", err)
	}

	variants := make([]Variant, len(product.Variants))
	for i, v := range product.Variants {
		variants[i] = Variant{
			Name:  v.Name,
			SKU:   v.SKU,
			Price: newPrice(v.EffectivePrice(*product), product.Currency),
		}
	}

	return &ProductDetail{
		Product:         toProduct(*product),
		Stock:           product.Stock,
		Description:     product.Description,
		DescriptionHTML: description,
		Variants:        variants,
	}, nil
}

// HandleGetProduct serves a single product as JSON.
func (h *CatalogHandler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.detail(r)
	if err != nil {
		web.JSONError(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, product)
}

// HandleProduct renders the product page.
func (h *CatalogHandler) HandleProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.detail(r)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}
	h.render.HTML(w, r, http.StatusOK, "product", web.View{Title: product.Name, Data: product})
}

// HandleCategories lists every category as JSON.
func (h *CatalogHandler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.GetAllCategories(r.Context())
	if err != nil {
		web.JSONError(w, h.log, errors.Internal("failed to fetch categories", err))
		return
	}

	response := make([]Category, len(categories))
	for i, c := range categories {
		response[i] = Category{Code: c.Code, Name: c.Name}
	}
	web.JSON(w, http.StatusOK, response)
}

func toProduct(p models.Product) Product {
	categories := make([]Category, len(p.Categories))
	for i, c := range p.Categories {
		categories[i] = Category{Code: c.Code, Name: c.Name}
	}
	tags := make([]Tag, len(p.Tags))
	for i, t := range p.Tags {
		tags[i] = Tag{Name: t.Name, Slug: t.Slug}
	}

	return Product{
		Code:       p.Code,
		Name:       p.Name,
		Price:      newPrice(p.Price, p.Currency),
		Image:      p.ImagePath,
		Categories: categories,
		Tags:       tags,
	}
}
