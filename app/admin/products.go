// Package admin implements the back office: product, tag and user management and the activity log.
package admin

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/audit"
	"github.com/mytheresa/go-storefront/internal/errors"
	"github.com/mytheresa/go-storefront/internal/session"
	"github.com/mytheresa/go-storefront/internal/slug"
	"github.com/mytheresa/go-storefront/internal/validation"
	"github.com/mytheresa/go-storefront/internal/web"
	"github.com/mytheresa/go-storefront/models"
)

const (
	pageSize = 20
	// multipartMemory is the part of an upload kept in memory before spilling to disk.
	multipartMemory = 8 << 20
	// maxTagName matches the max=50 rule on TagInput; both count characters.
	maxTagName = 50
)

var productCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// maxPrice is the first value that no longer fits the decimal(10,2) price column.
var maxPrice = decimal.New(1, 8)

type ProductStore interface {
	GetFilteredProducts(ctx context.Context, offset, limit int, filters models.ProductFilters) ([]models.Product, int64, error)
	GetByID(ctx context.Context, id uint) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id uint) (*models.Product, error)
}

type CategoryStore interface {
	GetAllCategories(ctx context.Context) ([]models.Category, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.Category, error)
}

type TagStore interface {
	List(ctx context.Context) ([]models.Tag, error)
	GetByID(ctx context.Context, id uint) (*models.Tag, error)
	FindOrCreate(ctx context.Context, tag *models.Tag) (*models.Tag, bool, error)
	Update(ctx context.Context, tag *models.Tag) error
	Delete(ctx context.Context, id uint) error
}

// ImageStore persists product images and returns their public path.
type ImageStore interface {
	Save(r io.Reader) (string, error)
	Delete(publicPath string) error
}

// Sanitizer removes markup from plain-text input.
type Sanitizer interface {
	StripTags(s string) string
}

type ActivityRecorder interface {
	Record(r *http.Request, action, target string, targetID uint, details string)
}

type ProductsHandler struct {
	products   ProductStore
	categories CategoryStore
	images     ImageStore
	sanitizer  Sanitizer
	validator  *validation.Validator
	activity   ActivityRecorder
	render     *web.Renderer
	log        *zap.Logger
}

func NewProductsHandler(
	products ProductStore,
	categories CategoryStore,
	images ImageStore,
	sanitizer Sanitizer,
	v *validation.Validator,
	activity ActivityRecorder,
	render *web.Renderer,
	log *zap.Logger,
) *ProductsHandler {
	return &ProductsHandler{
		products:   products,
		categories: categories,
		images:     images,
		sanitizer:  sanitizer,
		validator:  v,
		activity:   activity,
		render:     render,
		log:        log,
	}
}

// ProductInput is the product form after sanitizing. Price and stock are parsed separately.
type ProductInput struct {
	Code        string `form:"code" validate:"required,max=64"`
	Name        string `form:"name" validate:"required,max=255"`
	Description string `form:"description" validate:"max=10000"`
	Currency    string `form:"currency" validate:"required,oneof=EUR USD GBP CHF"`
	Price       decimal.Decimal
	Stock       int
	IsActive    bool
	CategoryIDs []uint
	TagNames    []string
}

type productList struct {
	Products []models.Product
	Search   string
	Pager    web.Pager
}

func (h *ProductsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	offset := queryOffset(r)
	search := strings.TrimSpace(r.URL.Query().Get("q"))

	products, total, err := h.products.GetFilteredProducts(r.Context(), offset, pageSize, models.ProductFilters{Search: search})
	if err != nil {
		h.render.Error(w, r, errors.Internal("failed to list products", err))
		return
	}

	h.render.HTML(w, r, http.StatusOK, "admin_products", web.View{
		Title: "Products",
		Data: productList{
			Products: products,
			Search:   search,
			Pager:    web.NewPager(r.URL, offset, pageSize, total),
		},
	})
}

type productForm struct {
	Product    *models.Product
	Action     string
	Categories []models.Category
	Selected   map[uint]bool
}

func (h *ProductsHandler) HandleNew(w http.ResponseWriter, r *http.Request) {
	form := url.Values{"currency": {models.DefaultCurrency}, "stock": {"0"}, "is_active": {"1"}}
	h.renderForm(w, r, http.StatusOK, nil, web.View{Form: form})
}

func (h *ProductsHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	product, err := h.load(r)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}
	h.renderForm(w, r, http.StatusOK, product, web.View{Form: productValues(product)})
}

func (h *ProductsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	input, err := h.parse(r)
	if err != nil {
		h.formError(w, r, nil, err)
		return
	}

	product := &models.Product{}
	if err := h.apply(r, product, input); err != nil {
		h.formError(w, r, nil, err)
		return
	}
	if err := h.attachImage(r, product); err != nil {
		h.formError(w, r, nil, err)
		return
	}

	if err := h.products.Create(r.Context(), product); err != nil {
		h.discardImage(product.ImagePath)
		h.formError(w, r, nil, storeError(err))
		return
	}

	h.activity.Record(r, audit.ActionCreate, audit.TargetProduct, product.ID, product.Code)
	web.Redirect(w, r, "/admin/products", session.FlashSuccess, "Product "+product.Code+" created.")
}

func (h *ProductsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	product, err := h.load(r)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}

	input, err := h.parse(r)
	if err != nil {
		h.formError(w, r, product, err)
		return
	}

	previousImage := product.ImagePath
	if err := h.apply(r, product, input); err != nil {
		h.formError(w, r, product, err)
		return
	}
	if r.PostFormValue("remove_image") != "" {
		product.ImagePath = ""
	}
	if err := h.attachImage(r, product); err != nil {
		h.formError(w, r, product, err)
		return
	}

	if err := h.products.Update(r.Context(), product); err != nil {
		if product.ImagePath != previousImage {
			h.discardImage(product.ImagePath)
		}
		h.formError(w, r, product, storeError(err))
		return
	}
	if previousImage != "" && product.ImagePath != previousImage {
		h.discardImage(previousImage)
	}

	h.activity.Record(r, audit.ActionUpdate, audit.TargetProduct, product.ID, product.Code)
	web.Redirect(w, r, "/admin/products", session.FlashSuccess, "Product "+product.Code+" updated.")
}

func (h *ProductsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}

	product, err := h.products.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrProductNotFound) {
			h.render.Error(w, r, errors.NotFound("product not found"))
			return
		}
		h.render.Error(w, r, errors.Internal("failed to delete product", err))
		return
	}
	h.discardImage(product.ImagePath)

	h.activity.Record(r, audit.ActionDelete, audit.TargetProduct, product.ID, product.Code)
	web.Redirect(w, r, "/admin/products", session.FlashSuccess, "Product "+product.Code+" deleted.")
}

func (h *ProductsHandler) load(r *http.Request) (*models.Product, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	product, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrProductNotFound) {
			return nil, errors.NotFound("product not found")
		}
		return nil, errors.Internal("failed to load product", err)
	}
	return product, nil
}

// parse reads, sanitizes and validates the product form.
func (h *ProductsHandler) parse(r *http.Request) (ProductInput, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return ProductInput{}, errors.Validation("invalid form submission").WithCause(err)
	}

	input := ProductInput{
		Code:        h.sanitizer.StripTags(r.PostFormValue("code")),
		Name:        h.sanitizer.StripTags(r.PostFormValue("name")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
		Currency:    strings.ToUpper(strings.TrimSpace(r.PostFormValue("currency"))),
		IsActive:    r.PostFormValue("is_active") != "",
	}

	fields := map[string]string{}
	if err := h.validator.Validate(input); err != nil {
		fields = validation.FieldErrors(err)
		if fields == nil {
			return input, err
		}
	}
	if _, bad := fields["code"]; !bad && !productCodePattern.MatchString(input.Code) {
		fields["code"] = "may contain only letters, digits, hyphens and underscores"
	}

	price, err := decimal.NewFromString(strings.TrimSpace(r.PostFormValue("price")))
	switch {
	case err != nil:
		fields["price"] = "must be a number"
	case !price.IsPositive():
		fields["price"] = "must be greater than zero"
	case !price.Equal(price.Round(2)):
		fields["price"] = "must have at most two decimal places"
	case !price.LessThan(maxPrice):
		fields["price"] = "must be less than " + maxPrice.String()
	default:
		input.Price = price
	}

	stock, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("stock")))
	if err != nil || stock < 0 {
		fields["stock"] = "must be a whole number of zero or more"
	} else {
		input.Stock = stock
	}

	chosen := map[uint]bool{}
	for _, raw := range r.PostForm["category_id"] {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			fields["category_id"] = "contains an unknown category"
			break
		}
		if !chosen[uint(id)] {
			chosen[uint(id)] = true
			input.CategoryIDs = append(input.CategoryIDs, uint(id))
		}
	}

	seen := map[string]bool{}
	for _, name := range strings.Split(r.PostFormValue("tags"), ",") {
		name = h.sanitizer.StripTags(name)
		if name == "" {
			continue
		}
		key := slug.Make(name)
		if utf8.RuneCountInString(name) > maxTagName || key == "" {
			fields["tags"] = "tag names must be 1 to 50 characters and contain a letter or digit"
			break
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		input.TagNames = append(input.TagNames, name)
	}

	if len(fields) > 0 {
		return input, errors.Validation("please correct the highlighted fields").WithDetails(fields)
	}
	return input, nil
}

// apply copies input onto product, resolving categories by id. Tags are matched or created by
// the repository when the product is saved.
func (h *ProductsHandler) apply(r *http.Request, product *models.Product, input ProductInput) error {
	categories, err := h.categories.GetByIDs(r.Context(), input.CategoryIDs)
	if err != nil {
		return errors.Internal("failed to load categories", err)
	}
	if len(categories) != len(input.CategoryIDs) {
		return errors.Validation("please correct the highlighted fields").WithDetails(map[string]string{
			"category_id": "contains an unknown category",
		})
	}

	tags := make([]models.Tag, 0, len(input.TagNames))
	for _, name := range input.TagNames {
		tags = append(tags, models.Tag{Name: name, Slug: slug.Make(name)})
	}

	product.Code = input.Code
	product.Name = input.Name
	product.Description = input.Description
	product.Price = input.Price
	product.Currency = input.Currency
	product.Stock = input.Stock
	product.IsActive = input.IsActive
	product.Categories = categories
	product.Tags = tags
	return nil
}

// attachImage stores the uploaded "image" file, if any, and points the product at it.
func (h *ProductsHandler) attachImage(r *http.Request, product *models.Product) error {
	if r.MultipartForm == nil || len(r.MultipartForm.File["image"]) == 0 {
		return nil
	}
	header := r.MultipartForm.File["image"][0]
	if header.Size == 0 {
		return nil
	}

	f, err := header.Open()
	if err != nil {
		return errors.Internal("failed to read upload", err)
	}
	defer f.Close()

	path, err := h.images.Save(f)
	if err != nil {
		if errors.HTTPStatus(err) < http.StatusInternalServerError {
			return errors.Validation("please correct the highlighted fields").WithDetails(map[string]string{
				"image": errors.PublicMessage(err),
			})
		}
		return err
	}
	product.ImagePath = path
	return nil
}

func (h *ProductsHandler) discardImage(path string) {
	if path == "" {
		return
	}
	if err := h.images.Delete(path); err != nil {
		h.log.Warn("failed to remove product image", zap.String("path", path), zap.Error(err))
	}
}

func (h *ProductsHandler) formError(w http.ResponseWriter, r *http.Request, product *models.Product, err error) {
	if errors.HTTPStatus(err) >= http.StatusInternalServerError {
		h.render.Error(w, r, err)
		return
	}
	h.renderForm(w, r, errors.HTTPStatus(err), product, web.View{
		Form:   r.PostForm,
		Errors: validation.FieldErrors(err),
		Alert:  errors.PublicMessage(err),
	})
}

func (h *ProductsHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, product *models.Product, v web.View) {
	categories, err := h.categories.GetAllCategories(r.Context())
	if err != nil {
		h.render.Error(w, r, errors.Internal("failed to load categories", err))
		return
	}

	selected := map[uint]bool{}
	for _, raw := range v.Form["category_id"] {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			selected[uint(id)] = true
		}
	}

	data := productForm{Product: product, Action: "/admin/products", Categories: categories, Selected: selected}
	v.Title = "New product"
	if product != nil {
		data.Action = "/admin/products/" + formatID(product.ID)
		v.Title = "Edit " + product.Code
	}
	v.Data = data
	h.render.HTML(w, r, status, "admin_product_form", v)
}

// productValues fills the edit form from a stored product.
func productValues(p *models.Product) url.Values {
	form := url.Values{
		"code":        {p.Code},
		"name":        {p.Name},
		"description": {p.Description},
		"price":       {p.Price.StringFixed(2)},
		"currency":    {p.Currency},
		"stock":       {strconv.Itoa(p.Stock)},
	}
	if p.IsActive {
		form.Set("is_active", "1")
	}
	for _, c := range p.Categories {
		form.Add("category_id", formatID(c.ID))
	}
	names := make([]string, len(p.Tags))
	for i, t := range p.Tags {
		names[i] = t.Name
	}
	form.Set("tags", strings.Join(names, ", "))
	return form
}

func storeError(err error) error {
	if errors.Is(err, models.ErrDuplicate) {
		return errors.AlreadyExists("a product with this code already exists").WithDetails(map[string]string{
			"code": "is already used by another product",
		})
	}
	return errors.Internal("failed to save product", err)
}

func pathID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.NotFound("not found")
	}
	return uint(id), nil
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func queryOffset(r *http.Request) int {
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}
