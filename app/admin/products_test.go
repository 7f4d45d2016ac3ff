package admin

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mytheresa/go-storefront/internal/markup"
	"github.com/mytheresa/go-storefront/internal/session"
	"github.com/mytheresa/go-storefront/internal/testutil"
	"github.com/mytheresa/go-storefront/internal/upload"
	"github.com/mytheresa/go-storefront/internal/validation"
	"github.com/mytheresa/go-storefront/internal/web"
	"github.com/mytheresa/go-storefront/models"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// --- Mock Activity ---

type recordedActivity struct {
	Action   string
	Target   string
	TargetID uint
	Details  string
}

type MockActivity struct {
	Entries []recordedActivity
}

func (m *MockActivity) Record(_ *http.Request, action, target string, targetID uint, details string) {
	m.Entries = append(m.Entries, recordedActivity{Action: action, Target: target, TargetID: targetID, Details: details})
}

// --- Fixture ---

type productsFixture struct {
	db       *gorm.DB
	handler  *ProductsHandler
	products *models.ProductsRepository
	images   *upload.Store
	activity *MockActivity
	shoes    models.Category
	bags     models.Category
}

func newRenderer(t *testing.T) *web.Renderer {
	t.Helper()
	render, err := web.NewRenderer(web.RendererConfig{AppName: "Storefront"}, zap.NewNop())
	require.NoError(t, err)
	return render
}

func newProductsFixture(t *testing.T) *productsFixture {
	t.Helper()
	db := testutil.NewDB(t)
	images, err := upload.NewStore(t.TempDir(), 1<<20)
	require.NoError(t, err)

	fx := &productsFixture{
		db:       db,
		products: models.NewProductsRepository(db),
		images:   images,
		activity: &MockActivity{},
		shoes:    models.Category{Code: "shoes", Name: "Shoes"},
		bags:     models.Category{Code: "bags", Name: "Bags"},
	}
	require.NoError(t, db.Create(&fx.shoes).Error)
	require.NoError(t, db.Create(&fx.bags).Error)

	fx.handler = NewProductsHandler(
		fx.products,
		models.NewCategoriesRepository(db),
		images,
		markup.New(),
		validation.New(),
		fx.activity,
		newRenderer(t),
		testutil.NewLogger(t),
	)
	return fx
}

func (fx *productsFixture) seed(t *testing.T, code string) *models.Product {
	t.Helper()
	p := &models.Product{
		Code:       code,
		Name:       "Product " + code,
		Price:      decimal.RequireFromString("10.00"),
		Currency:   models.DefaultCurrency,
		IsActive:   true,
		Categories: []models.Category{fx.shoes},
	}
	require.NoError(t, fx.products.Create(context.Background(), p))
	return p
}

func validProductForm(overrides map[string]string) url.Values {
	form := url.Values{
		"code":        {"BAG-01"},
		"name":        {"Leather bag"},
		"description": {"Soft **calf** leather"},
		"price":       {"149.90"},
		"currency":    {"EUR"},
		"stock":       {"5"},
		"is_active":   {"1"},
		"tags":        {"Leather, new , leather"},
	}
	for k, v := range overrides {
		form.Set(k, v)
	}
	return form
}

// withAdminRequest attaches a session and an id route param to req.
func withAdminRequest(req *http.Request, id string) (*http.Request, *session.Session) {
	s := session.New()
	ctx := session.WithSession(req.Context(), s)
	ctx = web.WithUser(ctx, &models.User{ID: 1, Username: "root", Role: models.RoleAdmin, IsActive: true})
	if id != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx), s
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func postMultipart(t *testing.T, target string, form url.Values, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for key, values := range form {
		for _, v := range values {
			require.NoError(t, mw.WriteField(key, v))
		}
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func storedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

// --- Tests ---

func TestProductsHandleCreate(t *testing.T) {
	fx := newProductsFixture(t)

	form := validProductForm(nil)
	form.Add("category_id", formatID(fx.bags.ID))
	form.Add("category_id", formatID(fx.bags.ID))
	req, s := withAdminRequest(postMultipart(t, "/admin/products", form, pngHeader), "")
	rec := httptest.NewRecorder()

	fx.handler.HandleCreate(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/admin/products", rec.Header().Get("Location"))
	assert.Equal(t, []session.Flash{{Kind: session.FlashSuccess, Message: "Product BAG-01 created."}}, s.PopFlashes())

	stored, err := fx.products.GetByCode(context.Background(), "BAG-01")
	require.NoError(t, err)
	assert.Equal(t, "Leather bag", stored.Name)
	assert.True(t, decimal.RequireFromString("149.90").Equal(stored.Price))
	assert.Equal(t, 5, stored.Stock)
	assert.True(t, stored.IsActive)
	require.Len(t, stored.Categories, 1)
	assert.Equal(t, "bags", stored.Categories[0].Code)
	require.Len(t, stored.Tags, 2, "duplicate tag names collapse")
	assert.True(t, strings.HasPrefix(stored.ImagePath, upload.URLPrefix))
	assert.Len(t, storedFiles(t, fx.images.Dir()), 1)

	require.Len(t, fx.activity.Entries, 1)
	assert.Equal(t, recordedActivity{Action: "create", Target: "product", TargetID: stored.ID, Details: "BAG-01"}, fx.activity.Entries[0])
}

func TestProductsHandleCreateRejects(t *testing.T) {
	testCases := []struct {
		name           string
		overrides      map[string]string
		categoryID     string
		image          []byte
		expectedStatus int
		expectedField  string
	}{
		{name: "Missing name", overrides: map[string]string{"name": ""}, expectedStatus: http.StatusBadRequest, expectedField: "name"},
		{name: "Code with spaces", overrides: map[string]string{"code": "BAG 01"}, expectedStatus: http.StatusBadRequest, expectedField: "code"},
		{name: "Zero price", overrides: map[string]string{"price": "0"}, expectedStatus: http.StatusBadRequest, expectedField: "price"},
		{name: "Too many decimals", overrides: map[string]string{"price": "1.999"}, expectedStatus: http.StatusBadRequest, expectedField: "price"},
		{name: "Price not a number", overrides: map[string]string{"price": "cheap"}, expectedStatus: http.StatusBadRequest, expectedField: "price"},
		{name: "Price beyond the column", overrides: map[string]string{"price": "100000000"}, expectedStatus: http.StatusBadRequest, expectedField: "price"},
		{name: "Negative stock", overrides: map[string]string{"stock": "-1"}, expectedStatus: http.StatusBadRequest, expectedField: "stock"},
		{name: "Unknown currency", overrides: map[string]string{"currency": "JPY"}, expectedStatus: http.StatusBadRequest, expectedField: "currency"},
		{name: "Tag without letters", overrides: map[string]string{"tags": "!!!"}, expectedStatus: http.StatusBadRequest, expectedField: "tags"},
		{name: "Tag too long", overrides: map[string]string{"tags": strings.Repeat("a", 51)}, expectedStatus: http.StatusBadRequest, expectedField: "tags"},
		{name: "Unknown category", categoryID: "999", expectedStatus: http.StatusBadRequest, expectedField: "category_id"},
		{name: "Not an image", image: []byte("plain text file"), expectedStatus: http.StatusBadRequest, expectedField: "image"},
		{name: "Duplicate code", overrides: map[string]string{"code": "TAKEN"}, expectedStatus: http.StatusConflict, expectedField: "code"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newProductsFixture(t)
			fx.seed(t, "TAKEN")

			form := validProductForm(tc.overrides)
			if tc.categoryID != "" {
				form.Add("category_id", tc.categoryID)
			}
			req, _ := withAdminRequest(postMultipart(t, "/admin/products", form, tc.image), "")
			rec := httptest.NewRecorder()

			fx.handler.HandleCreate(rec, req)

			assert.Equal(t, tc.expectedStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), `class="field-error"`)
			assert.Contains(t, rec.Body.String(), `name="`+tc.expectedField+`"`)
			assert.Empty(t, fx.activity.Entries)
			assert.Empty(t, storedFiles(t, fx.images.Dir()), "no image is left behind")

			var count int64
			require.NoError(t, fx.db.Model(&models.Product{}).Count(&count).Error)
			assert.EqualValues(t, 1, count)

			var tags int64
			require.NoError(t, fx.db.Model(&models.Tag{}).Count(&tags).Error)
			assert.Zero(t, tags, "no tag is left behind")
		})
	}
}

func TestProductsHandleCreateTagNames(t *testing.T) {
	fx := newProductsFixture(t)
	existing := models.Tag{Name: "Leather", Slug: "leather"}
	require.NoError(t, fx.db.Create(&existing).Error)

	accented := strings.Repeat("é", 40)
	form := validProductForm(map[string]string{"tags": "leather, " + accented + ", Leather!"})
	req, _ := withAdminRequest(postForm("/admin/products", form), "")
	rec := httptest.NewRecorder()

	fx.handler.HandleCreate(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	stored, err := fx.products.GetByCode(context.Background(), "BAG-01")
	require.NoError(t, err)
	require.Len(t, stored.Tags, 2, "names sharing a slug collapse onto one tag")

	names := []string{stored.Tags[0].Name, stored.Tags[1].Name}
	assert.ElementsMatch(t, []string{"Leather", accented}, names)

	var count int64
	require.NoError(t, fx.db.Model(&models.Tag{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestProductsHandleUpdate(t *testing.T) {
	fx := newProductsFixture(t)
	existing := fx.seed(t, "SHOE-01")

	create, _ := withAdminRequest(postMultipart(t, "/admin/products/"+formatID(existing.ID), validProductForm(map[string]string{"code": "SHOE-01"}), pngHeader), formatID(existing.ID))
	rec := httptest.NewRecorder()
	fx.handler.HandleUpdate(rec, create)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	withImage, err := fx.products.GetByID(context.Background(), existing.ID)
	require.NoError(t, err)
	require.NotEmpty(t, withImage.ImagePath)
	assert.Empty(t, withImage.Categories, "unticked categories are unlinked")

	t.Run("Replacing the image removes the old file", func(t *testing.T) {
		req, _ := withAdminRequest(postMultipart(t, "/admin/products/x", validProductForm(map[string]string{"code": "SHOE-01"}), pngHeader), formatID(existing.ID))
		rec := httptest.NewRecorder()
		fx.handler.HandleUpdate(rec, req)
		require.Equal(t, http.StatusSeeOther, rec.Code)

		updated, err := fx.products.GetByID(context.Background(), existing.ID)
		require.NoError(t, err)
		assert.NotEqual(t, withImage.ImagePath, updated.ImagePath)
		assert.Equal(t, []string{filepath.Base(updated.ImagePath)}, storedFiles(t, fx.images.Dir()))
	})

	t.Run("Remove image", func(t *testing.T) {
		form := validProductForm(map[string]string{"code": "SHOE-01", "remove_image": "1", "is_active": ""})
		req, _ := withAdminRequest(postForm("/admin/products/x", form), formatID(existing.ID))
		rec := httptest.NewRecorder()
		fx.handler.HandleUpdate(rec, req)
		require.Equal(t, http.StatusSeeOther, rec.Code)

		updated, err := fx.products.GetByID(context.Background(), existing.ID)
		require.NoError(t, err)
		assert.Empty(t, updated.ImagePath)
		assert.False(t, updated.IsActive)
		assert.Empty(t, storedFiles(t, fx.images.Dir()))
	})

	t.Run("Unknown product", func(t *testing.T) {
		req, _ := withAdminRequest(postForm("/admin/products/404", validProductForm(nil)), "404")
		rec := httptest.NewRecorder()
		fx.handler.HandleUpdate(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	assert.Len(t, fx.activity.Entries, 3)
}

func TestProductsHandleDelete(t *testing.T) {
	fx := newProductsFixture(t)
	existing := fx.seed(t, "GONE")

	req, s := withAdminRequest(httptest.NewRequest(http.MethodPost, "/admin/products/x/delete", nil), formatID(existing.ID))
	rec := httptest.NewRecorder()
	fx.handler.HandleDelete(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "Product GONE deleted.", s.PopFlashes()[0].Message)
	_, err := fx.products.GetByID(context.Background(), existing.ID)
	assert.ErrorIs(t, err, models.ErrProductNotFound)
	assert.Equal(t, "delete", fx.activity.Entries[0].Action)

	rec = httptest.NewRecorder()
	fx.handler.HandleDelete(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductsPages(t *testing.T) {
	fx := newProductsFixture(t)
	existing := fx.seed(t, "SHOE-01")
	fx.seed(t, "SHOE-02")

	t.Run("List with search", func(t *testing.T) {
		req, _ := withAdminRequest(httptest.NewRequest(http.MethodGet, "/admin/products?q=02", nil), "")
		rec := httptest.NewRecorder()
		fx.handler.HandleList(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "SHOE-02")
		assert.NotContains(t, rec.Body.String(), "SHOE-01")
	})

	t.Run("New form", func(t *testing.T) {
		req, _ := withAdminRequest(httptest.NewRequest(http.MethodGet, "/admin/products/new", nil), "")
		rec := httptest.NewRecorder()
		fx.handler.HandleNew(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `action="/admin/products"`)
		assert.Contains(t, body, `enctype="multipart/form-data"`)
		assert.Contains(t, body, `<option value="EUR" selected>`)
	})

	t.Run("Edit form is prefilled", func(t *testing.T) {
		req, _ := withAdminRequest(httptest.NewRequest(http.MethodGet, "/admin/products/x/edit", nil), formatID(existing.ID))
		rec := httptest.NewRecorder()
		fx.handler.HandleEdit(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "Edit SHOE-01")
		assert.Contains(t, body, `value="10.00"`)
		assert.Contains(t, body, `value="`+formatID(fx.shoes.ID)+`" checked`)
	})

	t.Run("Edit with a malformed id", func(t *testing.T) {
		req, _ := withAdminRequest(httptest.NewRequest(http.MethodGet, "/admin/products/abc/edit", nil), "abc")
		rec := httptest.NewRecorder()
		fx.handler.HandleEdit(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
