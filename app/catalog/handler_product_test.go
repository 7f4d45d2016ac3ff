package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/web"
	"github.com/mytheresa/go-storefront/models"
)

// --- Mock Markup ---

type failingMarkup struct{}

func (failingMarkup) Render(string) (template.HTML, error) {
	return "", errors.New("broken markdown")
}

// --- Helpers ---

func withCode(req *http.Request, code string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("code", code)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func productFixtures() []models.Product {
	return []models.Product{
		{
			Code:        "PROD001",
			Name:        "Linen Shirt",
			Description: "Soft **linen**.\n\n<script>alert(1)</script>",
			Price:       decimal.NewFromFloat(15.50),
			Currency:    "EUR",
			Stock:       3,
			IsActive:    true,
			Categories:  []models.Category{{Code: "clothing", Name: "Clothing"}},
			Tags:        []models.Tag{{Name: "Summer Sale", Slug: "summer-sale"}},
			Variants: []models.Variant{
				{Name: "Red Small", SKU: "SKU001-A", Price: decimal.Decimal{}}, // empty, should inherit
				{Name: "Red Medium", SKU: "SKU001-B", Price: decimal.NewFromFloat(17.75)},
			},
		},
		{
			Code:       "PROD100",
			Name:       "Sneaker",
			Price:      decimal.NewFromFloat(30.00),
			Currency:   "CHF",
			IsActive:   true,
			Categories: []models.Category{{Code: "shoes", Name: "Shoes"}},
			Variants:   []models.Variant{},
		},
		{
			Code:     "PROD300",
			Name:     "Hidden",
			Price:    decimal.NewFromFloat(9),
			IsActive: false,
		},
	}
}

// --- Tests ---

func TestHandleGetProduct(t *testing.T) {
	testCases := []struct {
		name               string
		productCode        string
		mockRepoSetup      func() *MockProductRepo
		expectedStatusCode int
		checkResponse      func(t *testing.T, rec *httptest.ResponseRecorder)
		checkRepoCall      func(t *testing.T, repo *MockProductRepo)
	}{
		{
			name:        "Success with variants and price inheritance",
			productCode: "PROD001",
			mockRepoSetup: func() *MockProductRepo {
				return &MockProductRepo{SourceProducts: productFixtures()}
			},
			expectedStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var resp ProductDetail
				err := json.NewDecoder(rec.Body).Decode(&resp)
				assert.NoError(t, err)
				assert.Equal(t, "PROD001", resp.Code)
				assert.Equal(t, "€15.50", resp.Price.Formatted)
				assert.Equal(t, 3, resp.Stock)
				assert.Len(t, resp.Variants, 2)
				assert.Equal(t, "€15.50", resp.Variants[0].Price.Formatted, "Variant should inherit product price")
				assert.Equal(t, "€17.75", resp.Variants[1].Price.Formatted, "Variant should have its own price")
				assert.True(t, decimal.NewFromFloat(17.75).Equal(resp.Variants[1].Price.Amount))

				want := Product{
					Code:       "PROD001",
					Name:       "Linen Shirt",
					Categories: []Category{{Code: "clothing", Name: "Clothing"}},
					Tags:       []Tag{{Name: "Summer Sale", Slug: "summer-sale"}},
				}
				got := resp.Product
				got.Price = Price{}
				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("product mismatch (-want +got):\n%s", diff)
				}
			},
			checkRepoCall: func(t *testing.T, repo *MockProductRepo) {
				assert.Equal(t, "PROD001", repo.lastCalledCode)
			},
		},
		{
			name:        "Description is rendered and sanitized",
			productCode: "PROD001",
			mockRepoSetup: func() *MockProductRepo {
				return &MockProductRepo{SourceProducts: productFixtures()}
			},
			expectedStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var resp ProductDetail
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.Contains(t, string(resp.DescriptionHTML), "<strong>linen</strong>")
				assert.NotContains(t, string(resp.DescriptionHTML), "<script>")
			},
		},
		{
			name:        "Product not found",
			productCode: "NONEXISTENT",
			mockRepoSetup: func() *MockProductRepo {
				return &MockProductRepo{SourceProducts: productFixtures()}
			},
			expectedStatusCode: http.StatusNotFound,
			checkResponse: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var errResp web.ErrorBody
				err := json.NewDecoder(rec.Body).Decode(&errResp)
				assert.NoError(t, err)
				assert.Equal(t, "product not found", errResp.Error)
				assert.EqualValues(t, "NOT_FOUND", errResp.Code)
			},
			checkRepoCall: func(t *testing.T, repo *MockProductRepo) {
				assert.Equal(t, "NONEXISTENT", repo.lastCalledCode)
			},
		},
		{
			name:        "Inactive product is hidden",
			productCode: "PROD300",
			mockRepoSetup: func() *MockProductRepo {
				return &MockProductRepo{SourceProducts: productFixtures()}
			},
			expectedStatusCode: http.StatusNotFound,
		},
		{
			name:        "Repository internal error",
			productCode: "PROD-ERR",
			mockRepoSetup: func() *MockProductRepo {
				return &MockProductRepo{Err: errors.New("db connection lost")}
			},
			expectedStatusCode: http.StatusInternalServerError,
			checkResponse: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var errResp web.ErrorBody
				err := json.NewDecoder(rec.Body).Decode(&errResp)
				assert.NoError(t, err)
				assert.NotContains(t, errResp.Error, "db connection lost")
			},
			checkRepoCall: func(t *testing.T, repo *MockProductRepo) {
				assert.Equal(t, "PROD-ERR", repo.lastCalledCode)
			},
		},
		{
			name:        "Product with no variants and a currency without symbol",
			productCode: "PROD100",
			mockRepoSetup: func() *MockProductRepo {
				return &MockProductRepo{SourceProducts: productFixtures()}
			},
			expectedStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var resp ProductDetail
				err := json.NewDecoder(rec.Body).Decode(&resp)
				assert.NoError(t, err)
				assert.Equal(t, "PROD100", resp.Code)
				assert.Equal(t, "30.00 CHF", resp.Price.Formatted)
				assert.Len(t, resp.Variants, 0)
			},
		},
		{
			name:        "Empty product code in path",
			productCode: "",
			mockRepoSetup: func() *MockProductRepo {
				return &MockProductRepo{SourceProducts: productFixtures()}
			},
			expectedStatusCode: http.StatusNotFound,
			checkRepoCall: func(t *testing.T, repo *MockProductRepo) {
				assert.Equal(t, "", repo.lastCalledCode, "repository is not consulted")
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			mockRepo := tc.mockRepoSetup()
			handler := newHandler(t, mockRepo, nil)
			req := withCode(httptest.NewRequest(http.MethodGet, "/api/products/"+tc.productCode, nil), tc.productCode)
			rec := httptest.NewRecorder()

			// Act
			handler.HandleGetProduct(rec, req)

			// Assert
			assert.Equal(t, tc.expectedStatusCode, rec.Code)

			if tc.checkResponse != nil {
				tc.checkResponse(t, rec)
			}

			if tc.checkRepoCall != nil {
				tc.checkRepoCall(t, mockRepo)
			}
		})
	}
}

func TestHandleGetProductMarkupFailure(t *testing.T) {
	render, err := web.NewRenderer(web.RendererConfig{AppName: "Storefront"}, zap.NewNop())
	require.NoError(t, err)
	handler := NewCatalogHandler(&MockProductRepo{SourceProducts: productFixtures()}, &MockCategoryRepo{}, failingMarkup{}, render, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.HandleGetProduct(rec, withCode(httptest.NewRequest(http.MethodGet, "/api/products/PROD001", nil), "PROD001"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleProduct(t *testing.T) {
	handler := newHandler(t, &MockProductRepo{SourceProducts: productFixtures()}, nil)

	t.Run("renders the product page", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.HandleProduct(rec, withCode(httptest.NewRequest(http.MethodGet, "/products/PROD001", nil), "PROD001"))

		assert.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "<h1>Linen Shirt</h1>")
		assert.Contains(t, body, "In stock")
		assert.Contains(t, body, "SKU001-B")
		assert.Contains(t, body, "<strong>linen</strong>")
		assert.Contains(t, body, `href="/products?tag=summer-sale"`)
		assert.NotContains(t, body, "alert(1)")
	})

	t.Run("unknown product renders the 404 page", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.HandleProduct(rec, withCode(httptest.NewRequest(http.MethodGet, "/products/NOPE", nil), "NOPE"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	})
}
