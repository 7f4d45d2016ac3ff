package admin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mytheresa/go-storefront/internal/session"
	"github.com/mytheresa/go-storefront/internal/testutil"
	"github.com/mytheresa/go-storefront/internal/validation"
	"github.com/mytheresa/go-storefront/models"
)

// --- Mock Repository ---

type accessChange struct {
	ID     uint
	Role   string
	Active bool
}

type MockUserStore struct {
	Users       []models.User
	Admins      int64
	Err         error
	LastFilters models.UserFilters
	Updated     []accessChange
	Deleted     []uint
}

func (m *MockUserStore) GetByID(_ context.Context, id uint) (*models.User, error) {
	for _, u := range m.Users {
		if u.ID == id {
			user := u
			return &user, nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (m *MockUserStore) List(_ context.Context, offset, limit int, filters models.UserFilters) ([]models.User, int64, error) {
	m.LastFilters = filters
	if m.Err != nil {
		return nil, 0, m.Err
	}
	start := min(offset, len(m.Users))
	end := min(offset+limit, len(m.Users))
	return m.Users[start:end], int64(len(m.Users)), nil
}

func (m *MockUserStore) CountAdmins(_ context.Context) (int64, error) {
	return m.Admins, m.Err
}

func (m *MockUserStore) UpdateAccess(_ context.Context, id uint, role string, active bool) error {
	if m.Err != nil {
		return m.Err
	}
	m.Updated = append(m.Updated, accessChange{ID: id, Role: role, Active: active})
	return nil
}

func (m *MockUserStore) Delete(_ context.Context, id uint) error {
	if m.Err != nil {
		return m.Err
	}
	m.Deleted = append(m.Deleted, id)
	return nil
}

// --- Helpers ---

func seededUsers() *MockUserStore {
	login := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return &MockUserStore{
		Users: []models.User{
			{ID: 1, Username: "root", Email: "root@example.com", Role: models.RoleAdmin, IsActive: true, LastLoginAt: &login},
			{ID: 2, Username: "alice", Email: "alice@example.com", Role: models.RoleUser, IsActive: true},
			{ID: 3, Username: "bob", Email: "bob@example.com", Role: models.RoleAdmin, IsActive: true},
		},
		Admins: 2,
	}
}

func newUsersHandler(t *testing.T, store *MockUserStore) (*UsersHandler, *MockActivity) {
	t.Helper()
	activity := &MockActivity{}
	return NewUsersHandler(store, validation.New(), activity, newRenderer(t), testutil.NewLogger(t)), activity
}

// --- Tests ---

func TestUsersHandleList(t *testing.T) {
	testCases := []struct {
		name           string
		url            string
		store          *MockUserStore
		expectedStatus int
		expectedFilter models.UserFilters
		contains       []string
	}{
		{
			name:           "Lists users",
			url:            "/admin/users",
			store:          seededUsers(),
			expectedStatus: http.StatusOK,
			contains:       []string{"root@example.com", "alice", "01 Mar 2026 09:30", "never"},
		},
		{
			name:           "Passes search and role",
			url:            "/admin/users?q=+ali+&role=admin",
			store:          seededUsers(),
			expectedStatus: http.StatusOK,
			expectedFilter: models.UserFilters{Search: "ali", Role: models.RoleAdmin},
			contains:       []string{`<option value="admin" selected>`},
		},
		{
			name:           "Ignores unknown role",
			url:            "/admin/users?role=owner",
			store:          seededUsers(),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Repository failure",
			url:            "/admin/users",
			store:          &MockUserStore{Err: errors.New("db down")},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newUsersHandler(t, tc.store)
			req, _ := withAdminRequest(httptest.NewRequest(http.MethodGet, tc.url, nil), "")
			rec := httptest.NewRecorder()

			h.HandleList(rec, req)

			assert.Equal(t, tc.expectedStatus, rec.Code)
			if tc.expectedStatus == http.StatusOK {
				assert.Equal(t, tc.expectedFilter, tc.store.LastFilters)
			}
			for _, s := range tc.contains {
				assert.Contains(t, rec.Body.String(), s)
			}
		})
	}
}

func TestUsersHandleEdit(t *testing.T) {
	h, _ := newUsersHandler(t, seededUsers())

	req, _ := withAdminRequest(httptest.NewRequest(http.MethodGet, "/admin/users/2/edit", nil), "2")
	rec := httptest.NewRecorder()
	h.HandleEdit(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `action="/admin/users/2"`)
	assert.Contains(t, body, `<option value="user" selected>`)
	assert.Contains(t, body, `name="is_active" value="1" checked`)

	req, _ = withAdminRequest(httptest.NewRequest(http.MethodGet, "/admin/users/9/edit", nil), "9")
	rec = httptest.NewRecorder()
	h.HandleEdit(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUsersHandleUpdate(t *testing.T) {
	testCases := []struct {
		name           string
		id             string
		form           url.Values
		admins         int64
		expectedStatus int
		expectedChange *accessChange
		expectedBody   string
	}{
		{
			name:           "Promote a user",
			id:             "2",
			form:           url.Values{"role": {"admin"}, "is_active": {"1"}},
			expectedStatus: http.StatusSeeOther,
			expectedChange: &accessChange{ID: 2, Role: models.RoleAdmin, Active: true},
		},
		{
			name:           "Deactivate a user",
			id:             "2",
			form:           url.Values{"role": {"user"}},
			expectedStatus: http.StatusSeeOther,
			expectedChange: &accessChange{ID: 2, Role: models.RoleUser, Active: false},
		},
		{
			name:           "Demote another admin",
			id:             "3",
			form:           url.Values{"role": {"user"}, "is_active": {"1"}},
			admins:         2,
			expectedStatus: http.StatusSeeOther,
			expectedChange: &accessChange{ID: 3, Role: models.RoleUser, Active: true},
		},
		{
			name:           "Invalid role",
			id:             "2",
			form:           url.Values{"role": {"owner"}},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "must be one of: user admin",
		},
		{
			name:           "Self demotion",
			id:             "1",
			form:           url.Values{"role": {"user"}, "is_active": {"1"}},
			expectedStatus: http.StatusForbidden,
			expectedBody:   msgSelfDemote,
		},
		{
			name:           "Self deactivation",
			id:             "1",
			form:           url.Values{"role": {"admin"}},
			expectedStatus: http.StatusForbidden,
			expectedBody:   msgSelfDemote,
		},
		{
			name:           "Last administrator",
			id:             "3",
			form:           url.Values{"role": {"user"}, "is_active": {"1"}},
			admins:         1,
			expectedStatus: http.StatusConflict,
			expectedBody:   msgLastAdmin,
		},
		{
			name:           "Unknown user",
			id:             "42",
			form:           url.Values{"role": {"user"}},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := seededUsers()
			store.Admins = tc.admins
			h, activity := newUsersHandler(t, store)

			req, _ := withAdminRequest(postForm("/admin/users/"+tc.id, tc.form), tc.id)
			rec := httptest.NewRecorder()
			h.HandleUpdate(rec, req)

			assert.Equal(t, tc.expectedStatus, rec.Code)
			if tc.expectedBody != "" {
				assert.Contains(t, rec.Body.String(), tc.expectedBody)
			}
			if tc.expectedChange == nil {
				assert.Empty(t, store.Updated)
				assert.Empty(t, activity.Entries)
				return
			}
			assert.Equal(t, []accessChange{*tc.expectedChange}, store.Updated)
			assert.Equal(t, "/admin/users", rec.Header().Get("Location"))
			require.Len(t, activity.Entries, 1)
			assert.Equal(t, "user", activity.Entries[0].Target)
		})
	}
}

func TestUsersHandleDelete(t *testing.T) {
	t.Run("Deletes another user", func(t *testing.T) {
		store := seededUsers()
		h, activity := newUsersHandler(t, store)

		req, s := withAdminRequest(httptest.NewRequest(http.MethodPost, "/admin/users/2/delete", nil), "2")
		rec := httptest.NewRecorder()
		h.HandleDelete(rec, req)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, []uint{2}, store.Deleted)
		assert.Equal(t, []session.Flash{{Kind: session.FlashSuccess, Message: "User alice deleted."}}, s.PopFlashes())
		assert.Equal(t, recordedActivity{Action: "delete", Target: "user", TargetID: 2, Details: "alice"}, activity.Entries[0])
	})

	t.Run("Refuses to delete the current admin", func(t *testing.T) {
		store := seededUsers()
		h, activity := newUsersHandler(t, store)

		req, s := withAdminRequest(httptest.NewRequest(http.MethodPost, "/admin/users/1/delete", nil), "1")
		rec := httptest.NewRecorder()
		h.HandleDelete(rec, req)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Empty(t, store.Deleted)
		assert.Empty(t, activity.Entries)
		assert.Equal(t, []session.Flash{{Kind: session.FlashError, Message: msgSelfDelete}}, s.PopFlashes())
	})
}

// --- Activity log ---

type MockActivityStore struct {
	Entries []models.ActivityLog
	Err     error
}

func (m *MockActivityStore) Recent(_ context.Context, offset, limit int) ([]models.ActivityLog, int64, error) {
	if m.Err != nil {
		return nil, 0, m.Err
	}
	start := min(offset, len(m.Entries))
	end := min(offset+limit, len(m.Entries))
	return m.Entries[start:end], int64(len(m.Entries)), nil
}

func TestActivityHandleList(t *testing.T) {
	entries := make([]models.ActivityLog, 25)
	for i := range entries {
		entries[i] = models.ActivityLog{
			ID:         uint(i + 1),
			AdminName:  "root",
			Action:     "update",
			TargetType: "product",
			TargetID:   uint(100 + i),
			Details:    "PROD",
			IPAddress:  "203.0.113.7",
			CreatedAt:  time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC),
		}
	}

	h := NewActivityHandler(&MockActivityStore{Entries: entries}, newRenderer(t))
	req, _ := withAdminRequest(httptest.NewRequest(http.MethodGet, "/admin/activity?offset=20", nil), "")
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "product #120")
	assert.NotContains(t, body, "product #119")
	assert.Contains(t, body, "Page 2 of 2 (25 total)")

	failing := NewActivityHandler(&MockActivityStore{Err: errors.New("db down")}, newRenderer(t))
	rec = httptest.NewRecorder()
	failing.HandleList(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
