package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UsersRepository struct {
	db *gorm.DB
}

// UserFilters narrows the admin user listing.
type UserFilters struct {
	Search string
	Role   string
}

func NewUsersRepository(db *gorm.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

// Create inserts the user and, when set, its profile.
func (r *UsersRepository) Create(ctx context.Context, user *User) error {
	return translateError(r.db.WithContext(ctx).Create(user).Error)
}

func (r *UsersRepository) GetByID(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Preload("Profile").First(&user, id).Error; err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return &user, nil
}

func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Preload("Profile").
		Where("LOWER(email) = LOWER(?)", email).
		First(&user).Error; err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return &user, nil
}

func (r *UsersRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Preload("Profile").
		Where("LOWER(username) = LOWER(?)", username).
		First(&user).Error; err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return &user, nil
}

// GetByLogin finds a user by username or, when login contains '@', by email.
func (r *UsersRepository) GetByLogin(ctx context.Context, login string) (*User, error) {
	if strings.Contains(login, "@") {
		return r.GetByEmail(ctx, login)
	}
	return r.GetByUsername(ctx, login)
}

// UsernameTaken reports whether any account uses username, ignoring case.
func (r *UsersRepository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&User{}).
		Where("LOWER(username) = LOWER(?)", username).
		Count(&count).Error
	return count > 0, err
}

// EmailTaken reports whether any account uses email, ignoring case.
func (r *UsersRepository) EmailTaken(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&User{}).
		Where("LOWER(email) = LOWER(?)", email).
		Count(&count).Error
	return count > 0, err
}

func (r *UsersRepository) List(ctx context.Context, offset, limit int, filters UserFilters) ([]User, int64, error) {
	var users []User
	var total int64

	query := r.db.WithContext(ctx).Model(&User{})
	if q := strings.TrimSpace(filters.Search); q != "" {
		like := containsPattern(q)
		query = query.Where(`LOWER(username) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\'`, like, like)
	}
	if filters.Role != "" {
		query = query.Where("role = ?", filters.Role)
	}
	query = query.Session(&gorm.Session{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	if err := query.Preload("Profile").
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

// CountAdmins returns the number of accounts holding the admin role.
func (r *UsersRepository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&User{}).Where("role = ?", RoleAdmin).Count(&count).Error
	return count, err
}

// UpdateAccess sets role and active flag.
func (r *UsersRepository) UpdateAccess(ctx context.Context, id uint, role string, active bool) error {
	res := r.db.WithContext(ctx).Model(&User{ID: id}).
		Select("Role", "IsActive", "UpdatedAt").
		Updates(&User{Role: role, IsActive: active})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UsersRepository) UpdatePassword(ctx context.Context, id uint, passwordHash string) error {
	res := r.db.WithContext(ctx).Model(&User{ID: id}).
		Select("PasswordHash", "UpdatedAt").
		Updates(&User{PasswordHash: passwordHash})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UsersRepository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&User{ID: id}).UpdateColumn("last_login_at", at).Error
}

// SaveProfile inserts or updates the user's profile row.
func (r *UsersRepository) SaveProfile(ctx context.Context, profile *UserProfile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "phone", "address", "city", "postal_code", "country", "updated_at"}),
		}).
		Create(profile).Error
}

// Delete removes the user together with its profile and tokens.
func (r *UsersRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&UserProfile{}, &PasswordReset{}, &RememberMeToken{}} {
			if err := tx.Where("user_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		res := tx.Delete(&User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

// ActivateAccount consumes an activation code. The matching row is locked for the duration of the
// transaction so a code can activate at most once.
func (r *UsersRepository) ActivateAccount(ctx context.Context, code string, now time.Time) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("activation_code = ?", code).
			First(&user).Error; err != nil {
			return notFound(err, ErrTokenNotFound)
		}

		if user.ActivationExpiresAt != nil && now.After(*user.ActivationExpiresAt) {
			return ErrTokenExpired
		}

		if err := tx.Model(&user).Updates(map[string]any{
			"is_active":             true,
			"activation_code":       nil,
			"activation_expires_at": nil,
			"activated_at":          now,
		}).Error; err != nil {
			return err
		}

		user.IsActive = true
		user.ActivationCode = nil
		user.ActivationExpiresAt = nil
		user.ActivatedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
