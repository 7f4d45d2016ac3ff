package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// TokensRepository persists password-reset and remember-me tokens.
type TokensRepository struct {
	db *gorm.DB
}

func NewTokensRepository(db *gorm.DB) *TokensRepository {
	return &TokensRepository{db: db}
}

// ReplacePasswordReset drops earlier resets for the user and stores reset.
func (r *TokensRepository) ReplacePasswordReset(ctx context.Context, reset *PasswordReset) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", reset.UserID).Delete(&PasswordReset{}).Error; err != nil {
			return err
		}
		return tx.Create(reset).Error
	})
}

// GetPasswordReset returns the unused reset with the given hash.
func (r *TokensRepository) GetPasswordReset(ctx context.Context, tokenHash string) (*PasswordReset, error) {
	var reset PasswordReset
	if err := r.db.WithContext(ctx).
		Where("token_hash = ? AND used_at IS NULL", tokenHash).
		First(&reset).Error; err != nil {
		return nil, notFound(err, ErrTokenNotFound)
	}
	return &reset, nil
}

// MarkPasswordResetUsed flags a reset as consumed. Consuming an already used reset yields
// ErrTokenNotFound.
func (r *TokensRepository) MarkPasswordResetUsed(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&PasswordReset{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (r *TokensRepository) CreateRememberMe(ctx context.Context, token *RememberMeToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

// ActiveRememberMe returns the user's unexpired remember-me tokens, newest first.
func (r *TokensRepository) ActiveRememberMe(ctx context.Context, userID uint, now time.Time) ([]RememberMeToken, error) {
	var tokens []RememberMeToken
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("created_at DESC").
		Find(&tokens).Error
	return tokens, err
}

func (r *TokensRepository) DeleteRememberMe(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&RememberMeToken{}, id).Error
}

func (r *TokensRepository) DeleteRememberMeForUser(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&RememberMeToken{}).Error
}

// PurgeExpired deletes expired remember-me tokens and expired or used password resets.
func (r *TokensRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("expires_at <= ?", now).Delete(&RememberMeToken{})
		if res.Error != nil {
			return res.Error
		}
		purged += res.RowsAffected

		res = tx.Where("expires_at <= ? OR used_at IS NOT NULL", now).Delete(&PasswordReset{})
		if res.Error != nil {
			return res.Error
		}
		purged += res.RowsAffected
		return nil
	})
	return purged, err
}
