package models

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionsRepository struct {
	db *gorm.DB
}

func NewSessionsRepository(db *gorm.DB) *SessionsRepository {
	return &SessionsRepository{db: db}
}

// Find returns the live session with the given id.
func (r *SessionsRepository) Find(ctx context.Context, id string, now time.Time) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", id, now).
		First(&s).Error; err != nil {
		return nil, notFound(err, ErrSessionNotFound)
	}
	return &s, nil
}

// Save upserts the session row.
func (r *SessionsRepository) Save(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "expires_at", "updated_at"}),
		}).
		Create(s).Error
}

func (r *SessionsRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&Session{}, "id = ?", id).Error
}

// DeleteExpired removes sessions past their expiry and returns how many were removed.
func (r *SessionsRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&Session{})
	return res.RowsAffected, res.Error
}
