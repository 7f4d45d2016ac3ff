package models

import "time"

// PasswordReset stores the sha256 hash of an emailed reset token.
type PasswordReset struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	TokenHash string    `gorm:"uniqueIndex;size:64;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (p *PasswordReset) TableName() string {
	return "password_resets"
}

// RememberMeToken stores the bcrypt hash of a long-lived login cookie token.
type RememberMeToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	TokenHash string    `gorm:"size:255;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

func (t *RememberMeToken) TableName() string {
	return "remember_me_tokens"
}
