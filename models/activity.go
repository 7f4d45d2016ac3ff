package models

import "time"

// ActivityLog records one administrative action.
type ActivityLog struct {
	ID         uint   `gorm:"primaryKey"`
	AdminID    uint   `gorm:"index;not null"`
	AdminName  string `gorm:"size:30;not null"`
	Action     string `gorm:"size:50;not null"`
	TargetType string `gorm:"size:50;not null"`
	TargetID   uint
	Details    string    `gorm:"type:text"`
	IPAddress  string    `gorm:"size:45"`
	CreatedAt  time.Time `gorm:"index"`
}

func (a *ActivityLog) TableName() string {
	return "admin_activity_log"
}

// ContactMessage is a submission of the public contact form.
type ContactMessage struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100;not null"`
	Email     string `gorm:"size:255;not null"`
	Subject   string `gorm:"size:200;not null"`
	Message   string `gorm:"type:text;not null"`
	IPAddress string `gorm:"size:45"`
	CreatedAt time.Time
}

func (m *ContactMessage) TableName() string {
	return "contact_messages"
}

// Session is the server-side half of a browser session. Data is a JSON document owned by the
// session package.
type Session struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Data      string    `gorm:"type:text;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	UpdatedAt time.Time
}

func (s *Session) TableName() string {
	return "sessions"
}

// All returns every model in migration order.
func All() []any {
	return []any{
		&User{},
		&UserProfile{},
		&Category{},
		&Tag{},
		&Product{},
		&Variant{},
		&PasswordReset{},
		&RememberMeToken{},
		&ActivityLog{},
		&ContactMessage{},
		&Session{},
	}
}
