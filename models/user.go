package models

import "time"

// Roles a user can hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a site account. Accounts start inactive and are activated through the emailed code.
type User struct {
	ID                  uint    `gorm:"primaryKey"`
	Username            string  `gorm:"uniqueIndex;size:30;not null"`
	Email               string  `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash        string  `gorm:"size:255;not null"`
	Role                string  `gorm:"size:20;not null;default:user"`
	IsActive            bool    `gorm:"not null;default:false"`
	ActivationCode      *string `gorm:"uniqueIndex;size:64"`
	ActivationExpiresAt *time.Time
	ActivatedAt         *time.Time
	LastLoginAt         *time.Time
	Profile             *UserProfile `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (u *User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// DisplayName returns the profile name when known, the username otherwise.
func (u *User) DisplayName() string {
	if u.Profile != nil {
		if name := u.Profile.FullName(); name != "" {
			return name
		}
	}
	return u.Username
}

// UserProfile holds optional personal details, one row per user.
type UserProfile struct {
	ID         uint   `gorm:"primaryKey"`
	UserID     uint   `gorm:"uniqueIndex;not null"`
	FirstName  string `gorm:"size:100"`
	LastName   string `gorm:"size:100"`
	Phone      string `gorm:"size:30"`
	Address    string `gorm:"size:255"`
	City       string `gorm:"size:100"`
	PostalCode string `gorm:"size:20"`
	Country    string `gorm:"size:100"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (p *UserProfile) TableName() string {
	return "user_profiles"
}

// FullName joins first and last name, skipping blanks.
func (p *UserProfile) FullName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	default:
		return p.LastName
	}
}
