package users

import (
	"strings"
	"time"
)

// Role is the coarse permission level of a user.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
)

// Identity captures the mapping between a canonical user id and a provider-specific login.
type Identity struct {
	Provider    string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID      string    `gorm:"column:user_id;size:190;not null;index"`
	Email       string    `gorm:"column:user_email;size:320"`
	DisplayName string    `gorm:"column:user_display_name;size:320"`
	AvatarURL   string    `gorm:"column:user_avatar_url;size:512"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;autoUpdateTime"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "user_identities"
}

// User is the canonical account together with its student profile.
// StudentID, Branch and Semester stay empty until the student completes the profile.
type User struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:190;not null" json:"id"`
	Email       string    `gorm:"column:email;size:320" json:"email"`
	DisplayName string    `gorm:"column:display_name;size:320" json:"name"`
	AvatarURL   string    `gorm:"column:avatar_url;size:512" json:"profilePicUrl,omitempty"`
	StudentID   *string   `gorm:"column:student_id;size:12;uniqueIndex" json:"studentId,omitempty"`
	Branch      string    `gorm:"column:branch;size:32;not null;default:''" json:"branch,omitempty"`
	Semester    int       `gorm:"column:semester;not null;default:0" json:"semester,omitempty"`
	Role        Role      `gorm:"column:role;size:16;not null;default:'student'" json:"role"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName exposes the table backing canonical users.
func (User) TableName() string {
	return "users"
}

// ProfileInput carries the student profile fields.
type ProfileInput struct {
	StudentID string
	Branch    string
	Semester  int
}

// normalize trims surrounding whitespace from claim and form values.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
