package users

import (
	"time"

	"gorm.io/datatypes"
)

// Settings are a user's quote filters. A user without a Settings row has no
// filters.
type Settings struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Years         datatypes.JSON `json:"years"` // sorted []int
	MaxTextLength *int           `json:"max_text_length,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TableName specifies the table name for Settings
func (Settings) TableName() string {
	return "settings"
}

// User is a Telegram user that talked to the bot.
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	FirstName    string    `gorm:"not null" json:"first_name"`
	LastName     string    `json:"last_name,omitempty"`
	Username     string    `json:"username,omitempty"`
	LanguageCode string    `json:"language_code,omitempty"`
	LastActivity time.Time `gorm:"index;not null" json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`

	SettingsID *uint     `json:"settings_id,omitempty"`
	Settings   *Settings `json:"settings,omitempty"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// DisplayName joins first and last name, adding @username when known.
func (u *User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if u.Username != "" {
		name += " @" + u.Username
	}
	return name
}

// Chat is a Telegram chat the bot received updates from.
type Chat struct {
	ID           int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Type         string    `gorm:"not null" json:"type"`
	Title        string    `json:"title,omitempty"`
	Username     string    `json:"username,omitempty"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	Description  string    `json:"description,omitempty"`
	LastActivity time.Time `gorm:"index;not null" json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for Chat
func (Chat) TableName() string {
	return "chats"
}

// Profile is the user data carried by an update.
type Profile struct {
	ID           int64
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
}

// ChatProfile is the chat data carried by an update.
type ChatProfile struct {
	ID          int64
	Type        string
	Title       string
	Username    string
	FirstName   string
	LastName    string
	Description string
}
